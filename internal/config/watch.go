package config

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file and hot-reloads the shared secret whenever
// the file is rewritten, so the credential can be rotated without a restart.
// Watching the parent directory rather than the file itself survives the
// rename-and-replace write pattern editors and deploy tooling use.
func Watch(ctx context.Context, config *Config, filePath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(filePath)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !sameFile(event.Name, filePath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := Reload(config, filePath); err != nil {
					log.Printf("config: reload failed: %v", err)
					continue
				}
				log.Printf("config: reloaded %s", filePath)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config: watcher error: %v", err)
			}
		}
	}()

	return nil
}

func sameFile(a, b string) bool {
	cleanA, errA := filepath.Abs(a)
	cleanB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
	}
	return cleanA == cleanB
}
