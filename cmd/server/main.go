package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"

	"liveboard/internal/config"
	"liveboard/internal/room"
	"liveboard/internal/store"
)

func main() {
	cfg, configPath, err := config.ParseFlags()
	if err != nil {
		log.Fatalf("Error parsing configuration: %v", err)
	}

	ctx := context.Background()

	// Hot-reload the shared secret when the config file changes.
	if configPath != "" {
		if err := config.Watch(ctx, cfg, configPath); err != nil {
			log.Printf("Warning: config watch disabled: %v", err)
		}
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		st = pg
		log.Printf("Persistence enabled")
	} else {
		log.Printf("No database configured, records are in-memory only")
	}

	var bridge *room.Bridge
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		bridge = room.NewBridge(rdb)
		log.Printf("Cross-instance relay enabled via %s", cfg.RedisAddr)
	}

	server := room.NewServer(ctx, cfg, st, bridge)
	router := server.Routes()

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("liveboard sync server running at http://localhost%s", addr)
	log.Fatal(http.ListenAndServe(addr, router))
}
