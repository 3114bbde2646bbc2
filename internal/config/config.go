package config

import (
	"flag"
	"log"
	"sync"
)

// CORSConfig holds CORS configuration options for the HTTP surface.
type CORSConfig struct {
	Enabled          bool
	AllowOrigins     string
	AllowMethods     string
	AllowHeaders     string
	AllowCredentials bool
	MaxAge           int
}

// Config holds the application configuration. The shared secret guarding the
// HTTP action endpoint is hot-reloadable (see Watch), so it is read through
// Secret rather than a plain field.
type Config struct {
	Port        int
	DatabaseURL string
	RedisAddr   string
	CORS        CORSConfig

	mu     sync.RWMutex
	secret string
}

// Secret returns the current shared secret, or "" when none is configured.
func (c *Config) Secret() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.secret
}

func (c *Config) setSecret(secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secret = secret
}

// ParseFlags parses command line flags and merges them with the config file.
// It returns the config and the path of the file it was loaded from ("" when
// running on defaults).
func ParseFlags() (*Config, string, error) {
	configFlag := flag.String("config", "config.yml", "Path to configuration file")
	generateConfigFlag := flag.Bool("generate-config", false, "Generate a default configuration file")
	configFilePathFlag := flag.String("config-path", "config.yml", "Path where config file should be generated")

	// Simple flags for overriding config file
	portFlag := flag.Int("p", 0, "Port to listen on (overrides config)")
	dbFlag := flag.String("db", "", "Postgres connection URL (overrides config)")
	redisFlag := flag.String("redis", "", "Redis address for the cross-instance relay (overrides config)")

	flag.Parse()

	if *generateConfigFlag {
		log.Printf("Generating default configuration file at %s", *configFilePathFlag)
		if err := SaveDefaultConfig(*configFilePathFlag); err != nil {
			return nil, "", err
		}
		log.Printf("Configuration file generated successfully")
	}

	path := *configFlag
	config, err := LoadConfig(path)
	if err != nil {
		log.Printf("Warning: Could not load config file: %v", err)
		log.Printf("Using default configuration")
		config, _ = LoadConfig("")
		path = ""
	}

	if *portFlag != 0 {
		config.Port = *portFlag
	}
	if *dbFlag != "" {
		config.DatabaseURL = *dbFlag
	}
	if *redisFlag != "" {
		config.RedisAddr = *redisFlag
	}

	return config, path, nil
}
