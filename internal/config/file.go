package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the structure of the configuration file
type FileConfig struct {
	Server struct {
		Port   int    `yaml:"port"`
		Secret string `yaml:"secret"`
	} `yaml:"server"`

	Persistence struct {
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"persistence"`

	Relay struct {
		RedisAddr string `yaml:"redis_addr"`
	} `yaml:"relay"`

	CORS struct {
		Enabled          bool   `yaml:"enabled"`
		AllowOrigins     string `yaml:"allow_origins"`
		AllowMethods     string `yaml:"allow_methods"`
		AllowHeaders     string `yaml:"allow_headers"`
		AllowCredentials bool   `yaml:"allow_credentials"`
		MaxAge           int    `yaml:"max_age"`
	} `yaml:"cors"`
}

// LoadConfig loads configuration from a YAML file. An empty path returns the
// defaults.
func LoadConfig(filePath string) (*Config, error) {
	config := &Config{
		Port: 1999,
		CORS: CORSConfig{
			Enabled:          false,
			AllowOrigins:     "*",
			AllowMethods:     "GET, POST, OPTIONS",
			AllowHeaders:     "Content-Type, Authorization",
			AllowCredentials: false,
			MaxAge:           86400,
		},
	}

	if filePath == "" {
		return config, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyFileConfig(config, &fileConfig)
	return config, nil
}

// Reload re-reads the file and applies the hot-reloadable settings (the
// shared secret) to an existing config. Topology-level settings (port,
// database, relay) require a restart and are left untouched.
func Reload(config *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	var fileConfig FileConfig
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	config.setSecret(fileConfig.Server.Secret)
	return nil
}

func applyFileConfig(config *Config, fileConfig *FileConfig) {
	if fileConfig.Server.Port != 0 {
		config.Port = fileConfig.Server.Port
	}
	config.setSecret(fileConfig.Server.Secret)
	config.DatabaseURL = fileConfig.Persistence.DatabaseURL
	config.RedisAddr = fileConfig.Relay.RedisAddr

	config.CORS.Enabled = fileConfig.CORS.Enabled
	if fileConfig.CORS.AllowOrigins != "" {
		config.CORS.AllowOrigins = fileConfig.CORS.AllowOrigins
	}
	if fileConfig.CORS.AllowMethods != "" {
		config.CORS.AllowMethods = fileConfig.CORS.AllowMethods
	}
	if fileConfig.CORS.AllowHeaders != "" {
		config.CORS.AllowHeaders = fileConfig.CORS.AllowHeaders
	}
	config.CORS.AllowCredentials = fileConfig.CORS.AllowCredentials
	if fileConfig.CORS.MaxAge != 0 {
		config.CORS.MaxAge = fileConfig.CORS.MaxAge
	}
}

// SaveDefaultConfig saves a default configuration file
func SaveDefaultConfig(filePath string) error {
	var fileConfig FileConfig

	fileConfig.Server.Port = 1999
	fileConfig.Server.Secret = ""
	fileConfig.Persistence.DatabaseURL = ""
	fileConfig.Relay.RedisAddr = ""

	fileConfig.CORS.Enabled = false
	fileConfig.CORS.AllowOrigins = "*"
	fileConfig.CORS.AllowMethods = "GET, POST, OPTIONS"
	fileConfig.CORS.AllowHeaders = "Content-Type, Authorization"
	fileConfig.CORS.AllowCredentials = false
	fileConfig.CORS.MaxAge = 86400

	data, err := yaml.Marshal(fileConfig)
	if err != nil {
		return fmt.Errorf("error creating default config: %w", err)
	}

	yamlWithComments := "# Liveboard Server Configuration\n" +
		"# This file contains all settings for the liveboard sync server\n\n" +
		string(data)

	if err := os.WriteFile(filePath, []byte(yamlWithComments), 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
