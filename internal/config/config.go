// Package config loads bridge configuration from an optional YAML file
// with environment variable overrides. Env always wins so deployments
// can keep secrets out of the file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full bridge configuration.
type Config struct {
	Host   string `yaml:"host"`
	Port   string `yaml:"port"`
	DBPath string `yaml:"db_path"`

	Strava StravaConfig `yaml:"strava"`
	Poke   PokeConfig   `yaml:"poke"`
}

// StravaConfig holds the provider app credentials and webhook secret.
type StravaConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	VerifyToken  string `yaml:"verify_token"`
}

// PokeConfig holds the messaging service endpoint.
type PokeConfig struct {
	InboundURL string `yaml:"inbound_url"`
}

// Load reads the config file at path (if it exists), applies env
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Host:   "127.0.0.1",
		Port:   "8090",
		DBPath: "bridge.db",
	}
	cfg.Strava.VerifyToken = "JOLT_STRAVA_WEBHOOK"

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Strava.ClientID == "" || cfg.Strava.ClientSecret == "" {
		return nil, fmt.Errorf("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET are required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Host, "HOST")
	setFromEnv(&cfg.Port, "PORT")
	setFromEnv(&cfg.DBPath, "BRIDGE_DB_PATH")
	setFromEnv(&cfg.Strava.ClientID, "STRAVA_CLIENT_ID")
	setFromEnv(&cfg.Strava.ClientSecret, "STRAVA_CLIENT_SECRET")
	setFromEnv(&cfg.Strava.VerifyToken, "STRAVA_WEBHOOK_VERIFY_TOKEN")
	setFromEnv(&cfg.Poke.InboundURL, "POKE_INBOUND_URL")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
