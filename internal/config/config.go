package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir        string  `json:"data_dir"`
	MinRunners     int     `json:"min_runners"`
	MaxRunners     int     `json:"max_runners"`
	IdleTimeoutSec int     `json:"idle_timeout_sec"`
	MaxAttempts    int     `json:"max_attempts"`
	BackoffBase    float64 `json:"backoff_base"`
}

const configFileName = "config.json"

// NewConfig creates a config with default values
func NewConfig() *Config {
	return &Config{
		DataDir:        "./db",
		MinRunners:     1,
		MaxRunners:     4,
		IdleTimeoutSec: 30,
		MaxAttempts:    3,
		BackoffBase:    2.0,
	}
}

func configPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	appConfigDir := filepath.Join(configDir, "jobctl")
	if err := os.MkdirAll(appConfigDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(appConfigDir, configFileName), nil
}

func LoadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	cfg := NewConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, so we'll save the defaults and return them
			return cfg, SaveConfig(cfg)
		}
		return nil, err
	}
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
