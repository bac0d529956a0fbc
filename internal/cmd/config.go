package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration, loaded from an optional yaml file
// with environment variable overrides on top.
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	NATS struct {
		URL string `yaml:"url"` // empty disables the relay
	} `yaml:"nats"`
	Reveal struct {
		StepMS   int `yaml:"step_ms"`
		JitterMS int `yaml:"jitter_ms"`
	} `yaml:"reveal"`
	Directory struct {
		DebounceMS int `yaml:"debounce_ms"`
	} `yaml:"directory"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig() (*Config, error) {
	var config Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if config.HTTP.Addr == "" {
		config.HTTP.Addr = fmt.Sprintf(":%s", getEnv("PORT", "8080"))
	}
	if config.NATS.URL == "" {
		config.NATS.URL = os.Getenv("NATS_URL")
	}
	if config.Reveal.StepMS <= 0 {
		config.Reveal.StepMS = getEnvAsInt("REVEAL_STEP_MS", 250)
	}
	if config.Reveal.JitterMS <= 0 {
		config.Reveal.JitterMS = getEnvAsInt("REVEAL_JITTER_MS", 150)
	}
	if config.Directory.DebounceMS <= 0 {
		config.Directory.DebounceMS = getEnvAsInt("DIRECTORY_DEBOUNCE_MS", 150)
	}
	if config.Logging.Level == "" {
		config.Logging.Level = getEnv("LOG_LEVEL", "info")
	}

	return &config, nil
}

func (c *Config) revealStep() time.Duration {
	return time.Duration(c.Reveal.StepMS) * time.Millisecond
}

func (c *Config) revealJitter() time.Duration {
	return time.Duration(c.Reveal.JitterMS) * time.Millisecond
}

func (c *Config) directoryDebounce() time.Duration {
	return time.Duration(c.Directory.DebounceMS) * time.Millisecond
}
