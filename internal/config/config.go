// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the mailcheck service.
type Config struct {
	// Storage
	DatabaseURL string
	RedisURL    string

	// Identity provider
	TokenURL   string
	TokenScope string

	// Retrieval endpoints
	GraphBaseURL string
	IMAPAddr     string

	// Fetch behaviour
	DefaultFolder  string
	FetchLimit     int
	ConnectTimeout time.Duration

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	OAuth struct {
		TokenURL string `yaml:"token_url"`
		Scope    string `yaml:"scope"`
	} `yaml:"oauth"`
	Graph struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"graph"`
	IMAP struct {
		Addr string `yaml:"addr"`
	} `yaml:"imap"`
	Fetch struct {
		DefaultFolder  string `yaml:"default_folder"`
		Limit          int    `yaml:"limit"`
		ConnectTimeout string `yaml:"connect_timeout"`
	} `yaml:"fetch"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A missing config file is not
// an error; defaults and environment variables apply.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}
	if err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:    firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/mailcheck")),
		RedisURL:       firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		TokenURL:       firstNonEmpty(raw.OAuth.TokenURL, envOrDefault("TOKEN_URL", "https://login.microsoftonline.com/consumers/oauth2/v2.0/token")),
		TokenScope:     firstNonEmpty(raw.OAuth.Scope, envOrDefault("TOKEN_SCOPE", "https://graph.microsoft.com/.default offline_access")),
		GraphBaseURL:   firstNonEmpty(raw.Graph.BaseURL, envOrDefault("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0")),
		IMAPAddr:       firstNonEmpty(raw.IMAP.Addr, envOrDefault("IMAP_ADDR", "outlook.office365.com:993")),
		DefaultFolder:  firstNonEmpty(raw.Fetch.DefaultFolder, envOrDefault("DEFAULT_FOLDER", "INBOX")),
		FetchLimit:     envOrDefaultInt("FETCH_LIMIT", 100),
		ConnectTimeout: envOrDefaultDuration("CONNECT_TIMEOUT", 30*time.Second),
		Port:           envOrDefaultInt("PORT", 8080),
	}

	if raw.Fetch.Limit > 0 {
		cfg.FetchLimit = raw.Fetch.Limit
	}
	if raw.Fetch.ConnectTimeout != "" {
		d, err := time.ParseDuration(raw.Fetch.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse fetch.connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
