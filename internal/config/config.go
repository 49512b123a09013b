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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/app/config/config.yaml"

// Marketplace identifies the storefront the bridge serves.
type Marketplace struct {
	Name    string
	RootURL string
}

// SendGrid holds outbound mail settings.
type SendGrid struct {
	APIKey    string
	FromEmail string
	ReplyTo   string
	Host      string
}

// Sharetribe holds Integration API credentials.
type Sharetribe struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// MetadataLock configures the per-transaction Redis lock.
type MetadataLock struct {
	Enabled bool
	TTL     time.Duration
	Wait    time.Duration
}

// Config holds all configuration for the bridge service.
type Config struct {
	Marketplace Marketplace
	SendGrid    SendGrid
	Sharetribe  Sharetribe

	// Redis is required only when the metadata lock is enabled.
	RedisURL     string
	MetadataLock MetadataLock

	// DatabaseURL enables the delivery log when set.
	DatabaseURL string

	TemplateDir      string
	Locale           string
	TranslationFiles []string

	MaxBodyBytes int64
	Port         int
	HealthPort   int
	LogLevel     slog.Level
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Marketplace struct {
		Name    string `yaml:"name"`
		RootURL string `yaml:"root_url"`
	} `yaml:"marketplace"`
	SendGrid struct {
		APIKey    string `yaml:"api_key"`
		FromEmail string `yaml:"from_email"`
		ReplyTo   string `yaml:"reply_to_email"`
		Host      string `yaml:"host"`
	} `yaml:"sendgrid"`
	Sharetribe struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		BaseURL      string `yaml:"base_url"`
	} `yaml:"sharetribe"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	MetadataLock struct {
		Enabled *bool  `yaml:"enabled"`
		TTL     string `yaml:"ttl"`
		Wait    string `yaml:"wait"`
	} `yaml:"metadata_lock"`
	Templates struct {
		Dir string `yaml:"dir"`
	} `yaml:"templates"`
	I18n struct {
		Locale string   `yaml:"locale"`
		Files  []string `yaml:"files"`
	} `yaml:"i18n"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. The file is optional when CONFIG_PATH is unset;
// YAML values take precedence over the environment.
func Load() (*Config, error) {
	configPath, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit || configPath == "" {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		data = nil
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	return parse(data)
}

func parse(data []byte) (*Config, error) {
	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	lockEnabled := envOrDefaultBool("METADATA_LOCK", false)
	if raw.MetadataLock.Enabled != nil {
		lockEnabled = *raw.MetadataLock.Enabled
	}

	cfg := &Config{
		Marketplace: Marketplace{
			Name:    firstNonEmpty(raw.Marketplace.Name, os.Getenv("REACT_APP_MARKETPLACE_NAME")),
			RootURL: strings.TrimRight(firstNonEmpty(raw.Marketplace.RootURL, os.Getenv("REACT_APP_MARKETPLACE_ROOT_URL")), "/"),
		},
		SendGrid: SendGrid{
			APIKey:    firstNonEmpty(raw.SendGrid.APIKey, os.Getenv("SENDGRID_API_KEY")),
			FromEmail: firstNonEmpty(raw.SendGrid.FromEmail, os.Getenv("SENDGRID_FROM_EMAIL")),
			ReplyTo:   firstNonEmpty(raw.SendGrid.ReplyTo, os.Getenv("SENDGRID_REPLY_TO_EMAIL")),
			Host:      firstNonEmpty(raw.SendGrid.Host, envOrDefault("SENDGRID_HOST", "https://api.sendgrid.com")),
		},
		Sharetribe: Sharetribe{
			ClientID:     firstNonEmpty(raw.Sharetribe.ClientID, os.Getenv("SHARETRIBE_INTEGRATION_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Sharetribe.ClientSecret, os.Getenv("SHARETRIBE_INTEGRATION_CLIENT_SECRET")),
			BaseURL:      firstNonEmpty(raw.Sharetribe.BaseURL, envOrDefault("SHARETRIBE_INTEGRATION_BASE_URL", "https://flex-integ-api.sharetribe.com")),
		},
		RedisURL: firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		MetadataLock: MetadataLock{
			Enabled: lockEnabled,
			TTL:     durationOr(raw.MetadataLock.TTL, envOrDefaultDuration("METADATA_LOCK_TTL", 30*time.Second)),
			Wait:    durationOr(raw.MetadataLock.Wait, envOrDefaultDuration("METADATA_LOCK_WAIT", 5*time.Second)),
		},
		DatabaseURL:      firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		TemplateDir:      firstNonEmpty(raw.Templates.Dir, os.Getenv("TEMPLATE_DIR")),
		Locale:           firstNonEmpty(raw.I18n.Locale, envOrDefault("LOCALE", "en")),
		TranslationFiles: raw.I18n.Files,
		MaxBodyBytes:     int64(envOrDefaultInt("MAX_BODY_BYTES", 50<<20)),
		Port:             envOrDefaultInt("PORT", 3500),
		HealthPort:       envOrDefaultInt("HEALTH_PORT", 8081),
		LogLevel:         envOrDefaultLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate reports every missing required setting at once.
func (c *Config) validate() error {
	var missing []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	require(c.Marketplace.Name, "REACT_APP_MARKETPLACE_NAME")
	require(c.Marketplace.RootURL, "REACT_APP_MARKETPLACE_ROOT_URL")
	require(c.SendGrid.APIKey, "SENDGRID_API_KEY")
	require(c.SendGrid.FromEmail, "SENDGRID_FROM_EMAIL")
	require(c.Sharetribe.ClientID, "SHARETRIBE_INTEGRATION_CLIENT_ID")
	require(c.Sharetribe.ClientSecret, "SHARETRIBE_INTEGRATION_CLIENT_SECRET")
	if c.MetadataLock.Enabled {
		require(c.RedisURL, "REDIS_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
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

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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

func envOrDefaultLevel(key string, fallback slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			return level
		}
	}
	return fallback
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
		return d
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
