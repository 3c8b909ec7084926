// Copyright 2025 Aura Calistenia
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

package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/tiendc/go-deepcopy"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/aura-calistenia/aura-state/pkg/filesystem"
	"github.com/aura-calistenia/aura-state/pkg/logger"
)

// Default admin credentials, overridable via AURA_ADMIN_USERNAME and
// AURA_ADMIN_PASSWORD. They match the account the site shipped with so that
// existing deployments keep working without extra configuration.
const (
	DefaultAdminUsername = "rmonale"
	DefaultAdminPassword = "Adminaura123!"
)

const (
	defaultDataDir           = "./data"
	defaultCacheTTLSeconds   = 15.0
	defaultStatusTTLSeconds  = 30.0
	defaultSessionTTLSeconds = 12 * 60 * 60
	defaultResetTTLSeconds   = 60 * 60
	defaultReviewTTLSeconds  = 7 * 24 * 60 * 60
	defaultHTTPPort          = 8080
)

// Config captures every knob of the state subsystem.
type Config struct {
	// DataDir is the directory holding the local document files.
	DataDir string

	// DatabaseURL is the resolved Postgres connection URL; empty means the
	// remote backend is disabled and the store runs local-only.
	DatabaseURL string
	// DatabaseURLSource names the environment variable the URL came from.
	DatabaseURLSource string
	// TableName is the sanitized remote document table name.
	TableName string

	// CacheTTL bounds document cache freshness; zero disables the cache.
	CacheTTL time.Duration
	// StatusTTL bounds how long a storage status answer is reused; zero
	// disables the status cache.
	StatusTTL time.Duration

	// Token lifetimes.
	SessionTTL time.Duration
	ResetTTL   time.Duration
	ReviewTTL  time.Duration

	AdminUsername string
	AdminPassword string

	HTTPPort int
}

// RemoteEnabled reports whether a remote database has been configured.
func (c *Config) RemoteEnabled() bool {
	return c.DatabaseURL != ""
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() Config {
	var clone Config
	deepcopy.Copy(&clone, c)
	return clone
}

// RedactedDatabaseURL returns the connection URL with any password masked,
// safe for logs and status output.
func (c *Config) RedactedDatabaseURL() string {
	if c.DatabaseURL == "" {
		return ""
	}
	parsed, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "configured"
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "xxxxx")
		}
	}
	return parsed.String()
}

// fileValues is the optional YAML overlay read from AURA_CONFIG_FILE.
// Pointer fields distinguish "absent" from zero values; environment
// variables always win over file values.
type fileValues struct {
	DataDir           *string  `yaml:"dataDir"`
	DatabaseURL       *string  `yaml:"databaseUrl"`
	TableName         *string  `yaml:"tableName"`
	CacheTTLSeconds   *float64 `yaml:"cacheTtlSeconds"`
	StatusTTLSeconds  *float64 `yaml:"statusTtlSeconds"`
	SessionTTLSeconds *int     `yaml:"sessionTtlSeconds"`
	ResetTTLSeconds   *int     `yaml:"resetTtlSeconds"`
	ReviewTTLSeconds  *int     `yaml:"reviewTtlSeconds"`
	AdminUsername     *string  `yaml:"adminUsername"`
	AdminPassword     *string  `yaml:"adminPassword"`
	HTTPPort          *int     `yaml:"httpPort"`
}

// Loader reads the configuration from the environment plus an optional YAML
// overlay file.
type Loader struct {
	fsService filesystem.Service
	logger    *zap.SugaredLogger
}

// NewLoader creates a config loader backed by the default filesystem service.
func NewLoader() *Loader {
	return &Loader{
		fsService: filesystem.NewDefaultService(),
		logger:    logger.For(logger.ComponentConfig),
	}
}

// WithFileSystemService replaces the filesystem service used to read the
// overlay file.
func (l *Loader) WithFileSystemService(fsService filesystem.Service) *Loader {
	l.fsService = fsService
	return l
}

// Load assembles the configuration: defaults, then the AURA_CONFIG_FILE
// overlay when one is configured, then environment variables. Unparseable
// optional variables are logged and fall back to their defaults; only an
// explicitly configured but unreadable overlay file is an error.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	overlay, err := l.loadOverlay(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.DataDir = l.stringValue("AURA_DATA_DIR", overlay.DataDir, defaultDataDir)

	cfg.DatabaseURL, cfg.DatabaseURLSource = ResolveDatabaseURL(os.Getenv)
	if cfg.DatabaseURL == "" && overlay.DatabaseURL != nil {
		cfg.DatabaseURL = NormalizeDatabaseURL(*overlay.DatabaseURL)
		if cfg.DatabaseURL != "" {
			cfg.DatabaseURLSource = "config file"
		}
	}

	cfg.TableName = SanitizeTableName(l.stringValue("AURA_DB_TABLE", overlay.TableName, DefaultTableName))

	cfg.CacheTTL = l.floatSeconds("AURA_CACHE_TTL_SECONDS", overlay.CacheTTLSeconds, defaultCacheTTLSeconds)
	cfg.StatusTTL = l.floatSeconds("AURA_STORAGE_STATUS_TTL_SECONDS", overlay.StatusTTLSeconds, defaultStatusTTLSeconds)
	cfg.SessionTTL = l.intSeconds("AURA_SESSION_TTL_SECONDS", overlay.SessionTTLSeconds, defaultSessionTTLSeconds)
	cfg.ResetTTL = l.intSeconds("AURA_RESET_TOKEN_TTL_SECONDS", overlay.ResetTTLSeconds, defaultResetTTLSeconds)
	cfg.ReviewTTL = l.intSeconds("AURA_REVIEW_TOKEN_TTL_SECONDS", overlay.ReviewTTLSeconds, defaultReviewTTLSeconds)

	cfg.AdminUsername = l.stringValue("AURA_ADMIN_USERNAME", overlay.AdminUsername, DefaultAdminUsername)
	cfg.AdminPassword = l.stringValue("AURA_ADMIN_PASSWORD", overlay.AdminPassword, DefaultAdminPassword)

	cfg.HTTPPort = l.intValue("AURA_HTTP_PORT", overlay.HTTPPort, defaultHTTPPort)

	return cfg, nil
}

func (l *Loader) loadOverlay(ctx context.Context) (fileValues, error) {
	var overlay fileValues

	path, err := env.GetAsString("AURA_CONFIG_FILE", false, "")
	if err != nil {
		l.logger.Warnf("Failed to read AURA_CONFIG_FILE: %s", err)
	}
	if path == "" {
		return overlay, nil
	}

	data, err := l.fsService.ReadFile(ctx, path)
	if err != nil {
		return overlay, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return overlay, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	l.logger.Infof("Loaded config overlay from %s", path)
	return overlay, nil
}

// stringValue treats a set-but-empty variable like an unset one, matching
// how operators clear a value without deleting it from the environment.
func (l *Loader) stringValue(key string, fileValue *string, fallback string) string {
	if fileValue != nil && *fileValue != "" {
		fallback = *fileValue
	}
	value, err := env.GetAsString(key, false, fallback)
	if err != nil {
		l.logger.Warnf("Failed to read %s: %s", key, err)
	}
	if value == "" {
		return fallback
	}
	return value
}

func (l *Loader) intValue(key string, fileValue *int, fallback int) int {
	if fileValue != nil {
		fallback = *fileValue
	}
	value, err := env.GetAsInt(key, false, fallback)
	if err != nil {
		l.logger.Warnf("Failed to parse %s: %s", key, err)
	}
	return value
}

// floatSeconds reads a float seconds value and clamps negatives to zero,
// so "disabled" is always exactly zero.
func (l *Loader) floatSeconds(key string, fileValue *float64, fallback float64) time.Duration {
	if fileValue != nil {
		fallback = *fileValue
	}
	value, err := env.GetAsFloat64(key, false, fallback)
	if err != nil {
		l.logger.Warnf("Failed to parse %s: %s", key, err)
		value = fallback
	}
	if value < 0 {
		value = 0
	}
	return time.Duration(value * float64(time.Second))
}

func (l *Loader) intSeconds(key string, fileValue *int, fallback int) time.Duration {
	if fileValue != nil {
		fallback = *fileValue
	}
	value, err := env.GetAsInt(key, false, fallback)
	if err != nil {
		l.logger.Warnf("Failed to parse %s: %s", key, err)
		value = fallback
	}
	if value < 0 {
		value = 0
	}
	return time.Duration(value) * time.Second
}
