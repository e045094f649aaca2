package config

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct{ v *viper.Viper }

func New() *Config {
	vv := viper.New()
	vv.AutomaticEnv()
	return &Config{v: vv}
}

// GetDsn resolves the final DSN using env vars
func (c *Config) GetDsn() (*url.URL, error) {
	source := c.v.GetString("DSN")
	if source == "" {
		user := c.v.GetString("PGUSER")
		if user == "" {
			user = c.v.GetString("USER")
		}
		if user == "" {
			user = "postgres"
		}

		dbName := c.v.GetString("PGDATABASE")
		if dbName == "" {
			dbName = "postgres"
		}

		host := c.v.GetString("PGHOST")
		if host == "" {
			host = "localhost"
		}

		port := c.v.GetString("PGPORT")
		hasPortEnv := port != ""
		if !hasPortEnv || port == "" {
			port = "5432"
		}

		if strings.HasPrefix(host, "/") {
			socketDir := host

			// If PGHOST points to a file, derive directory and only infer port when PGPORT isn't set.
			if fi, err := os.Stat(host); err == nil && !fi.IsDir() {
				socketDir = filepath.Dir(host)
				if !hasPortEnv {
					base := filepath.Base(host)
					// Expected filename pattern: ".s.PGSQL.<port>"
					if strings.HasPrefix(base, ".s.PGSQL.") {
						if inferred := strings.TrimPrefix(base, ".s.PGSQL."); inferred != "" {
							if _, err := strconv.Atoi(inferred); err == nil {
								port = inferred
							}
						}
					}
				}
			}

			q := url.Values{}
			q.Set("host", socketDir)
			q.Set("port", port)
			q.Set("sslmode", "disable")
			source = "postgres://" + user + "@/" + dbName + "?" + q.Encode()
		} else {
			source = "postgres://" + user + "@" + host + ":" + port + "/" + dbName + "?sslmode=disable"
		}
	}

	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return nil, errors.New("invalid DSN: must be in format driver://dataSourceName")
	}
	return u, nil
}

func (c *Config) GetGitHubToken() string {
	if t := c.v.GetString("GITHUB_TOKEN"); t != "" {
		return t
	}
	return c.v.GetString("GH_TOKEN")
}

// GetRepo returns the tracked repository in "owner/name" form from env var GITHUB_REPO.
func (c *Config) GetRepo() string { return c.v.GetString("GITHUB_REPO") }

// GetHistoryWindow returns the trailing window used to compile historical
// aggregates. Reads a day count from env var HISTORY_WINDOW; defaults to 60.
func (c *Config) GetHistoryWindow() time.Duration {
	const def = 60
	days := c.v.GetInt("HISTORY_WINDOW")
	if days <= 0 {
		days = def
	}
	return time.Duration(days) * 24 * time.Hour
}

// GetCacheTTL returns the staleness TTL for project and user aggregates.
// Reads a day count from env var MAX_DATA_AGE; defaults to 1 day.
func (c *Config) GetCacheTTL() time.Duration {
	const def = 1
	days := c.v.GetInt("MAX_DATA_AGE")
	if days <= 0 {
		days = def
	}
	return time.Duration(days) * 24 * time.Hour
}

// GetBulkWorkers returns the worker count for the bulk-load phase.
// Reads env var PREFILL_WORKERS; defaults to 2.
func (c *Config) GetBulkWorkers() int {
	if n := c.v.GetInt("PREFILL_WORKERS"); n > 0 {
		return n
	}
	return 2
}

// GetResetCache reports whether the cache schema should be dropped and
// recreated before the run. Reads env var RESET_CACHE.
func (c *Config) GetResetCache() bool { return c.v.GetBool("RESET_CACHE") }

// GetModelPath returns the scoring model artifact path from env var MODEL_PATH.
func (c *Config) GetModelPath() string { return c.v.GetString("MODEL_PATH") }

// GetExportPath returns the feature export destination from env var
// EXPORT_PATH; defaults to "features.json".
func (c *Config) GetExportPath() string {
	if p := c.v.GetString("EXPORT_PATH"); p != "" {
		return p
	}
	return "features.json"
}

func (c *Config) GetServiceName() string {
	if n := c.v.GetString("SERVICE_NAME"); n != "" {
		return n
	}
	return "prsight"
}

func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

// GetLogLevel returns the log level from env var LOG_LEVEL mapped to slog.Level.
// Recognized values: debug, info (default), warn|warning, error.
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToLower(c.v.GetString("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OnLogLevelChange calls fn with the slog.Level whenever it changes.
// The initial call is made immediately.
func (c *Config) OnLogLevelChange(fn func(slog.Level)) {
	apply := func() { fn(c.GetLogLevel()) }
	apply()
	c.v.OnConfigChange(func(e fsnotify.Event) { apply() })
}

// Watch watches for changes in the config file and env vars.
func (c *Config) Watch(ctx context.Context) {
	c.v.WatchConfig()
	go func() { <-ctx.Done() }()
}
