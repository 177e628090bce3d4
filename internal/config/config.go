// Package config handles tester configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"loadcheck/internal/domain"
)

// Defaults point at the reference flight-data scenario against a local server.
const (
	DefaultEndpoint   = "http://localhost:8000"
	DefaultSQLDSN     = "root:@tcp(127.0.0.1:3307)/default"
	DefaultDatasetURL = "https://repo.databend.com/dataset/stateful/ontime_200.csv"
	DefaultDigest     = "a676074ad4d27f1622b80d4e1a3a7c49"
)

// Config holds the configuration for one tester run.
type Config struct {
	Endpoint string // streaming-load host base URL
	SQLDSN   string // MySQL-protocol DSN for the verification client

	DatasetURL string            // remote CSV to fetch
	CachePath  string            // local cache file (defaults under the OS temp dir)
	Digest     string            // expected digest, hex
	DigestAlgo domain.DigestAlgo // md5 (default) or sha256

	ScenarioPath string // optional YAML scenario file

	FetchTimeout  time.Duration // bound on the dataset download (default 2m)
	UploadTimeout time.Duration // bound on the streaming-load PUT (default 5m)
	QueryTimeout  time.Duration // bound on each SQL statement (default 1m)
	FetchRetries  int           // transient download retries (default 3)

	// PermissiveUpload skips HTTP status checking on the upload response.
	// Strict checking is the default.
	PermissiveUpload bool

	LogLevel string // debug, info, warn, error (default "info")

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
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

// DatasetSpec builds the dataset spec from the loaded configuration.
func (c *Config) DatasetSpec() domain.DatasetSpec {
	return domain.DatasetSpec{
		URL:       c.DatasetURL,
		CachePath: c.CachePath,
		Digest:    c.Digest,
		Algo:      c.DigestAlgo,
	}
}

// LoadFromEnv loads configuration from LOADCHECK_* environment variables.
// Every field has a usable default; validation failures are fatal.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Endpoint:         os.Getenv("LOADCHECK_ENDPOINT"),
		SQLDSN:           os.Getenv("LOADCHECK_SQL_DSN"),
		DatasetURL:       os.Getenv("LOADCHECK_DATASET_URL"),
		CachePath:        os.Getenv("LOADCHECK_CACHE_PATH"),
		Digest:           os.Getenv("LOADCHECK_DIGEST"),
		ScenarioPath:     os.Getenv("LOADCHECK_SCENARIO"),
		LogLevel:         os.Getenv("LOADCHECK_LOG_LEVEL"),
		PermissiveUpload: parseBoolEnvDefault("LOADCHECK_PERMISSIVE_UPLOAD", false),
	}

	if v := os.Getenv("LOADCHECK_DIGEST_ALGO"); v != "" {
		cfg.DigestAlgo = domain.DigestAlgo(strings.ToLower(v))
	}
	if v := os.Getenv("LOADCHECK_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOADCHECK_FETCH_TIMEOUT: %w", err)
		}
		cfg.FetchTimeout = d
	}
	if v := os.Getenv("LOADCHECK_UPLOAD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOADCHECK_UPLOAD_TIMEOUT: %w", err)
		}
		cfg.UploadTimeout = d
	}
	if v := os.Getenv("LOADCHECK_QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOADCHECK_QUERY_TIMEOUT: %w", err)
		}
		cfg.QueryTimeout = d
	}
	if v := os.Getenv("LOADCHECK_FETCH_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOADCHECK_FETCH_RETRIES: %w", err)
		}
		cfg.FetchRetries = n
	}

	// Defaults
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.SQLDSN == "" {
		cfg.SQLDSN = DefaultSQLDSN
		cfg.Warnings = append(cfg.Warnings, "LOADCHECK_SQL_DSN not set — using local default DSN")
	}
	if cfg.DatasetURL == "" {
		cfg.DatasetURL = DefaultDatasetURL
	}
	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(os.TempDir(), filepath.Base(cfg.DatasetURL))
	}
	if cfg.Digest == "" {
		cfg.Digest = DefaultDigest
	}
	if cfg.DigestAlgo == "" {
		cfg.DigestAlgo = domain.DigestMD5
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 2 * time.Minute
	}
	if cfg.UploadTimeout == 0 {
		cfg.UploadTimeout = 5 * time.Minute
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = time.Minute
	}
	if cfg.FetchRetries == 0 {
		cfg.FetchRetries = 3
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("endpoint %q must be an http(s) URL", c.Endpoint)
	}
	switch c.DigestAlgo {
	case domain.DigestMD5:
		if len(c.Digest) != 32 {
			return fmt.Errorf("md5 digest must be 32 hex chars, got %d", len(c.Digest))
		}
	case domain.DigestSHA256:
		if len(c.Digest) != 64 {
			return fmt.Errorf("sha256 digest must be 64 hex chars, got %d", len(c.Digest))
		}
	default:
		return fmt.Errorf("unsupported digest algorithm %q (use md5 or sha256)", c.DigestAlgo)
	}
	for _, r := range strings.ToLower(c.Digest) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("digest %q is not a hex string", c.Digest)
		}
	}
	return nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
