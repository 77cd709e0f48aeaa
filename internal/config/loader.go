package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FACTGPT_* environment variable overrides, and
// returns the final Config. A missing file is not an error when path is
// empty. The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FACTGPT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Operators inject secrets at deploy time this way without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Backend, "FACTGPT_STORE_BACKEND")
	setStr(&cfg.Store.Prefix, "FACTGPT_STORE_PREFIX")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FACTGPT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "FACTGPT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FACTGPT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FACTGPT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FACTGPT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FACTGPT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FACTGPT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FACTGPT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FACTGPT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FACTGPT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FACTGPT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FACTGPT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FACTGPT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FACTGPT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FACTGPT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FACTGPT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FACTGPT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "FACTGPT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FACTGPT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FACTGPT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FACTGPT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FACTGPT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FACTGPT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FACTGPT_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.Program, "FACTGPT_ORACLE_PROGRAM")

	// ── Devnet ──
	setBool(&cfg.Devnet.Enabled, "FACTGPT_DEVNET_ENABLED")
	setStr(&cfg.Devnet.AttestorKey, "FACTGPT_DEVNET_ATTESTOR_KEY")
	setStr(&cfg.Devnet.EncryptedKeyPath, "FACTGPT_DEVNET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Devnet.KeyPassword, "FACTGPT_DEVNET_KEY_PASSWORD")

	// ── Server ──
	setInt(&cfg.Server.Port, "FACTGPT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FACTGPT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FACTGPT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "FACTGPT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "FACTGPT_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.LockTTL, "FACTGPT_SERVER_LOCK_TTL")
	setDuration(&cfg.Server.ShutdownTimeout, "FACTGPT_SERVER_SHUTDOWN_TIMEOUT")

	// ── Top-level ──
	setStr(&cfg.Mode, "FACTGPT_MODE")
	setStr(&cfg.LogLevel, "FACTGPT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
