package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path, if it exists, on top of Defaults, then
// applies .env and AUCTION_* environment overrides. An empty path skips the
// file. The result has not been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from AUCTION_* variables, then
// from the bare PORT, DATABASE_URL and REDIS_URL that container platforms set.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "AUCTION_LOG_LEVEL")

	// ── Server ──
	setInt(&cfg.Server.Port, "AUCTION_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "AUCTION_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "AUCTION_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.RequestTimeout, "AUCTION_SERVER_REQUEST_TIMEOUT")

	// ── Auction ──
	setStr(&cfg.Auction.ID, "AUCTION_ID")
	setStr(&cfg.Auction.Admin, "AUCTION_ADMIN")
	setStr(&cfg.Auction.Treasury, "AUCTION_TREASURY")
	setStr(&cfg.Auction.EngineAddress, "AUCTION_ENGINE_ADDRESS")
	setStr(&cfg.Auction.Item, "AUCTION_ITEM")
	setStr(&cfg.Auction.FloorPrice, "AUCTION_FLOOR_PRICE")
	setInt64(&cfg.Auction.IncrementPercent, "AUCTION_INCREMENT_PERCENT")
	setBool(&cfg.Auction.EnforceIncrement, "AUCTION_ENFORCE_INCREMENT")
	setStr(&cfg.Auction.ParticipationFee, "AUCTION_PARTICIPATION_FEE")
	setDurations(&cfg.Auction.PhaseDurations, "AUCTION_PHASE_DURATIONS")

	// ── Custody ──
	setBool(&cfg.Custody.Enabled, "AUCTION_CUSTODY_ENABLED")

	// ── Database ──
	setStr(&cfg.Database.URL, "AUCTION_DATABASE_URL")
	setInt(&cfg.Database.MaxConns, "AUCTION_DATABASE_MAX_CONNS")
	setBool(&cfg.Database.RunMigrations, "AUCTION_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "AUCTION_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "AUCTION_REDIS_CACHE_TTL")
	setDuration(&cfg.Redis.LockTTL, "AUCTION_REDIS_LOCK_TTL")
	setBool(&cfg.Redis.EventsEnabled, "AUCTION_REDIS_EVENTS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AUCTION_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AUCTION_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUCTION_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUCTION_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AUCTION_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUCTION_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "AUCTION_S3_FORCE_PATH_STYLE")

	// ── Platform ──
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

// setDurations parses a comma-separated list such as "1h,1h,30m". The
// target is left alone if any element fails to parse.
func setDurations(dst *[]duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []duration
	for _, p := range strings.Split(v, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return
		}
		out = append(out, duration{d})
	}
	*dst = out
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
