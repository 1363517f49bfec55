// Package config loads the auction server's configuration from a TOML file,
// an optional .env file and AUCTION_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/item"
	"github.com/atmx/auction-engine/internal/model"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel string `toml:"log_level"`

	Server   ServerConfig   `toml:"server"`
	Auction  AuctionConfig  `toml:"auction"`
	Custody  CustodyConfig  `toml:"custody"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port           int      `toml:"port"`
	APIKey         string   `toml:"api_key"` // empty disables API key checks
	CORSOrigins    []string `toml:"cors_origins"`
	RequestTimeout duration `toml:"request_timeout"`
	ShutdownGrace  duration `toml:"shutdown_grace"`
}

// AuctionConfig describes the single auction this process serves. Monetary
// amounts are whole base units written as strings.
type AuctionConfig struct {
	ID               string     `toml:"id"`
	Admin            string     `toml:"admin"`
	Treasury         string     `toml:"treasury"`
	EngineAddress    string     `toml:"engine_address"`
	Item             string     `toml:"item"` // 0x{collection}#{token_id}
	FloorPrice       string     `toml:"floor_price"`
	IncrementPercent int64      `toml:"increment_percent"`
	EnforceIncrement bool       `toml:"enforce_increment"`
	ParticipationFee string     `toml:"participation_fee"`
	PhaseDurations   []duration `toml:"phase_durations"`
	LockWait         duration   `toml:"lock_wait"`
}

// CustodyConfig seeds the in-process payment token with the listed accounts.
// Enabled exposes the /custody endpoints for approving and inspecting it.
type CustodyConfig struct {
	Enabled  bool          `toml:"enabled"`
	Symbol   string        `toml:"symbol"`
	Accounts []SeedAccount `toml:"accounts"`
}

// SeedAccount is minted Balance and approves the engine for Allowance.
type SeedAccount struct {
	Address   string `toml:"address"`
	Balance   string `toml:"balance"`
	Allowance string `toml:"allowance"`
}

// DatabaseConfig holds Postgres connection parameters. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL           string `toml:"url"`
	MaxConns      int    `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis parameters. An empty URL disables the snapshot
// cache, the shared lock and the event bus.
type RedisConfig struct {
	URL           string   `toml:"url"`
	CacheTTL      duration `toml:"cache_ttl"`
	LockTTL       duration `toml:"lock_ttl"`
	EventsEnabled bool     `toml:"events_enabled"`
}

// S3Config holds archive storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Defaults returns a Config that runs a self-contained development auction
// on port 8080 with in-memory storage and custody.
func Defaults() Config {
	hour := duration{time.Hour}
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:           8080,
			CORSOrigins:    []string{"*"},
			RequestTimeout: duration{30 * time.Second},
			ShutdownGrace:  duration{10 * time.Second},
		},
		Auction: AuctionConfig{
			ID:               "default",
			FloorPrice:       "1000",
			IncrementPercent: 5,
			EnforceIncrement: true,
			ParticipationFee: "0",
			PhaseDurations:   []duration{hour, hour, hour},
			LockWait:         duration{5 * time.Second},
		},
		Custody: CustodyConfig{
			Enabled: true,
			Symbol:  "PAY",
		},
		Database: DatabaseConfig{
			MaxConns:      10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			CacheTTL: duration{5 * time.Minute},
			LockTTL:  duration{10 * time.Second},
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "archive/auctions",
			UseSSL: true,
		},
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	a := c.Auction
	if a.ID == "" {
		errs = append(errs, "auction: id is required")
	}
	for name, v := range map[string]string{"admin": a.Admin, "treasury": a.Treasury, "engine_address": a.EngineAddress} {
		if _, err := parseAddress(v); err != nil {
			errs = append(errs, fmt.Sprintf("auction: %s: %v", name, err))
		}
	}
	if _, err := item.ParseRef(a.Item); err != nil {
		errs = append(errs, fmt.Sprintf("auction: item: %v", err))
	}
	if _, err := parseAmount(a.FloorPrice, true); err != nil {
		errs = append(errs, fmt.Sprintf("auction: floor_price: %v", err))
	}
	if _, err := parseAmount(a.ParticipationFee, true); err != nil {
		errs = append(errs, fmt.Sprintf("auction: participation_fee: %v", err))
	}
	if a.IncrementPercent < 0 {
		errs = append(errs, "auction: increment_percent must be non-negative")
	}
	if len(a.PhaseDurations) != model.PhaseCount {
		errs = append(errs, fmt.Sprintf("auction: phase_durations needs %d entries, got %d", model.PhaseCount, len(a.PhaseDurations)))
	}
	for i, d := range a.PhaseDurations {
		if d.Duration < 0 {
			errs = append(errs, fmt.Sprintf("auction: phase_durations[%d] is negative", i))
		}
	}

	if c.Custody.Enabled {
		for i, acct := range c.Custody.Accounts {
			if _, err := parseAddress(acct.Address); err != nil {
				errs = append(errs, fmt.Sprintf("custody: accounts[%d].address: %v", i, err))
			}
			if _, err := parseAmount(acct.Balance, false); err != nil {
				errs = append(errs, fmt.Sprintf("custody: accounts[%d].balance: %v", i, err))
			}
			if acct.Allowance != "" {
				if _, err := parseAmount(acct.Allowance, true); err != nil {
					errs = append(errs, fmt.Sprintf("custody: accounts[%d].allowance: %v", i, err))
				}
			}
		}
	}

	if c.Redis.URL != "" && c.Redis.LockTTL.Duration <= 0 {
		errs = append(errs, "redis: lock_ttl must be positive")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket is required when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region is required when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// EngineConfig converts the [auction] section into an engine configuration
// and the reference to the escrowed item. Call Validate first.
func (c *Config) EngineConfig() (auction.Config, *item.Ref, error) {
	a := c.Auction
	ref, err := item.ParseRef(a.Item)
	if err != nil {
		return auction.Config{}, nil, err
	}
	floor, err := parseAmount(a.FloorPrice, true)
	if err != nil {
		return auction.Config{}, nil, fmt.Errorf("config: floor_price: %w", err)
	}
	fee, err := parseAmount(a.ParticipationFee, true)
	if err != nil {
		return auction.Config{}, nil, fmt.Errorf("config: participation_fee: %w", err)
	}

	cfg := auction.Config{
		ID:               a.ID,
		Admin:            common.HexToAddress(a.Admin),
		Treasury:         common.HexToAddress(a.Treasury),
		Self:             common.HexToAddress(a.EngineAddress),
		TokenID:          ref.TokenID,
		FloorPrice:       floor,
		IncrementPercent: a.IncrementPercent,
		EnforceIncrement: a.EnforceIncrement,
		ParticipationFee: fee,
	}
	for i := 0; i < model.PhaseCount && i < len(a.PhaseDurations); i++ {
		cfg.PhaseDurations[i] = a.PhaseDurations[i].Duration
	}
	return cfg, ref, nil
}

// Seed is a parsed custody seed account.
type Seed struct {
	Address   common.Address
	Balance   decimal.Decimal
	Allowance decimal.Decimal
}

// Seeds returns the parsed [custody] accounts. A missing allowance approves
// the whole balance.
func (c *Config) Seeds() ([]Seed, error) {
	out := make([]Seed, 0, len(c.Custody.Accounts))
	for i, acct := range c.Custody.Accounts {
		addr, err := parseAddress(acct.Address)
		if err != nil {
			return nil, fmt.Errorf("config: custody account %d: %w", i, err)
		}
		bal, err := parseAmount(acct.Balance, false)
		if err != nil {
			return nil, fmt.Errorf("config: custody account %d balance: %w", i, err)
		}
		allow := bal
		if acct.Allowance != "" {
			if allow, err = parseAmount(acct.Allowance, true); err != nil {
				return nil, fmt.Errorf("config: custody account %d allowance: %w", i, err)
			}
		}
		out = append(out, Seed{Address: addr, Balance: bal, Allowance: allow})
	}
	return out, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}

// parseAmount parses a whole number of base units.
func parseAmount(s string, allowZero bool) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", s)
	}
	if !v.IsInteger() || v.IsNegative() || (!allowZero && v.IsZero()) {
		return decimal.Zero, fmt.Errorf("%q must be a positive whole number of base units", s)
	}
	return v, nil
}
