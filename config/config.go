// Package config loads the marketplace engine configuration from a JSON
// file, defaults and MARKET_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

// EnvPrefix prefixes every environment override, e.g. MARKET_RPC_LISTEN_ADDR.
const EnvPrefix = "MARKET"

var (
	ErrEmptyChainID      = errors.New("config: chain id must not be empty")
	ErrEmptyDataDir      = errors.New("config: data directory must not be empty")
	ErrInvalidStorage    = errors.New("config: invalid storage engine (must be \"leveldb\" or \"bolt\")")
	ErrInvalidListenAddr = errors.New("config: invalid listen address")
	ErrInvalidLogLevel   = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")
	ErrInvalidOperator   = errors.New("config: genesis operator must be an ed25519 public key hex")
	ErrInvalidAlloc      = errors.New("config: genesis alloc key must be an ed25519 public key hex")
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Storage selects the key/value backend.
type Storage struct {
	Engine string `mapstructure:"engine" json:"engine"` // "leveldb" or "bolt"
}

// RPC configures the JSON-RPC endpoint.
type RPC struct {
	ListenAddr string  `mapstructure:"listen_addr" json:"listen_addr"`
	AuthToken  string  `mapstructure:"auth_token" json:"auth_token"` // empty → no auth required
	RateLimit  float64 `mapstructure:"rate_limit" json:"rate_limit"` // requests per second per IP; 0 disables
	RateBurst  int     `mapstructure:"rate_burst" json:"rate_burst"`
}

// Treasury holds the launch values of the operator levers.
type Treasury struct {
	CommissionRateBps   uint64 `mapstructure:"commission_rate_bps" json:"commission_rate_bps"`
	RevenueShareBps     uint64 `mapstructure:"revenue_share_bps" json:"revenue_share_bps"`
	PenaltyAmount       uint64 `mapstructure:"penalty_amount" json:"penalty_amount"`
	PopularityUnitPrice uint64 `mapstructure:"popularity_unit_price" json:"popularity_unit_price"`
}

// Genesis describes the initial state written to an empty database.
type Genesis struct {
	Operator string            `mapstructure:"operator" json:"operator"`
	Alloc    map[string]uint64 `mapstructure:"alloc" json:"alloc"` // identity → initial balance
	// TreasuryBalance seeds the engine account that pays approved
	// signing amounts.
	TreasuryBalance uint64   `mapstructure:"treasury_balance" json:"treasury_balance"`
	Treasury        Treasury `mapstructure:"treasury" json:"treasury"`
}

// Config holds all engine configuration.
type Config struct {
	ChainID  string  `mapstructure:"chain_id" json:"chain_id"`
	DataDir  string  `mapstructure:"data_dir" json:"data_dir"`
	LogLevel string  `mapstructure:"log_level" json:"log_level"`
	Storage  Storage `mapstructure:"storage" json:"storage"`
	RPC      RPC     `mapstructure:"rpc" json:"rpc"`
	Genesis  Genesis `mapstructure:"genesis" json:"genesis"`
}

func setDefaults(v *viper.Viper) {
	d := core.DefaultTreasury("")
	v.SetDefault("chain_id", "tolmarket-dev")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("storage.engine", "leveldb")
	v.SetDefault("rpc.listen_addr", "127.0.0.1:8545")
	v.SetDefault("rpc.auth_token", "")
	v.SetDefault("rpc.rate_limit", 20.0)
	v.SetDefault("rpc.rate_burst", 40)
	v.SetDefault("genesis.operator", "")
	v.SetDefault("genesis.treasury_balance", 0)
	v.SetDefault("genesis.treasury.commission_rate_bps", d.CommissionRateBps)
	v.SetDefault("genesis.treasury.revenue_share_bps", d.RevenueShareBps)
	v.SetDefault("genesis.treasury.penalty_amount", d.PenaltyAmount)
	v.SetDefault("genesis.treasury.popularity_unit_price", d.PopularityUnitPrice)
}

// Default returns the development configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from filename (JSON) layered over defaults, then
// applies MARKET_* environment overrides. An empty filename uses defaults
// and environment only.
func Load(filename string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		/* #nosec */
		content, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		if err := v.ReadConfig(bytes.NewBuffer(content)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filename, err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Genesis.Alloc == nil {
		cfg.Genesis.Alloc = map[string]uint64{}
	}
	return cfg, nil
}

// Validate checks that all values are usable and returns the first problem.
func (c *Config) Validate() error {
	if c.ChainID == "" {
		return ErrEmptyChainID
	}
	if c.DataDir == "" {
		return ErrEmptyDataDir
	}
	if c.Storage.Engine != "leveldb" && c.Storage.Engine != "bolt" {
		return ErrInvalidStorage
	}
	if _, _, err := net.SplitHostPort(c.RPC.ListenAddr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return ErrInvalidLogLevel
	}
	if !crypto.IsIdentity(c.Genesis.Operator) {
		return ErrInvalidOperator
	}
	for id := range c.Genesis.Alloc {
		if !crypto.IsIdentity(id) {
			return fmt.Errorf("%w: %q", ErrInvalidAlloc, id)
		}
	}
	t := c.Genesis.Treasury
	return core.ValidateRates(t.CommissionRateBps, t.RevenueShareBps)
}
