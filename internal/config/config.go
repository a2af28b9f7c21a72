// Package config loads service settings from the environment, with house
// rules optionally overridden by a TOML file.
package config

import (
	"crypto/rand"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env  string
	Port string

	RedisURL  string
	RedisPass string
	RedisDB   int

	JWTSecret string
	JWTTTL    time.Duration
	APIKey    string

	LogLevel string
	LogFile  string

	// ProgramSeed derives the program id every account is owned by.
	ProgramSeed  string
	SlotInterval time.Duration
	// SlotSecret keys the slot hash chain. Anyone holding it can predict
	// future slot hashes.
	SlotSecret      string
	StartingBalance uint64

	Game GameConfig
}

// GameConfig is the [game] table of CONFIG_FILE.
type GameConfig struct {
	HouseEdge      decimal.Decimal `toml:"house_edge"`
	MaxProfitRatio decimal.Decimal `toml:"max_profit_ratio"`
	MinEscrow      uint64          `toml:"min_escrow"`
	// MinStake is the smallest stake accepted when placing a bet.
	MinStake uint64 `toml:"min_stake"`
	HashKey0 uint64 `toml:"hash_key0"`
	HashKey1 uint64 `toml:"hash_key1"`
}

type fileConfig struct {
	Game GameConfig `toml:"game"`
}

func DefaultGameConfig() GameConfig {
	return GameConfig{
		HouseEdge:      decimal.RequireFromString("0.99"),
		MaxProfitRatio: decimal.RequireFromString("0.01"),
		MinEscrow:      1000,
		MinStake:       1001,
	}
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		RedisURL:    getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:   os.Getenv("REDIS_PASS"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		APIKey:      os.Getenv("API_KEY"),
		SlotSecret:  os.Getenv("SLOT_SECRET"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", "./logs/solroll.log"),
		ProgramSeed: getEnv("PROGRAM_SEED", "solroll"),
		Game:        DefaultGameConfig(),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JWTTTL, err = getEnvDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SlotInterval, err = getEnvDuration("SLOT_INTERVAL", 400*time.Millisecond); err != nil {
		return nil, err
	}
	balance, err := getEnvInt("STARTING_BALANCE", 10_000_000)
	if err != nil {
		return nil, err
	}
	if balance < 0 {
		return nil, errors.Errorf("STARTING_BALANCE must not be negative, got %d", balance)
	}
	cfg.StartingBalance = uint64(balance)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	fc := fileConfig{Game: c.Game}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	c.Game = fc.Game
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET is required in production")
		}
		c.JWTSecret = "development-secret"
	}
	if c.IsProduction() && c.APIKey == "" {
		return errors.New("API_KEY is required in production")
	}
	if c.SlotSecret == "" {
		if c.IsProduction() {
			return errors.New("SLOT_SECRET is required in production")
		}
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		c.SlotSecret = secret
	}
	if c.SlotInterval <= 0 {
		return errors.New("SLOT_INTERVAL must be positive")
	}
	g := c.Game
	one := decimal.NewFromInt(1)
	if !g.HouseEdge.IsPositive() || g.HouseEdge.GreaterThan(one) {
		return errors.Errorf("game.house_edge must be in (0, 1], got %s", g.HouseEdge)
	}
	if g.MaxProfitRatio.IsNegative() || g.MaxProfitRatio.GreaterThan(one) {
		return errors.Errorf("game.max_profit_ratio must be in [0, 1], got %s", g.MaxProfitRatio)
	}
	if g.MinStake <= g.MinEscrow {
		return errors.Errorf("game.min_stake (%d) must exceed game.min_escrow (%d)", g.MinStake, g.MinEscrow)
	}
	return nil
}

func randomSecret() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errors.Wrap(err, "generate slot secret")
	}
	return base58.Encode(b[:]), nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}
