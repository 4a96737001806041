package config

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/counterparty/core"
	"github.com/zappabad/bargetrader/internal/game"
	"github.com/zappabad/bargetrader/internal/store/sqlstore"
	"github.com/zappabad/bargetrader/internal/trader"
)

const (
	DriverMemory = "memory"

	AdjustmentFixed  = "fixed"
	AdjustmentImpact = "impact"
)

type Config struct {
	ListenAddr string `json:"listen_addr"`
	ServerURL  string `json:"server_url"`
	AuthToken  string `json:"-"`

	DataDir  string `json:"data_dir"`
	DBDriver string `json:"db_driver"`
	DBPath   string `json:"db_path"`

	// MySQL connection, used when DBDriver is mysql
	MySQLUser     string `json:"mysql_user"`
	MySQLPassword string `json:"-"`
	MySQLHost     string `json:"mysql_host"`
	MySQLDatabase string `json:"mysql_database"`

	InitialPrice    decimal.Decimal `json:"initial_price"`
	LotSize         int64           `json:"lot_size"`
	PoolSize        int             `json:"pool_size"`
	ReleaseInterval time.Duration   `json:"release_interval"`
	RoundLength     time.Duration   `json:"round_length"`
	Adjustment      string          `json:"adjustment"`
	AdjustmentRate  decimal.Decimal `json:"adjustment_rate"`
	Uncertainty     decimal.Decimal `json:"uncertainty"`
	AIs             string          `json:"ais"`
	Seed            int64           `json:"seed"`
	SeedNews        bool            `json:"seed_news"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	dataDir := filepath.Join(currentDir, "data")

	cfg := &Config{
		ListenAddr: ":8080",
		ServerURL:  "http://localhost:8080",

		DataDir:  dataDir,
		DBDriver: sqlstore.DriverSQLite,
		DBPath:   filepath.Join(dataDir, "bargetrader.db"),

		MySQLUser:     "user",
		MySQLPassword: "password",
		MySQLHost:     "tcp(127.0.0.1:3306)",
		MySQLDatabase: "bargetrader",

		InitialPrice:    decimal.NewFromInt(70),
		LotSize:         2000,
		PoolSize:        8,
		ReleaseInterval: 20 * time.Second,
		RoundLength:     3 * time.Minute,
		Adjustment:      AdjustmentFixed,
		AdjustmentRate:  decimal.RequireFromString("0.05"),
		Uncertainty:     decimal.RequireFromString("0.10"),
		AIs:             "Carl:conservative,Ava:aggressive,Max:momentum",
		SeedNews:        true,

		LogLevel:  "info",
		LogFormat: "console",
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	setString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}

	setString("BARGE_LISTEN_ADDR", &c.ListenAddr)
	setString("BARGE_SERVER_URL", &c.ServerURL)
	setString("BARGE_AUTH_TOKEN", &c.AuthToken)
	setString("BARGE_DATA_DIR", &c.DataDir)
	setString("BARGE_DB_DRIVER", &c.DBDriver)
	setString("BARGE_DB_PATH", &c.DBPath)
	setString("BARGE_ADJUSTMENT", &c.Adjustment)
	setString("BARGE_AIS", &c.AIs)
	setString("BARGE_LOG_LEVEL", &c.LogLevel)
	setString("BARGE_LOG_FORMAT", &c.LogFormat)

	setString("MYSQL_USER", &c.MySQLUser)
	setString("MYSQL_PWD", &c.MySQLPassword)
	setString("MYSQL_HOST", &c.MySQLHost)
	setString("MYSQL_DATABASE", &c.MySQLDatabase)

	for key, dst := range map[string]*decimal.Decimal{
		"BARGE_INITIAL_PRICE":   &c.InitialPrice,
		"BARGE_ADJUSTMENT_RATE": &c.AdjustmentRate,
		"BARGE_UNCERTAINTY":     &c.Uncertainty,
	} {
		if val := os.Getenv(key); val != "" {
			if d, err := decimal.NewFromString(val); err == nil {
				*dst = d
			}
		}
	}

	if val := os.Getenv("BARGE_LOT_SIZE"); val != "" {
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.LotSize = v
		}
	}
	if val := os.Getenv("BARGE_POOL_SIZE"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.PoolSize = v
		}
	}
	if val := os.Getenv("BARGE_SEED"); val != "" {
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Seed = v
		}
	}
	if val := os.Getenv("BARGE_SEED_NEWS"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.SeedNews = enabled
		}
	}
	if val := os.Getenv("BARGE_RELEASE_INTERVAL"); val != "" {
		if v, err := time.ParseDuration(val); err == nil {
			c.ReleaseInterval = v
		}
	}
	if val := os.Getenv("BARGE_ROUND_LENGTH"); val != "" {
		if v, err := time.ParseDuration(val); err == nil {
			c.RoundLength = v
		}
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case sqlstore.DriverSQLite, sqlstore.DriverMySQL, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown db driver %q", c.DBDriver))
	}
	if c.DBDriver == sqlstore.DriverSQLite && strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db path is required for sqlite3"))
	}
	if !c.InitialPrice.IsPositive() {
		errs = append(errs, errors.New("initial price must be positive"))
	}
	if c.LotSize <= 0 {
		errs = append(errs, errors.New("lot size must be positive"))
	}
	if c.PoolSize <= 0 {
		errs = append(errs, errors.New("pool size must be positive"))
	}
	if c.ReleaseInterval < 0 {
		errs = append(errs, errors.New("release interval cannot be negative"))
	}
	switch c.Adjustment {
	case AdjustmentFixed, AdjustmentImpact:
	default:
		errs = append(errs, fmt.Errorf("unknown adjustment %q", c.Adjustment))
	}
	if !c.AdjustmentRate.IsPositive() || c.AdjustmentRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("adjustment rate must be in (0, 1)"))
	}
	if !c.Uncertainty.IsPositive() || c.Uncertainty.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("uncertainty must be in (0, 1)"))
	}
	if _, err := ParseAIs(c.AIs); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.DBDriver == sqlstore.DriverSQLite {
		dirs = append(dirs, filepath.Dir(c.DBPath))
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == sqlstore.DriverMySQL {
		return sqlstore.MySQLDSN(c.MySQLUser, c.MySQLPassword, c.MySQLHost, c.MySQLDatabase)
	}
	return c.DBPath
}

// ParseAIs parses a roster of the form "Name:style,Name:style".
func ParseAIs(s string) ([]trader.AI, error) {
	var out []trader.AI
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, style, _ := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("ai roster entry %q has no name", part)
		}
		out = append(out, trader.AI{Name: name, Style: strings.TrimSpace(style)})
	}
	if len(out) == 0 {
		return nil, errors.New("ai roster is empty")
	}
	return out, nil
}

// Game maps the settings onto the game's configuration.
func (c *Config) Game() game.Config {
	g := game.DefaultConfig()

	if ais, err := ParseAIs(c.AIs); err == nil {
		g.AIs = ais
	}
	g.RoundLength = c.RoundLength
	g.SeedNews = c.SeedNews

	g.Session.InitialPrice = c.InitialPrice
	g.Session.PoolSize = c.PoolSize
	g.Ledger.LotSize = c.LotSize
	g.Market.Commodity.LotSize = c.LotSize
	g.Feed.MinInterval = c.ReleaseInterval
	if c.Seed != 0 {
		g.Feed.Rand = rand.New(rand.NewSource(c.Seed))
	}

	g.Counterparty.Uncertainty = c.Uncertainty
	if c.Adjustment == AdjustmentImpact {
		g.Counterparty.Adjustment = core.ImpactAdjustment
	} else {
		g.Counterparty.Adjustment = core.FixedAdjustment(c.AdjustmentRate)
	}
	return g
}
