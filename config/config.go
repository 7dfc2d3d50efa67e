package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

const (
	BrokerPaper  = "paper"
	BrokerBridge = "bridge"

	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
	JournalCSV      = "csv"

	UnlockRestart = "restart"
	UnlockDaily   = "daily"

	defaultSnapshotInterval = 60 * time.Second
	defaultPollTimeout      = 100 * time.Millisecond
	defaultLoopInterval     = 10 * time.Millisecond
	defaultBrokerTimeout    = 5 * time.Second
	defaultIntakePort       = 5555
)

// Config is the whole document: the system block and the strategy table.
type Config struct {
	System     SystemConfig              `json:"system" yaml:"system"`
	Strategies map[string]StrategyConfig `json:"strategies" yaml:"strategies"`

	// RiskManagement at the top level is accepted for older files that kept
	// it outside the system block. System.RiskManagement wins when both exist.
	RiskManagement *RiskManagement `json:"risk_management,omitempty" yaml:"risk_management,omitempty"`
}

type SystemConfig struct {
	TerminalPath      string          `json:"mt5_terminal_path,omitempty" yaml:"mt5_terminal_path,omitempty"`
	IntakeHost        string          `json:"intake_host,omitempty" yaml:"intake_host,omitempty"`
	IntakePort        int             `json:"intake_port,omitempty" yaml:"intake_port,omitempty"`
	AuthorizedAccount int64           `json:"authorized_account_number,omitempty" yaml:"authorized_account_number,omitempty"`
	RiskManagement    *RiskManagement `json:"risk_management,omitempty" yaml:"risk_management,omitempty"`
	Broker            BrokerConfig    `json:"broker" yaml:"broker"`
	Journal           JournalConfig   `json:"journal" yaml:"journal"`
	Telegram          TelegramConfig  `json:"telegram,omitempty" yaml:"telegram,omitempty"`

	SnapshotInterval string `json:"snapshot_interval,omitempty" yaml:"snapshot_interval,omitempty"`
	PollTimeout      string `json:"poll_timeout,omitempty" yaml:"poll_timeout,omitempty"`
	LoopInterval     string `json:"loop_interval,omitempty" yaml:"loop_interval,omitempty"`
}

type RiskManagement struct {
	BasketEnabled       bool     `json:"basket_enabled" yaml:"basket_enabled"`
	BasketTakeProfitUSD *float64 `json:"basket_take_profit_usd,omitempty" yaml:"basket_take_profit_usd,omitempty"`
	BasketStopLossUSD   *float64 `json:"basket_stop_loss_usd,omitempty" yaml:"basket_stop_loss_usd,omitempty"`
	// UnlockPolicy is "restart" (stay locked until the process restarts)
	// or "daily" (unlock on the next calendar day once flat).
	UnlockPolicy   string `json:"unlock_policy,omitempty" yaml:"unlock_policy,omitempty"`
	UnlockTimezone string `json:"unlock_timezone,omitempty" yaml:"unlock_timezone,omitempty"`
}

type BrokerConfig struct {
	Type    string      `json:"type" yaml:"type"`
	URL     string      `json:"url,omitempty" yaml:"url,omitempty"`
	Token   string      `json:"token,omitempty" yaml:"token,omitempty"`
	Timeout string      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Paper   PaperConfig `json:"paper,omitempty" yaml:"paper,omitempty"`
}

type PaperConfig struct {
	AccountID        int64              `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	Currency         string             `json:"currency,omitempty" yaml:"currency,omitempty"`
	Balance          float64            `json:"balance,omitempty" yaml:"balance,omitempty"`
	ContractSizes    map[string]float64 `json:"contract_sizes,omitempty" yaml:"contract_sizes,omitempty"`
	CommissionPerLot float64            `json:"commission_per_lot,omitempty" yaml:"commission_per_lot,omitempty"`
	// TicksFile, when set, is replayed into the paper broker at startup.
	TicksFile   string  `json:"ticks_file,omitempty" yaml:"ticks_file,omitempty"`
	ReplaySpeed float64 `json:"replay_speed,omitempty" yaml:"replay_speed,omitempty"`
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "sqlite", "postgres" or "csv"
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DSN        string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty" yaml:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
}

type StrategyConfig struct {
	Enabled     bool           `json:"enabled" yaml:"enabled"`
	Volume      float64        `json:"volume" yaml:"volume"`
	MagicNumber int64          `json:"magic_number" yaml:"magic_number"`
	Script      string         `json:"script,omitempty" yaml:"script,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	TradeLimits TradeLimits    `json:"trade_limits" yaml:"trade_limits"`
}

// TradeLimits holds stop distances in points. A point is PointSize price
// units; with no PointSize the distances are raw price differences.
type TradeLimits struct {
	SLPoints             float64  `json:"sl_points" yaml:"sl_points"`
	TPPoints             *float64 `json:"tp_points,omitempty" yaml:"tp_points,omitempty"`
	PointSize            float64  `json:"point_size,omitempty" yaml:"point_size,omitempty"`
	UseVolatilityBasedTP bool     `json:"use_volatility_based_tp,omitempty" yaml:"use_volatility_based_tp,omitempty"`
}

// TakeProfitPoints is the static TP distance; an absent value means 1.
func (l TradeLimits) TakeProfitPoints() float64 {
	if l.TPPoints == nil {
		return 1.0
	}
	return *l.TPPoints
}

func (l TradeLimits) Point() float64 {
	if l.PointSize <= 0 {
		return 1
	}
	return l.PointSize
}

// Strategy looks up a strategy by id.
func (c *Config) Strategy(id string) (StrategyConfig, bool) {
	s, ok := c.Strategies[id]
	return s, ok
}

// MagicIndex maps tag numbers back to strategy ids.
func (c *Config) MagicIndex() map[int64]string {
	out := make(map[int64]string, len(c.Strategies))
	for id, s := range c.Strategies {
		out[s.MagicNumber] = id
	}
	return out
}

// Risk returns the basket settings, or a disabled block when none are set.
func (c *Config) Risk() RiskManagement {
	if c.System.RiskManagement != nil {
		return *c.System.RiskManagement
	}
	if c.RiskManagement != nil {
		return *c.RiskManagement
	}
	return RiskManagement{}
}

func (s SystemConfig) IntakeAddr() string {
	host := s.IntakeHost
	if host == "" {
		host = "0.0.0.0"
	}
	port := s.IntakePort
	if port == 0 {
		port = defaultIntakePort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (s SystemConfig) Snapshot() time.Duration {
	return durationOr(s.SnapshotInterval, defaultSnapshotInterval)
}

func (s SystemConfig) Poll() time.Duration {
	return durationOr(s.PollTimeout, defaultPollTimeout)
}

func (s SystemConfig) Loop() time.Duration {
	return durationOr(s.LoopInterval, defaultLoopInterval)
}

func (b BrokerConfig) CallTimeout() time.Duration {
	return durationOr(b.Timeout, defaultBrokerTimeout)
}

func durationOr(v string, def time.Duration) time.Duration {
	if strings.TrimSpace(v) == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Parse decodes a YAML or JSON document, checks it against the schema and
// validates it.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		*cfg = Config{}
		if jerr := sonic.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile reads and parses a config file once, without caching.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "read", Path: path, Err: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, &Error{Op: "parse", Path: path, Err: err}
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = sonic.ConfigStd.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the semantic rules the schema cannot express.
func (c *Config) Validate() error {
	if c.Strategies == nil {
		return fmt.Errorf("strategies section is required")
	}

	magics := make(map[int64]string, len(c.Strategies))
	for id, s := range c.Strategies {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("strategy id must not be empty")
		}
		if s.Volume <= 0 {
			return fmt.Errorf("strategies.%s.volume must be positive", id)
		}
		if other, dup := magics[s.MagicNumber]; dup {
			return fmt.Errorf("strategies.%s.magic_number %d already used by %s", id, s.MagicNumber, other)
		}
		magics[s.MagicNumber] = id
		if s.TradeLimits.SLPoints < 0 {
			return fmt.Errorf("strategies.%s.trade_limits.sl_points must not be negative", id)
		}
		if s.TradeLimits.TakeProfitPoints() < 0 {
			return fmt.Errorf("strategies.%s.trade_limits.tp_points must not be negative", id)
		}
		if s.TradeLimits.PointSize < 0 {
			return fmt.Errorf("strategies.%s.trade_limits.point_size must not be negative", id)
		}
	}

	risk := c.Risk()
	if tp := risk.BasketTakeProfitUSD; tp != nil && *tp < 0 {
		return fmt.Errorf("risk_management.basket_take_profit_usd must be positive")
	}
	if sl := risk.BasketStopLossUSD; sl != nil && *sl > 0 {
		return fmt.Errorf("risk_management.basket_stop_loss_usd must be negative")
	}
	switch risk.UnlockPolicy {
	case "", UnlockRestart, UnlockDaily:
	default:
		return fmt.Errorf("risk_management.unlock_policy must be 'restart' or 'daily'")
	}
	if risk.UnlockTimezone != "" {
		if _, err := time.LoadLocation(risk.UnlockTimezone); err != nil {
			return fmt.Errorf("risk_management.unlock_timezone: %w", err)
		}
	}

	switch c.System.Broker.Type {
	case "", BrokerPaper:
		if c.System.Broker.Paper.ReplaySpeed < 0 {
			return fmt.Errorf("system.broker.paper.replay_speed must not be negative")
		}
	case BrokerBridge:
		if c.System.Broker.URL == "" {
			return fmt.Errorf("system.broker.url required for bridge broker")
		}
	default:
		return fmt.Errorf("system.broker.type must be 'paper' or 'bridge'")
	}

	j := c.System.Journal
	switch j.Type {
	case "", JournalSQLite:
	case JournalPostgres:
		if j.DSN == "" {
			return fmt.Errorf("system.journal.dsn required for postgres journal")
		}
	case JournalCSV:
		if j.TradesFile == "" || j.EquityFile == "" {
			return fmt.Errorf("system.journal trades_file and equity_file required for CSV type")
		}
	default:
		return fmt.Errorf("system.journal.type must be 'sqlite', 'postgres' or 'csv'")
	}

	if p := c.System.IntakePort; p < 0 || p > 65535 {
		return fmt.Errorf("system.intake_port out of range: %d", p)
	}
	for name, v := range map[string]string{
		"snapshot_interval": c.System.SnapshotInterval,
		"poll_timeout":      c.System.PollTimeout,
		"loop_interval":     c.System.LoopInterval,
		"broker.timeout":    c.System.Broker.Timeout,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("system.%s must be a positive duration, got %q", name, v)
		}
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	sl := 5.0
	tp := 10.0
	basketTP := 500.0
	basketSL := -250.0
	return &Config{
		System: SystemConfig{
			IntakeHost:       "127.0.0.1",
			IntakePort:       defaultIntakePort,
			SnapshotInterval: defaultSnapshotInterval.String(),
			PollTimeout:      defaultPollTimeout.String(),
			LoopInterval:     defaultLoopInterval.String(),
			RiskManagement: &RiskManagement{
				BasketEnabled:       false,
				BasketTakeProfitUSD: &basketTP,
				BasketStopLossUSD:   &basketSL,
				UnlockPolicy:        UnlockRestart,
			},
			Broker: BrokerConfig{
				Type: BrokerPaper,
				Paper: PaperConfig{
					AccountID:     1,
					Currency:      "USD",
					Balance:       10000,
					ContractSizes: map[string]float64{"EURUSD": 100000},
				},
			},
			Journal: JournalConfig{
				Type:   JournalSQLite,
				DBPath: "./trading_system.db",
			},
		},
		Strategies: map[string]StrategyConfig{
			"EURUSD_TREND_01": {
				Enabled:     true,
				Volume:      0.1,
				MagicNumber: 1001,
				TradeLimits: TradeLimits{
					SLPoints:  sl,
					TPPoints:  &tp,
					PointSize: 0.0001,
				},
			},
		},
	}
}
