package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"TapeDeck/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8099"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"5s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stderr"`
	} `yaml:"logging"`
	Watchlist []string `yaml:"watchlist"`
	Strategy  struct {
		ID            string  `yaml:"id" default:"macd-cross" validate:"required"`
		MACDThreshold float64 `yaml:"macd_threshold" default:"0.002"`
		BBPeriod      int     `yaml:"bb_period" default:"20"`
		BBDev         float64 `yaml:"bb_dev" default:"2.0"`
		Lookback      int     `yaml:"lookback" default:"200"`
	} `yaml:"strategy"`
	Polling struct {
		Interval      time.Duration `yaml:"interval" default:"60s"`
		MaxConcurrent int           `yaml:"max_concurrent" default:"4" validate:"min=1"`
		FetchTimeout  time.Duration `yaml:"fetch_timeout" default:"10s"`
		KeepBars      int           `yaml:"keep_bars" default:"1000"`
		FailWarnAfter int           `yaml:"fail_warn_after" default:"3" validate:"min=1"`
	} `yaml:"polling"`
	Scanner struct {
		Interval   time.Duration `yaml:"interval" default:"120s"`
		Limit      int           `yaml:"limit" default:"50"`
		MinGainPct float64       `yaml:"min_gain_pct" default:"5.0"`
		MinRelVol  float64       `yaml:"min_rel_vol" default:"3.0"`
		MaxFloat   float64       `yaml:"max_float" default:"10000000"`
		MinPrice   float64       `yaml:"min_price" default:"1.0"`
		MaxPrice   float64       `yaml:"max_price" default:"50.0"`
		NewsWindow time.Duration `yaml:"news_window" default:"48h"`
		CacheTTL   time.Duration `yaml:"cache_ttl" default:"15m"`
	} `yaml:"scanner"`
	Equity struct {
		Interval  time.Duration `yaml:"interval" default:"30s"`
		Retention time.Duration `yaml:"retention" default:"4h"`
	} `yaml:"equity"`
	Mode struct {
		DrainTimeout time.Duration `yaml:"drain_timeout" default:"5s"`
	} `yaml:"mode"`
	Store struct {
		QueueSize int `yaml:"queue_size" default:"256" validate:"min=16"`
	} `yaml:"store"`
	DataAPI struct {
		Provider   string        `yaml:"provider" default:"fmp" validate:"oneof=fmp"`
		BaseURL    string        `yaml:"base_url" default:"https://financialmodelingprep.com/api/v3"`
		APIKey     string        `yaml:"api_key"`
		Interval   string        `yaml:"interval" default:"1min"`
		RateLimit  float64       `yaml:"rate_limit" default:"5"`
		HistoryTTL time.Duration `yaml:"history_ttl" default:"30s"`
		ProfileTTL time.Duration `yaml:"profile_ttl" default:"12h"`
	} `yaml:"data_api"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url" default:"wss://ws.finnhub.io"`
		APIKey         string        `yaml:"api_key"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
	} `yaml:"stream"`
	Broker struct {
		Provider     string  `yaml:"provider" default:"paper" validate:"oneof=paper"`
		StartingCash float64 `yaml:"starting_cash" default:"10000"`
	} `yaml:"broker"`
	Persist struct {
		Path string `yaml:"path" default:".tapedeck/state.json"`
	} `yaml:"persist"`
	Cache struct {
		MemoryMaxSize int `yaml:"memory_max_size" default:"1000"`
		Redis         struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, applying struct
// defaults before validation. A missing file yields pure defaults.
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("TAPEDECK_API_KEY"); v != "" {
		c.DataAPI.APIKey = v
	}
	if v := os.Getenv("TAPEDECK_STREAM_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv("TAPEDECK_SYMBOLS"); v != "" {
		c.Watchlist = SplitSymbols(v)
	}
	if v := os.Getenv("TAPEDECK_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Enabled = true
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("TAPEDECK_STARTING_CASH"); v != "" {
		c.Broker.StartingCash = util.ParseFloatDefault(v, c.Broker.StartingCash)
	}

	return c, nil
}

// Validate checks field constraints and cross-field rules, and
// normalizes watchlist symbols to upper case.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval must be positive")
	}
	if c.Mode.DrainTimeout <= 0 {
		return fmt.Errorf("mode.drain_timeout must be positive")
	}
	if c.Scanner.MinPrice > c.Scanner.MaxPrice {
		return fmt.Errorf("scanner: min_price %.2f above max_price %.2f", c.Scanner.MinPrice, c.Scanner.MaxPrice)
	}
	for i, s := range c.Watchlist {
		c.Watchlist[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return nil
}

// SplitSymbols parses a comma separated symbol list.
func SplitSymbols(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
