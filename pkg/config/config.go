package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	xutil "SetupScan/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool `yaml:"enabled" default:"true"`
	} `yaml:"metrics"`
	Logger struct {
		Level   string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format  string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output  string `yaml:"output" default:"stdout"`
		Collect struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
			Topic     string        `yaml:"topic" default:"setupscan.logs"`
		} `yaml:"collect"`
	} `yaml:"logger"`
	Scanner struct {
		Pairs       []string      `yaml:"pairs" validate:"min=1,dive,required"`
		Directions  []string      `yaml:"directions" validate:"dive,oneof=bullish bearish"`
		Interval    time.Duration `yaml:"interval" default:"1m" validate:"gte=1s"`
		TickTimeout time.Duration `yaml:"tick_timeout" default:"45s"`
		Workers     int           `yaml:"workers" default:"8" validate:"gte=1"`
		RPS         float64       `yaml:"rps" default:"10"`
		Burst       int           `yaml:"burst" default:"20"`
		CandleLimit int           `yaml:"candle_limit" default:"300" validate:"gte=50"`
		LockTTL     time.Duration `yaml:"lock_ttl" default:"2m"`
	} `yaml:"scanner"`
	Structure struct {
		SwingWindow        int     `yaml:"swing_window" default:"3" validate:"gte=1"`
		LiquidityLookback  int     `yaml:"liquidity_lookback" default:"20"`
		OrderBlockLookback int     `yaml:"order_block_lookback" default:"12"`
		ATRPeriod          int     `yaml:"atr_period" default:"14"`
		EqualTolATRFrac    float64 `yaml:"equal_tol_atr_frac" default:"0.1"`
		EqualTolPriceFrac  float64 `yaml:"equal_tol_price_frac" default:"0.0005"`
	} `yaml:"structure"`
	Scoring struct {
		NewsBlackoutMinutes float64 `yaml:"news_blackout_minutes" default:"30" validate:"gte=0"`
	} `yaml:"scoring"`
	Phase struct {
		Thresholds        []float64     `yaml:"thresholds" default:"[60,60,70,50]" validate:"len=4,dive,gte=0,lte=100"`
		Phase2Window      time.Duration `yaml:"phase2_window" default:"4h"`
		Phase3Window      time.Duration `yaml:"phase3_window" default:"1h"`
		ConfirmWait       time.Duration `yaml:"confirm_wait" default:"5m"`
		MinPriceChangePct float64       `yaml:"min_price_change_pct" default:"0.05"`
		MinATRPct         float64       `yaml:"min_atr_pct" default:"0.05"`
		StopLossPct       float64       `yaml:"stop_loss_pct" default:"0.5" validate:"gt=0"`
		TP1Pct            float64       `yaml:"tp1_pct" default:"0.75" validate:"gt=0"`
		TP2Pct            float64       `yaml:"tp2_pct" default:"1.5" validate:"gtfield=TP1Pct"`
		TP3Pct            float64       `yaml:"tp3_pct" default:"2.5" validate:"gtfield=TP2Pct"`
	} `yaml:"phase"`
	CandleCache struct {
		TTL             time.Duration `yaml:"ttl" default:"20s"`
		LocalTTL        time.Duration `yaml:"local_ttl" default:"5s"`
		MaxEntries      int           `yaml:"max_entries" default:"2048"`
		BreakerFailures uint32        `yaml:"breaker_failures" default:"5"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown" default:"30s"`
	} `yaml:"candle_cache"`
	API struct {
		StructureTTL time.Duration `yaml:"structure_ttl" default:"15s"`
		RPS          float64       `yaml:"rps" default:"5"`
		Burst        int           `yaml:"burst" default:"10"`
	} `yaml:"api"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost" validate:"required"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"setupscan" validate:"required"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		ArchiveEvents    bool          `yaml:"archive_events" default:"true"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"setupscan"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		AlertsTopic  string   `yaml:"alerts_topic" default:"setupscan.alerts"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"setupscan-hub"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	News struct {
		Enabled bool          `yaml:"enabled"`
		BaseURL string        `yaml:"base_url" default:"https://finnhub.io/api/v1" validate:"url"`
		Token   string        `yaml:"token"`
		Horizon time.Duration `yaml:"horizon" default:"24h"`
		Refresh time.Duration `yaml:"refresh" default:"15m"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"news"`
	Models struct {
		Path string `yaml:"path" default:"config/models.yaml" validate:"required"`
	} `yaml:"models"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SETUPSCAN_PAIRS"); v != "" {
		c.Scanner.Pairs = xutil.SplitCSV(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("MODELS_PATH"); v != "" {
		c.Models.Path = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = xutil.SplitCSV(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.News.Token = v
		c.News.Enabled = true
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = p
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Defaults go in first so an explicit false or zero in the file wins.
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.News.Enabled && c.News.Token == "" {
		return fmt.Errorf("news.token is required when news is enabled")
	}
	if c.Scanner.TickTimeout > c.Scanner.Interval {
		return fmt.Errorf("scanner.tick_timeout (%s) must not exceed scanner.interval (%s)",
			c.Scanner.TickTimeout, c.Scanner.Interval)
	}
	// A lease shorter than a key's run lets a second instance take the key mid-write.
	if c.Scanner.LockTTL <= c.Scanner.TickTimeout {
		return fmt.Errorf("scanner.lock_ttl (%s) must exceed scanner.tick_timeout (%s)",
			c.Scanner.LockTTL, c.Scanner.TickTimeout)
	}
	return nil
}
