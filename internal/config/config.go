package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"fare-deal-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logging       logging.Config      `mapstructure:"logging"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Scan          ScanConfig          `mapstructure:"scan"`
	Detector      DetectorConfig      `mapstructure:"detector"`
	Amadeus       AmadeusConfig       `mapstructure:"amadeus"`
	Travelpayouts TravelpayoutsConfig `mapstructure:"travelpayouts"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	Export        ExportConfig        `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs scan cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// ScanConfig defines which routes and travel dates each cycle covers.
type ScanConfig struct {
	Origins             []string `mapstructure:"origins"`
	Destinations        []string `mapstructure:"destinations"`
	MinDaysFromNow      int      `mapstructure:"min_days_from_now"`
	MaxDaysFromNow      int      `mapstructure:"max_days_from_now"`
	DateStepDays        int      `mapstructure:"date_step_days"`
	MinStayDays         int      `mapstructure:"min_stay_days"`
	MaxStayDays         int      `mapstructure:"max_stay_days"`
	MaxConcurrentRoutes int      `mapstructure:"max_concurrent_routes"`
	Provider            string   `mapstructure:"provider"`
	Currency            string   `mapstructure:"currency"`
}

// DetectorConfig carries the deal qualification thresholds.
type DetectorConfig struct {
	MaxPrice          float64 `mapstructure:"max_price"`
	DiscountThreshold float64 `mapstructure:"discount_threshold"`
	MinObservations   int     `mapstructure:"min_observations"`
}

// AmadeusConfig covers the Amadeus flight-offers API.
type AmadeusConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxResults     int           `mapstructure:"max_results"`
}

// TravelpayoutsConfig covers the Travelpayouts/Aviasales API.
type TravelpayoutsConfig struct {
	APIToken       string        `mapstructure:"api_token"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RubToEurRate   float64       `mapstructure:"rub_to_eur_rate"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig describes SMTP delivery parameters.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// TelegramConfig describes Telegram Bot API delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FAREWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "farewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_interval", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x66617265))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("scan.origins", []string{"CDG", "ORY", "BVA"})
	v.SetDefault("scan.destinations", []string{
		"NYC", "LON", "BCN", "ROM", "ATH", "LIS", "MAD", "AMS", "BER", "VIE",
		"PRG", "BUD", "WAW", "CPH", "STO", "OSL", "HEL", "DUB", "EDI", "GLA",
		"DXB", "DOH", "BKK", "SIN", "HKG", "NRT", "ICN", "SYD", "MEL", "AKL",
		"JFK", "LAX", "MIA", "SFO", "YVR", "YYZ", "GRU", "EZE", "CPT", "CAI",
	})
	v.SetDefault("scan.min_days_from_now", 7)
	v.SetDefault("scan.max_days_from_now", 120)
	v.SetDefault("scan.date_step_days", 7)
	v.SetDefault("scan.min_stay_days", 3)
	v.SetDefault("scan.max_stay_days", 30)
	v.SetDefault("scan.max_concurrent_routes", 10)
	v.SetDefault("scan.provider", "amadeus")
	v.SetDefault("scan.currency", "EUR")

	v.SetDefault("detector.max_price", 200.0)
	v.SetDefault("detector.discount_threshold", 0.5)
	v.SetDefault("detector.min_observations", 10)

	v.SetDefault("amadeus.base_url", "https://api.amadeus.com")
	v.SetDefault("amadeus.request_timeout", "15s")
	v.SetDefault("amadeus.max_results", 10)

	v.SetDefault("travelpayouts.base_url", "https://api.travelpayouts.com")
	v.SetDefault("travelpayouts.request_timeout", "15s")
	v.SetDefault("travelpayouts.rub_to_eur_rate", 0.01)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"email"})
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Detector.MaxPrice <= 0 {
		return fmt.Errorf("detector.max_price must be greater than zero")
	}
	if c.Detector.DiscountThreshold < 0 || c.Detector.DiscountThreshold >= 1 {
		return fmt.Errorf("detector.discount_threshold must be in [0, 1)")
	}
	if c.Detector.MinObservations <= 0 {
		return fmt.Errorf("detector.min_observations must be greater than zero")
	}
	if c.Scan.MinStayDays > c.Scan.MaxStayDays {
		return fmt.Errorf("scan.min_stay_days cannot exceed scan.max_stay_days")
	}
	if c.Scan.MinDaysFromNow > c.Scan.MaxDaysFromNow {
		return fmt.Errorf("scan.min_days_from_now cannot exceed scan.max_days_from_now")
	}
	if c.Scan.DateStepDays <= 0 {
		return fmt.Errorf("scan.date_step_days must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.Host == "" {
			return fmt.Errorf("alerting.email.host is required when email alerting is enabled")
		}
		if c.Alerting.Email.From == "" || c.Alerting.Email.To == "" {
			return fmt.Errorf("alerting.email.from and alerting.email.to are required when email alerting is enabled")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram alerting is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram alerting is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
