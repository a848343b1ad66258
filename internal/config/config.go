// Package config provides configuration loading and validation for the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jonathan/compass-harvester/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. HARVESTER_STORE_BACKEND.
const EnvPrefix = "HARVESTER"

// Config is the full harvester configuration. Values come from defaults, an
// optional harvester.{yaml,json} file and HARVESTER_* environment variables,
// in increasing order of precedence.
type Config struct {
	Page      PageConfig      `mapstructure:"page"`
	Targets   []string        `mapstructure:"targets" validate:"min=1,dive,required"`
	ListField string          `mapstructure:"list_field" validate:"required"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Store     StoreConfig     `mapstructure:"store"`
	Timing    TimingConfig    `mapstructure:"timing"`
	Collect   CollectConfig   `mapstructure:"collect"`
	Download  DownloadConfig  `mapstructure:"download"`
	Selectors SelectorsConfig `mapstructure:"selectors"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       logging.Config  `mapstructure:"log"`
}

// PageConfig locates the analytics page.
type PageConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// BrowserConfig controls the Chrome instance.
type BrowserConfig struct {
	// RemoteURL attaches to a running Chrome (ws:// or http://host:9222) instead of launching one.
	RemoteURL   string        `mapstructure:"remote_url"`
	ExecPath    string        `mapstructure:"exec_path"`
	UserDataDir string        `mapstructure:"user_data_dir"`
	Headless    bool          `mapstructure:"headless"`
	UserAgent   string        `mapstructure:"user_agent"`
	LoadTimeout time.Duration `mapstructure:"load_timeout" validate:"gte=0"`
}

// Store backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// StoreConfig selects where checkpoints and directory grants are persisted.
type StoreConfig struct {
	Backend     string `mapstructure:"backend" validate:"oneof=file postgres redis"`
	Dir         string `mapstructure:"dir" validate:"required_if=Backend file"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Backend postgres"`
	Redis       Redis  `mapstructure:"redis"`
}

// Redis holds the Redis backend connection settings.
type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// TimingConfig holds the harvest loop's pacing.
type TimingConfig struct {
	CategorySettle  time.Duration `mapstructure:"category_settle" validate:"gte=0"`
	InputSettle     time.Duration `mapstructure:"input_settle" validate:"gte=0"`
	SearchWait      time.Duration `mapstructure:"search_wait" validate:"gte=0"`
	SearchPoll      time.Duration `mapstructure:"search_poll" validate:"gt=0"`
	SelectionSettle time.Duration `mapstructure:"selection_settle" validate:"gte=0"`
	DownloadPause   time.Duration `mapstructure:"download_pause" validate:"gte=0"`
	ExistingPause   time.Duration `mapstructure:"existing_pause" validate:"gte=0"`
	ClearSettle     time.Duration `mapstructure:"clear_settle" validate:"gte=0"`
	ErrorPause      time.Duration `mapstructure:"error_pause" validate:"gte=0"`
	EntryPause      time.Duration `mapstructure:"entry_pause" validate:"gte=0"`
	MenuAttempts    int           `mapstructure:"menu_attempts" validate:"gte=1"`
	MenuBackoff     time.Duration `mapstructure:"menu_backoff" validate:"gte=0"`
	NavigateSettle  time.Duration `mapstructure:"navigate_settle" validate:"gte=0"`
}

// CollectConfig tunes the multi-page collection run.
type CollectConfig struct {
	MaxPages     int           `mapstructure:"max_pages" validate:"gte=1"`
	GrowthPolls  int           `mapstructure:"growth_polls" validate:"gte=1"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	InjectSettle time.Duration `mapstructure:"inject_settle" validate:"gte=0"`
	Output       string        `mapstructure:"output"`
}

// DownloadConfig tunes media fetches.
type DownloadConfig struct {
	// Timeout bounds a single media fetch; zero means no limit.
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
	UserAgent string        `mapstructure:"user_agent"`
	Referer   string        `mapstructure:"referer"`
	Root      string        `mapstructure:"root"`
}

// SelectorsConfig holds the CSS selectors of the host page's controls.
type SelectorsConfig struct {
	PickerTrigger string `mapstructure:"picker_trigger" validate:"required"`
	PickerLabel   string `mapstructure:"picker_label" validate:"required"`
	Menu          string `mapstructure:"menu" validate:"required"`
	MenuItem      string `mapstructure:"menu_item" validate:"required"`
	Confirm       string `mapstructure:"confirm" validate:"required"`
	SearchInput   string `mapstructure:"search_input" validate:"required"`
	SearchButton  string `mapstructure:"search_button"`
	Row           string `mapstructure:"row" validate:"required"`
	RowTitle      string `mapstructure:"row_title" validate:"required"`
	NextPage      string `mapstructure:"next_page" validate:"required"`
	PageItem      string `mapstructure:"page_item" validate:"required"`
	DisabledClass string `mapstructure:"disabled_class"`
}

// ServerConfig configures the control API.
type ServerConfig struct {
	Addr string    `mapstructure:"addr" validate:"required"`
	JWT  JWTConfig `mapstructure:"jwt"`
	// AllowedOrigins lists CORS origins; empty allows any.
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds control API requests per client address.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit" validate:"gte=0"`
	Window  time.Duration `mapstructure:"window" validate:"gte=0"`
	// Allow lists client addresses that are never limited.
	Allow []string `mapstructure:"allow"`
}

// SetDefaults registers every default on v. Every key is registered so
// environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("page.url", "https://compass.jinritemai.com/shop/chance/product-rank")
	v.SetDefault("targets", []string{"market_hot_sale", "video_bring_good"})
	v.SetDefault("list_field", "data_result")

	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.load_timeout", 60*time.Second)

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.dir", defaultStoreDir())
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "harvester")

	v.SetDefault("timing.category_settle", 3*time.Second)
	v.SetDefault("timing.input_settle", 500*time.Millisecond)
	v.SetDefault("timing.search_wait", 5*time.Second)
	v.SetDefault("timing.search_poll", 500*time.Millisecond)
	v.SetDefault("timing.selection_settle", time.Second)
	v.SetDefault("timing.download_pause", 300*time.Millisecond)
	v.SetDefault("timing.existing_pause", time.Second)
	v.SetDefault("timing.clear_settle", 500*time.Millisecond)
	v.SetDefault("timing.error_pause", 2*time.Second)
	v.SetDefault("timing.entry_pause", time.Second)
	v.SetDefault("timing.menu_attempts", 5)
	v.SetDefault("timing.menu_backoff", 500*time.Millisecond)
	v.SetDefault("timing.navigate_settle", 2*time.Second)

	v.SetDefault("collect.max_pages", 25)
	v.SetDefault("collect.growth_polls", 30)
	v.SetDefault("collect.poll_interval", 200*time.Millisecond)
	v.SetDefault("collect.inject_settle", 3*time.Second)
	v.SetDefault("collect.output", "")

	v.SetDefault("download.timeout", time.Duration(0))
	v.SetDefault("download.user_agent", "")
	v.SetDefault("download.referer", "")
	v.SetDefault("download.root", "")

	v.SetDefault("selectors.picker_trigger", "span.ecom-cascader-picker-label, .ecom-cascader-picker-label, .ecom-cascader-picker")
	v.SetDefault("selectors.picker_label", ".ecom-cascader-picker-label")
	v.SetDefault("selectors.menu", ".ecom-cascader-menu")
	v.SetDefault("selectors.menu_item", `.ecom-cascader-menu-item, [class*="cascader-menu-item"], li[role="menuitem"], .cascader-node`)
	v.SetDefault("selectors.confirm", `.ecom-cascader-footer button, [class*="confirm"], .ok-btn`)
	v.SetDefault("selectors.search_input", `input.ecom-input[placeholder*="可搜索"]`)
	v.SetDefault("selectors.search_button", `.ecom-input-suffix i, button[class*="search"]`)
	v.SetDefault("selectors.row", ".ecom-table-row")
	v.SetDefault("selectors.row_title", `div[class*="name"], div[title], a[class*="name"]`)
	v.SetDefault("selectors.next_page", ".ecom-pagination-next")
	v.SetDefault("selectors.page_item", ".ecom-pagination-item")
	v.SetDefault("selectors.disabled_class", "ecom-pagination-disabled")

	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("server.jwt.secret", "")
	v.SetDefault("server.jwt.expiration_hours", 24)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.limit", 600)
	v.SetDefault("server.rate_limit.window", time.Minute)
	v.SetDefault("server.rate_limit.allow", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

func defaultStoreDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "compass-harvester"
	}
	return ".harvester"
}

// LoadConfig reads configuration. An empty path searches for harvester.* in
// the working directory; a missing search result is not an error, a missing
// explicit file is.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("harvester")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("'%s' failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config error: %w", err)
	}
	if c.Store.Backend == BackendRedis && c.Store.Redis.Addr == "" {
		return fmt.Errorf("config error: 'store.redis.addr' is required for the redis backend")
	}
	if c.Browser.RemoteURL != "" && c.Browser.ExecPath != "" {
		return fmt.Errorf("config error: 'browser.remote_url' and 'browser.exec_path' are mutually exclusive")
	}
	return nil
}
