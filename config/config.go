// Package config loads run settings from a YAML file, a .env file and
// FLASHBUY_* environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Item     string         `yaml:"item"`
	BuyTime  string         `yaml:"buy_time"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Attempt  AttemptConfig  `yaml:"attempt"`
	Clock    ClockConfig    `yaml:"clock"`
	Session  SessionConfig  `yaml:"session"`
	Login    LoginConfig    `yaml:"login"`
	Browser  BrowserConfig  `yaml:"browser"`
	Report   ReportConfig   `yaml:"report"`
	Log      LogConfig      `yaml:"log"`
}

type SiteConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	LoginURL  string `yaml:"login_url"`
	VerifyURL string `yaml:"verify_url"`
	// ItemURL is a pattern; {id} is replaced by the item id.
	ItemURL string `yaml:"item_url"`
}

type ScheduleConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Spin         time.Duration `yaml:"spin"`
}

type AttemptConfig struct {
	TriggerSelector string        `yaml:"trigger_selector"`
	ConfirmSelector string        `yaml:"confirm_selector"`
	NotOpenLabels   []string      `yaml:"not_open_labels"`
	TriggerWait     time.Duration `yaml:"trigger_wait"`
	ConfirmWait     time.Duration `yaml:"confirm_wait"`
	MaxAttempts     int           `yaml:"max_attempts"`
	Settle          time.Duration `yaml:"settle"`
	JitterUnit      time.Duration `yaml:"jitter_unit"`
}

type ClockConfig struct {
	// Source is "http" or "ntp".
	Source    string `yaml:"source"`
	Endpoint  string `yaml:"endpoint"`
	Field     string `yaml:"field"`
	NTPServer string `yaml:"ntp_server"`
}

type SessionConfig struct {
	// Store is "file" or "sqlite".
	Store   string `yaml:"store"`
	Dir     string `yaml:"dir"`
	DSN     string `yaml:"dsn"`
	Key     string `yaml:"key"`
	Encrypt bool   `yaml:"encrypt"`
}

type LoginConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type BrowserConfig struct {
	// Agent is "chrome" or "http".
	Agent          string `yaml:"agent"`
	Headless       bool   `yaml:"headless"`
	ExecPath       string `yaml:"exec_path"`
	UserDataDir    string `yaml:"user_data_dir"`
	UserAgentsFile string `yaml:"user_agents_file"`
	Proxy          string `yaml:"proxy"`
	ProxyFile      string `yaml:"proxy_file"`
	StandardTLS    bool   `yaml:"standard_tls"`
}

type ReportConfig struct {
	LogFile string `yaml:"log_file"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the settings for the jd.com profile.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			Name:      "jd",
			BaseURL:   "http://jd.com",
			LoginURL:  "https://passport.jd.com/new/login.aspx",
			VerifyURL: "https://www.jd.com/",
			ItemURL:   "https://item.jd.com/{id}.html",
		},
		Schedule: ScheduleConfig{
			PollInterval: 500 * time.Millisecond,
		},
		Attempt: AttemptConfig{
			TriggerSelector: "#btn-reservation",
			ConfirmSelector: ".checkout-submit",
			NotOpenLabels:   []string{"等待抢购", "开始预购", "等待预购", "等待预约", "开始预约"},
			TriggerWait:     10 * time.Second,
			ConfirmWait:     10 * time.Second,
			MaxAttempts:     30,
			Settle:          30 * time.Second,
			JitterUnit:      100 * time.Millisecond,
		},
		Clock: ClockConfig{
			Source:    "http",
			Endpoint:  "https://a.jd.com//ajax/queryServerData.html",
			Field:     "serverTime",
			NTPServer: "ntp.aliyun.com",
		},
		Session: SessionConfig{
			Store: "file",
			Dir:   "sessions",
			DSN:   "file:sessions.db",
		},
		Login: LoginConfig{
			Interval: 5 * time.Second,
			Timeout:  300 * time.Second,
		},
		Browser: BrowserConfig{
			Agent: "chrome",
		},
		Report: ReportConfig{
			LogFile: "run_log.jsonl",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, then applies the environment. A
// missing path is not an error; an empty path skips the file.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := afero.ReadFile(fs, path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment. Variables
// already set win. A missing file is ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func (c *Config) applyEnv() error {
	c.Item = getEnv("FLASHBUY_ITEM", c.Item)
	c.BuyTime = getEnv("FLASHBUY_BUY_TIME", c.BuyTime)
	c.Clock.Source = getEnv("FLASHBUY_CLOCK_SOURCE", c.Clock.Source)
	c.Clock.Endpoint = getEnv("FLASHBUY_CLOCK_ENDPOINT", c.Clock.Endpoint)
	c.Clock.NTPServer = getEnv("FLASHBUY_NTP_SERVER", c.Clock.NTPServer)
	c.Session.Store = getEnv("FLASHBUY_SESSION_STORE", c.Session.Store)
	c.Session.Dir = getEnv("FLASHBUY_SESSION_DIR", c.Session.Dir)
	c.Session.DSN = getEnv("FLASHBUY_SESSION_DSN", c.Session.DSN)
	c.Session.Key = getEnv("FLASHBUY_SESSION_KEY", c.Session.Key)
	c.Browser.Agent = getEnv("FLASHBUY_AGENT", c.Browser.Agent)
	c.Browser.Proxy = getEnv("FLASHBUY_PROXY", c.Browser.Proxy)
	c.Log.Level = getEnv("FLASHBUY_LOG_LEVEL", c.Log.Level)

	var err error
	if c.Schedule.PollInterval, err = getEnvAsDuration("FLASHBUY_POLL_INTERVAL", c.Schedule.PollInterval); err != nil {
		return err
	}
	if c.Attempt.JitterUnit, err = getEnvAsDuration("FLASHBUY_SLEEP_INTERVAL", c.Attempt.JitterUnit); err != nil {
		return err
	}
	if c.Attempt.MaxAttempts, err = getEnvAsInt("FLASHBUY_MAX_ATTEMPTS", c.Attempt.MaxAttempts); err != nil {
		return err
	}
	if c.Browser.Headless, err = getEnvAsBool("FLASHBUY_HEADLESS", c.Browser.Headless); err != nil {
		return err
	}
	if c.Session.Encrypt, err = getEnvAsBool("FLASHBUY_SESSION_ENCRYPT", c.Session.Encrypt); err != nil {
		return err
	}
	return nil
}

// SessionKey is the store key, defaulting to the site name.
func (c *Config) SessionKey() string {
	if c.Session.Key != "" {
		return c.Session.Key
	}
	return c.Site.Name
}

// ItemURL expands the site's item pattern with the configured item id.
func (c *Config) ItemURL() string {
	return strings.ReplaceAll(c.Site.ItemURL, "{id}", c.Item)
}

// Validate checks the settings a purchase run depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Item == "" {
		errs = append(errs, errors.New("item id is required"))
	}
	if c.BuyTime == "" {
		errs = append(errs, errors.New("buy_time is required"))
	}
	if c.Schedule.PollInterval <= 0 {
		errs = append(errs, errors.New("schedule.poll_interval must be positive"))
	}
	if c.Attempt.MaxAttempts <= 0 {
		errs = append(errs, errors.New("attempt.max_attempts must be positive"))
	}
	switch c.Clock.Source {
	case "http", "ntp":
	default:
		errs = append(errs, fmt.Errorf("unknown clock.source %q", c.Clock.Source))
	}
	switch c.Session.Store {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown session.store %q", c.Session.Store))
	}
	switch c.Browser.Agent {
	case "chrome", "http":
	default:
		errs = append(errs, fmt.Errorf("unknown browser.agent %q", c.Browser.Agent))
	}
	return errors.Join(errs...)
}
