package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	appLog "eventcal/internal/log"
)

// Environment overrides applied after the YAML file is read.
const (
	EnvTelegramToken = "EVENTCAL_TELEGRAM_TOKEN"
	EnvDatabaseDSN   = "EVENTCAL_DATABASE_DSN"
	EnvListen        = "EVENTCAL_LISTEN"
)

const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID prefixes the external id of every imported event.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// Calendar is the calendar the imported events are stored in.
	Calendar string `yaml:"calendar" json:"calendar"`
	// Public marks imported events as publicly visible.
	Public bool `yaml:"public" json:"public"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// SiteConfig holds defaults for calendar rendering.
type SiteConfig struct {
	BaseURL         string `yaml:"base_url" json:"base_url"`
	DefaultCalendar string `yaml:"default_calendar" json:"default_calendar"`
	DefaultDays     int    `yaml:"default_days" json:"default_days"`
	DefaultStyle    string `yaml:"default_style" json:"default_style"`
	// CORSOrigins lists the origins allowed to call the JSON API.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// UserConfig is one account identified by HTTP Basic credentials.
type UserConfig struct {
	Name     string `yaml:"name" json:"name"`
	Password string `yaml:"password" json:"-"`
	Role     string `yaml:"role" json:"role"`
}

// ThrottleConfig limits event submissions within a trailing window.
type ThrottleConfig struct {
	Window    time.Duration `yaml:"window" json:"window"`
	SlowAfter int           `yaml:"slow_after" json:"slow_after"`
	Max       int           `yaml:"max" json:"max"`
	Delay     time.Duration `yaml:"delay" json:"delay"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Token    string `yaml:"token" json:"-"`
	ChatID   string `yaml:"chat_id" json:"chat_id"`
	Calendar string `yaml:"calendar" json:"calendar"`
	Cron     string `yaml:"cron" json:"cron"`
	// Header may contain {range}, replaced with the week range. Empty uses
	// "Termine vom <range>".
	Header string `yaml:"header" json:"header"`
	Footer string `yaml:"footer" json:"footer"`
	APIURL string `yaml:"api_url" json:"api_url"`
}

type ScraperConfig struct {
	// ServiceURL selects the companion service; empty uses headless Chromium.
	ServiceURL      string        `yaml:"service_url" json:"service_url"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	ChromiumTimeout time.Duration `yaml:"chromium_timeout" json:"chromium_timeout"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone all dates are interpreted in.
	Timezone string `yaml:"timezone" json:"timezone"`

	Log      LogConfig      `yaml:"log" json:"log"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Site     SiteConfig     `yaml:"site" json:"site"`
	Users    []UserConfig   `yaml:"users" json:"users"`
	Throttle ThrottleConfig `yaml:"throttle" json:"throttle"`

	// NonceTTL is how long an issued form token stays valid.
	NonceTTL time.Duration `yaml:"nonce_ttl" json:"nonce_ttl"`

	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
	Scraper  ScraperConfig  `yaml:"scraper" json:"scraper"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`
	// ICSRefresh is the cron schedule for syncing ICS sources.
	ICSRefresh string `yaml:"ics_refresh" json:"ics_refresh"`

	// CacheDir holds fetched ICS bodies and their ETag metadata.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Berlin"
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		c.Log.Format = "console"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite3" {
		c.Database.DSN = "./data/eventcal.db"
	}

	if c.Site.DefaultDays <= 0 {
		c.Site.DefaultDays = 30
	}
	if c.Site.DefaultStyle == "" {
		c.Site.DefaultStyle = "table"
	}
	if c.Site.CORSOrigins == nil {
		c.Site.CORSOrigins = []string{"*"}
	}

	for i := range c.Users {
		if c.Users[i].Role != RoleAdmin {
			c.Users[i].Role = RoleEditor
		}
	}

	if c.Throttle.Window <= 0 {
		c.Throttle.Window = time.Hour
	}
	if c.Throttle.SlowAfter <= 0 {
		c.Throttle.SlowAfter = 10
	}
	if c.Throttle.Max <= 0 {
		c.Throttle.Max = 30
	}
	if c.Throttle.Delay <= 0 {
		c.Throttle.Delay = 2 * time.Second
	}

	if c.NonceTTL <= 0 {
		c.NonceTTL = 12 * time.Hour
	}

	if c.Telegram.Cron == "" {
		c.Telegram.Cron = "0 * * * *"
	}
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = "https://api.telegram.org"
	}

	if c.Scraper.Timeout <= 0 {
		c.Scraper.Timeout = 20 * time.Second
	}
	if c.Scraper.ChromiumTimeout <= 0 {
		c.Scraper.ChromiumTimeout = 40 * time.Second
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.ICSRefresh == "" {
		c.ICSRefresh = "*/30 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./data/cache"
	}
}

// Validate reports configuration that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return errors.New("telegram is enabled but token or chat_id is missing")
	}
	seen := map[string]bool{}
	for _, u := range c.Users {
		if u.Name == "" || u.Password == "" {
			return errors.New("users need a name and a password")
		}
		if seen[u.Name] {
			return fmt.Errorf("duplicate user %q", u.Name)
		}
		seen[u.Name] = true
	}
	for _, src := range c.ICS {
		if src.ID == "" || src.URL == "" {
			return errors.New("ics sources need an id and a url")
		}
	}
	return nil
}

// Location resolves Timezone, falling back to the local zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// applyEnv overrides secrets and deployment-specific values from the
// environment.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvTelegramToken); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
}

// LoadEnv reads a .env file into the process environment. Variables that are
// already set win; a missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML config at path. A missing file is created with the
// defaults on first run. Environment overrides are applied on top and never
// saved.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		appLog.Info("writing default config", "path", path)
		err = Save(path, cfg)
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Normalize()
	}

	// a failed first-run save still yields usable defaults
	cfg.applyEnv()
	return cfg, err
}

// Save normalizes cfg and replaces the file at path with it, mode 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := replaceFile(path, data); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// replaceFile writes data next to path and renames it into place so readers
// never see a partial file.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".eventcal-config-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
