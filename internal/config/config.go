// Package config loads bot settings from config.env, an optional YAML file
// and the process environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

type Config struct {
	BotToken     string  `yaml:"bot_token"`
	AdminUserIDs []int64 `yaml:"admin_user_ids"`

	Session  SessionConfig  `yaml:"session"`
	Limits   LimitsConfig   `yaml:"limits"`
	PDF      PDFConfig      `yaml:"pdf"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Redis    RedisConfig    `yaml:"redis"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Workers  int            `yaml:"workers"`
	HTTPAddr string         `yaml:"http_addr"`
	TempDir  string         `yaml:"temp_dir"`
	Log      LogConfig      `yaml:"log"`
	Rate     RateConfig     `yaml:"rate"`
	Download DownloadConfig `yaml:"download"`
	Upload   DownloadConfig `yaml:"upload"`
	OCR      OCRConfig      `yaml:"ocr"`
}

type SessionConfig struct {
	Backend           string        `yaml:"backend"` // memory or redis
	TTL               time.Duration `yaml:"ttl"`
	ClearAfterConvert bool          `yaml:"clear_after_convert"`
}

type LimitsConfig struct {
	MaxImages       int   `yaml:"max_images"`
	MaxFileBytes    int64 `yaml:"max_file_bytes"`
	MaxSessionBytes int64 `yaml:"max_session_bytes"`
	MaxDimension    int   `yaml:"max_dimension"`
}

type PDFConfig struct {
	DefaultPageSize types.PageSize `yaml:"default_page_size"`
	DefaultMarginMM int            `yaml:"default_margin_mm"`
	DPI             float64        `yaml:"dpi"`
	JPEGQuality     int            `yaml:"jpeg_quality"`
}

type CatalogConfig struct {
	Backend     string `yaml:"backend"` // json or postgres
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type RateConfig struct {
	Events     int           `yaml:"events"`
	Window     time.Duration `yaml:"window"`
	SendPerSec float64       `yaml:"send_per_sec"`
}

// DownloadConfig bounds one Telegram file transfer in either direction.
type DownloadConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

type OCRConfig struct {
	Binary string `yaml:"binary"`
	Lang   string `yaml:"lang"`
}

func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Backend:           "memory",
			TTL:               24 * time.Hour,
			ClearAfterConvert: true,
		},
		Limits: LimitsConfig{
			MaxImages:       30,
			MaxFileBytes:    20 << 20,
			MaxSessionBytes: 200 << 20,
			MaxDimension:    3000,
		},
		PDF: PDFConfig{
			DefaultPageSize: types.PageSizeAuto,
			DPI:             72,
			JPEGQuality:     85,
		},
		Catalog: CatalogConfig{
			Backend: "json",
			Path:    "catalog.json",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "pdf_bot",
		},
		Workers:  3,
		HTTPAddr: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Rate: RateConfig{
			Events:     20,
			Window:     time.Minute,
			SendPerSec: 25,
		},
		Download: DownloadConfig{
			Timeout: 60 * time.Second,
			Retries: 1,
		},
		Upload: DownloadConfig{
			Timeout: 2 * time.Minute,
			Retries: 1,
		},
		OCR: OCRConfig{
			Binary: "tesseract",
		},
	}
}

// Load reads config.env (or envFile), then CONFIG_FILE if set, then env overrides.
func Load(envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []string
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = n
		}
	}
	int64v := func(name string, dst *int64) {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = d
		}
	}

	str("BOT_TOKEN", &c.BotToken)
	if raw, ok := os.LookupEnv("ADMIN_USER_IDS"); ok && strings.TrimSpace(raw) != "" {
		c.AdminUserIDs = ParseUserIDs(raw)
	}

	str("SESSION_BACKEND", &c.Session.Backend)
	if v, ok := os.LookupEnv("SESSION_TTL_HOURS"); ok && strings.TrimSpace(v) != "" {
		h, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("SESSION_TTL_HOURS: %v", err))
		} else {
			c.Session.TTL = time.Duration(h) * time.Hour
		}
	}
	boolean("CLEAR_AFTER_CONVERT", &c.Session.ClearAfterConvert)

	integer("MAX_IMAGES", &c.Limits.MaxImages)
	int64v("MAX_FILE_BYTES", &c.Limits.MaxFileBytes)
	int64v("MAX_SESSION_BYTES", &c.Limits.MaxSessionBytes)
	integer("MAX_DIMENSION", &c.Limits.MaxDimension)

	if v, ok := os.LookupEnv("DEFAULT_PAGE_SIZE"); ok && strings.TrimSpace(v) != "" {
		ps, valid := types.ParsePageSize(v)
		if !valid {
			errs = append(errs, fmt.Sprintf("DEFAULT_PAGE_SIZE: unknown page size %q", v))
		} else {
			c.PDF.DefaultPageSize = ps
		}
	}
	integer("DEFAULT_MARGIN_MM", &c.PDF.DefaultMarginMM)
	float("DPI", &c.PDF.DPI)
	integer("JPEG_QUALITY", &c.PDF.JPEGQuality)

	str("CATALOG_BACKEND", &c.Catalog.Backend)
	str("CATALOG_PATH", &c.Catalog.Path)
	str("POSTGRES_DSN", &c.Catalog.PostgresDSN)

	host, port := "", ""
	str("REDIS_HOST", &host)
	str("REDIS_PORT", &port)
	if host != "" || port != "" {
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "6379"
		}
		c.Redis.Addr = host + ":" + port
	}
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)

	str("WEBHOOK_URL", &c.Webhook.URL)
	str("WEBHOOK_SECRET", &c.Webhook.Secret)
	integer("WORKERS", &c.Workers)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("TEMP_DIR", &c.TempDir)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	integer("RATE_LIMIT_EVENTS", &c.Rate.Events)
	duration("RATE_LIMIT_WINDOW", &c.Rate.Window)
	float("SEND_RATE_PER_SEC", &c.Rate.SendPerSec)
	duration("DOWNLOAD_TIMEOUT", &c.Download.Timeout)
	integer("DOWNLOAD_RETRIES", &c.Download.Retries)
	duration("UPLOAD_TIMEOUT", &c.Upload.Timeout)
	integer("UPLOAD_RETRIES", &c.Upload.Retries)
	str("OCR_BINARY", &c.OCR.Binary)
	str("OCR_LANG", &c.OCR.Lang)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks values needed by the bot itself. Offline commands skip it.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Limits.MaxImages <= 0 {
		return fmt.Errorf("max images must be positive, got %d", c.Limits.MaxImages)
	}
	if c.Limits.MaxFileBytes <= 0 || c.Limits.MaxSessionBytes <= 0 {
		return fmt.Errorf("byte limits must be positive")
	}
	if c.Limits.MaxDimension <= 0 {
		return fmt.Errorf("max dimension must be positive, got %d", c.Limits.MaxDimension)
	}
	if c.PDF.DefaultMarginMM < 0 {
		return fmt.Errorf("default margin must not be negative")
	}
	if c.PDF.DPI <= 0 {
		return fmt.Errorf("dpi must be positive")
	}
	if c.PDF.JPEGQuality < 1 || c.PDF.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be within 1..100, got %d", c.PDF.JPEGQuality)
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	switch c.Catalog.Backend {
	case "json", "postgres":
	default:
		return fmt.Errorf("unknown catalog backend %q", c.Catalog.Backend)
	}
	return nil
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ParseUserIDs accepts ids separated by commas, semicolons or whitespace.
// Malformed entries are skipped.
func ParseUserIDs(raw string) []int64 {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t' })
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
