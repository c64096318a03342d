package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BrowserModeLocal   = "local"
	BrowserModeManaged = "managed"
)

type Config struct {
	Browser     BrowserConfig
	Scheduler   SchedulerConfig
	Scraper     ScraperConfig
	Storage     StorageConfig
	Server      ServerConfig
	Environment string
	LogLevel    string
	LogPath     string
	Site        *SiteConfig
}

type BrowserConfig struct {
	Mode           string
	ExecutablePath string
	WSEndpoint     string
	DriverDir      string
	ProxyURL       string
	NavTimeout     time.Duration
	AnchorTimeout  time.Duration
	PageRatePerMin int
}

type SchedulerConfig struct {
	Interval     time.Duration
	Cron         string
	ErrorBackoff time.Duration
	PollInterval time.Duration
}

type ScraperConfig struct {
	KindDelay  time.Duration
	MaxSeasons int
}

type StorageConfig struct {
	ResultsDir  string
	DBPath      string
	DatabaseURL string
	S3          S3Config
}

type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional, for R2 / Spaces / MinIO
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type ServerConfig struct {
	Addr           string
	SecretToken    string
	AllowOrigins   []string
	RequestsPerMin int
	TriggerTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Browser: BrowserConfig{
			Mode:           strings.ToLower(getEnv("BROWSER_MODE", BrowserModeLocal)),
			ExecutablePath: os.Getenv("BROWSER_EXECUTABLE_PATH"),
			WSEndpoint:     os.Getenv("BROWSER_WS_ENDPOINT"),
			DriverDir:      os.Getenv("BROWSER_DRIVER_DIR"),
			ProxyURL:       os.Getenv("SCRAPE_PROXY_URL"),
			NavTimeout:     getEnvDuration("NAV_TIMEOUT", 30*time.Second),
			AnchorTimeout:  getEnvDuration("ANCHOR_TIMEOUT", 30*time.Second),
			PageRatePerMin: getEnvInt("PAGE_RATE_PER_MIN", 30),
		},
		Scheduler: SchedulerConfig{
			Interval:     getEnvDuration("SCRAPE_INTERVAL", 30*time.Minute),
			Cron:         os.Getenv("SCRAPE_CRON"),
			ErrorBackoff: getEnvDuration("ERROR_BACKOFF", time.Minute),
			PollInterval: getEnvDuration("COMMAND_POLL_INTERVAL", 2*time.Second),
		},
		Scraper: ScraperConfig{
			KindDelay:  getEnvDuration("KIND_DELAY", 2*time.Second),
			MaxSeasons: getEnvInt("MAX_SEASONS", DefaultMaxSeasons(time.Now())),
		},
		Storage: StorageConfig{
			ResultsDir:  getEnv("RESULTS_DIR", "data"),
			DBPath:      getEnv("DB_PATH", "scraper.db"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			S3: S3Config{
				Bucket:          os.Getenv("S3_BUCKET"),
				Prefix:          getEnv("S3_PREFIX", "f2/"),
				Region:          getEnv("S3_REGION", "us-east-1"),
				Endpoint:        os.Getenv("S3_ENDPOINT"),
				AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			},
		},
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			SecretToken:    os.Getenv("CRON_SECRET_TOKEN"),
			AllowOrigins:   getEnvList("CORS_ALLOW_ORIGINS", []string{"*"}),
			RequestsPerMin: getEnvInt("HTTP_RATE_PER_MIN", 30),
			TriggerTimeout: getEnvDuration("TRIGGER_TIMEOUT", 15*time.Minute),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPath:     getEnv("LOG_PATH", "logs/scraper.log"),
	}

	site, err := LoadSite(getEnv("SITE_CONFIG", "config/sites/f2.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Site = site

	return cfg, nil
}

// DefaultMaxSeasons covers every season from 2017 through the one after now.
func DefaultMaxSeasons(now time.Time) int {
	return now.Year() - 2017 + 2
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) Validate() error {
	switch c.Browser.Mode {
	case BrowserModeLocal, BrowserModeManaged:
	default:
		return fmt.Errorf("BROWSER_MODE must be %q or %q, got %q", BrowserModeLocal, BrowserModeManaged, c.Browser.Mode)
	}
	if c.Browser.NavTimeout <= 0 || c.Browser.AnchorTimeout <= 0 {
		return fmt.Errorf("NAV_TIMEOUT and ANCHOR_TIMEOUT must be positive")
	}
	if c.Browser.PageRatePerMin <= 0 {
		return fmt.Errorf("PAGE_RATE_PER_MIN must be positive")
	}
	if c.Scheduler.Interval <= 0 && c.Scheduler.Cron == "" {
		return fmt.Errorf("SCRAPE_INTERVAL must be positive when SCRAPE_CRON is unset")
	}
	if c.Scheduler.ErrorBackoff <= 0 {
		return fmt.Errorf("ERROR_BACKOFF must be positive")
	}
	if c.Scraper.KindDelay < 0 {
		return fmt.Errorf("KIND_DELAY must not be negative")
	}
	if c.Scraper.MaxSeasons <= 0 {
		return fmt.Errorf("MAX_SEASONS must be positive")
	}
	if c.Storage.ResultsDir == "" {
		return fmt.Errorf("RESULTS_DIR is required")
	}
	if c.Site == nil {
		return fmt.Errorf("site configuration missing")
	}
	return c.Site.Validate()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}
