package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	Rapras     RaprasConfig
	Yahoo      YahooConfig
	Proxy      ProxyConfig
	Browser    BrowserConfig
	Scraper    ScraperConfig
	Session    SessionConfig
	Export     ExportConfig
	Classifier ClassifierConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Logging    LoggingConfig
}

type RaprasConfig struct {
	Username string
	Password string
	BaseURL  string
}

type YahooConfig struct {
	PhoneNumber string
	LoginURL    string
	AuctionsURL string
}

type ProxyConfig struct {
	URL        string
	Username   string
	Password   string
	ExpectedIP string
}

type BrowserConfig struct {
	Headless bool
	Timeout  time.Duration
}

type ScraperConfig struct {
	MaxRetryAttempts     int
	MaxConcurrentSellers int
	MaxProductsPerSeller int
	MinSellerPrice       int
	RunTimeoutWarning    time.Duration
	SMSTimeout           time.Duration
}

type SessionConfig struct {
	Dir string
}

type ExportConfig struct {
	OutputDir string
}

type ClassifierConfig struct {
	Model string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// DefaultMinSellerPrice is the seller aggregate price floor in yen.
const DefaultMinSellerPrice = 100000

// Load reads configuration from environment variables. Credential variables
// are required; everything else falls back to a default.
func Load() (*Config, error) {
	cfg := &Config{
		Rapras: RaprasConfig{
			BaseURL: getEnv("RAPRAS_BASE_URL", "https://www.rapras.jp/"),
		},
		Yahoo: YahooConfig{
			LoginURL:    getEnv("YAHOO_LOGIN_URL", "https://login.yahoo.co.jp/config/login"),
			AuctionsURL: getEnv("YAHOO_AUCTIONS_URL", "https://auctions.yahoo.co.jp/"),
		},
		Proxy: ProxyConfig{
			ExpectedIP: getEnv("PROXY_EXPECTED_IP", ""),
		},
		Browser: BrowserConfig{
			Headless: getEnvBool("HEADLESS", true),
			Timeout:  getEnvDuration("BROWSER_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			MaxRetryAttempts:     getEnvInt("MAX_RETRY_ATTEMPTS", 3),
			MaxConcurrentSellers: getEnvInt("MAX_CONCURRENT_SELLERS", 3),
			MaxProductsPerSeller: getEnvInt("MAX_PRODUCTS_PER_SELLER", 12),
			MinSellerPrice:       getEnvInt("MIN_SELLER_PRICE", DefaultMinSellerPrice),
			RunTimeoutWarning:    getEnvDuration("RUN_TIMEOUT_WARNING", 5*time.Minute),
			SMSTimeout:           getEnvDuration("SMS_TIMEOUT", 3*time.Minute),
		},
		Session: SessionConfig{
			Dir: getEnv("SESSION_DIR", "sessions"),
		},
		Export: ExportConfig{
			OutputDir: getEnv("OUTPUT_DIR", "output"),
		},
		Classifier: ClassifierConfig{
			Model: getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "sellers"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	var err error
	if cfg.Rapras.Username, err = requireEnv("RAPRAS_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Rapras.Password, err = requireEnv("RAPRAS_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Yahoo.PhoneNumber, err = requireEnv("YAHOO_PHONE_NUMBER"); err != nil {
		return nil, err
	}
	if cfg.Proxy.URL, err = requireEnv("PROXY_URL"); err != nil {
		return nil, err
	}
	if cfg.Proxy.Username, err = requireEnv("PROXY_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Proxy.Password, err = requireEnv("PROXY_PASSWORD"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that numeric settings are usable.
func (c *Config) Validate() error {
	if c.Scraper.MaxRetryAttempts < 1 {
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1, got %d", c.Scraper.MaxRetryAttempts)
	}
	if c.Scraper.MaxConcurrentSellers < 1 {
		return fmt.Errorf("MAX_CONCURRENT_SELLERS must be at least 1, got %d", c.Scraper.MaxConcurrentSellers)
	}
	if c.Scraper.MaxProductsPerSeller < 1 {
		return fmt.Errorf("MAX_PRODUCTS_PER_SELLER must be at least 1, got %d", c.Scraper.MaxProductsPerSeller)
	}
	if c.Scraper.MinSellerPrice < 0 {
		return fmt.Errorf("MIN_SELLER_PRICE must not be negative, got %d", c.Scraper.MinSellerPrice)
	}
	return nil
}

func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s environment variable is not set", key)
	}
	return value, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
