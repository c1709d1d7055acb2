package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RAPRAS_USERNAME", "user")
	t.Setenv("RAPRAS_PASSWORD", "pass")
	t.Setenv("YAHOO_PHONE_NUMBER", "09012345678")
	t.Setenv("PROXY_URL", "http://proxy.example.jp:8080")
	t.Setenv("PROXY_USERNAME", "proxyuser")
	t.Setenv("PROXY_PASSWORD", "proxypass")
}

func TestLoadWithDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "user", cfg.Rapras.Username)
	assert.Equal(t, "https://www.rapras.jp/", cfg.Rapras.BaseURL)
	assert.Equal(t, "https://login.yahoo.co.jp/config/login", cfg.Yahoo.LoginURL)
	assert.Equal(t, "sessions", cfg.Session.Dir)
	assert.Equal(t, "output", cfg.Export.OutputDir)
	assert.Equal(t, "gemini-2.5-flash", cfg.Classifier.Model)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, 3, cfg.Scraper.MaxRetryAttempts)
	assert.Equal(t, 3, cfg.Scraper.MaxConcurrentSellers)
	assert.Equal(t, 12, cfg.Scraper.MaxProductsPerSeller)
	assert.Equal(t, DefaultMinSellerPrice, cfg.Scraper.MinSellerPrice)
	assert.Equal(t, 3*time.Minute, cfg.Scraper.SMSTimeout)
	assert.Empty(t, cfg.Proxy.ExpectedIP)
}

func TestLoadMissingRequiredVarNamesIt(t *testing.T) {
	required := []string{
		"RAPRAS_USERNAME",
		"RAPRAS_PASSWORD",
		"YAHOO_PHONE_NUMBER",
		"PROXY_URL",
		"PROXY_USERNAME",
		"PROXY_PASSWORD",
	}

	for _, missing := range required {
		t.Run(missing, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(missing, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HEADLESS", "false")
	t.Setenv("MAX_CONCURRENT_SELLERS", "5")
	t.Setenv("MIN_SELLER_PRICE", "250000")
	t.Setenv("SMS_TIMEOUT", "90s")
	t.Setenv("PROXY_EXPECTED_IP", "203.0.113.7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 5, cfg.Scraper.MaxConcurrentSellers)
	assert.Equal(t, 250000, cfg.Scraper.MinSellerPrice)
	assert.Equal(t, 90*time.Second, cfg.Scraper.SMSTimeout)
	assert.Equal(t, "203.0.113.7", cfg.Proxy.ExpectedIP)
}

func TestLoadRejectsInvalidNumericSettings(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_RETRY_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_RETRY_ATTEMPTS")
}

func TestLoadIgnoresUnparseableOptionalValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_CONCURRENT_SELLERS", "lots")
	t.Setenv("BROWSER_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Scraper.MaxConcurrentSellers)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
}

func TestValidateNegativePrice(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIN_SELLER_PRICE", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_SELLER_PRICE")
}
