package config

import (
	"time"

	"xtid/internal/fetch"
	"xtid/transaction"
)

// DefaultConfig returns the settings used when neither a file nor the
// environment says otherwise.
func DefaultConfig() *Config {
	return &Config{
		Addr:              ":8081",
		HomeURL:           fetch.DefaultHomeURL,
		OnDemandURLFormat: transaction.DefaultOnDemandURLFormat,
		UserAgent:         fetch.DefaultUserAgent,
		AcceptLanguage:    "en-US,en;q=0.9",
		Timeout:           15 * time.Second,
		BrowserTimeout:    25 * time.Second,
		RefreshInterval:   time.Hour,
	}
}
