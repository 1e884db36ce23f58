package cmc

import (
	"os"

	"coinchart-api/pkg/market"
)

// ProviderType is the registry name used in market config files.
const ProviderType = "coinmarketcap"

func init() {
	market.RegisterProvider(ProviderType, buildProvider)
}

func buildProvider(_ string, cfg *market.ProviderConfig) (market.QuoteProvider, error) {
	opts := []Option{}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("CMC_API_KEY")
	}
	opts = append(opts, WithAPIKey(apiKey))
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, WithMaxRetries(cfg.MaxRetries))
	}
	return NewClient(opts...), nil
}
