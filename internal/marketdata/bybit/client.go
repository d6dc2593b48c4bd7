package bybit

import (
	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Client wraps the Bybit HTTP API for read-only market data. Paper trading
// never sends orders, so no signing scopes beyond public endpoints are used.
type Client struct {
	httpClient *bybit_api.Client
	category   string
	testnet    bool
}

// Config holds the connection settings for the Bybit market-data client.
type Config struct {
	APIKey    string
	APISecret string
	Category  string // "spot", "linear", "inverse"
	Testnet   bool
}

// NewClient creates a Bybit market-data client.
func NewClient(config Config) *Client {
	baseURL := bybit_api.MAINNET
	if config.Testnet {
		baseURL = bybit_api.TESTNET
	}
	if config.Category == "" {
		config.Category = "linear"
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &Client{
		httpClient: httpClient,
		category:   config.Category,
		testnet:    config.Testnet,
	}
}

// IsTestnet returns whether the client targets the testnet environment.
func (c *Client) IsTestnet() bool {
	return c.testnet
}
