package exchange

import (
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
)

// Options parameterise the Binance futures client.
type Options struct {
	APIKey         string
	APISecret      string
	RequestTimeout time.Duration
}

// Client wraps the Binance USDT-margined futures API. Market data
// endpoints work unauthenticated; credentials are optional.
type Client struct {
	cli     *futures.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient constructs the futures client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		cli:     futures.NewClient(opts.APIKey, opts.APISecret),
		timeout: timeout,
		logger:  logger.With().Str("component", "binance").Logger(),
	}
}
