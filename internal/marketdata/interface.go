package marketdata

import (
	"context"

	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// Provider is the REST side of the market-data collaborator.
type Provider interface {
	// GetPrice returns the latest traded price for the symbol.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// GetCandles returns up to limit most recent OHLCV candles for the
	// symbol on the given timeframe, oldest first.
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error)
}

// Stream is the streaming side of the market-data collaborator. Ticks for
// all subscribed symbol/timeframe pairs are delivered on one channel.
type Stream interface {
	// Subscribe registers interest in a symbol/timeframe pair. The
	// subscription survives reconnects.
	Subscribe(symbol, timeframe string) error

	// Ticks is the delivery channel. It is closed when the stream shuts
	// down for good.
	Ticks() <-chan types.Ticker

	// Close tears the connection down and stops reconnecting.
	Close() error
}
