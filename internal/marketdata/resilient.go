package marketdata

import (
	"context"

	"github.com/trashpanda-labs/papertrade/internal/safety"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// ResilientProvider wraps a base Provider with rate limiting and retry.
// Every outbound call acquires a token first, then runs under the retry
// policy; only transient failure classes are re-attempted.
type ResilientProvider struct {
	base    Provider
	limiter *safety.RateLimiter
	retrier *safety.Retrier
}

// NewResilientProvider composes the resilience wrappers around base.
func NewResilientProvider(base Provider, limiter *safety.RateLimiter, retrier *safety.Retrier) *ResilientProvider {
	return &ResilientProvider{base: base, limiter: limiter, retrier: retrier}
}

func (p *ResilientProvider) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := p.call(ctx, func() error {
		var err error
		price, err = p.base.GetPrice(ctx, symbol)
		return err
	})
	return price, err
}

func (p *ResilientProvider) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error) {
	var candles []types.OHLCV
	err := p.call(ctx, func() error {
		var err error
		candles, err = p.base.GetCandles(ctx, symbol, timeframe, limit)
		return err
	})
	return candles, err
}

func (p *ResilientProvider) call(ctx context.Context, fn func() error) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := p.retrier.Do(ctx, fn)
	return err
}
