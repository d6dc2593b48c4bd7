package storage

import (
	"context"

	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// TradeStore persists simulated positions and the closed-trade journal so a
// restarted engine resumes exactly where it left off.
type TradeStore interface {
	// CreateTrade inserts a freshly opened position.
	CreateTrade(ctx context.Context, p *types.Position) error

	// UpdateTrade overwrites the stored row for p.ID, exit state included.
	UpdateTrade(ctx context.Context, p *types.Position) error

	// ListOpenTrades returns every position not yet fully closed.
	ListOpenTrades(ctx context.Context) ([]*types.Position, error)

	// AppendClosedTrade adds a journal record for a full or partial close.
	AppendClosedTrade(ctx context.Context, t *types.ClosedTrade) error

	// ListClosedTrades returns the most recent journal records, newest first.
	ListClosedTrades(ctx context.Context, limit int) ([]*types.ClosedTrade, error)

	Close() error
}
