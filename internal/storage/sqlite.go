package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// Compile-time interface check.
var _ TradeStore = (*SQLiteStore)(nil)

// SQLiteStore implements TradeStore backed by a SQLite database. The exit
// bookkeeping travels as a JSON column so schema changes to ExitState never
// need a migration.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id            TEXT PRIMARY KEY,
	symbol        TEXT NOT NULL,
	direction     INTEGER NOT NULL,
	entry_price   REAL NOT NULL,
	quantity      REAL NOT NULL,
	remaining_qty REAL NOT NULL,
	stop_loss     REAL NOT NULL,
	take_profit   REAL NOT NULL,
	opened_at     INTEGER NOT NULL,
	status        TEXT NOT NULL,
	exit_state    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS closed_trades (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	position_id  TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	direction    INTEGER NOT NULL,
	entry_price  REAL NOT NULL,
	exit_price   REAL NOT NULL,
	quantity     REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	fees         REAL NOT NULL,
	reason       TEXT NOT NULL,
	opened_at    INTEGER NOT NULL,
	closed_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_closed_trades_closed_at ON closed_trades(closed_at);
`

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists. Use ":memory:" for throwaway stores.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "open")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "migrate")
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTrade inserts a freshly opened position.
func (s *SQLiteStore) CreateTrade(ctx context.Context, p *types.Position) error {
	exitJSON, err := json.Marshal(p.Exit)
	if err != nil {
		return engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "create_trade")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, direction, entry_price, quantity,
			remaining_qty, stop_loss, take_profit, opened_at, status, exit_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Symbol, int(p.Direction), p.EntryPrice, p.Quantity,
		p.RemainingQty, p.StopLoss, p.TakeProfit, p.OpenedAt.UnixMilli(),
		string(p.Status), string(exitJSON))
	if err != nil {
		return engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "create_trade")
	}
	return nil
}

// UpdateTrade overwrites the stored row for p.ID.
func (s *SQLiteStore) UpdateTrade(ctx context.Context, p *types.Position) error {
	exitJSON, err := json.Marshal(p.Exit)
	if err != nil {
		return engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "update_trade")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE trades SET remaining_qty = ?, stop_loss = ?, take_profit = ?,
			status = ?, exit_state = ?
		WHERE id = ?`,
		p.RemainingQty, p.StopLoss, p.TakeProfit, string(p.Status),
		string(exitJSON), p.ID)
	if err != nil {
		return engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "update_trade")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return engineerr.New(engineerr.ErrorCategoryValidation, "storage", "update_trade",
			"no trade with id %s", p.ID)
	}
	return nil
}

// ListOpenTrades returns every position not yet fully closed.
func (s *SQLiteStore) ListOpenTrades(ctx context.Context) ([]*types.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, direction, entry_price, quantity, remaining_qty,
			stop_loss, take_profit, opened_at, status, exit_state
		FROM trades WHERE status != ? ORDER BY opened_at`,
		string(types.PositionClosed))
	if err != nil {
		return nil, engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "list_open")
	}
	defer rows.Close()

	var positions []*types.Position
	for rows.Next() {
		var (
			p        types.Position
			dir      int
			openedAt int64
			status   string
			exitJSON string
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &dir, &p.EntryPrice, &p.Quantity,
			&p.RemainingQty, &p.StopLoss, &p.TakeProfit, &openedAt, &status, &exitJSON); err != nil {
			return nil, engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "list_open")
		}
		p.Direction = types.Direction(dir)
		p.OpenedAt = time.UnixMilli(openedAt).UTC()
		p.Status = types.PositionStatus(status)
		if err := json.Unmarshal([]byte(exitJSON), &p.Exit); err != nil {
			return nil, engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "list_open")
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

// AppendClosedTrade adds a journal record for a full or partial close.
func (s *SQLiteStore) AppendClosedTrade(ctx context.Context, t *types.ClosedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO closed_trades (position_id, symbol, direction, entry_price,
			exit_price, quantity, realized_pnl, fees, reason, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.PositionID, t.Symbol, int(t.Direction), t.EntryPrice, t.ExitPrice,
		t.Quantity, t.RealizedPnL, t.Fees, t.Reason,
		t.OpenedAt.UnixMilli(), t.ClosedAt.UnixMilli())
	if err != nil {
		return engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "append_closed")
	}
	return nil
}

// ListClosedTrades returns the most recent journal records, newest first.
func (s *SQLiteStore) ListClosedTrades(ctx context.Context, limit int) ([]*types.ClosedTrade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, symbol, direction, entry_price, exit_price,
			quantity, realized_pnl, fees, reason, opened_at, closed_at
		FROM closed_trades ORDER BY closed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "list_closed")
	}
	defer rows.Close()

	var trades []*types.ClosedTrade
	for rows.Next() {
		var (
			t        types.ClosedTrade
			dir      int
			openedAt int64
			closedAt int64
		)
		if err := rows.Scan(&t.PositionID, &t.Symbol, &dir, &t.EntryPrice,
			&t.ExitPrice, &t.Quantity, &t.RealizedPnL, &t.Fees, &t.Reason,
			&openedAt, &closedAt); err != nil {
			return nil, engineerr.Wrap(err, engineerr.ErrorCategoryFatalState, "storage", "list_closed")
		}
		t.Direction = types.Direction(dir)
		t.OpenedAt = time.UnixMilli(openedAt).UTC()
		t.ClosedAt = time.UnixMilli(closedAt).UTC()
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}
