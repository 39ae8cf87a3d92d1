// Package db stores the trade ledger in SQLite, one row per record, keyed by
// owner so reads never cross users.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrUserIDRequired = errors.New("user_id is required for data isolation")

// TradeRow is one stored ledger record. Payload is the record's JSON.
type TradeRow struct {
	Seq       int64
	UserID    string
	Symbol    string
	Mode      string
	Payload   string
	CreatedAt time.Time
}

// TradeQueries provides user-isolated ledger queries.
type TradeQueries struct {
	db *sql.DB
}

// NewTradeQueries creates a new TradeQueries instance.
func NewTradeQueries(db *sql.DB) *TradeQueries {
	return &TradeQueries{db: db}
}

// InsertTrade appends one record and returns its sequence number.
func (q *TradeQueries) InsertTrade(ctx context.Context, row TradeRow) (int64, error) {
	if row.UserID == "" {
		return 0, ErrUserIDRequired
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO trades (user_id, symbol, mode, payload)
		VALUES (?, ?, ?, ?)
	`, row.UserID, row.Symbol, row.Mode, row.Payload)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return res.LastInsertId()
}

// TradesByUser returns the last limit records of userID oldest first;
// limit <= 0 returns all of them.
func (q *TradeQueries) TradesByUser(ctx context.Context, userID string, limit int) ([]TradeRow, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT seq, user_id, symbol, mode, payload, created_at FROM (
			SELECT seq, user_id, symbol, mode, payload, created_at
			FROM trades
			WHERE user_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	out := make([]TradeRow, 0)
	for rows.Next() {
		var r TradeRow
		if err := rows.Scan(&r.Seq, &r.UserID, &r.Symbol, &r.Mode, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByUser returns how many records userID owns.
func (q *TradeQueries) CountByUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}
