package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"bybit-autotrader/pkg/db"
	"bybit-autotrader/pkg/logging"
)

// SQLiteLedger keeps ledger records as JSON payload rows in SQLite.
type SQLiteLedger struct {
	database *db.Database
	q        *db.TradeQueries
	log      zerolog.Logger
}

// NewSQLiteLedger opens the database at path and applies the ledger schema.
func NewSQLiteLedger(path string, logger zerolog.Logger) (*SQLiteLedger, error) {
	database, err := db.New(path)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(database); err != nil {
		database.Close()
		return nil, err
	}
	return &SQLiteLedger{
		database: database,
		q:        database.Queries(),
		log:      logging.Component(logger, "ledger").With().Str("backend", "sqlite").Logger(),
	}, nil
}

// Append stores t as one row.
func (l *SQLiteLedger) Append(ctx context.Context, t Trade) error {
	uid := t.UserID()
	if uid == "" {
		return ErrEmptyID
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trade: %w", err)
	}
	row := db.TradeRow{
		UserID:  uid,
		Symbol:  asString(t["symbol"]),
		Mode:    asString(t["mode"]),
		Payload: string(payload),
	}
	if _, err := l.q.InsertTrade(ctx, row); err != nil {
		l.log.Error().Err(err).Str("user", uid).Msg("insert trade failed")
		return err
	}
	return nil
}

// TradesFor decodes the last limit rows of userID.
func (l *SQLiteLedger) TradesFor(ctx context.Context, userID string, limit int) ([]Trade, error) {
	rows, err := l.q.TradesByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Trade, 0, len(rows))
	for _, r := range rows {
		var t Trade
		if err := json.Unmarshal([]byte(r.Payload), &t); err != nil {
			l.log.Warn().Err(err).Int64("seq", r.Seq).Msg("skip undecodable trade row")
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Close releases the database.
func (l *SQLiteLedger) Close() error {
	return l.database.Close()
}
