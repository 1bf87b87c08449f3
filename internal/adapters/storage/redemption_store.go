package storage

// redemption_store.go — SQLite-backed Pending Redemption queue (§4.2,
// §3): survives a process restart so an in-flight redemption is never
// silently dropped.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nexto0/dip-arbiter/internal/domain"
	_ "modernc.org/sqlite"
)

const redemptionSchema = `
CREATE TABLE IF NOT EXISTS pending_redemptions (
    condition_id    TEXT PRIMARY KEY,
    market_json     TEXT NOT NULL,
    round_json      TEXT NOT NULL,
    market_end_time DATETIME NOT NULL,
    enqueued_at     DATETIME NOT NULL,
    retry_count     INTEGER NOT NULL DEFAULT 0,
    last_retry_at   DATETIME
);
`

// RedemptionStore implements ports.RedemptionStore using SQLite.
type RedemptionStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRedemptionStore opens (or creates) the database at path and applies
// the schema.
func NewRedemptionStore(path string) (*RedemptionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewRedemptionStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(redemptionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewRedemptionStore: apply schema: %w", err)
	}
	return &RedemptionStore{db: db}, nil
}

// Enqueue persists a new pending redemption.
func (s *RedemptionStore) Enqueue(ctx context.Context, p domain.PendingRedemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	marketJSON, err := json.Marshal(p.Market)
	if err != nil {
		return fmt.Errorf("storage.Enqueue: marshal market: %w", err)
	}
	roundJSON, err := json.Marshal(p.Round)
	if err != nil {
		return fmt.Errorf("storage.Enqueue: marshal round: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_redemptions
			(condition_id, market_json, round_json, market_end_time, enqueued_at, retry_count, last_retry_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(condition_id) DO UPDATE SET
			market_json     = excluded.market_json,
			round_json      = excluded.round_json,
			market_end_time = excluded.market_end_time,
			enqueued_at     = excluded.enqueued_at
	`, p.Market.ConditionID, marketJSON, roundJSON, p.MarketEndTime.UTC(), p.EnqueuedAt.UTC(), p.RetryCount, nullableTime(p.LastRetryAt))
	if err != nil {
		return fmt.Errorf("storage.Enqueue: insert: %w", err)
	}
	return nil
}

// Update persists retry-count/last-retry-at changes for an existing
// pending redemption.
func (s *RedemptionStore) Update(ctx context.Context, p domain.PendingRedemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_redemptions
		SET retry_count = ?, last_retry_at = ?
		WHERE condition_id = ?
	`, p.RetryCount, nullableTime(p.LastRetryAt), p.Market.ConditionID)
	if err != nil {
		return fmt.Errorf("storage.Update: %w", err)
	}
	return nil
}

// Remove deletes a pending redemption once settled (or abandoned).
func (s *RedemptionStore) Remove(ctx context.Context, conditionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_redemptions WHERE condition_id = ?`, conditionID)
	if err != nil {
		return fmt.Errorf("storage.Remove: %w", err)
	}
	return nil
}

// List returns every pending redemption currently queued.
func (s *RedemptionStore) List(ctx context.Context) ([]domain.PendingRedemption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_json, round_json, market_end_time, enqueued_at, retry_count, last_retry_at
		FROM pending_redemptions
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.List: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingRedemption
	for rows.Next() {
		var marketJSON, roundJSON []byte
		var p domain.PendingRedemption
		var lastRetry sql.NullTime

		if err := rows.Scan(&marketJSON, &roundJSON, &p.MarketEndTime, &p.EnqueuedAt, &p.RetryCount, &lastRetry); err != nil {
			return nil, fmt.Errorf("storage.List: scan: %w", err)
		}
		if err := json.Unmarshal(marketJSON, &p.Market); err != nil {
			return nil, fmt.Errorf("storage.List: unmarshal market: %w", err)
		}
		if err := json.Unmarshal(roundJSON, &p.Round); err != nil {
			return nil, fmt.Errorf("storage.List: unmarshal round: %w", err)
		}
		if lastRetry.Valid {
			p.LastRetryAt = lastRetry.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *RedemptionStore) Close() error {
	return s.db.Close()
}

func nullableTime(t interface{ IsZero() bool }) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
