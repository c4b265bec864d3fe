package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-seating-engine/internal/domain/idempotency"
)

type idempotencyRow struct {
	Key         string     `db:"key"`
	Fingerprint string     `db:"fingerprint"`
	Status      string     `db:"status"`
	Payload     []byte     `db:"payload"`
	CreatedAt   time.Time  `db:"created_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

func (r *idempotencyRow) toEntity() *idempotency.Record {
	return &idempotency.Record{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		Status:      idempotency.Status(r.Status),
		Payload:     r.Payload,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
}

// IdempotencyRepository は冪等性レコードのPostgreSQL実装
// 主キーへの一意挿入でキーを確保する
type IdempotencyRepository struct{ db *sqlx.DB }

var _ idempotency.Repository = (*IdempotencyRepository)(nil)

func NewIdempotencyRepository(db *sqlx.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Claim(ctx context.Context, key, fingerprint string, now time.Time) (*idempotency.Record, bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, fingerprint, status, created_at)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (key) DO NOTHING`, key, fingerprint, now)
	if err != nil {
		return nil, false, fmt.Errorf("冪等キーの確保に失敗: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		return &idempotency.Record{Key: key, Fingerprint: fingerprint, Status: idempotency.StatusPending, CreatedAt: now}, true, nil
	}

	existing, err := r.Get(ctx, key)
	if errors.Is(err, idempotency.ErrRecordNotFound) {
		// 確保と取得の間に取り消された場合は呼び出し側で再試行する
		return nil, false, idempotency.ErrInProgress
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key string, payload []byte, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_records SET status = 'completed', payload = $2, completed_at = $3
		WHERE key = $1`, key, payload, now)
	if err != nil {
		return fmt.Errorf("冪等キーの完了に失敗: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return idempotency.ErrRecordNotFound
	}
	return nil
}

func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE key = $1 AND status = 'pending'`, key)
	if err != nil {
		return fmt.Errorf("冪等キーの取り消しに失敗: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	var row idempotencyRow
	err := r.db.GetContext(ctx, &row, `SELECT key, fingerprint, status, payload, created_at, completed_at FROM idempotency_records WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, idempotency.ErrRecordNotFound
		}
		return nil, fmt.Errorf("冪等キーの取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *IdempotencyRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("冪等キーの削除に失敗: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
