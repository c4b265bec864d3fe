package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sanosuguru/go-seating-engine/internal/domain/idempotency"
)

// IdempotencyRepository はプロセス内の冪等性レコードストア
type IdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]*idempotency.Record
}

var _ idempotency.Repository = (*IdempotencyRepository)(nil)

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{records: make(map[string]*idempotency.Record)}
}

func (r *IdempotencyRepository) Claim(ctx context.Context, key, fingerprint string, now time.Time) (*idempotency.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[key]; ok {
		return copyRecord(existing), false, nil
	}
	rec := &idempotency.Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      idempotency.StatusPending,
		CreatedAt:   now,
	}
	r.records[key] = rec
	return copyRecord(rec), true, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key string, payload []byte, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return idempotency.ErrRecordNotFound
	}
	rec.Status = idempotency.StatusCompleted
	rec.Payload = append([]byte(nil), payload...)
	rec.CompletedAt = &now
	return nil
}

func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[key]; ok && rec.Status == idempotency.StatusPending {
		delete(r.records, key)
	}
	return nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, idempotency.ErrRecordNotFound
	}
	return copyRecord(rec), nil
}

func (r *IdempotencyRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, rec := range r.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(r.records, key)
			n++
		}
	}
	return n, nil
}

func copyRecord(rec *idempotency.Record) *idempotency.Record {
	c := *rec
	c.Payload = append([]byte(nil), rec.Payload...)
	return &c
}
