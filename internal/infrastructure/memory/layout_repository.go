package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
)

// LayoutRepository はプロセス内の座席表ストア
type LayoutRepository struct {
	mu      sync.RWMutex
	layouts map[string][]byte // JSON で保持して呼び出し側との共有を避ける
	byEvent map[string]string
}

var _ layout.Repository = (*LayoutRepository)(nil)

func NewLayoutRepository() *LayoutRepository {
	return &LayoutRepository{
		layouts: make(map[string][]byte),
		byEvent: make(map[string]string),
	}
}

func (r *LayoutRepository) Create(ctx context.Context, l *layout.Layout) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("座席表のエンコードに失敗: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.layouts[l.ID]; exists {
		return layout.ErrLayoutAlreadyPublished
	}
	// イベントごとに公開済みの座席表は1つ
	if _, exists := r.byEvent[l.EventID]; exists && l.IsPublished() {
		return layout.ErrLayoutAlreadyPublished
	}
	r.layouts[l.ID] = data
	if l.IsPublished() {
		r.byEvent[l.EventID] = l.ID
	}
	return nil
}

func (r *LayoutRepository) GetByID(ctx context.Context, id string) (*layout.Layout, error) {
	r.mu.RLock()
	data, ok := r.layouts[id]
	r.mu.RUnlock()
	if !ok {
		return nil, layout.ErrLayoutNotFound
	}
	var l layout.Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("座席表のデコードに失敗: %w", err)
	}
	return &l, nil
}

func (r *LayoutRepository) GetPublishedByEventID(ctx context.Context, eventID string) (*layout.Layout, error) {
	r.mu.RLock()
	id, ok := r.byEvent[eventID]
	r.mu.RUnlock()
	if !ok {
		return nil, layout.ErrLayoutNotFound
	}
	return r.GetByID(ctx, id)
}
