package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
)

// layoutRow はDBの行を表す構造体
type layoutRow struct {
	ID          string     `db:"id"`
	EventID     string     `db:"event_id"`
	TenantID    string     `db:"tenant_id"`
	Name        string     `db:"name"`
	Status      string     `db:"status"`
	Version     int        `db:"version"`
	Geometry    []byte     `db:"geometry"`
	PriceTiers  []byte     `db:"price_tiers"`
	PublishedAt *time.Time `db:"published_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// toEntity はlayoutRowをLayoutエンティティに変換する
func (r *layoutRow) toEntity() (*layout.Layout, error) {
	l := &layout.Layout{
		ID:          r.ID,
		EventID:     r.EventID,
		TenantID:    r.TenantID,
		Name:        r.Name,
		Status:      layout.Status(r.Status),
		Version:     r.Version,
		PublishedAt: r.PublishedAt,
		CreatedAt:   r.CreatedAt,
	}
	if err := json.Unmarshal(r.Geometry, &l.Geometry); err != nil {
		return nil, fmt.Errorf("座席表ジオメトリのデコードに失敗: %w", err)
	}
	if len(r.PriceTiers) > 0 {
		if err := json.Unmarshal(r.PriceTiers, &l.PriceTiers); err != nil {
			return nil, fmt.Errorf("価格帯のデコードに失敗: %w", err)
		}
	}
	return l, nil
}

// LayoutRepository は座席表リポジトリのPostgreSQL実装
type LayoutRepository struct {
	db *sqlx.DB
}

var _ layout.Repository = (*LayoutRepository)(nil)

// NewLayoutRepository はLayoutRepositoryを作成する
func NewLayoutRepository(db *sqlx.DB) *LayoutRepository {
	return &LayoutRepository{db: db}
}

// Create は座席表を保存する
func (r *LayoutRepository) Create(ctx context.Context, l *layout.Layout) error {
	return insertLayout(ctx, r.db, l)
}

// CreateWithSeats は座席と座席表を1トランザクションで作成する
// 座席表の作成に失敗した場合は座席も残らない
func (r *LayoutRepository) CreateWithSeats(ctx context.Context, l *layout.Layout, seats []*seat.Seat) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := insertSeats(ctx, tx, seats); err != nil {
		return err
	}
	if err := insertLayout(ctx, tx, l); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

func insertLayout(ctx context.Context, db sqlx.ExecerContext, l *layout.Layout) error {
	geometry, err := json.Marshal(l.Geometry)
	if err != nil {
		return fmt.Errorf("座席表ジオメトリのエンコードに失敗: %w", err)
	}
	tiers, err := json.Marshal(l.PriceTiers)
	if err != nil {
		return fmt.Errorf("価格帯のエンコードに失敗: %w", err)
	}

	query := `
		INSERT INTO seating_layouts (id, event_id, tenant_id, name, status, version, geometry, price_tiers, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10)
	`
	_, err = db.ExecContext(ctx, query,
		l.ID, l.EventID, l.TenantID, l.Name, string(l.Status), l.Version,
		string(geometry), string(tiers), l.PublishedAt, l.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		// 同一ID、または同一イベントの公開済み座席表が既にある
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return layout.ErrLayoutAlreadyPublished
		}
		return fmt.Errorf("座席表作成に失敗: %w", err)
	}
	return nil
}

// GetByID はIDから座席表を取得する
func (r *LayoutRepository) GetByID(ctx context.Context, id string) (*layout.Layout, error) {
	query := `SELECT id, event_id, tenant_id, name, status, version, geometry, price_tiers, published_at, created_at FROM seating_layouts WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetPublishedByEventID はイベントの公開済み座席表を取得する
func (r *LayoutRepository) GetPublishedByEventID(ctx context.Context, eventID string) (*layout.Layout, error) {
	query := `SELECT id, event_id, tenant_id, name, status, version, geometry, price_tiers, published_at, created_at FROM seating_layouts WHERE event_id = $1 AND status = 'published'`
	return r.get(ctx, query, eventID)
}

func (r *LayoutRepository) get(ctx context.Context, query string, arg string) (*layout.Layout, error) {
	var row layoutRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, layout.ErrLayoutNotFound
		}
		return nil, fmt.Errorf("座席表取得に失敗: %w", err)
	}
	return row.toEntity()
}
