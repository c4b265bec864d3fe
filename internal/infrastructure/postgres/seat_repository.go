package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
)

const seatColumns = `layout_id, seat_uid, tenant_id, section_code, row_label, seat_number, price_tier_id, status, holder_session, hold_expires_at, order_ref, version, updated_at`

type seatRow struct {
	LayoutID      string     `db:"layout_id"`
	SeatUID       string     `db:"seat_uid"`
	TenantID      string     `db:"tenant_id"`
	SectionCode   string     `db:"section_code"`
	RowLabel      string     `db:"row_label"`
	SeatNumber    string     `db:"seat_number"`
	PriceTierID   string     `db:"price_tier_id"`
	Status        string     `db:"status"`
	HolderSession *string    `db:"holder_session"`
	HoldExpiresAt *time.Time `db:"hold_expires_at"`
	OrderRef      *string    `db:"order_ref"`
	Version       int        `db:"version"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

func (r *seatRow) toEntity() *seat.Seat {
	s := &seat.Seat{
		LayoutID: r.LayoutID, SeatUID: r.SeatUID, TenantID: r.TenantID,
		SectionCode: r.SectionCode, RowLabel: r.RowLabel, SeatNumber: r.SeatNumber,
		PriceTierID: r.PriceTierID, Status: seat.Status(r.Status),
		HolderSession: r.HolderSession, OrderRef: r.OrderRef,
		Version: r.Version, UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.HoldExpiresAt != nil {
		t := r.HoldExpiresAt.UTC()
		s.HoldExpiresAt = &t
	}
	return s
}

func toEntities(rows []seatRow) []*seat.Seat {
	seats := make([]*seat.Seat, len(rows))
	for i := range rows {
		seats[i] = rows[i].toEntity()
	}
	return seats
}

// SeatRepository はPostgreSQLの座席ストア
// 状態遷移はすべて条件付きUPDATE（WHERE status = ...）で行い、行ロックで座席単位に直列化する
type SeatRepository struct{ db *sqlx.DB }

func NewSeatRepository(db *sqlx.DB) *SeatRepository { return &SeatRepository{db: db} }

func (r *SeatRepository) CreateBulk(ctx context.Context, seats []*seat.Seat) error {
	if len(seats) == 0 {
		return nil
	}

	// バッチサイズごとに分割してマルチバリューINSERTを実行
	return insertSeats(ctx, r.db, seats)
}

// insertSeats はバッチサイズごとに分割してマルチバリューINSERTを実行する
func insertSeats(ctx context.Context, db sqlx.ExecerContext, seats []*seat.Seat) error {
	const batchSize = 1000
	for i := 0; i < len(seats); i += batchSize {
		end := i + batchSize
		if end > len(seats) {
			end = len(seats)
		}
		if err := insertSeatBatch(ctx, db, seats[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// insertSeatBatch は既存の座席を上書きしないマルチバリューINSERT
func insertSeatBatch(ctx context.Context, db sqlx.ExecerContext, seats []*seat.Seat) error {
	const cols = 11
	query := `INSERT INTO seats (layout_id, seat_uid, tenant_id, section_code, row_label, seat_number, price_tier_id, status, order_ref, version, updated_at) VALUES `
	args := make([]interface{}, 0, len(seats)*cols)
	placeholders := make([]string, 0, len(seats))

	for i, s := range seats {
		base := i * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args, s.LayoutID, s.SeatUID, s.TenantID, s.SectionCode, s.RowLabel, s.SeatNumber,
			s.PriceTierID, string(s.Status), s.OrderRef, s.Version, s.UpdatedAt)
	}

	query += strings.Join(placeholders, ", ") + ` ON CONFLICT (layout_id, seat_uid) DO NOTHING`
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("座席一括作成に失敗: %w", err)
	}
	return nil
}

// DeleteByLayout はレイアウトの座席をすべて削除する
func (r *SeatRepository) DeleteByLayout(ctx context.Context, layoutID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM seats WHERE layout_id = $1`, layoutID)
	if err != nil {
		return 0, fmt.Errorf("座席削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("座席削除に失敗: %w", err)
	}
	return int(n), nil
}

func (r *SeatRepository) ListByLayout(ctx context.Context, layoutID string) ([]*seat.Seat, error) {
	query := `SELECT ` + seatColumns + ` FROM seats WHERE layout_id = $1 ORDER BY section_code, row_label, seat_uid`
	var rows []seatRow
	if err := r.db.SelectContext(ctx, &rows, query, layoutID); err != nil {
		return nil, fmt.Errorf("座席一覧取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *SeatRepository) ListHeldBySession(ctx context.Context, sessionID string, now time.Time) ([]*seat.Seat, error) {
	query := `SELECT ` + seatColumns + ` FROM seats WHERE holder_session = $1 AND status = 'held' AND hold_expires_at > $2 ORDER BY layout_id, seat_uid`
	var rows []seatRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, now); err != nil {
		return nil, fmt.Errorf("ホールド一覧取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *SeatRepository) ListBlocked(ctx context.Context, layoutID string) ([]*seat.Seat, error) {
	query := `SELECT ` + seatColumns + ` FROM seats WHERE layout_id = $1 AND status = 'blocked' ORDER BY seat_uid`
	var rows []seatRow
	if err := r.db.SelectContext(ctx, &rows, query, layoutID); err != nil {
		return nil, fmt.Errorf("ブロック座席取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *SeatRepository) HoldSeats(ctx context.Context, req seat.HoldRequest) ([]seat.HoldOutcome, error) {
	if len(req.SeatUIDs) == 0 {
		return nil, nil
	}

	// available（または期限切れの held）のみを取得する
	var granted []string
	err := r.db.SelectContext(ctx, &granted, `
		UPDATE seats SET status = 'held', holder_session = $1, hold_expires_at = $2, version = version + 1, updated_at = $3
		WHERE layout_id = $4 AND seat_uid = ANY($5)
		  AND (status = 'available' OR (status = 'held' AND hold_expires_at <= $3))
		RETURNING seat_uid`,
		req.SessionID, req.ExpiresAt, req.Now, req.LayoutID, pq.Array(req.SeatUIDs))
	if err != nil {
		return nil, fmt.Errorf("座席ホールドに失敗: %w", err)
	}

	results := make(map[string]seat.HoldOutcome, len(req.SeatUIDs))
	for _, uid := range granted {
		results[uid] = seat.HoldOutcome{SeatUID: uid, Result: seat.HoldGranted, ExpiresAt: req.ExpiresAt}
	}
	remaining := missingFrom(req.SeatUIDs, results)

	if req.ExtendOwned && len(remaining) > 0 {
		var extended []string
		err := r.db.SelectContext(ctx, &extended, `
			UPDATE seats SET hold_expires_at = $2, version = version + 1, updated_at = $3
			WHERE layout_id = $4 AND seat_uid = ANY($5)
			  AND status = 'held' AND holder_session = $1 AND hold_expires_at > $3
			RETURNING seat_uid`,
			req.SessionID, req.ExpiresAt, req.Now, req.LayoutID, pq.Array(remaining))
		if err != nil {
			return nil, fmt.Errorf("ホールド延長に失敗: %w", err)
		}
		for _, uid := range extended {
			results[uid] = seat.HoldOutcome{SeatUID: uid, Result: seat.HoldExtended, ExpiresAt: req.ExpiresAt}
		}
		remaining = missingFrom(req.SeatUIDs, results)
	}

	if len(remaining) > 0 {
		current, err := r.loadSeats(ctx, r.db, req.LayoutID, remaining)
		if err != nil {
			return nil, err
		}
		for _, uid := range remaining {
			s, ok := current[uid]
			switch {
			case !ok:
				results[uid] = seat.HoldOutcome{SeatUID: uid, Result: seat.HoldFailed, Reason: seat.ReasonNotFound}
			case s.IsHeldBy(req.SessionID, req.Now):
				results[uid] = seat.HoldOutcome{SeatUID: uid, Result: seat.HoldAlreadyOwned, ExpiresAt: *s.HoldExpiresAt}
			default:
				results[uid] = seat.HoldOutcome{SeatUID: uid, Result: seat.HoldFailed, Reason: seat.ReasonForStatus(s.Status)}
			}
		}
	}

	outcomes := make([]seat.HoldOutcome, len(req.SeatUIDs))
	for i, uid := range req.SeatUIDs {
		outcomes[i] = results[uid]
	}
	return outcomes, nil
}

func (r *SeatRepository) ReleaseSeats(ctx context.Context, layoutID, sessionID string, seatUIDs []string, now time.Time) (int, error) {
	query := `UPDATE seats SET status = 'available', holder_session = NULL, hold_expires_at = NULL, version = version + 1, updated_at = $3
		WHERE layout_id = $1 AND holder_session = $2 AND status = 'held' AND hold_expires_at > $3`
	args := []interface{}{layoutID, sessionID, now}
	if len(seatUIDs) > 0 {
		query += ` AND seat_uid = ANY($4)`
		args = append(args, pq.Array(seatUIDs))
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("座席解放に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (r *SeatRepository) ExtendHolds(ctx context.Context, layoutID, sessionID string, seatUIDs []string, expiresAt, now time.Time) (int, error) {
	query := `UPDATE seats SET hold_expires_at = $4, version = version + 1, updated_at = $3
		WHERE layout_id = $1 AND holder_session = $2 AND status = 'held' AND hold_expires_at > $3 AND hold_expires_at < $4`
	args := []interface{}{layoutID, sessionID, now, expiresAt}
	if len(seatUIDs) > 0 {
		query += ` AND seat_uid = ANY($5)`
		args = append(args, pq.Array(seatUIDs))
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("ホールド延長に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (r *SeatRepository) ConfirmSeats(ctx context.Context, layoutID, sessionID string, seatUIDs []string, orderRef string, now time.Time) (int, error) {
	if len(seatUIDs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	var confirmed []string
	err = tx.SelectContext(ctx, &confirmed, `
		UPDATE seats SET status = 'sold', order_ref = $3, holder_session = NULL, hold_expires_at = NULL, version = version + 1, updated_at = $4
		WHERE layout_id = $1 AND seat_uid = ANY($5)
		  AND status = 'held' AND holder_session = $2 AND hold_expires_at > $4
		RETURNING seat_uid`,
		layoutID, sessionID, orderRef, now, pq.Array(seatUIDs))
	if err != nil {
		return 0, fmt.Errorf("座席確定に失敗: %w", err)
	}

	if len(confirmed) != len(seatUIDs) {
		// ロールバック前に失敗理由を集める（UPDATE 済みの行は除外）
		done := make(map[string]bool, len(confirmed))
		for _, uid := range confirmed {
			done[uid] = true
		}
		var pending []string
		for _, uid := range seatUIDs {
			if !done[uid] {
				pending = append(pending, uid)
			}
		}
		current, err := r.loadSeats(ctx, tx, layoutID, pending)
		if err != nil {
			return 0, err
		}
		failures := make([]seat.Failure, 0, len(pending))
		for _, uid := range pending {
			s, ok := current[uid]
			if !ok {
				failures = append(failures, seat.Failure{SeatUID: uid, Reason: seat.ReasonNotFound})
				continue
			}
			failures = append(failures, seat.Failure{SeatUID: uid, Reason: seat.ReasonFor(s.Confirm(sessionID, orderRef, now))})
		}
		return 0, &seat.ConfirmGuardError{Failures: failures}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("コミットに失敗: %w", err)
	}
	return len(confirmed), nil
}

func (r *SeatRepository) ExpireHolds(ctx context.Context, now time.Time, limit int) ([]seat.Key, error) {
	if limit <= 0 {
		limit = 1000
	}
	var rows []struct {
		LayoutID string `db:"layout_id"`
		SeatUID  string `db:"seat_uid"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		UPDATE seats SET status = 'available', holder_session = NULL, hold_expires_at = NULL, version = version + 1, updated_at = $1
		WHERE (layout_id, seat_uid) IN (
			SELECT layout_id, seat_uid FROM seats
			WHERE status = 'held' AND hold_expires_at <= $1
			ORDER BY hold_expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'held' AND hold_expires_at <= $1
		RETURNING layout_id, seat_uid`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("期限切れホールドの回収に失敗: %w", err)
	}
	keys := make([]seat.Key, len(rows))
	for i, row := range rows {
		keys[i] = seat.Key{LayoutID: row.LayoutID, SeatUID: row.SeatUID}
	}
	return keys, nil
}

func (r *SeatRepository) BlockSeats(ctx context.Context, layoutID string, seatUIDs []string, now time.Time) (int, error) {
	if len(seatUIDs) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE seats SET status = 'blocked', holder_session = NULL, hold_expires_at = NULL, version = version + 1, updated_at = $3
		WHERE layout_id = $1 AND seat_uid = ANY($2)
		  AND (status = 'available' OR (status = 'held' AND hold_expires_at <= $3))`,
		layoutID, pq.Array(seatUIDs), now)
	if err != nil {
		return 0, fmt.Errorf("座席ブロックに失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (r *SeatRepository) UnblockSeats(ctx context.Context, layoutID string, seatUIDs []string, now time.Time) (int, error) {
	if len(seatUIDs) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE seats SET status = 'available', version = version + 1, updated_at = $3
		WHERE layout_id = $1 AND seat_uid = ANY($2) AND status = 'blocked'`,
		layoutID, pq.Array(seatUIDs), now)
	if err != nil {
		return 0, fmt.Errorf("座席ブロック解除に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (r *SeatRepository) loadSeats(ctx context.Context, q sqlx.QueryerContext, layoutID string, uids []string) (map[string]*seat.Seat, error) {
	var rows []seatRow
	query := `SELECT ` + seatColumns + ` FROM seats WHERE layout_id = $1 AND seat_uid = ANY($2)`
	if err := sqlx.SelectContext(ctx, q, &rows, query, layoutID, pq.Array(uids)); err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	out := make(map[string]*seat.Seat, len(rows))
	for i := range rows {
		out[rows[i].SeatUID] = rows[i].toEntity()
	}
	return out, nil
}

func missingFrom(uids []string, done map[string]seat.HoldOutcome) []string {
	var out []string
	for _, uid := range uids {
		if _, ok := done[uid]; !ok {
			out = append(out, uid)
		}
	}
	return out
}

var _ seat.Repository = (*SeatRepository)(nil)
