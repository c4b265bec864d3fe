package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/keymutex"
)

// レイアウト単位の座席集合
type layoutSeats struct {
	order []string
	seats map[string]*seat.Seat
}

// SeatRepository はプロセス内の座席ストア
// 座席の変更は (layout_id, seat_uid) ごとのキーロック下で行う
type SeatRepository struct {
	mu      sync.RWMutex // layouts マップ自体の保護
	layouts map[string]*layoutSeats
	locks   *keymutex.KeyMutex
}

var _ seat.Repository = (*SeatRepository)(nil)

func NewSeatRepository() *SeatRepository {
	return &SeatRepository{
		layouts: make(map[string]*layoutSeats),
		locks:   keymutex.New(),
	}
}

func (r *SeatRepository) CreateBulk(ctx context.Context, seats []*seat.Seat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range seats {
		ls, ok := r.layouts[s.LayoutID]
		if !ok {
			ls = &layoutSeats{seats: make(map[string]*seat.Seat)}
			r.layouts[s.LayoutID] = ls
		}
		// 既存の座席は上書きしない
		if _, exists := ls.seats[s.SeatUID]; exists {
			continue
		}
		ls.order = append(ls.order, s.SeatUID)
		ls.seats[s.SeatUID] = s.Clone()
	}
	return nil
}

func (r *SeatRepository) DeleteByLayout(ctx context.Context, layoutID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.layouts[layoutID]
	if !ok {
		return 0, nil
	}
	delete(r.layouts, layoutID)
	return len(ls.seats), nil
}

// lookup はレイアウトの座席ポインタを返す（ロックは呼び出し側で取得する）
func (r *SeatRepository) lookup(layoutID, seatUID string) *seat.Seat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ls, ok := r.layouts[layoutID]
	if !ok {
		return nil
	}
	return ls.seats[seatUID]
}

func (r *SeatRepository) layoutUIDs(layoutID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ls, ok := r.layouts[layoutID]
	if !ok {
		return nil
	}
	return append([]string(nil), ls.order...)
}

func (r *SeatRepository) allKeys() []seat.Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []seat.Key
	for layoutID, ls := range r.layouts {
		for _, uid := range ls.order {
			keys = append(keys, seat.Key{LayoutID: layoutID, SeatUID: uid})
		}
	}
	return keys
}

// withSeat は座席のキーロックを取得して fn を実行する
func (r *SeatRepository) withSeat(layoutID, seatUID string, fn func(s *seat.Seat)) bool {
	s := r.lookup(layoutID, seatUID)
	if s == nil {
		return false
	}
	key := seat.Key{LayoutID: layoutID, SeatUID: seatUID}.String()
	r.locks.Lock(key)
	defer r.locks.Unlock(key)
	fn(s)
	return true
}

func (r *SeatRepository) snapshot(layoutID, seatUID string) *seat.Seat {
	var out *seat.Seat
	r.withSeat(layoutID, seatUID, func(s *seat.Seat) { out = s.Clone() })
	return out
}

func (r *SeatRepository) ListByLayout(ctx context.Context, layoutID string) ([]*seat.Seat, error) {
	uids := r.layoutUIDs(layoutID)
	out := make([]*seat.Seat, 0, len(uids))
	for _, uid := range uids {
		if s := r.snapshot(layoutID, uid); s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *SeatRepository) ListHeldBySession(ctx context.Context, sessionID string, now time.Time) ([]*seat.Seat, error) {
	var out []*seat.Seat
	for _, k := range r.allKeys() {
		s := r.snapshot(k.LayoutID, k.SeatUID)
		if s != nil && s.IsHeldBy(sessionID, now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LayoutID != out[j].LayoutID {
			return out[i].LayoutID < out[j].LayoutID
		}
		return out[i].SeatUID < out[j].SeatUID
	})
	return out, nil
}

func (r *SeatRepository) ListBlocked(ctx context.Context, layoutID string) ([]*seat.Seat, error) {
	all, _ := r.ListByLayout(ctx, layoutID)
	var out []*seat.Seat
	for _, s := range all {
		if s.Status == seat.StatusBlocked {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *SeatRepository) HoldSeats(ctx context.Context, req seat.HoldRequest) ([]seat.HoldOutcome, error) {
	outcomes := make([]seat.HoldOutcome, 0, len(req.SeatUIDs))
	for _, uid := range req.SeatUIDs {
		outcome := seat.HoldOutcome{SeatUID: uid, Result: seat.HoldFailed, Reason: seat.ReasonNotFound}
		r.withSeat(req.LayoutID, uid, func(s *seat.Seat) {
			res, err := s.Hold(req.SessionID, req.ExpiresAt, req.Now, req.ExtendOwned)
			outcome.Result = res
			if err != nil {
				outcome.Reason = seat.ReasonFor(err)
				return
			}
			outcome.Reason = ""
			outcome.ExpiresAt = *s.HoldExpiresAt
		})
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (r *SeatRepository) ReleaseSeats(ctx context.Context, layoutID, sessionID string, seatUIDs []string, now time.Time) (int, error) {
	if len(seatUIDs) == 0 {
		seatUIDs = r.layoutUIDs(layoutID)
	}
	released := 0
	for _, uid := range seatUIDs {
		r.withSeat(layoutID, uid, func(s *seat.Seat) {
			if s.Release(sessionID, now) {
				released++
			}
		})
	}
	return released, nil
}

func (r *SeatRepository) ExtendHolds(ctx context.Context, layoutID, sessionID string, seatUIDs []string, expiresAt, now time.Time) (int, error) {
	if len(seatUIDs) == 0 {
		seatUIDs = r.layoutUIDs(layoutID)
	}
	extended := 0
	for _, uid := range seatUIDs {
		r.withSeat(layoutID, uid, func(s *seat.Seat) {
			if s.ExtendHold(sessionID, expiresAt, now) {
				extended++
			}
		})
	}
	return extended, nil
}

func (r *SeatRepository) ConfirmSeats(ctx context.Context, layoutID, sessionID string, seatUIDs []string, orderRef string, now time.Time) (int, error) {
	targets := make(map[string]*seat.Seat, len(seatUIDs))
	var failures []seat.Failure
	for _, uid := range seatUIDs {
		s := r.lookup(layoutID, uid)
		if s == nil {
			failures = append(failures, seat.Failure{SeatUID: uid, Reason: seat.ReasonNotFound})
			continue
		}
		targets[uid] = s
	}

	keys := make([]string, 0, len(targets))
	for uid := range targets {
		keys = append(keys, seat.Key{LayoutID: layoutID, SeatUID: uid}.String())
	}
	unlock := r.locks.LockAll(keys)
	defer unlock()

	// 全席のガードを確認してから一括で遷移させる
	for _, uid := range seatUIDs {
		s, ok := targets[uid]
		if !ok || s.IsHeldBy(sessionID, now) {
			continue
		}
		trial := s.Clone()
		failures = append(failures, seat.Failure{SeatUID: uid, Reason: seat.ReasonFor(trial.Confirm(sessionID, orderRef, now))})
	}
	if len(failures) > 0 {
		return 0, &seat.ConfirmGuardError{Failures: failures}
	}

	confirmed := 0
	for _, s := range targets {
		if err := s.Confirm(sessionID, orderRef, now); err != nil {
			return confirmed, err
		}
		confirmed++
	}
	return confirmed, nil
}

func (r *SeatRepository) ExpireHolds(ctx context.Context, now time.Time, limit int) ([]seat.Key, error) {
	var expired []seat.Key
	for _, k := range r.allKeys() {
		if limit > 0 && len(expired) >= limit {
			break
		}
		r.withSeat(k.LayoutID, k.SeatUID, func(s *seat.Seat) {
			if s.Expire(now) {
				expired = append(expired, k)
			}
		})
	}
	return expired, nil
}

func (r *SeatRepository) BlockSeats(ctx context.Context, layoutID string, seatUIDs []string, now time.Time) (int, error) {
	n := 0
	for _, uid := range seatUIDs {
		r.withSeat(layoutID, uid, func(s *seat.Seat) {
			if s.Block(now) {
				n++
			}
		})
	}
	return n, nil
}

func (r *SeatRepository) UnblockSeats(ctx context.Context, layoutID string, seatUIDs []string, now time.Time) (int, error) {
	n := 0
	for _, uid := range seatUIDs {
		r.withSeat(layoutID, uid, func(s *seat.Seat) {
			if s.Unblock(now) {
				n++
			}
		})
	}
	return n, nil
}
