package seat

import (
	"fmt"
	"time"
)

// Status は座席の状態を表す
type Status string

const (
	StatusAvailable Status = "available"
	StatusHeld      Status = "held"
	StatusSold      Status = "sold"
	StatusBlocked   Status = "blocked"
	StatusDisabled  Status = "disabled"
)

// Statuses は全状態を集計順に返す
func Statuses() []Status {
	return []Status{StatusAvailable, StatusHeld, StatusSold, StatusBlocked, StatusDisabled}
}

// Valid は既知の状態かを返す
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusHeld, StatusSold, StatusBlocked, StatusDisabled:
		return true
	}
	return false
}

// Seat はレイアウト上の1席分の在庫を表す
// (LayoutID, SeatUID) で一意
type Seat struct {
	LayoutID      string
	SeatUID       string
	TenantID      string
	SectionCode   string
	RowLabel      string
	SeatNumber    string
	PriceTierID   string
	Status        Status
	HolderSession *string // held の間のみ
	HoldExpiresAt *time.Time
	OrderRef      *string // sold の間のみ
	Version       int     // 遷移ごとに+1
	UpdatedAt     time.Time
}

// NewSeat は利用可能状態の座席を作成する
func NewSeat(layoutID, seatUID string) *Seat {
	return &Seat{
		LayoutID: layoutID,
		SeatUID:  seatUID,
		Status:   StatusAvailable,
	}
}

// Clone は座席のコピーを返す（ポインタフィールドも複製する）
func (s *Seat) Clone() *Seat {
	c := *s
	if s.HolderSession != nil {
		v := *s.HolderSession
		c.HolderSession = &v
	}
	if s.HoldExpiresAt != nil {
		v := *s.HoldExpiresAt
		c.HoldExpiresAt = &v
	}
	if s.OrderRef != nil {
		v := *s.OrderRef
		c.OrderRef = &v
	}
	return &c
}

// IsExpired はホールドが期限切れかを返す（held 以外は false）
func (s *Seat) IsExpired(now time.Time) bool {
	return s.Status == StatusHeld && s.HoldExpiresAt != nil && !now.Before(*s.HoldExpiresAt)
}

// EffectiveStatus は遅延失効を考慮した状態を返す
// 期限切れのホールドはスイーパー未実行でも available とみなす
func (s *Seat) EffectiveStatus(now time.Time) Status {
	if s.IsExpired(now) {
		return StatusAvailable
	}
	return s.Status
}

// IsHeldBy は指定セッションが有効なホールドを持っているかを返す
func (s *Seat) IsHeldBy(sessionID string, now time.Time) bool {
	return s.Status == StatusHeld &&
		s.HolderSession != nil && *s.HolderSession == sessionID &&
		!s.IsExpired(now)
}

// Hold は座席をホールドする
// 自セッションが既にホールド中の場合は extend が true のときのみ期限を延長する
func (s *Seat) Hold(sessionID string, expiresAt, now time.Time, extend bool) (HoldResult, error) {
	if s.IsHeldBy(sessionID, now) {
		if !extend {
			return HoldAlreadyOwned, nil
		}
		s.HoldExpiresAt = &expiresAt
		s.touch(now)
		return HoldExtended, nil
	}

	switch s.EffectiveStatus(now) {
	case StatusAvailable:
	case StatusHeld:
		return HoldFailed, ErrSeatHeld
	case StatusSold:
		return HoldFailed, ErrSeatSold
	case StatusBlocked:
		return HoldFailed, ErrSeatBlocked
	case StatusDisabled:
		return HoldFailed, ErrSeatDisabled
	default:
		return HoldFailed, ErrInvariantViolation
	}

	session := sessionID
	s.Status = StatusHeld
	s.HolderSession = &session
	s.HoldExpiresAt = &expiresAt
	s.touch(now)
	return HoldGranted, nil
}

// Release は自セッションのホールドを解放する
// 他セッションのホールドや期限切れのホールドは解放数に含めない
func (s *Seat) Release(sessionID string, now time.Time) bool {
	if !s.IsHeldBy(sessionID, now) {
		s.Expire(now)
		return false
	}
	s.clearHold(now)
	return true
}

// Expire は期限切れのホールドを回収する
func (s *Seat) Expire(now time.Time) bool {
	if !s.IsExpired(now) {
		return false
	}
	s.clearHold(now)
	return true
}

// ExtendHold は自セッションの有効なホールドの期限を延長する
func (s *Seat) ExtendHold(sessionID string, expiresAt, now time.Time) bool {
	if !s.IsHeldBy(sessionID, now) {
		return false
	}
	if s.HoldExpiresAt != nil && !expiresAt.After(*s.HoldExpiresAt) {
		return false
	}
	s.HoldExpiresAt = &expiresAt
	s.touch(now)
	return true
}

// Confirm は held を sold に遷移させる
func (s *Seat) Confirm(sessionID, orderRef string, now time.Time) error {
	if !s.IsHeldBy(sessionID, now) {
		return s.confirmFailure(sessionID, now)
	}
	ref := orderRef
	s.Status = StatusSold
	s.OrderRef = &ref
	s.HolderSession = nil
	s.HoldExpiresAt = nil
	s.touch(now)
	return nil
}

func (s *Seat) confirmFailure(sessionID string, now time.Time) error {
	switch {
	case s.IsExpired(now) && s.HolderSession != nil && *s.HolderSession == sessionID:
		return ErrHoldExpired
	case s.EffectiveStatus(now) == StatusHeld:
		return ErrSeatHeld
	case s.Status == StatusSold:
		return ErrSeatSold
	default:
		return ErrSeatNotHeld
	}
}

// Block は利用可能な座席を管理者ブロック状態にする
func (s *Seat) Block(now time.Time) bool {
	if s.EffectiveStatus(now) != StatusAvailable {
		return false
	}
	s.Status = StatusBlocked
	s.HolderSession = nil
	s.HoldExpiresAt = nil
	s.touch(now)
	return true
}

// Unblock はブロック中の座席を利用可能に戻す
func (s *Seat) Unblock(now time.Time) bool {
	if s.Status != StatusBlocked {
		return false
	}
	s.Status = StatusAvailable
	s.touch(now)
	return true
}

// CheckInvariant は状態と保持者・注文参照の組み合わせを検証する
func (s *Seat) CheckInvariant() error {
	holder := s.HolderSession != nil
	order := s.OrderRef != nil
	switch s.Status {
	case StatusHeld:
		if holder && s.HoldExpiresAt != nil && !order {
			return nil
		}
	case StatusSold:
		if order && !holder && s.HoldExpiresAt == nil {
			return nil
		}
	case StatusAvailable, StatusBlocked, StatusDisabled:
		if !holder && !order && s.HoldExpiresAt == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: layout=%s seat=%s status=%s", ErrInvariantViolation, s.LayoutID, s.SeatUID, s.Status)
}

func (s *Seat) clearHold(now time.Time) {
	s.Status = StatusAvailable
	s.HolderSession = nil
	s.HoldExpiresAt = nil
	s.touch(now)
}

func (s *Seat) touch(now time.Time) {
	s.Version++
	s.UpdatedAt = now
}

// Key は座席の全体一意キーを返す
func (s *Seat) Key() Key {
	return Key{LayoutID: s.LayoutID, SeatUID: s.SeatUID}
}

// Key は (layout_id, seat_uid) を表す
type Key struct {
	LayoutID string
	SeatUID  string
}

// String はロック用のキー文字列を返す
func (k Key) String() string {
	return k.LayoutID + "/" + k.SeatUID
}

// Counts は状態別の座席数
type Counts struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Held      int `json:"held"`
	Sold      int `json:"sold"`
	Blocked   int `json:"blocked"`
	Disabled  int `json:"disabled"`
}

// CountByStatus は遅延失効を適用して状態別に集計する
func CountByStatus(seats []*Seat, now time.Time) Counts {
	var c Counts
	for _, s := range seats {
		c.Total++
		switch s.EffectiveStatus(now) {
		case StatusAvailable:
			c.Available++
		case StatusHeld:
			c.Held++
		case StatusSold:
			c.Sold++
		case StatusBlocked:
			c.Blocked++
		case StatusDisabled:
			c.Disabled++
		}
	}
	return c
}

// Snapshot はレイアウトの座席状態を取得時刻付きで保持する
// 読み出し側は TakenAt ではなく現在時刻で遅延失効を再適用する
type Snapshot struct {
	LayoutID string    `json:"layout_id"`
	Seats    []*Seat   `json:"seats"`
	TakenAt  time.Time `json:"taken_at"`
	// Generation は読み込み開始時点のキャッシュ世代
	Generation int64 `json:"generation"`
}

// SoldEvent は購入確定で sold になった座席の通知
type SoldEvent struct {
	LayoutID    string    `json:"layout_id"`
	OrderRef    string    `json:"order_ref"`
	SeatUIDs    []string  `json:"seat_uids"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}
