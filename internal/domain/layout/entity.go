package layout

import (
	"time"
)

// MaxSeatUIDLength は seat_uid の最大長
const MaxSeatUIDLength = 32

// Status はレイアウトの公開状態を表す
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Layout はイベントに紐づく座席表を表す
// 公開して座席を実体化した後は seat_uid の集合を変更できない
type Layout struct {
	ID          string      `json:"id"`
	EventID     string      `json:"event_id"`
	TenantID    string      `json:"tenant_id"`
	Name        string      `json:"name"`
	Status      Status      `json:"status"`
	Version     int         `json:"version"`
	Geometry    Geometry    `json:"geometry"`
	PriceTiers  []PriceTier `json:"price_tiers"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Geometry はキャンバスとセクション構成
type Geometry struct {
	Canvas   Canvas    `json:"canvas"`
	Sections []Section `json:"sections"`
}

// Canvas は描画領域の大きさ
type Canvas struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Section は座席表のセクション
type Section struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Rows []Row  `json:"rows"`
}

// Row はセクション内の列
type Row struct {
	Label string         `json:"label"`
	Seats []SeatGeometry `json:"seats"`
}

// SeatGeometry は1席分の配置情報
type SeatGeometry struct {
	UID         string  `json:"seat_uid"`
	Label       string  `json:"label"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	PriceTierID string  `json:"price_tier_id"`
	Disabled    bool    `json:"disabled,omitempty"`
}

// PriceTier は価格帯
type PriceTier struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Color      string `json:"color,omitempty"`
}

// PlacedSeat はセクション・列の情報を付けた座席配置
type PlacedSeat struct {
	SectionCode string
	RowLabel    string
	Seat        SeatGeometry
}

// IsPublished は公開済みかを返す
func (l *Layout) IsPublished() bool {
	return l.Status == StatusPublished
}

// Publish はレイアウトを公開状態にする
func (l *Layout) Publish(now time.Time) error {
	if l.IsPublished() {
		return ErrLayoutAlreadyPublished
	}
	if err := l.Validate(); err != nil {
		return err
	}
	l.Status = StatusPublished
	l.Version++
	l.PublishedAt = &now
	return nil
}

// Seats は定義順に全座席を返す
func (l *Layout) Seats() []PlacedSeat {
	var out []PlacedSeat
	for _, sec := range l.Geometry.Sections {
		for _, row := range sec.Rows {
			for _, s := range row.Seats {
				out = append(out, PlacedSeat{SectionCode: sec.Code, RowLabel: row.Label, Seat: s})
			}
		}
	}
	return out
}

// SeatUIDs は定義順に全 seat_uid を返す
func (l *Layout) SeatUIDs() []string {
	seats := l.Seats()
	uids := make([]string, len(seats))
	for i, s := range seats {
		uids[i] = s.Seat.UID
	}
	return uids
}

// TierPrices は価格帯IDから価格への対応表を返す
func (l *Layout) TierPrices() map[string]int64 {
	m := make(map[string]int64, len(l.PriceTiers))
	for _, t := range l.PriceTiers {
		m[t.ID] = t.PriceCents
	}
	return m
}

// TiersInUse は座席から参照されている価格帯のみを返す
func (l *Layout) TiersInUse() []PriceTier {
	used := make(map[string]bool)
	for _, s := range l.Seats() {
		used[s.Seat.PriceTierID] = true
	}
	out := make([]PriceTier, 0, len(l.PriceTiers))
	for _, t := range l.PriceTiers {
		if used[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

// Validate はレイアウトの検証を行う
func (l *Layout) Validate() error {
	if l.ID == "" {
		return ErrLayoutIDRequired
	}
	if l.EventID == "" {
		return ErrEventIDRequired
	}
	tiers := l.TierPrices()
	seen := make(map[string]bool)
	for _, s := range l.Seats() {
		uid := s.Seat.UID
		if uid == "" || len(uid) > MaxSeatUIDLength {
			return ErrInvalidSeatUID
		}
		if seen[uid] {
			return ErrDuplicateSeatUID
		}
		seen[uid] = true
		if _, ok := tiers[s.Seat.PriceTierID]; !ok {
			return ErrUnknownPriceTier
		}
	}
	if len(seen) == 0 {
		return ErrEmptyGeometry
	}
	return nil
}
