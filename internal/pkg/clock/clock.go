package clock

import (
	"sync"
	"time"
)

// Clock は現在時刻を注入するためのインターフェース
// ホールドの有効期限判定はすべてこの時刻を基準にする
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem は time.Now を使う時計を返す
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Manual はテスト用の手動で進められる時計
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual は指定時刻から始まる手動時計を返す
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance は時計を d だけ進める
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set は時計を指定時刻に合わせる
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
}
