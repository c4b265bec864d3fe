package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Status は冪等性レコードの状態
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Record は冪等キーと確定結果の対応
// キーは一意で、先に確保（pending）してから処理を実行する
type Record struct {
	Key         string
	Fingerprint string
	Status      Status
	Payload     []byte
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// IsCompleted は結果が保存済みかを返す
func (r *Record) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// Fingerprint はリクエスト内容のハッシュを返す
// 座席の順序と重複は結果に影響しない
func Fingerprint(layoutID, sessionID, orderRef string, seatUIDs []string) string {
	uids := make([]string, 0, len(seatUIDs))
	seen := make(map[string]bool, len(seatUIDs))
	for _, u := range seatUIDs {
		if !seen[u] {
			seen[u] = true
			uids = append(uids, u)
		}
	}
	sort.Strings(uids)

	h := sha256.New()
	for _, part := range []string{layoutID, sessionID, orderRef, strings.Join(uids, ",")} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
