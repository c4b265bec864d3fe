package application

import (
	"fmt"

	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
)

// normalizeSeatUIDs は重複を除いて順序を保ち、件数と長さを検証する
// max が 0 以下なら件数の上限は確認しない
func normalizeSeatUIDs(uids []string, max int, required bool) ([]string, error) {
	if required && len(uids) == 0 {
		return nil, fmt.Errorf("%w: seat_uids は1件以上必要です", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(uids))
	out := make([]string, 0, len(uids))
	for _, uid := range uids {
		if uid == "" || len(uid) > layout.MaxSeatUIDLength {
			return nil, fmt.Errorf("%w: seat_uid は1〜%d文字である必要があります", ErrInvalidInput, layout.MaxSeatUIDLength)
		}
		if seen[uid] {
			continue
		}
		seen[uid] = true
		out = append(out, uid)
	}
	if max > 0 && len(out) > max {
		return nil, fmt.Errorf("%w: 一度に指定できる座席は%d席までです", ErrInvalidInput, max)
	}
	return out, nil
}

func requireSession(sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	if len(sessionID) > 128 {
		return fmt.Errorf("%w: セッションIDが長すぎます", ErrInvalidInput)
	}
	return nil
}
