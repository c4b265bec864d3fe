// Package keymutex はキー単位の排他ロックを提供する
// 同じキーを使う呼び出しだけが直列化され、異なるキーは互いにブロックしない
package keymutex

import (
	"sort"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyMutex はキーごとのミューテックス
// 使われていないキーのエントリは解放時に削除される
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*entry)}
}

// Lock はキーのロックを取得する
func (k *KeyMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock はキーのロックを解放する
func (k *KeyMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		k.mu.Unlock()
		panic("keymutex: unlock of unlocked key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// LockAll は複数キーをソート順に取得する（デッドロック防止）
// 返り値の関数で全て解放する
func (k *KeyMutex) LockAll(keys []string) func() {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	for _, key := range sorted {
		k.Lock(key)
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			k.Unlock(sorted[i])
		}
	}
}

// Len は現在保持されているキー数を返す
func (k *KeyMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
