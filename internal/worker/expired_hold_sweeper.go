package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-seating-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
)

const (
	sweepLockKey       = "worker:expired-hold-sweeper"
	defaultBatchSize   = 500
	defaultLockTTL     = 30 * time.Second
	defaultPruneEvery  = time.Hour
	maxBatchesPerSweep = 100
)

// HoldExpirer は期限切れホールドを回収するインターフェース
type HoldExpirer interface {
	ExpireHolds(ctx context.Context, limit int) (int, error)
}

// Locker は複数インスタンス間でスイープを直列化する
// 取得できなかった場合は fn を実行せず false を返す
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// IdempotencyPruner は古い冪等キーを削除する
type IdempotencyPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// ExpiredHoldSweeper は期限切れホールドを定期的に available に戻すワーカー
// 読み出し側は遅延失効で正しい状態を返すため、このワーカーはストアの掃除のみを担う
type ExpiredHoldSweeper struct {
	expirer   HoldExpirer
	interval  time.Duration
	batchSize int
	locker    Locker
	lockTTL   time.Duration
	pruner    IdempotencyPruner
	retention time.Duration
	clock     clock.Clock
	lastPrune time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
}

type SweeperOption func(*ExpiredHoldSweeper)

// WithBatchSize は1回の回収件数の上限を設定する
func WithBatchSize(n int) SweeperOption {
	return func(s *ExpiredHoldSweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLocker は分散ロックを設定する
func WithLocker(l Locker, ttl time.Duration) SweeperOption {
	return func(s *ExpiredHoldSweeper) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithIdempotencyPruner は retention より古い冪等キーの削除を有効にする
func WithIdempotencyPruner(p IdempotencyPruner, retention time.Duration) SweeperOption {
	return func(s *ExpiredHoldSweeper) {
		if retention > 0 {
			s.pruner = p
			s.retention = retention
		}
	}
}

// WithSweeperClock は時計を差し替える
func WithSweeperClock(c clock.Clock) SweeperOption {
	return func(s *ExpiredHoldSweeper) { s.clock = c }
}

// NewExpiredHoldSweeper は新しいスイーパーを作成
func NewExpiredHoldSweeper(expirer HoldExpirer, interval time.Duration, opts ...SweeperOption) *ExpiredHoldSweeper {
	s := &ExpiredHoldSweeper{
		expirer:   expirer,
		interval:  interval,
		batchSize: defaultBatchSize,
		lockTTL:   defaultLockTTL,
		clock:     clock.NewSystem(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start はスイーパーを開始（ctx のキャンセルか Stop まで戻らない）
func (s *ExpiredHoldSweeper) Start(ctx context.Context) {
	logger.Info("期限切れホールドスイーパー開始",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize),
		zap.Bool("distributed_lock", s.locker != nil),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れホールドスイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("期限切れホールドスイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop はスイーパーを停止
func (s *ExpiredHoldSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *ExpiredHoldSweeper) tick(ctx context.Context) {
	if s.locker == nil {
		s.run(ctx)
		return
	}
	acquired, err := s.locker.WithLock(ctx, sweepLockKey, s.lockTTL, func(ctx context.Context) error {
		s.run(ctx)
		return nil
	})
	if err != nil {
		logger.Warn("スイーパーのロック取得に失敗", zap.Error(err))
		return
	}
	if !acquired {
		logger.Debug("他のインスタンスがスイープ中")
	}
}

func (s *ExpiredHoldSweeper) run(ctx context.Context) {
	s.sweep(ctx)
	s.prune(ctx)
}

// sweep はバッチが埋まらなくなるまで回収を繰り返す
func (s *ExpiredHoldSweeper) sweep(ctx context.Context) int {
	log := logger.Get()
	total := 0
	for i := 0; i < maxBatchesPerSweep; i++ {
		if ctx.Err() != nil {
			break
		}
		n, err := s.expirer.ExpireHolds(ctx, s.batchSize)
		if err != nil {
			log.Error("期限切れホールドの回収失敗", zap.Error(err))
			break
		}
		total += n
		if n < s.batchSize {
			break
		}
	}

	if total > 0 {
		log.Info("期限切れホールドを回収", zap.Int("count", total))
	} else {
		log.Debug("期限切れホールドなし")
	}
	return total
}

func (s *ExpiredHoldSweeper) prune(ctx context.Context) {
	if s.pruner == nil {
		return
	}
	now := s.clock.Now()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < defaultPruneEvery {
		return
	}
	n, err := s.pruner.PruneOlderThan(ctx, now.Add(-s.retention))
	if err != nil {
		logger.Error("冪等キーの削除失敗", zap.Error(err))
		return
	}
	s.lastPrune = now
	if n > 0 {
		logger.Info("古い冪等キーを削除", zap.Int("count", n))
	}
}
