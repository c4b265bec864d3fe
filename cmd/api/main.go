package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sanosuguru/go-seating-engine/internal/api/handler"
	"github.com/sanosuguru/go-seating-engine/internal/api/router"
	"github.com/sanosuguru/go-seating-engine/internal/application"
	"github.com/sanosuguru/go-seating-engine/internal/config"
	"github.com/sanosuguru/go-seating-engine/internal/domain/idempotency"
	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/infrastructure/memory"
	"github.com/sanosuguru/go-seating-engine/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-seating-engine/internal/infrastructure/rabbitmq"
	redisinfra "github.com/sanosuguru/go-seating-engine/internal/infrastructure/redis"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/metrics"
	"github.com/sanosuguru/go-seating-engine/internal/worker"
)

// stores は選択したストア実装
type stores struct {
	layouts layout.Repository
	seats   seat.Repository
	records idempotency.Repository
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Fatal("サーバー異常終了", zap.Error(err))
	}
	logger.Info("サーバーが正常にシャットダウンしました")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.Pinger{}

	st, closeStore, err := openStores(cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.Init()
	clk := clock.NewSystem()

	var (
		cache     application.SnapshotCache
		locker    worker.Locker
		publisher application.SoldPublisher
	)
	if cfg.Redis.Enabled() {
		rc := redisinfra.NewClient(&cfg.Redis)
		defer rc.Close()
		if err := redisinfra.Ping(ctx, rc); err != nil {
			return err
		}
		checks["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, rc) }
		cache = redisinfra.NewSeatSnapshotCache(rc)
		locker = redisinfra.NewLockManager(rc)
		logger.Info("Redisに接続しました", zap.String("addr", cfg.Redis.Addr()))
	}
	if cfg.AMQP.URL != "" {
		p := rabbitmq.NewSoldPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		defer p.Close()
		publisher = p
	}

	availability := application.NewAvailabilityService(st.layouts, st.seats, clk,
		application.WithSnapshotCache(cache, cfg.Cache.SnapshotTTL))
	layoutService := application.NewLayoutService(st.layouts, st.seats, availability, cache, clk)
	holdService := application.NewHoldService(st.layouts, st.seats, clk,
		application.WithHoldTTL(cfg.Hold.TTL),
		application.WithCheckoutTTL(cfg.Hold.CheckoutTTL),
		application.WithMaxSeats(cfg.Hold.MaxSeats),
		application.WithExtendOnRehold(cfg.Hold.ExtendOnRehold),
		application.WithHoldCache(cache),
		application.WithHoldMetrics(m),
	)
	confirmOpts := []application.ConfirmationOption{
		application.WithConfirmCache(cache),
		application.WithConfirmMetrics(m),
	}
	if publisher != nil {
		confirmOpts = append(confirmOpts, application.WithSoldPublisher(publisher))
	}
	confirmService := application.NewConfirmationService(st.layouts, st.seats, st.records, clk, confirmOpts...)

	sweeperOpts := []worker.SweeperOption{
		worker.WithBatchSize(cfg.Sweeper.BatchSize),
		worker.WithIdempotencyPruner(st.records, cfg.Idempotency.Retention),
	}
	if locker != nil {
		sweeperOpts = append(sweeperOpts, worker.WithLocker(locker, cfg.Sweeper.LockTTL))
	}
	sweeper := worker.NewExpiredHoldSweeper(holdService, cfg.Sweeper.Interval, sweeperOpts...)

	e := router.New(router.Handlers{
		Layout:  handler.NewLayoutHandler(layoutService),
		Seat:    handler.NewSeatHandler(availability),
		Hold:    handler.NewHoldHandler(holdService),
		Confirm: handler.NewConfirmHandler(confirmService),
		Health:  handler.NewHealthHandler(checks),
	}, router.Options{
		Metrics:     m,
		Admin:       cfg.Admin,
		MetricsAuth: cfg.Metrics,
		RateLimit:   cfg.RateLimit,
	})
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("サーバー起動", zap.String("port", cfg.Server.Port), zap.String("store", cfg.StoreDriver))
		if err := e.Start(fmt.Sprintf(":%s", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("サーバー起動エラー: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("サーバーをシャットダウンしています...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("サーバーシャットダウンエラー: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// openStores は STORE_DRIVER に応じてストアを開く
func openStores(cfg *config.Config, checks map[string]handler.Pinger) (*stores, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("メモリストアで起動します（再起動で状態は失われます）")
		return &stores{
			layouts: memory.NewLayoutRepository(),
			seats:   memory.NewSeatRepository(),
			records: memory.NewIdempotencyRepository(),
		}, func() {}, nil
	case config.StoreDriverPostgres:
		db, err := postgres.NewConnection(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		version, err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("マイグレーション完了", zap.Uint("version", version))
		checks["database"] = func(ctx context.Context) error { return postgres.Ping(ctx, db) }
		return postgresStores(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未対応の STORE_DRIVER です: %s", cfg.StoreDriver)
	}
}

func postgresStores(db *sqlx.DB) *stores {
	return &stores{
		layouts: postgres.NewLayoutRepository(db),
		seats:   postgres.NewSeatRepository(db),
		records: postgres.NewIdempotencyRepository(db),
	}
}
