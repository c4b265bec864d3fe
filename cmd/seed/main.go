// seed は座席表JSONを読み込んで公開する
//
//	go run ./cmd/seed -layout layout.json [-presold presold.json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seating-engine/internal/application"
	"github.com/sanosuguru/go-seating-engine/internal/config"
	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
)

func main() {
	layoutPath := flag.String("layout", "", "座席表JSONファイル")
	preSoldPath := flag.String("presold", "", "販売済み座席JSONファイル（seat_uid → 注文参照）")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	if *layoutPath == "" {
		logger.Fatal("-layout は必須です")
	}
	if err := run(cfg, *layoutPath, *preSoldPath); err != nil {
		logger.Fatal("座席表の公開に失敗しました", zap.Error(err))
	}
}

func run(cfg *config.Config, layoutPath, preSoldPath string) error {
	l := &layout.Layout{}
	if err := readJSON(layoutPath, l); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	preSold := map[string]string{}
	if preSoldPath != "" {
		if err := readJSON(preSoldPath, &preSold); err != nil {
			return err
		}
	}

	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
		return err
	}

	clk := clock.NewSystem()
	layouts := postgres.NewLayoutRepository(db)
	seats := postgres.NewSeatRepository(db)
	availability := application.NewAvailabilityService(layouts, seats, clk)
	svc := application.NewLayoutService(layouts, seats, availability, nil, clk)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	published, err := svc.Publish(ctx, application.PublishInput{Layout: l, PreSold: preSold})
	if err != nil {
		return err
	}
	fmt.Println(published.ID)
	return nil
}

func readJSON(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ファイル読み込みエラー: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("JSONパースエラー (%s): %w", path, err)
	}
	return nil
}
