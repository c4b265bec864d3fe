package handler

import (
	"context"

	"github.com/sanosuguru/go-seating-engine/internal/application"
	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
)

// LayoutServiceInterface は座席表サービスのインターフェース
type LayoutServiceInterface interface {
	GetLayout(ctx context.Context, eventID string) (*application.LayoutView, error)
	Publish(ctx context.Context, input application.PublishInput) (*layout.Layout, error)
	BlockSeats(ctx context.Context, layoutID string, seatUIDs []string) (int, error)
	UnblockSeats(ctx context.Context, layoutID string, seatUIDs []string) (int, error)
	ListBlocked(ctx context.Context, layoutID string) ([]string, error)
}

// AvailabilityServiceInterface は空き状況サービスのインターフェース
type AvailabilityServiceInterface interface {
	ListSeats(ctx context.Context, layoutID string) (*application.SeatListing, error)
}

// HoldServiceInterface はホールドサービスのインターフェース
type HoldServiceInterface interface {
	Hold(ctx context.Context, input application.HoldInput) (*application.HoldResult, error)
	Release(ctx context.Context, input application.ReleaseInput) (int, error)
	ListHolds(ctx context.Context, sessionID string) ([]application.HoldView, error)
	ExtendHolds(ctx context.Context, input application.ExtendInput) (*application.ExtendResult, error)
}

// ConfirmationServiceInterface は購入確定サービスのインターフェース
type ConfirmationServiceInterface interface {
	Confirm(ctx context.Context, input application.ConfirmInput) (*application.ConfirmOutcome, error)
}
