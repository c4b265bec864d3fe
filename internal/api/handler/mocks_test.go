package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-seating-engine/internal/application"
	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
)

// MockLayoutService はLayoutServiceInterfaceのモック
type MockLayoutService struct {
	mock.Mock
}

func (m *MockLayoutService) GetLayout(ctx context.Context, eventID string) (*application.LayoutView, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.LayoutView), args.Error(1)
}

func (m *MockLayoutService) Publish(ctx context.Context, input application.PublishInput) (*layout.Layout, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*layout.Layout), args.Error(1)
}

func (m *MockLayoutService) BlockSeats(ctx context.Context, layoutID string, seatUIDs []string) (int, error) {
	args := m.Called(ctx, layoutID, seatUIDs)
	return args.Int(0), args.Error(1)
}

func (m *MockLayoutService) UnblockSeats(ctx context.Context, layoutID string, seatUIDs []string) (int, error) {
	args := m.Called(ctx, layoutID, seatUIDs)
	return args.Int(0), args.Error(1)
}

func (m *MockLayoutService) ListBlocked(ctx context.Context, layoutID string) ([]string, error) {
	args := m.Called(ctx, layoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockAvailabilityService はAvailabilityServiceInterfaceのモック
type MockAvailabilityService struct {
	mock.Mock
}

func (m *MockAvailabilityService) ListSeats(ctx context.Context, layoutID string) (*application.SeatListing, error) {
	args := m.Called(ctx, layoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.SeatListing), args.Error(1)
}

// MockHoldService はHoldServiceInterfaceのモック
type MockHoldService struct {
	mock.Mock
}

func (m *MockHoldService) Hold(ctx context.Context, input application.HoldInput) (*application.HoldResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.HoldResult), args.Error(1)
}

func (m *MockHoldService) Release(ctx context.Context, input application.ReleaseInput) (int, error) {
	args := m.Called(ctx, input)
	return args.Int(0), args.Error(1)
}

func (m *MockHoldService) ListHolds(ctx context.Context, sessionID string) ([]application.HoldView, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]application.HoldView), args.Error(1)
}

func (m *MockHoldService) ExtendHolds(ctx context.Context, input application.ExtendInput) (*application.ExtendResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.ExtendResult), args.Error(1)
}

// MockConfirmationService はConfirmationServiceInterfaceのモック
type MockConfirmationService struct {
	mock.Mock
}

func (m *MockConfirmationService) Confirm(ctx context.Context, input application.ConfirmInput) (*application.ConfirmOutcome, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.ConfirmOutcome), args.Error(1)
}
