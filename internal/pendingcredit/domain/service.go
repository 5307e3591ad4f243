package domain

import (
	"context"
	"errors"
)

type EnqueueRequest struct {
	OrderID  string
	UserID   string
	GuestRef string
	Points   int64
}

type Service interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*PendingCredit, error)
	Apply(ctx context.Context, credit Credit) (ApplyOutcome, error)
	Drain(ctx context.Context, userID string) (DrainResult, error)
	BindGuest(ctx context.Context, userID string, guestRefs []string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]PendingCredit, error)
}

// DrainBatchSize bounds how many pending rows one Drain call processes.
const DrainBatchSize = 500

var (
	ErrMissingOwner    = errors.New("pending_credit_owner_required")
	ErrInvalidGuestRef = errors.New("invalid_guest_ref")
	ErrNegativePoints  = errors.New("invalid_points")
	// ErrNothingToCredit reports a zero-point order; nothing is stored.
	ErrNothingToCredit = errors.New("nothing_to_credit")
)
