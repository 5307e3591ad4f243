package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	claimdomain "github.com/smallbiznis/loyalty/internal/claim/domain"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
)

// OrderCompleted is emitted by checkout. Points wins over OrderTotal when
// both are present; OrderTotal is in minor currency units.
type OrderCompleted struct {
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id,omitempty"`
	GuestRef   string `json:"guest_ref,omitempty"`
	Points     *int64 `json:"points,omitempty"`
	OrderTotal *int64 `json:"order_total,omitempty"`
}

type CreditOutcome string

const (
	CreditApplied  CreditOutcome = "applied"
	CreditSkipped  CreditOutcome = "skipped"
	CreditDeferred CreditOutcome = "deferred"
	CreditNoop     CreditOutcome = "noop"
)

type OrderCreditResult struct {
	Outcome CreditOutcome `json:"outcome"`
	Points  int64         `json:"points"`
}

type AuthenticatedResult struct {
	Bound   int   `json:"bound"`
	Applied int   `json:"applied"`
	Skipped int   `json:"skipped"`
	Balance int64 `json:"balance"`
}

// Adjustment is an admin correction. A repeated IdempotencyKey is not applied twice.
type Adjustment struct {
	UserID         string `json:"user_id"`
	Points         int64  `json:"points"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type AdjustmentResult struct {
	Entry     *ledgerdomain.LedgerEntry `json:"entry,omitempty"`
	Balance   int64                     `json:"balance"`
	Duplicate bool                      `json:"duplicate"`
}

type Service interface {
	OnOrderCompleted(ctx context.Context, event OrderCompleted) (OrderCreditResult, error)
	OnUserAuthenticated(ctx context.Context, userID string, guestRefs ...string) (AuthenticatedResult, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetHistory(ctx context.Context, userID string, limit int) ([]ledgerdomain.LedgerEntry, error)
	ListHistory(ctx context.Context, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error)
	GetDailyClaimStatus(ctx context.Context, userID string) (claimdomain.DailyStatus, error)
	ListAvailableRewards(ctx context.Context, userID string) ([]rewarddomain.Reward, error)
	ClaimReward(ctx context.Context, userID string, rewardID snowflake.ID) (claimdomain.ClaimResult, error)
	ListClaims(ctx context.Context, userID string, limit int) ([]claimdomain.ClaimedReward, error)
	Adjust(ctx context.Context, adj Adjustment) (AdjustmentResult, error)
	Reconcile(ctx context.Context, userID string) (balancedomain.ReconcileResult, error)
	VerifyBalance(ctx context.Context, userID string) (balancedomain.Verification, error)
}

var (
	ErrMissingPoints      = errors.New("points_or_order_total_required")
	ErrInvalidOrderTotal  = errors.New("invalid_order_total")
	ErrInvalidReason      = errors.New("invalid_adjustment_reason")
	ErrInvalidIdempotency = errors.New("invalid_idempotency_key")
)
