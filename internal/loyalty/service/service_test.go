package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	balancerepo "github.com/smallbiznis/loyalty/internal/balance/repository"
	balanceservice "github.com/smallbiznis/loyalty/internal/balance/service"
	claimdomain "github.com/smallbiznis/loyalty/internal/claim/domain"
	claimrepo "github.com/smallbiznis/loyalty/internal/claim/repository"
	claimservice "github.com/smallbiznis/loyalty/internal/claim/service"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/loyalty/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/loyalty/internal/ledger/service"
	"github.com/smallbiznis/loyalty/internal/loyalty/domain"
	pendingdomain "github.com/smallbiznis/loyalty/internal/pendingcredit/domain"
	pendingrepo "github.com/smallbiznis/loyalty/internal/pendingcredit/repository"
	pendingservice "github.com/smallbiznis/loyalty/internal/pendingcredit/service"
	profiledomain "github.com/smallbiznis/loyalty/internal/profile/domain"
	profilerepo "github.com/smallbiznis/loyalty/internal/profile/repository"
	profileservice "github.com/smallbiznis/loyalty/internal/profile/service"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
	rewardrepo "github.com/smallbiznis/loyalty/internal/reward/repository"
	rewardservice "github.com/smallbiznis/loyalty/internal/reward/service"
	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc      domain.Service
	ledger   ledgerdomain.Service
	rewards  rewarddomain.Service
	profiles profiledomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&ledgerdomain.LedgerEntry{},
		&balancedomain.Balance{},
		&rewarddomain.Reward{},
		&claimdomain.ClaimedReward{},
		&pendingdomain.PendingCredit{},
		&profiledomain.UserProfile{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	cfg := config.NewStaticLoyaltyConfig(config.DefaultLoyaltyConfig().WithLocation(time.UTC))
	log := zap.NewNop()

	ledger := ledgerservice.NewService(ledgerservice.Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: ledgerrepo.Provide()})
	balance := balanceservice.New(balanceservice.Params{DB: conn, Log: log, Clock: clk, Repo: balancerepo.Provide(), Ledger: ledger})
	rewards := rewardservice.New(rewardservice.Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: rewardrepo.Provide()})
	cRepo := claimrepo.Provide()
	claims := claimservice.New(claimservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Config: cfg, Repo: cRepo,
		Limiter: claimservice.NewDailyLimiter(conn, cRepo, clk, cfg),
		Ledger:  ledger, Balance: balance, Rewards: rewards,
	})
	credits := pendingservice.New(pendingservice.Params{DB: conn, Log: log, Clock: clk, Repo: pendingrepo.Provide(), Ledger: ledger, Balance: balance})
	profiles := profileservice.New(profileservice.Params{DB: conn, Log: log, Clock: clk, Repo: profilerepo.Provide()})

	svc := New(Params{
		DB: conn, Log: log, Config: cfg,
		Ledger: ledger, Balance: balance, Rewards: rewards, Claims: claims, Credits: credits, Profiles: profiles,
	})
	return fixture{svc: svc, ledger: ledger, rewards: rewards, profiles: profiles}
}

func int64Ptr(v int64) *int64 { return &v }

func TestEarnClaimAndRejectScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 120.00 at one point per unit
	credit, err := f.svc.OnOrderCompleted(ctx, domain.OrderCompleted{OrderID: "ord-1", UserID: "u-1", OrderTotal: int64Ptr(12000)})
	require.NoError(t, err)
	assert.Equal(t, domain.CreditApplied, credit.Outcome)
	assert.Equal(t, int64(120), credit.Points)

	mainCourse, err := f.rewards.Create(ctx, rewarddomain.CreateRewardRequest{Name: "Main Course", Type: rewarddomain.TypeFreeItem, PointsRequired: 100})
	require.NoError(t, err)
	drink, err := f.rewards.Create(ctx, rewarddomain.CreateRewardRequest{Name: "Drink", Type: rewarddomain.TypeFreeItem, PointsRequired: 50})
	require.NoError(t, err)

	available, err := f.svc.ListAvailableRewards(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, available, 2)

	result, err := f.svc.ClaimReward(ctx, "u-1", mainCourse.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RedemptionCode)

	balance, err := f.svc.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)

	_, err = f.svc.ClaimReward(ctx, "u-1", drink.ID)
	assert.ErrorIs(t, err, claimdomain.ErrInsufficientPoints)

	balance, err = f.svc.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)

	history, err := f.svc.GetHistory(ctx, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledgerdomain.KindRedeem, history[0].Kind)
	assert.Equal(t, int64(-100), history[0].PointsDelta)

	status, err := f.svc.GetDailyClaimStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, claimdomain.DailyStatus{Used: 1, Remaining: 2, Limit: 3}, status)

	profile, err := f.profiles.Get(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, int64(20), profile.LoyaltyPoints)

	verification, err := f.svc.VerifyBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, verification.Consistent())
}

func TestOrderCompletedTwiceCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := domain.OrderCompleted{OrderID: "ord-9", UserID: "u-1", Points: int64Ptr(45)}
	first, err := f.svc.OnOrderCompleted(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, domain.CreditApplied, first.Outcome)

	second, err := f.svc.OnOrderCompleted(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, domain.CreditSkipped, second.Outcome)

	balance, err := f.svc.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(45), balance)
}

func TestOrderCompletedValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.OnOrderCompleted(ctx, domain.OrderCompleted{OrderID: "ord-1", UserID: "u-1"})
	assert.ErrorIs(t, err, domain.ErrMissingPoints)

	_, err = f.svc.OnOrderCompleted(ctx, domain.OrderCompleted{OrderID: "ord-1", UserID: "u-1", OrderTotal: int64Ptr(-5)})
	assert.ErrorIs(t, err, domain.ErrInvalidOrderTotal)

	_, err = f.svc.OnOrderCompleted(ctx, domain.OrderCompleted{OrderID: "ord-1", UserID: "u-1", Points: int64Ptr(-5)})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidPoints)

	_, err = f.svc.OnOrderCompleted(ctx, domain.OrderCompleted{OrderID: "ord-1", Points: int64Ptr(5)})
	assert.ErrorIs(t, err, pendingdomain.ErrMissingOwner)

	// 0.99 earns nothing
	result, err := f.svc.OnOrderCompleted(ctx, domain.OrderCompleted{OrderID: "ord-2", UserID: "u-1", OrderTotal: int64Ptr(99)})
	require.NoError(t, err)
	assert.Equal(t, domain.CreditNoop, result.Outcome)

	result, err = f.svc.OnOrderCompleted(ctx, domain.OrderCompleted{OrderID: "ord-3", GuestRef: "guest-1", Points: int64Ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, domain.CreditNoop, result.Outcome)
}

func TestGuestOrderThenAuthentication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deferred, err := f.svc.OnOrderCompleted(ctx, domain.OrderCompleted{OrderID: "ord-1", GuestRef: "guest-77", Points: int64Ptr(60)})
	require.NoError(t, err)
	assert.Equal(t, domain.CreditDeferred, deferred.Outcome)

	balance, err := f.svc.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.Zero(t, balance)

	auth, err := f.svc.OnUserAuthenticated(ctx, "u-1", "guest-77")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthenticatedResult{Bound: 1, Applied: 1, Skipped: 0, Balance: 60}, auth)

	auth, err = f.svc.OnUserAuthenticated(ctx, "u-1", "guest-77")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthenticatedResult{Bound: 0, Applied: 0, Skipped: 0, Balance: 60}, auth)
}

func TestAdjustIdempotentAndGuarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Adjust(ctx, domain.Adjustment{UserID: "u-1", Points: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidReason)

	_, err = f.svc.Adjust(ctx, domain.Adjustment{UserID: "u-1", Points: -10, Reason: "typo"})
	assert.ErrorIs(t, err, balancedomain.ErrInsufficientPoints)

	adj := domain.Adjustment{UserID: "u-1", Points: 25, Reason: "goodwill", IdempotencyKey: "ticket-4"}
	first, err := f.svc.Adjust(ctx, adj)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, int64(25), first.Balance)

	second, err := f.svc.Adjust(ctx, adj)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, int64(25), second.Balance)
	require.NotNil(t, second.Entry)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	total, err := f.ledger.SumByUser(ctx, nil, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)

	result, err := f.svc.Reconcile(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, result.Repaired)
}

func TestGetBalanceReconcilesMissingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Append(ctx, nil, ledgerdomain.AppendRequest{UserID: "u-1", Kind: ledgerdomain.KindEarn, PointsDelta: 33})
	require.NoError(t, err)

	balance, err := f.svc.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(33), balance)
}
