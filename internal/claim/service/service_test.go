package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	balancerepo "github.com/smallbiznis/loyalty/internal/balance/repository"
	balanceservice "github.com/smallbiznis/loyalty/internal/balance/service"
	"github.com/smallbiznis/loyalty/internal/claim/domain"
	"github.com/smallbiznis/loyalty/internal/claim/repository"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/loyalty/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/loyalty/internal/ledger/service"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
	rewardrepo "github.com/smallbiznis/loyalty/internal/reward/repository"
	rewardservice "github.com/smallbiznis/loyalty/internal/reward/service"
	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var codePattern = regexp.MustCompile(`^RWD-[ABCDEFGHJKMNPQRSTUVWXYZ2-9]{4}-[ABCDEFGHJKMNPQRSTUVWXYZ2-9]{4}$`)

type fixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	ledger  ledgerdomain.Service
	balance balancedomain.Service
	rewards rewarddomain.Service
	claims  *Service
}

func newFixture(t *testing.T, loc *time.Location, start time.Time) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	return newFixtureOn(t, conn, loc, start)
}

func newFixtureOn(t *testing.T, conn *gorm.DB, loc *time.Location, start time.Time) fixture {
	t.Helper()

	require.NoError(t, conn.AutoMigrate(
		&ledgerdomain.LedgerEntry{},
		&balancedomain.Balance{},
		&rewarddomain.Reward{},
		&domain.ClaimedReward{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(start)
	cfg := config.NewStaticLoyaltyConfig(config.DefaultLoyaltyConfig().WithLocation(loc))

	log := zap.NewNop()
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: ledgerrepo.Provide()})
	balance := balanceservice.New(balanceservice.Params{DB: conn, Log: log, Clock: clk, Repo: balancerepo.Provide(), Ledger: ledger})
	rewards := rewardservice.New(rewardservice.Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: rewardrepo.Provide()})
	repo := repository.Provide()

	svc := New(Params{
		DB:      conn,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Config:  cfg,
		Repo:    repo,
		Limiter: NewDailyLimiter(conn, repo, clk, cfg),
		Ledger:  ledger,
		Balance: balance,
		Rewards: rewards,
	}).(*Service)

	return fixture{db: conn, clock: clk, ledger: ledger, balance: balance, rewards: rewards, claims: svc}
}

func (f fixture) earn(t *testing.T, userID string, points int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.balance.EnsureRecord(ctx, nil, userID))
	_, err := f.ledger.Append(ctx, nil, ledgerdomain.AppendRequest{UserID: userID, Kind: ledgerdomain.KindEarn, PointsDelta: points})
	require.NoError(t, err)
	_, err = f.balance.ApplyDelta(ctx, nil, userID, points)
	require.NoError(t, err)
}

func (f fixture) reward(t *testing.T, name string, points int64) rewarddomain.Reward {
	t.Helper()
	r, err := f.rewards.Create(context.Background(), rewarddomain.CreateRewardRequest{Name: name, Type: rewarddomain.TypeFreeItem, PointsRequired: points})
	require.NoError(t, err)
	return r
}

func (f fixture) points(t *testing.T, userID string) int64 {
	t.Helper()
	item, err := f.balance.Get(context.Background(), nil, userID)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item.Points
}

func (f fixture) countClaims(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&domain.ClaimedReward{}).Count(&count).Error)
	return count
}

var morning = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestClaimExampleScenario(t *testing.T) {
	f := newFixture(t, time.UTC, morning)
	ctx := context.Background()

	f.earn(t, "u-1", 120)
	big := f.reward(t, "Free Main Course", 100)
	small := f.reward(t, "Free Drink", 50)

	result, err := f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: big.ID})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Regexp(t, codePattern, result.RedemptionCode)
	assert.Equal(t, int64(100), result.PointsSpent)
	assert.Equal(t, int64(20), result.Balance)
	assert.Equal(t, int64(20), f.points(t, "u-1"))

	_, err = f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: small.ID})
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)
	assert.Equal(t, int64(20), f.points(t, "u-1"))

	total, err := f.ledger.SumByUser(ctx, nil, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)
	assert.Equal(t, int64(1), f.countClaims(t))
}

func TestClaimRejectsUnknownAndExpired(t *testing.T) {
	f := newFixture(t, time.UTC, morning)
	ctx := context.Background()

	f.earn(t, "u-1", 500)
	reward := f.reward(t, "Old Promo", 10)

	_, err := f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: reward.ID + 99})
	assert.ErrorIs(t, err, domain.ErrRewardNotFound)

	_, err = f.rewards.Expire(ctx, reward.ID)
	require.NoError(t, err)
	_, err = f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: reward.ID})
	assert.ErrorIs(t, err, domain.ErrRewardExpired)

	assert.Equal(t, int64(500), f.points(t, "u-1"))
	assert.Zero(t, f.countClaims(t))

	_, err = f.claims.Claim(ctx, domain.ClaimRequest{UserID: "", RewardID: reward.ID})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidUserID)
}

func TestDailyLimitAndRollover(t *testing.T) {
	f := newFixture(t, time.UTC, morning)
	ctx := context.Background()

	free := f.reward(t, "Birthday Candle", 0)
	codes := map[string]struct{}{}
	for i := 0; i < config.DefaultDailyClaimLimit; i++ {
		result, err := f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: free.ID})
		require.NoError(t, err)
		codes[result.RedemptionCode] = struct{}{}
	}
	assert.Len(t, codes, config.DefaultDailyClaimLimit)

	status, err := f.claims.DailyStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DailyStatus{Used: 3, Remaining: 0, Limit: 3}, status)

	_, err = f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: free.ID})
	assert.ErrorIs(t, err, domain.ErrDailyLimitExceeded)

	// another user is unaffected
	_, err = f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-2", RewardID: free.ID})
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 5, 5, 0, 0, 1, 0, time.UTC))
	status, err = f.claims.DailyStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, status.Remaining)

	_, err = f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: free.ID})
	require.NoError(t, err)

	// free claims still write a zero-delta redeem entry
	total, err := f.ledger.SumByUser(ctx, nil, "u-1")
	require.NoError(t, err)
	assert.Zero(t, total)
	history, err := f.ledger.ListByUser(ctx, nil, ledgerdomain.ListRequest{UserID: "u-1", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, history.Entries, 4)
}

func TestDailyWindowFollowsBusinessTimezone(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	// 23:30 local
	f := newFixture(t, wib, time.Date(2026, 5, 4, 16, 30, 0, 0, time.UTC))
	ctx := context.Background()

	free := f.reward(t, "Late Snack", 0)
	for i := 0; i < 3; i++ {
		_, err := f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: free.ID})
		require.NoError(t, err)
	}
	_, err := f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: free.ID})
	assert.ErrorIs(t, err, domain.ErrDailyLimitExceeded)

	// 00:30 local, same UTC date
	f.clock.Advance(time.Hour)
	_, err = f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: free.ID})
	require.NoError(t, err)
}

func TestDayWindow(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	from, to := DayWindow(time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC), wib)
	assert.Equal(t, time.Date(2026, 5, 4, 17, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 5, 5, 17, 0, 0, 0, time.UTC), to)
}

func TestIssueCodeRetriesOnCollision(t *testing.T) {
	f := newFixture(t, time.UTC, morning)
	ctx := context.Background()
	free := f.reward(t, "Water", 0)

	sequence := []string{"RWD-AAAA-AAAA", "RWD-AAAA-AAAA", "RWD-BBBB-BBBB"}
	f.claims.newCode = func(string) (string, error) {
		code := sequence[0]
		sequence = sequence[1:]
		return code, nil
	}

	first, err := f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: free.ID})
	require.NoError(t, err)
	assert.Equal(t, "RWD-AAAA-AAAA", first.RedemptionCode)

	second, err := f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: free.ID})
	require.NoError(t, err)
	assert.Equal(t, "RWD-BBBB-BBBB", second.RedemptionCode)
}

func TestIssueCodeExhaustedRollsBack(t *testing.T) {
	f := newFixture(t, time.UTC, morning)
	ctx := context.Background()
	f.earn(t, "u-1", 100)
	paid := f.reward(t, "Pie", 40)

	f.claims.newCode = func(string) (string, error) { return "RWD-CCCC-CCCC", nil }
	_, err := f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: paid.ID})
	require.NoError(t, err)

	_, err = f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: paid.ID})
	assert.ErrorIs(t, err, domain.ErrCodeSpaceExhausted)

	assert.Equal(t, int64(60), f.points(t, "u-1"))
	total, err := f.ledger.SumByUser(ctx, nil, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), total)
	assert.Equal(t, int64(1), f.countClaims(t))
}

func TestMarkUsedOnce(t *testing.T) {
	f := newFixture(t, time.UTC, morning)
	ctx := context.Background()
	free := f.reward(t, "Bread", 0)

	result, err := f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: free.ID})
	require.NoError(t, err)

	used, err := f.claims.MarkUsed(ctx, " "+result.RedemptionCode+" ")
	require.NoError(t, err)
	assert.True(t, used.IsUsed)
	require.NotNil(t, used.UsedAt)

	_, err = f.claims.MarkUsed(ctx, result.RedemptionCode)
	assert.ErrorIs(t, err, domain.ErrAlreadyUsed)

	_, err = f.claims.MarkUsed(ctx, "RWD-ZZZZ-ZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	claims, err := f.claims.ListByUser(ctx, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, result.RedemptionCode, claims[0].RedemptionCode)
}

func TestGenerateCodeFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode("RWD")
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
	}
}
