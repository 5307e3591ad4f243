package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	balancerepo "github.com/smallbiznis/loyalty/internal/balance/repository"
	balanceservice "github.com/smallbiznis/loyalty/internal/balance/service"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/loyalty/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/loyalty/internal/ledger/service"
	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSweeper(t *testing.T) (*Sweeper, ledgerdomain.Service, balancedomain.Service) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerdomain.LedgerEntry{}, &balancedomain.Balance{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))

	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: ledgerrepo.Provide(),
	})
	balance := balanceservice.New(balanceservice.Params{
		DB: conn, Log: zap.NewNop(), Clock: clk, Repo: balancerepo.Provide(), Ledger: ledger,
	})

	s, err := New(Params{Config: config.Config{}, Log: zap.NewNop(), Clock: clk, Balance: balance})
	require.NoError(t, err)
	return s, ledger, balance
}

func earn(t *testing.T, ledger ledgerdomain.Service, userID string, points int64) {
	t.Helper()
	_, err := ledger.Append(context.Background(), nil, ledgerdomain.AppendRequest{
		UserID: userID, Kind: ledgerdomain.KindEarn, PointsDelta: points,
	})
	require.NoError(t, err)
}

func TestSweepRepairsDriftedBalances(t *testing.T) {
	ctx := context.Background()
	s, ledger, balance := newSweeper(t)

	earn(t, ledger, "u-missing", 50)

	earn(t, ledger, "u-ok", 30)
	require.NoError(t, balance.EnsureRecord(ctx, nil, "u-ok"))

	earn(t, ledger, "u-drift", 10)
	require.NoError(t, balance.EnsureRecord(ctx, nil, "u-drift"))
	_, err := balance.ApplyDelta(ctx, nil, "u-drift", 5)
	require.NoError(t, err)

	res, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 2, res.Repaired)
	assert.Zero(t, res.Failed)

	for user, want := range map[string]int64{"u-missing": 50, "u-ok": 30, "u-drift": 10} {
		v, err := balance.Verify(ctx, user)
		require.NoError(t, err)
		assert.True(t, v.Consistent(), user)
		assert.Equal(t, want, v.Cached, user)
	}

	res, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}

type failingBalance struct {
	balancedomain.Service
}

func (failingBalance) FindDrifted(context.Context, int) ([]string, error) {
	return nil, errors.New("boom")
}

func TestSweepPropagatesScanError(t *testing.T) {
	s, _, _ := newSweeper(t)
	s.balance = failingBalance{}

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	s, _, _ := newSweeper(t)
	assert.Equal(t, defaultBatchSize, s.batch)
	assert.Equal(t, defaultLockTTL, s.lockTTL)

	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
