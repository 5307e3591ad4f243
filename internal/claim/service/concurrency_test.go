package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/loyalty/internal/claim/domain"
	"github.com/smallbiznis/loyalty/internal/config"
	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentClaimsRespectDailyLimit(t *testing.T) {
	conn, err := db.NewFileTest(filepath.Join(t.TempDir(), "claims.db"), 8)
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	f := newFixtureOn(t, conn, time.UTC, morning)
	ctx := context.Background()
	f.earn(t, "u-1", 1000)
	latte := f.reward(t, "Latte", 10)

	const workers = 10
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: latte.ID})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrDailyLimitExceeded), errors.Is(err, db.ErrConcurrencyConflict):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	assert.LessOrEqual(t, succeeded, config.DefaultDailyClaimLimit)
	assert.Equal(t, int64(succeeded), f.countClaims(t))

	// top up to the limit sequentially; the next claim must be rejected
	for i := succeeded; i < config.DefaultDailyClaimLimit; i++ {
		_, err := f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: latte.ID})
		require.NoError(t, err)
	}
	_, err = f.claims.Claim(ctx, domain.ClaimRequest{UserID: "u-1", RewardID: latte.ID})
	assert.ErrorIs(t, err, domain.ErrDailyLimitExceeded)
	assert.Equal(t, int64(config.DefaultDailyClaimLimit), f.countClaims(t))

	total, err := f.ledger.SumByUser(ctx, nil, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000-10*config.DefaultDailyClaimLimit), total)
	assert.Equal(t, total, f.points(t, "u-1"))
}
