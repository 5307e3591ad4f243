package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	"github.com/smallbiznis/loyalty/internal/pendingcredit/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentDrainsCreditOnce(t *testing.T) {
	conn, err := db.NewFileTest(filepath.Join(t.TempDir(), "drain.db"), 8)
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	f := newFixtureOn(t, conn, nil)
	ctx := context.Background()

	_, err = f.credits.Enqueue(ctx, domain.EnqueueRequest{OrderID: "ord-1", UserID: "u-1", Points: 40})
	require.NoError(t, err)
	_, err = f.credits.Enqueue(ctx, domain.EnqueueRequest{OrderID: "ord-2", UserID: "u-1", Points: 17})
	require.NoError(t, err)

	const workers = 8
	errs := make([]error, workers)
	results := make([]domain.DrainResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.credits.Drain(ctx, "u-1")
		}(i)
	}
	wg.Wait()

	applied := 0
	for i, err := range errs {
		if err != nil && !errors.Is(err, db.ErrConcurrencyConflict) {
			t.Fatalf("unexpected drain error: %v", err)
		}
		applied += results[i].Applied
	}
	assert.LessOrEqual(t, applied, 2)

	// losers of the race retry; whatever is left is applied exactly once
	final, err := f.credits.Drain(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, applied+final.Applied)

	var entries int64
	require.NoError(t, f.db.Model(&ledgerdomain.LedgerEntry{}).Where("user_id = ?", "u-1").Count(&entries).Error)
	assert.Equal(t, int64(2), entries)
	assert.Equal(t, int64(57), f.ledgerSum(t, "u-1"))
	assert.Equal(t, int64(57), f.points(t, "u-1"))

	var pending int64
	require.NoError(t, f.db.Model(&domain.PendingCredit{}).Count(&pending).Error)
	assert.Zero(t, pending)
}
