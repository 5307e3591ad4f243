package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/internal/clock"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
	rewardrepo "github.com/smallbiznis/loyalty/internal/reward/repository"
	rewardservice "github.com/smallbiznis/loyalty/internal/reward/service"
	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const catalogYAML = `
rewards:
  - slug: free-iced-tea
    name: Free Iced Tea
    type: free_item
    points_required: 100
    metadata:
      sku: tea-01
  - slug: birthday-cake
    name: Birthday Slice
    type: birthday
    points_required: 0
    valid_until: "2026-12-31T00:00:00Z"
`

func newRewards(t *testing.T) rewarddomain.Service {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&rewarddomain.Reward{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	return rewardservice.New(rewardservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: rewardrepo.Provide(),
	})
}

func TestSeedRewardsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rewards := newRewards(t)

	path := filepath.Join(t.TempDir(), "rewards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	summary, err := SeedRewardsFile(ctx, rewards, path)
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 2}, summary)

	summary, err = SeedRewardsFile(ctx, rewards, path)
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 2}, summary)

	items, err := rewards.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	bySlug := map[string]rewarddomain.Reward{}
	for _, item := range items {
		bySlug[item.Slug] = item
	}
	assert.Equal(t, int64(100), bySlug["free-iced-tea"].PointsRequired)
	assert.Equal(t, "tea-01", bySlug["free-iced-tea"].Metadata["sku"])
	require.NotNil(t, bySlug["birthday-cake"].ValidUntil)
	assert.Equal(t, 2026, bySlug["birthday-cake"].ValidUntil.Year())
}

func TestParseCatalogRejectsUnknownFields(t *testing.T) {
	_, err := ParseCatalog(strings.NewReader("rewards:\n  - slug: x\n    price: 3\n"))
	assert.Error(t, err)

	catalog, err := ParseCatalog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, catalog.Rewards)
}

func TestSeedRewardsReportsBadEntry(t *testing.T) {
	rewards := newRewards(t)
	_, err := SeedRewards(context.Background(), rewards, Catalog{Rewards: []CatalogReward{
		{Slug: "bad", Name: "Bad", Type: "coupon", PointsRequired: 10},
	}})
	assert.ErrorIs(t, err, rewarddomain.ErrInvalidType)

	_, err = SeedRewards(context.Background(), rewards, Catalog{Rewards: []CatalogReward{
		{Slug: "late", Name: "Late", Type: "special", ValidUntil: "tomorrow"},
	}})
	assert.Error(t, err)
}
