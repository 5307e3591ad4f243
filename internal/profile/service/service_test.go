package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/loyalty/internal/clock"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	"github.com/smallbiznis/loyalty/internal/profile/domain"
	"github.com/smallbiznis/loyalty/internal/profile/repository"
	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMirrorUpsertsProfile(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.UserProfile{}))

	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	svc := New(Params{DB: conn, Log: zap.NewNop(), Clock: clk, Repo: repository.Provide()})
	ctx := context.Background()

	missing, err := svc.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, svc.Mirror(ctx, " u-1 ", 40))
	clk.Advance(time.Minute)
	require.NoError(t, svc.Mirror(ctx, "u-1", 15))

	got, err := svc.Get(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(15), got.LoyaltyPoints)
	assert.True(t, got.UpdatedAt.Equal(clk.Now()))

	var count int64
	require.NoError(t, conn.Model(&domain.UserProfile{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMirrorRejectsBlankUser(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	svc := New(Params{DB: conn, Log: zap.NewNop(), Clock: clock.NewFakeClock(time.Now()), Repo: repository.Provide()})

	assert.ErrorIs(t, svc.Mirror(context.Background(), "  ", 1), ledgerdomain.ErrInvalidUserID)
	_, err = svc.Get(context.Background(), "")
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidUserID)
}
