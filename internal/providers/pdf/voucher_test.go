package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVoucher(t *testing.T) {
	p := New()
	r, err := p.GenerateVoucher(context.Background(), Voucher{
		RewardName:     "Free Iced Tea",
		RedemptionCode: "RWD-ABCD-EFGH",
		UserID:         "u-1",
		PointsSpent:    100,
		ClaimedAt:      time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestGenerateVoucherRequiresCode(t *testing.T) {
	_, err := New().GenerateVoucher(context.Background(), Voucher{RewardName: "x"})
	assert.ErrorIs(t, err, ErrMissingCode)
}
