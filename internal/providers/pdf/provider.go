package pdf

import (
	"context"
	"io"
	"time"

	"go.uber.org/fx"
)

// Voucher is the printable proof of a claimed reward.
type Voucher struct {
	StoreName      string
	RewardName     string
	RewardType     string
	RedemptionCode string
	UserID         string
	PointsSpent    int64
	ClaimedAt      time.Time
	UsedAt         *time.Time
	Location       *time.Location
}

type Provider interface {
	GenerateVoucher(ctx context.Context, v Voucher) (io.Reader, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)
