package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

const timestampLayout = "02 Jan 2006 15:04 MST"

var ErrMissingCode = errors.New("voucher_missing_code")

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateVoucher(ctx context.Context, v Voucher) (io.Reader, error) {
	if strings.TrimSpace(v.RedemptionCode) == "" {
		return nil, ErrMissingCode
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc := v.Location
	if loc == nil {
		loc = time.UTC
	}
	store := strings.TrimSpace(v.StoreName)
	if store == "" {
		store = "Loyalty Rewards"
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A5).
		Build()
	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(12, store, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)
	m.AddRow(14,
		text.NewCol(12, v.RewardName, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)
	m.AddRow(60,
		col.New(3),
		code.NewQrCol(6, v.RedemptionCode, props.Rect{Center: true, Percent: 90}),
		col.New(3),
	)
	m.AddRow(12,
		text.NewCol(12, v.RedemptionCode, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)

	m.AddRow(8,
		text.NewCol(6, "Claimed", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(6, v.ClaimedAt.In(loc).Format(timestampLayout), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		text.NewCol(6, "Points spent", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(6, fmt.Sprintf("%d", v.PointsSpent), props.Text{Size: 9, Align: align.Right}),
	)
	if v.UsedAt != nil {
		m.AddRow(8,
			text.NewCol(6, "Redeemed", props.Text{Size: 9, Style: fontstyle.Bold}),
			text.NewCol(6, v.UsedAt.In(loc).Format(timestampLayout), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(12,
		text.NewCol(12, "Show this code to staff at checkout. Valid for one use.", props.Text{
			Size:  8,
			Top:   4,
			Align: align.Center,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
