package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/internal/clock"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  ledgerdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  ledgerdomain.Repository
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, req ledgerdomain.AppendRequest) (ledgerdomain.LedgerEntry, error) {
	userID, err := ledgerdomain.NormalizeUserID(req.UserID)
	if err != nil {
		return ledgerdomain.LedgerEntry{}, err
	}

	kind := ledgerdomain.EntryKind(strings.ToLower(strings.TrimSpace(string(req.Kind))))
	if err := ledgerdomain.ValidateDelta(kind, req.PointsDelta); err != nil {
		return ledgerdomain.LedgerEntry{}, err
	}

	entry := ledgerdomain.LedgerEntry{
		ID:          s.genID.Generate(),
		UserID:      userID,
		PointsDelta: req.PointsDelta,
		Kind:        kind,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   s.clock.Now().UTC(),
	}
	if strings.TrimSpace(req.OrderID) != "" {
		orderID, err := ledgerdomain.NormalizeOrderID(req.OrderID)
		if err != nil {
			return ledgerdomain.LedgerEntry{}, err
		}
		entry.OrderID = &orderID
	}
	if req.RewardID != 0 {
		rewardID := req.RewardID
		entry.RewardID = &rewardID
	}
	if key := strings.TrimSpace(req.DedupeKey); key != "" {
		if len(key) > 200 {
			return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidDedupeKey
		}
		entry.DedupeKey = &key
	}

	if err := s.repo.Insert(ctx, s.conn(tx), &entry); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrDuplicateEntry
		}
		return ledgerdomain.LedgerEntry{}, db.Classify("ledger.append", err)
	}

	s.log.Debug("ledger entry appended",
		zap.String("entry_id", entry.ID.String()),
		zap.String("kind", string(entry.Kind)),
		zap.Int64("points_delta", entry.PointsDelta),
	)
	return entry, nil
}

func (s *Service) ListByUser(ctx context.Context, tx *gorm.DB, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error) {
	userID, err := ledgerdomain.NormalizeUserID(req.UserID)
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = ledgerdomain.DefaultListLimit
	}
	if limit > ledgerdomain.MaxListLimit {
		limit = ledgerdomain.MaxListLimit
	}

	filter := ledgerdomain.ListFilter{Limit: limit + 1}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return ledgerdomain.ListResponse{}, err
		}
		before, err := cursor.CreatedAtTime()
		if err != nil {
			return ledgerdomain.ListResponse{}, err
		}
		beforeID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return ledgerdomain.ListResponse{}, pagination.ErrInvalidPageToken
		}
		filter.BeforeCreatedAt = &before
		filter.BeforeID = beforeID
	}

	items, err := s.repo.ListByUser(ctx, s.conn(tx), userID, filter)
	if err != nil {
		return ledgerdomain.ListResponse{}, db.Classify("ledger.list", err)
	}

	pageInfo := pagination.BuildCursorPageInfo(items, limit, func(entry *ledgerdomain.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{
			ID:        entry.ID.String(),
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	if len(items) > limit {
		items = items[:limit]
	}

	entries := make([]ledgerdomain.LedgerEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := ledgerdomain.ListResponse{Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) SumByUser(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return 0, err
	}
	total, err := s.repo.SumByUser(ctx, s.conn(tx), userID)
	if err != nil {
		return 0, db.Classify("ledger.sum", err)
	}
	return total, nil
}

func (s *Service) FindByDedupeKey(ctx context.Context, tx *gorm.DB, key string) (*ledgerdomain.LedgerEntry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ledgerdomain.ErrInvalidDedupeKey
	}
	entry, err := s.repo.FindByDedupeKey(ctx, s.conn(tx), key)
	if err != nil {
		return nil, db.Classify("ledger.find_by_dedupe_key", err)
	}
	return entry, nil
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
