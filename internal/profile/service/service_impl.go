package service

import (
	"context"

	"github.com/smallbiznis/loyalty/internal/clock"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	"github.com/smallbiznis/loyalty/internal/profile/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("profile.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Mirror(ctx context.Context, userID string, points int64) error {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return err
	}
	profile := domain.UserProfile{
		UserID:        userID,
		LoyaltyPoints: points,
		UpdatedAt:     s.clock.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, s.db, &profile); err != nil {
		return db.Classify("profile.mirror", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, db.Classify("profile.get", err)
	}
	return item, nil
}
