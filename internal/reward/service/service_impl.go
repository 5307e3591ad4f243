package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/loyalty/internal/clock"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	"github.com/smallbiznis/loyalty/internal/reward/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("reward.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, tx *gorm.DB, id snowflake.ID) (domain.Reward, error) {
	if id == 0 {
		return domain.Reward{}, domain.ErrInvalidID
	}
	conn := s.db
	if tx != nil {
		conn = tx
	}
	item, err := s.repo.FindByID(ctx, conn, id)
	if err != nil {
		return domain.Reward{}, db.Classify("reward.get", err)
	}
	if item == nil {
		return domain.Reward{}, domain.ErrNotFound
	}
	return *item, nil
}

// ListAvailable returns the rewards that can still be claimed, cheapest first.
func (s *Service) ListAvailable(ctx context.Context, userID string) ([]domain.Reward, error) {
	if _, err := ledgerdomain.NormalizeUserID(userID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListAvailable(ctx, s.db, s.clock.Now().UTC())
	if err != nil {
		return nil, db.Classify("reward.list_available", err)
	}
	return flatten(items), nil
}

func (s *Service) List(ctx context.Context) ([]domain.Reward, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, db.Classify("reward.list", err)
	}
	return flatten(items), nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRewardRequest) (domain.Reward, error) {
	reward, err := s.build(req)
	if err != nil {
		return domain.Reward{}, err
	}

	if err := s.repo.Insert(ctx, s.db, &reward); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Reward{}, domain.ErrDuplicateSlug
		}
		return domain.Reward{}, db.Classify("reward.create", err)
	}

	s.log.Info("reward created",
		zap.String("reward_id", reward.ID.String()),
		zap.String("slug", reward.Slug),
		zap.Int64("points_required", reward.PointsRequired),
	)
	return reward, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRewardRequest) (domain.Reward, error) {
	if id == 0 {
		return domain.Reward{}, domain.ErrInvalidID
	}

	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Reward{}, domain.ErrInvalidName
		}
		fields["name"] = name
	}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Type != nil {
		rewardType := normalizeType(*req.Type)
		if !rewardType.Valid() {
			return domain.Reward{}, domain.ErrInvalidType
		}
		fields["type"] = string(rewardType)
	}
	if req.PointsRequired != nil {
		if *req.PointsRequired < 0 {
			return domain.Reward{}, domain.ErrInvalidPoints
		}
		fields["points_required"] = *req.PointsRequired
	}
	switch {
	case req.ClearValidity:
		fields["valid_until"] = nil
	case req.ValidUntil != nil:
		fields["valid_until"] = req.ValidUntil.UTC()
	}
	if req.Metadata != nil {
		fields["metadata"] = datatypes.JSONMap(req.Metadata)
	}

	var out domain.Reward
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if len(fields) > 0 {
			fields["updated_at"] = s.clock.Now().UTC()
			if err := s.repo.Update(ctx, tx, id, fields); err != nil {
				return err
			}
		}
		updated, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		out = *updated
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Reward{}, err
		}
		return domain.Reward{}, db.Classify("reward.update", err)
	}
	return out, nil
}

// Expire ends a reward's validity now. An earlier expiry is kept.
func (s *Service) Expire(ctx context.Context, id snowflake.ID) (domain.Reward, error) {
	current, err := s.Get(ctx, nil, id)
	if err != nil {
		return domain.Reward{}, err
	}
	now := s.clock.Now().UTC()
	if current.ExpiredAt(now) {
		return current, nil
	}
	return s.Update(ctx, id, domain.UpdateRewardRequest{ValidUntil: &now})
}

// UpsertBySlug creates a reward or refreshes the one that already carries the
// same slug. It reports whether a row was created.
func (s *Service) UpsertBySlug(ctx context.Context, req domain.CreateRewardRequest) (domain.Reward, bool, error) {
	candidate, err := s.build(req)
	if err != nil {
		return domain.Reward{}, false, err
	}

	existing, err := s.repo.FindBySlug(ctx, s.db, candidate.Slug)
	if err != nil {
		return domain.Reward{}, false, db.Classify("reward.upsert", err)
	}
	if existing == nil {
		created, err := s.Create(ctx, req)
		if err != nil {
			return domain.Reward{}, false, err
		}
		return created, true, nil
	}

	description := candidate.Description
	rewardType := candidate.Type
	points := candidate.PointsRequired
	update := domain.UpdateRewardRequest{
		Name:           &candidate.Name,
		Description:    &description,
		Type:           &rewardType,
		PointsRequired: &points,
		ValidUntil:     candidate.ValidUntil,
		ClearValidity:  candidate.ValidUntil == nil,
		Metadata:       candidate.Metadata,
	}
	updated, err := s.Update(ctx, existing.ID, update)
	if err != nil {
		return domain.Reward{}, false, err
	}
	return updated, false, nil
}

func (s *Service) build(req domain.CreateRewardRequest) (domain.Reward, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Reward{}, domain.ErrInvalidName
	}
	rewardType := normalizeType(req.Type)
	if !rewardType.Valid() {
		return domain.Reward{}, domain.ErrInvalidType
	}
	if req.PointsRequired < 0 {
		return domain.Reward{}, domain.ErrInvalidPoints
	}

	rewardSlug := slug.Make(strings.TrimSpace(req.Slug))
	if rewardSlug == "" {
		rewardSlug = slug.Make(name)
	}
	if rewardSlug == "" {
		return domain.Reward{}, domain.ErrInvalidName
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	now := s.clock.Now().UTC()
	reward := domain.Reward{
		ID:             s.genID.Generate(),
		Slug:           rewardSlug,
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
		Type:           rewardType,
		PointsRequired: req.PointsRequired,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.ValidUntil != nil {
		validUntil := req.ValidUntil.UTC()
		reward.ValidUntil = &validUntil
	}
	return reward, nil
}

func normalizeType(t domain.RewardType) domain.RewardType {
	return domain.RewardType(strings.ToLower(strings.TrimSpace(string(t))))
}

func flatten(items []*domain.Reward) []domain.Reward {
	out := make([]domain.Reward, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out
}

