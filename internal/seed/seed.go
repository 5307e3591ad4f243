package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/smallbiznis/loyalty/internal/config"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk reward catalog.
type Catalog struct {
	Rewards []CatalogReward `yaml:"rewards"`
}

type CatalogReward struct {
	Slug           string         `yaml:"slug"`
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description"`
	Type           string         `yaml:"type"`
	PointsRequired int64          `yaml:"points_required"`
	ValidUntil     string         `yaml:"valid_until"`
	Metadata       map[string]any `yaml:"metadata"`
}

// Summary counts what a seed run changed.
type Summary struct {
	Created int
	Updated int
}

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, rewards rewarddomain.Service, log *zap.Logger) {
		path := strings.TrimSpace(cfg.RewardSeedFile)
		if path == "" {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				summary, err := SeedRewardsFile(ctx, rewards, path)
				if err != nil {
					return fmt.Errorf("seed rewards from %s: %w", path, err)
				}
				log.Info("reward catalog seeded",
					zap.String("file", path),
					zap.Int("created", summary.Created),
					zap.Int("updated", summary.Updated),
				)
				return nil
			},
		})
	}),
)

func SeedRewardsFile(ctx context.Context, rewards rewarddomain.Service, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	catalog, err := ParseCatalog(f)
	if err != nil {
		return Summary{}, err
	}
	return SeedRewards(ctx, rewards, catalog)
}

func ParseCatalog(r io.Reader) (Catalog, error) {
	var catalog Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&catalog); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("decode reward catalog: %w", err)
	}
	return catalog, nil
}

// SeedRewards upserts each catalog entry by slug.
func SeedRewards(ctx context.Context, rewards rewarddomain.Service, catalog Catalog) (Summary, error) {
	if rewards == nil {
		return Summary{}, errors.New("seed reward service is required")
	}

	var summary Summary
	for i, item := range catalog.Rewards {
		req, err := item.request()
		if err != nil {
			return summary, fmt.Errorf("reward %d (%s): %w", i, item.Slug, err)
		}
		_, created, err := rewards.UpsertBySlug(ctx, req)
		if err != nil {
			return summary, fmt.Errorf("reward %d (%s): %w", i, item.Slug, err)
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
	}
	return summary, nil
}

func (c CatalogReward) request() (rewarddomain.CreateRewardRequest, error) {
	req := rewarddomain.CreateRewardRequest{
		Slug:           strings.TrimSpace(c.Slug),
		Name:           c.Name,
		Description:    c.Description,
		Type:           rewarddomain.RewardType(strings.TrimSpace(c.Type)),
		PointsRequired: c.PointsRequired,
		Metadata:       c.Metadata,
	}
	if raw := strings.TrimSpace(c.ValidUntil); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return req, fmt.Errorf("valid_until: %w", err)
		}
		t = t.UTC()
		req.ValidUntil = &t
	}
	return req, nil
}
