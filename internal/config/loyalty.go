package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DefaultDailyClaimLimit = 3
	DefaultCodePrefix      = "RWD"
)

// LoyaltyConfig holds the business rules that may change without a restart.
type LoyaltyConfig struct {
	Claims  ClaimsConfig  `mapstructure:"claims"`
	Earning EarningConfig `mapstructure:"earning"`

	location *time.Location
}

type ClaimsConfig struct {
	DailyLimit int    `mapstructure:"daily_limit"`
	Timezone   string `mapstructure:"timezone"`
	CodePrefix string `mapstructure:"code_prefix"`
}

type EarningConfig struct {
	// PointsPerUnit is awarded per whole currency unit (100 minor units).
	PointsPerUnit float64 `mapstructure:"points_per_unit"`
}

func DefaultLoyaltyConfig() LoyaltyConfig {
	return LoyaltyConfig{
		Claims: ClaimsConfig{
			DailyLimit: DefaultDailyClaimLimit,
			CodePrefix: DefaultCodePrefix,
		},
		Earning: EarningConfig{
			PointsPerUnit: 1,
		},
		location: time.Local,
	}
}

// Location is the business timezone that defines a calendar day for claim limits.
func (c LoyaltyConfig) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// WithLocation returns a copy bound to loc, mostly for tests.
func (c LoyaltyConfig) WithLocation(loc *time.Location) LoyaltyConfig {
	c.location = loc
	if loc != nil {
		c.Claims.Timezone = loc.String()
	}
	return c
}

type LoyaltyConfigHolder struct {
	current atomic.Value // holds LoyaltyConfig
}

// NewStaticLoyaltyConfig returns a holder that never reloads.
func NewStaticLoyaltyConfig(cfg LoyaltyConfig) *LoyaltyConfigHolder {
	if cfg.location == nil {
		cfg.location = time.Local
	}
	holder := &LoyaltyConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewLoyaltyConfigHolder(log *zap.Logger) (*LoyaltyConfigHolder, error) {
	log = log.Named("loyalty.config")
	v := viper.New()

	v.SetConfigName("loyalty")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/loyalty")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LOYALTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLoyaltyConfig()
	v.SetDefault("claims.daily_limit", defaults.Claims.DailyLimit)
	v.SetDefault("claims.timezone", "")
	v.SetDefault("claims.code_prefix", defaults.Claims.CodePrefix)
	v.SetDefault("earning.points_per_unit", defaults.Earning.PointsPerUnit)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeLoyaltyConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &LoyaltyConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeLoyaltyConfig(v)
			if err != nil {
				log.Warn("invalid loyalty config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("loyalty config reloaded",
				zap.String("file", e.Name),
				zap.Int("daily_limit", updated.Claims.DailyLimit),
				zap.String("timezone", updated.Location().String()),
			)
		})
	}

	return holder, nil
}

func (h *LoyaltyConfigHolder) Get() LoyaltyConfig {
	return h.current.Load().(LoyaltyConfig)
}

func decodeLoyaltyConfig(v *viper.Viper) (LoyaltyConfig, error) {
	var cfg LoyaltyConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return LoyaltyConfig{}, err
	}
	if err := ValidateLoyaltyConfig(&cfg); err != nil {
		return LoyaltyConfig{}, err
	}
	return cfg, nil
}

// ValidateLoyaltyConfig checks the rules and resolves the timezone.
func ValidateLoyaltyConfig(cfg *LoyaltyConfig) error {
	if cfg.Claims.DailyLimit <= 0 {
		return errors.New("claims.daily_limit must be positive")
	}
	if cfg.Earning.PointsPerUnit < 0 {
		return errors.New("earning.points_per_unit cannot be negative")
	}
	prefix := strings.ToUpper(strings.TrimSpace(cfg.Claims.CodePrefix))
	if prefix == "" {
		prefix = DefaultCodePrefix
	}
	cfg.Claims.CodePrefix = prefix

	tz := strings.TrimSpace(cfg.Claims.Timezone)
	if tz == "" {
		cfg.location = time.Local
		return nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("claims.timezone: %w", err)
	}
	cfg.location = loc
	return nil
}
