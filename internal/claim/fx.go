package claim

import (
	"github.com/smallbiznis/loyalty/internal/claim/repository"
	"github.com/smallbiznis/loyalty/internal/claim/service"
	"go.uber.org/fx"
)

var Module = fx.Module("claim.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewDailyLimiter),
	fx.Provide(service.New),
)
