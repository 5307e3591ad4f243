package pendingcredit

import (
	"github.com/smallbiznis/loyalty/internal/pendingcredit/repository"
	"github.com/smallbiznis/loyalty/internal/pendingcredit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pendingcredit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
