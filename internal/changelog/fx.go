package changelog

import (
	"github.com/smallbiznis/stockledger/internal/changelog/repository"
	"github.com/smallbiznis/stockledger/internal/changelog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("changelog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
