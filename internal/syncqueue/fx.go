package syncqueue

import (
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/syncqueue/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("syncqueue",
	fx.Provide(repository.Provide),
)
