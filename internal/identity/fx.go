package identity

import (
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("identity",
	fx.Provide(repository.Provide),
)
