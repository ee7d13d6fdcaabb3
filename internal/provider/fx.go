package provider

import (
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	"go.uber.org/fx"
)

// ProvideRegistry builds the fetcher registry for every enabled platform.
// Stub fetchers stand in until a platform gets a real API adapter.
func ProvideRegistry(cfg config.Config) *Registry {
	fetchers := make([]Fetcher, 0, len(cfg.Platforms))
	for _, name := range cfg.Platforms {
		fetchers = append(fetchers, NewStubFetcher(identitydomain.NormalizePlatform(name)))
	}
	return NewRegistry(fetchers...)
}

var Module = fx.Module("provider",
	fx.Provide(ProvideRegistry),
)
