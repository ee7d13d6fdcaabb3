package provider

import (
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
)

type Registry struct {
	fetchers map[identitydomain.Platform]Fetcher
}

func NewRegistry(fetchers ...Fetcher) *Registry {
	registry := &Registry{fetchers: map[identitydomain.Platform]Fetcher{}}
	for _, fetcher := range fetchers {
		if fetcher == nil {
			continue
		}
		platform := identitydomain.NormalizePlatform(string(fetcher.Platform()))
		if platform == "" {
			continue
		}
		registry.fetchers[platform] = fetcher
	}
	return registry
}

func (r *Registry) Fetcher(platform identitydomain.Platform) (Fetcher, error) {
	if r == nil {
		return nil, ErrProviderNotFound
	}
	fetcher, ok := r.fetchers[platform]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return fetcher, nil
}

func (r *Registry) Has(platform identitydomain.Platform) bool {
	if r == nil {
		return false
	}
	_, ok := r.fetchers[platform]
	return ok
}
