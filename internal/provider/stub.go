package provider

import (
	"context"
	"sync"

	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
)

// StubFetcher serves canned profiles from memory. It backs local runs and
// tests where no real provider credentials exist.
type StubFetcher struct {
	platform identitydomain.Platform

	mu       sync.RWMutex
	profiles map[string]NormalizedProfile
}

func NewStubFetcher(platform identitydomain.Platform) *StubFetcher {
	return &StubFetcher{
		platform: platform,
		profiles: map[string]NormalizedProfile{},
	}
}

func (s *StubFetcher) Platform() identitydomain.Platform { return s.platform }

// Seed registers a profile under its normalized handle.
func (s *StubFetcher) Seed(profile NormalizedProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[identitydomain.NormalizeHandle(profile.Handle)] = profile
}

// SeedAlias makes a renamed account reachable under its old handle.
func (s *StubFetcher) SeedAlias(oldHandle string, profile NormalizedProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[identitydomain.NormalizeHandle(oldHandle)] = profile
}

func (s *StubFetcher) FetchProfile(ctx context.Context, handle string) (*NormalizedProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[identitydomain.NormalizeHandle(handle)]
	if !ok {
		return nil, ErrNotFound
	}
	out := profile
	return &out, nil
}
