// Package provider abstracts platform profile APIs behind one fetch surface.
package provider

import (
	"context"
	"errors"
	"time"

	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
)

var (
	// ErrNotFound means the provider answered and the profile does not exist.
	// Transport and rate-limit failures are ordinary errors, not ErrNotFound.
	ErrNotFound = errors.New("profile_not_found")

	ErrProviderNotFound = errors.New("provider_not_found")
)

// NormalizedProfile is the provider-neutral shape every fetcher returns.
// Handle carries the provider's canonical spelling, which may differ from the
// handle that was asked for when the account has been renamed.
type NormalizedProfile struct {
	Handle         string
	DisplayName    string
	Followers      int
	AvgViewers     int
	IsLive         bool
	LastActivityAt *time.Time
	BioText        string

	// DiscoveredLinks are outbound profile URLs the provider surfaced
	// alongside the bio, e.g. a panel or link-in-bio section.
	DiscoveredLinks []string
}

// Fetcher fetches one profile from one platform.
type Fetcher interface {
	Platform() identitydomain.Platform
	FetchProfile(ctx context.Context, handle string) (*NormalizedProfile, error)
}
