// Package platform holds the per-platform adapters and the registry that
// dispatches on the platform tag. Adding a platform means registering a
// new Adapter; unknown tags fail loudly instead of no-opping.
package platform

import (
	"context"

	"github.com/crossposthq/crosspost/internal/apperrors"
	"github.com/crossposthq/crosspost/internal/models"
	"github.com/crossposthq/crosspost/internal/transfer"
)

// Adapter turns a decrypted credential plus content into provider calls.
// Publish performs one outbound attempt and never retries internally.
type Adapter interface {
	AuthCodeURL(state, challenge string) (string, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*transfer.PlatformToken, error)
	Refresh(ctx context.Context, refreshToken string) (*transfer.PlatformToken, error)
	Identity(ctx context.Context, accessToken string) (*transfer.PlatformIdentity, error)
	Publish(ctx context.Context, accessToken, accountID string, post *models.Post, media []*models.MediaAsset) (string, error)
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(name string, a Adapter) {
	r.adapters[name] = a
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, &apperrors.UnsupportedPlatformError{Platform: name}
	}
	return a, nil
}

func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
