package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crossposthq/crosspost/internal/models"
	"github.com/crossposthq/crosspost/internal/platform"
	"github.com/crossposthq/crosspost/internal/repository"
	"github.com/crossposthq/crosspost/pkg/vault"
)

// TokenRefreshJob renews access tokens for connected accounts whose
// credentials expire soon, so scheduled publishes keep working without
// the owner being online.
type TokenRefreshJob struct {
	ca       repository.ConnectedAccountRepository
	registry *platform.Registry
	vault    *vault.Vault
}

func NewTokenRefreshJob(ca repository.ConnectedAccountRepository, registry *platform.Registry, v *vault.Vault) *TokenRefreshJob {
	return &TokenRefreshJob{
		ca:       ca,
		registry: registry,
		vault:    v,
	}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := j.ca.ListExpiringBetween(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.ConnectedAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := j.refreshAccount(ctx, acc); err != nil {
				slog.Info(fmt.Sprintf("unable to refresh tokens for account %d: %v", acc.ID, err))
			}
		}(acc)
	}

	wg.Wait()
}

func (j *TokenRefreshJob) refreshAccount(ctx context.Context, acc *models.ConnectedAccount) error {
	adapter, err := j.registry.Get(acc.Platform)
	if err != nil {
		return err
	}

	refreshToken, err := j.vault.Open(acc.RefreshToken)
	if err != nil {
		return err
	}

	token, err := adapter.Refresh(ctx, refreshToken)
	if err != nil {
		return err
	}

	sealedAccess, err := j.vault.Seal([]byte(token.AccessToken))
	if err != nil {
		return err
	}

	var sealedRefresh string
	if token.RefreshToken != "" {
		sealedRefresh, err = j.vault.Seal([]byte(token.RefreshToken))
		if err != nil {
			return err
		}
	}

	return j.ca.SetToken(ctx, acc.ID, &models.ConnectedAccount{
		AccessToken:    sealedAccess,
		RefreshToken:   sealedRefresh,
		TokenExpiresAt: token.ExpiresAt,
	})
}
