package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	config "github.com/crossposthq/crosspost/configs"
	"github.com/crossposthq/crosspost/internal/apperrors"
	"github.com/crossposthq/crosspost/internal/models"
	"github.com/crossposthq/crosspost/internal/platform"
	"github.com/crossposthq/crosspost/internal/repository"
	"github.com/crossposthq/crosspost/pkg/utils"
	"github.com/crossposthq/crosspost/pkg/vault"
)

const stateTokenTTL = 15 * time.Minute

// HandshakeService mediates the three-legged authorization exchange that
// links an external platform account.
type HandshakeService interface {
	BeginAuthorization(ctx context.Context, platformName string, userID int64) (string, error)
	CompleteAuthorization(ctx context.Context, platformName, code, state, providerErr string, userID int64) (*models.ConnectedAccount, error)
}

type handshakeService struct {
	cfg      config.Config
	registry *platform.Registry
	vault    *vault.Vault
	ca       repository.ConnectedAccountRepository
}

func NewHandshakeService(cfg config.Config, registry *platform.Registry, v *vault.Vault, ca repository.ConnectedAccountRepository) HandshakeService {
	return &handshakeService{
		cfg:      cfg,
		registry: registry,
		vault:    v,
		ca:       ca,
	}
}

// BeginAuthorization builds the provider authorization URL. The state
// parameter is a signed token binding the request to the initiating
// user, the platform, and the PKCE verifier, so the callback verifies
// itself without server-side session storage.
func (s *handshakeService) BeginAuthorization(ctx context.Context, platformName string, userID int64) (string, error) {
	if userID == 0 {
		return "", apperrors.NewValidation("user id is not valid")
	}

	adapter, err := s.registry.Get(platformName)
	if err != nil {
		return "", err
	}

	verifier, err := utils.GenerateRandomKey(32)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("error generating code verifier: %w", err)
	}

	state, err := utils.GenerateStateToken(s.cfg.SecretKey, strconv.FormatInt(userID, 10), platformName, verifier, stateTokenTTL)
	if err != nil {
		return "", fmt.Errorf("error signing state token: %w", err)
	}

	return adapter.AuthCodeURL(state, utils.S256Challenge(verifier))
}

// CompleteAuthorization redeems the callback. State validation happens
// before any network call; a state bound to another user is rejected
// with no side effects.
func (s *handshakeService) CompleteAuthorization(ctx context.Context, platformName, code, state, providerErr string, userID int64) (*models.ConnectedAccount, error) {
	if providerErr != "" {
		return nil, &apperrors.StateMismatchError{Reason: "provider reported error: " + providerErr}
	}

	claims, err := utils.ValidateStateToken(s.cfg.SecretKey, state)
	if err != nil {
		slog.Info(err.Error())
		return nil, &apperrors.StateMismatchError{Reason: "invalid or expired state token"}
	}

	if claims.Platform != platformName {
		return nil, &apperrors.StateMismatchError{Reason: "state issued for a different platform"}
	}

	boundUserID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil || boundUserID != userID {
		return nil, &apperrors.StateMismatchError{Reason: "state bound to a different user"}
	}

	if code == "" {
		return nil, apperrors.NewValidation("authorization code is empty")
	}

	adapter, err := s.registry.Get(platformName)
	if err != nil {
		return nil, err
	}

	token, err := adapter.ExchangeCode(ctx, code, claims.Verifier)
	if err != nil {
		var cfgErr *apperrors.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &apperrors.TokenExchangeError{Platform: platformName, Err: err}
	}

	identity, err := adapter.Identity(ctx, token.AccessToken)
	if err != nil {
		return nil, &apperrors.IdentityFetchError{Platform: platformName, Err: err}
	}

	sealedAccess, err := s.vault.Seal([]byte(token.AccessToken))
	if err != nil {
		return nil, err
	}

	var sealedRefresh string
	if token.RefreshToken != "" {
		sealedRefresh, err = s.vault.Seal([]byte(token.RefreshToken))
		if err != nil {
			return nil, err
		}
	}

	account := &models.ConnectedAccount{
		UserID:          userID,
		Platform:        platformName,
		AccountID:       identity.AccountID,
		AccountName:     identity.Name,
		AccountUsername: identity.Username,
		ProfilePicture:  identity.ProfilePicture,
		AccessToken:     sealedAccess,
		RefreshToken:    sealedRefresh,
		TokenExpiresAt:  token.ExpiresAt,
		AccountStatus:   models.AccountStatusActive,
	}

	id, err := s.ca.Upsert(ctx, nil, account)
	if err != nil {
		return nil, fmt.Errorf("error saving connected account: %w", err)
	}

	account.ID = id
	// callers get metadata only
	account.AccessToken = ""
	account.RefreshToken = ""

	return account, nil
}
