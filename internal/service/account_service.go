package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crossposthq/crosspost/internal/apperrors"
	"github.com/crossposthq/crosspost/internal/models"
	"github.com/crossposthq/crosspost/internal/repository"
)

// AccountService exposes connected accounts to the API layer. Listing
// returns non-secret metadata only; sealed tokens never leave the
// publish path.
type AccountService interface {
	List(ctx context.Context, userID int64) ([]*models.ConnectedAccount, error)
	Disconnect(ctx context.Context, userID, accountID int64) error
}

type accountService struct {
	ca repository.ConnectedAccountRepository
}

func NewAccountService(ca repository.ConnectedAccountRepository) AccountService {
	return &accountService{ca: ca}
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.ConnectedAccount, error) {
	if userID == 0 {
		return nil, apperrors.NewValidation("user id is not valid")
	}

	accounts, err := s.ca.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting connected accounts")
	}

	return accounts, nil
}

func (s *accountService) Disconnect(ctx context.Context, userID, accountID int64) error {
	if userID == 0 {
		return apperrors.NewValidation("user id is not valid")
	}
	if accountID == 0 {
		return apperrors.NewValidation("account id is not valid")
	}

	account, err := s.ca.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return apperrors.ErrNotFound
	}
	if account.UserID != userID {
		slog.Info("disconnect rejected: account owned by another user")
		return apperrors.ErrForbidden
	}

	if err := s.ca.Remove(ctx, accountID); err != nil {
		return fmt.Errorf("error removing connected account")
	}

	return nil
}
