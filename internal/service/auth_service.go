package service

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	config "github.com/crossposthq/crosspost/configs"
	"github.com/crossposthq/crosspost/internal/apperrors"
	"github.com/crossposthq/crosspost/internal/models"
	"github.com/crossposthq/crosspost/internal/repository"
)

type AuthService interface {
	LoginCallback(ctx context.Context, code string) (int64, error)
}

type authService struct {
	cfg config.Config
	u   repository.UserRepository
}

func NewAuthService(cfg config.Config, u repository.UserRepository) AuthService {
	return &authService{
		cfg: cfg,
		u:   u,
	}
}

func (s *authService) LoginCallback(ctx context.Context, code string) (int64, error) {
	if code == "" {
		return 0, apperrors.NewValidation("authorization code is empty")
	}

	if s.cfg.GoogleClientID == "" || s.cfg.GoogleClientSecret == "" {
		return 0, &apperrors.ConfigurationError{Platform: "google"}
	}

	oauth2Config := &oauth2.Config{
		ClientID:     s.cfg.GoogleClientID,
		ClientSecret: s.cfg.GoogleClientSecret,
		RedirectURL:  s.cfg.GoogleRedirectURI,
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
		Endpoint:     google.Endpoint,
	}

	token, err := oauth2Config.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return 0, &apperrors.TokenExchangeError{Platform: "google", Err: err}
	}

	client := oauth2Config.Client(ctx, token)
	oauthSvc, err := googleoauth.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		slog.Info(err.Error())
		return 0, &apperrors.IdentityFetchError{Platform: "google", Err: err}
	}

	userInfo, err := oauthSvc.Userinfo.Get().Do()
	if err != nil {
		slog.Info(err.Error())
		return 0, &apperrors.IdentityFetchError{Platform: "google", Err: err}
	}

	user, isExist, err := s.u.GetByEmail(ctx, userInfo.Email)
	if err != nil {
		return 0, err
	}

	if !isExist || user.GoogleID == "" {
		userID, err := s.u.Create(ctx, nil, &models.User{
			GoogleID:       userInfo.Id,
			Email:          userInfo.Email,
			Name:           userInfo.Name,
			ProfilePicture: userInfo.Picture,
		})
		if err != nil {
			slog.Info(err.Error())
			return 0, err
		}
		return userID, nil
	}

	return user.ID, nil
}
