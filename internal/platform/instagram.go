package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	config "github.com/crossposthq/crosspost/configs"
	"github.com/crossposthq/crosspost/internal/apperrors"
	"github.com/crossposthq/crosspost/internal/models"
	"github.com/crossposthq/crosspost/internal/transfer"
)

const (
	instagramAuthURL  = "https://www.instagram.com/oauth/authorize"
	instagramTokenURL = "https://api.instagram.com/oauth/access_token"
	instagramGraphURL = "https://graph.instagram.com"

	instagramScopes = "instagram_business_basic,instagram_business_content_publish"
)

// Instagram publishes through the Instagram Graph API: create a media
// container (or one per carousel item), then media_publish. The HTTP
// client is injected so tests can point the adapter at a fake provider.
type Instagram struct {
	clientID     string
	clientSecret string
	redirectURI  string
	http         *http.Client

	tokenURL string
	graphURL string
}

func NewInstagram(cfg config.Config, client *http.Client) *Instagram {
	if client == nil {
		client = http.DefaultClient
	}
	return &Instagram{
		clientID:     cfg.InstagramClientID,
		clientSecret: cfg.InstagramClientSecret,
		redirectURI:  cfg.InstagramRedirectURI,
		http:         client,
		tokenURL:     instagramTokenURL,
		graphURL:     instagramGraphURL,
	}
}

func (ig *Instagram) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     ig.clientID,
		ClientSecret: ig.clientSecret,
		RedirectURL:  ig.redirectURI,
		Scopes:       []string{instagramScopes},
		Endpoint: oauth2.Endpoint{
			AuthURL:  instagramAuthURL,
			TokenURL: ig.tokenURL,
		},
	}
}

func (ig *Instagram) AuthCodeURL(state, challenge string) (string, error) {
	if ig.clientID == "" || ig.clientSecret == "" || ig.redirectURI == "" {
		return "", &apperrors.ConfigurationError{Platform: models.PlatformInstagram}
	}

	return ig.oauthConfig().AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// ExchangeCode redeems the one-time code for a short-lived token, then
// trades it for a long-lived one. Instagram has no separate refresh
// token; the long-lived token refreshes itself.
func (ig *Instagram) ExchangeCode(ctx context.Context, code, verifier string) (*transfer.PlatformToken, error) {
	if ig.clientID == "" || ig.clientSecret == "" {
		return nil, &apperrors.ConfigurationError{Platform: models.PlatformInstagram}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, ig.http)
	shortLived, err := ig.oauthConfig().Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to get short-lived token: %w", err)
	}

	return ig.longLivedToken(ctx, shortLived.AccessToken)
}

func (ig *Instagram) longLivedToken(ctx context.Context, shortLivedToken string) (*transfer.PlatformToken, error) {
	url := fmt.Sprintf(
		"%s/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		ig.graphURL, ig.clientSecret, shortLivedToken,
	)

	var result struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := ig.getJSON(ctx, url, &result); err != nil {
		return nil, fmt.Errorf("failed to get long-lived token: %w", err)
	}

	return &transfer.PlatformToken{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    time.Now().Add(time.Second * time.Duration(result.ExpiresIn)),
	}, nil
}

func (ig *Instagram) Refresh(ctx context.Context, refreshToken string) (*transfer.PlatformToken, error) {
	url := fmt.Sprintf(
		"%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		ig.graphURL, refreshToken,
	)

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := ig.getJSON(ctx, url, &result); err != nil {
		return nil, err
	}

	return &transfer.PlatformToken{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    time.Now().Add(time.Second * time.Duration(result.ExpiresIn)),
	}, nil
}

func (ig *Instagram) Identity(ctx context.Context, accessToken string) (*transfer.PlatformIdentity, error) {
	url := fmt.Sprintf(
		"%s/me?fields=id,username,name,account_type,profile_picture_url&access_token=%s",
		ig.graphURL, accessToken,
	)

	var userInfo transfer.InstagramUserInfo
	if err := ig.getJSON(ctx, url, &userInfo); err != nil {
		return nil, err
	}
	if userInfo.UserID == "" {
		return nil, errors.New("no account id returned from Instagram")
	}

	return &transfer.PlatformIdentity{
		AccountID:      userInfo.UserID,
		Name:           userInfo.Name,
		Username:       userInfo.Username,
		ProfilePicture: userInfo.ProfilePicture,
	}, nil
}

// Publish creates the media container(s) and publishes them, returning
// the platform-assigned post id. Non-2xx responses surface as
// PlatformRejectedError with the provider's raw payload.
func (ig *Instagram) Publish(ctx context.Context, accessToken, accountID string, post *models.Post, media []*models.MediaAsset) (string, error) {
	if len(media) == 0 {
		return "", errors.New("instagram requires at least one media item")
	}

	var containerID string
	var err error

	if len(media) == 1 {
		containerID, err = ig.createContainer(ctx, accountID, map[string]interface{}{
			"image_url":    media[0].FileURL,
			"caption":      post.Caption,
			"access_token": accessToken,
		})
	} else {
		containerID, err = ig.createCarousel(ctx, accountID, accessToken, post.Caption, media)
	}
	if err != nil {
		return "", err
	}

	return ig.publishContainer(ctx, accountID, containerID, accessToken)
}

func (ig *Instagram) createCarousel(ctx context.Context, accountID, accessToken, caption string, media []*models.MediaAsset) (string, error) {
	children := make([]string, 0, len(media))
	for _, asset := range media {
		childID, err := ig.createContainer(ctx, accountID, map[string]interface{}{
			"image_url":        asset.FileURL,
			"is_carousel_item": true,
			"access_token":     accessToken,
		})
		if err != nil {
			return "", err
		}
		children = append(children, childID)
	}

	return ig.createContainer(ctx, accountID, map[string]interface{}{
		"media_type":   "CAROUSEL",
		"caption":      caption,
		"children":     children,
		"access_token": accessToken,
	})
}

func (ig *Instagram) createContainer(ctx context.Context, accountID string, payload map[string]interface{}) (string, error) {
	url := fmt.Sprintf("%s/v21.0/%s/media", ig.graphURL, accountID)

	var result struct {
		ID string `json:"id"`
	}
	if err := ig.postJSON(ctx, url, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errors.New("no media container id returned from Instagram")
	}

	return result.ID, nil
}

func (ig *Instagram) publishContainer(ctx context.Context, accountID, containerID, accessToken string) (string, error) {
	url := fmt.Sprintf("%s/v21.0/%s/media_publish", ig.graphURL, accountID)
	payload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": accessToken,
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := ig.postJSON(ctx, url, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errors.New("no post id returned from Instagram")
	}

	return result.ID, nil
}

func (ig *Instagram) postJSON(ctx context.Context, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ig.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	return ig.decodeResponse(resp, out)
}

func (ig *Instagram) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := ig.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	return ig.decodeResponse(resp, out)
}

func (ig *Instagram) decodeResponse(resp *http.Response, out interface{}) error {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperrors.PlatformRejectedError{
			Platform:   models.PlatformInstagram,
			StatusCode: resp.StatusCode,
			Payload:    string(respBody),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}

	return nil
}
