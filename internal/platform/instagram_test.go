package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/crossposthq/crosspost/configs"
	"github.com/crossposthq/crosspost/internal/apperrors"
	"github.com/crossposthq/crosspost/internal/models"
)

func testAdapter(serverURL string) *Instagram {
	ig := NewInstagram(config.Config{
		InstagramClientID:     "client-id",
		InstagramClientSecret: "client-secret",
		InstagramRedirectURI:  "http://localhost:3000/auth/instagram/callback",
	}, http.DefaultClient)
	ig.graphURL = serverURL
	ig.tokenURL = serverURL + "/oauth/access_token"
	return ig
}

func TestAuthCodeURLRequiresConfiguration(t *testing.T) {
	ig := NewInstagram(config.Config{}, nil)

	_, err := ig.AuthCodeURL("state", "challenge")

	var cfgErr *apperrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, models.PlatformInstagram, cfgErr.Platform)
}

func TestAuthCodeURLCarriesStateAndChallenge(t *testing.T) {
	ig := testAdapter("http://unused")

	authURL, err := ig.AuthCodeURL("signed-state", "s256-challenge")
	require.NoError(t, err)

	assert.Contains(t, authURL, "response_type=code")
	assert.Contains(t, authURL, "client_id=client-id")
	assert.Contains(t, authURL, "state=signed-state")
	assert.Contains(t, authURL, "code_challenge=s256-challenge")
	assert.Contains(t, authURL, "code_challenge_method=S256")
}

func TestPublishSinglePost(t *testing.T) {
	var containerCalls, publishCalls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/ig-account/media":
			containerCalls++
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "https://cdn.example.com/a.jpg", payload["image_url"])
			assert.Equal(t, "hello world", payload["caption"])
			json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
		case "/v21.0/ig-account/media_publish":
			publishCalls++
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "container-1", payload["creation_id"])
			json.NewEncoder(w).Encode(map[string]string{"id": "ext-123"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	ig := testAdapter(server.URL)
	post := &models.Post{Caption: "hello world", PostType: models.PostTypeSingle}
	media := []*models.MediaAsset{{FileURL: "https://cdn.example.com/a.jpg"}}

	externalID, err := ig.Publish(context.Background(), "token", "ig-account", post, media)
	require.NoError(t, err)
	assert.Equal(t, "ext-123", externalID)
	assert.Equal(t, 1, containerCalls)
	assert.Equal(t, 1, publishCalls)
}

func TestPublishCarouselPost(t *testing.T) {
	var containerPayloads []map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/ig-account/media":
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			containerPayloads = append(containerPayloads, payload)
			json.NewEncoder(w).Encode(map[string]string{"id": "c-" + string(rune('0'+len(containerPayloads)))})
		case "/v21.0/ig-account/media_publish":
			json.NewEncoder(w).Encode(map[string]string{"id": "ext-carousel"})
		}
	}))
	defer server.Close()

	ig := testAdapter(server.URL)
	post := &models.Post{Caption: "two up", PostType: models.PostTypeMultiple}
	media := []*models.MediaAsset{
		{FileURL: "https://cdn.example.com/a.jpg"},
		{FileURL: "https://cdn.example.com/b.jpg"},
	}

	externalID, err := ig.Publish(context.Background(), "token", "ig-account", post, media)
	require.NoError(t, err)
	assert.Equal(t, "ext-carousel", externalID)

	// two carousel items plus the carousel container itself
	require.Len(t, containerPayloads, 3)
	assert.Equal(t, true, containerPayloads[0]["is_carousel_item"])
	assert.Equal(t, "CAROUSEL", containerPayloads[2]["media_type"])
}

func TestPublishRejectionCarriesProviderPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid image","code":100}}`))
	}))
	defer server.Close()

	ig := testAdapter(server.URL)
	post := &models.Post{Caption: "nope"}
	media := []*models.MediaAsset{{FileURL: "https://cdn.example.com/a.jpg"}}

	_, err := ig.Publish(context.Background(), "token", "ig-account", post, media)

	var rejected *apperrors.PlatformRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.StatusCode)
	assert.Contains(t, rejected.Payload, "Invalid image")
}

func TestPublishRequiresMedia(t *testing.T) {
	ig := testAdapter("http://unused")

	_, err := ig.Publish(context.Background(), "token", "ig-account", &models.Post{Caption: "text only"}, nil)
	assert.Error(t, err)
}

func TestIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"id":       "17841400000000000",
			"username": "someone",
			"name":     "Some One",
		})
	}))
	defer server.Close()

	ig := testAdapter(server.URL)

	identity, err := ig.Identity(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "17841400000000000", identity.AccountID)
	assert.Equal(t, "someone", identity.Username)
}
