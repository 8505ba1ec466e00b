package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crossposthq/crosspost/internal/apperrors"
	"github.com/crossposthq/crosspost/internal/models"
	"github.com/crossposthq/crosspost/internal/platform"
	"github.com/crossposthq/crosspost/internal/repository"
	"github.com/crossposthq/crosspost/pkg/vault"
)

const (
	sweepConcurrency = 10
	perPostTimeout   = 2 * time.Minute
)

// PostResult is one post's outcome within a sweep.
type PostResult struct {
	PostID         int64  `json:"post_id"`
	Status         string `json:"status"`
	PlatformPostID string `json:"platform_post_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

const (
	ResultPublished = "published"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

// SweepReport accounts for every selected post exactly once.
type SweepReport struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Results   []PostResult `json:"results"`
}

// DispatcherService runs the publish pipeline: the recurring sweep over
// due posts and the immediate-publish path, both converging on the same
// per-post transition sequence.
type DispatcherService interface {
	Sweep(ctx context.Context) (*SweepReport, error)
	PublishNow(ctx context.Context, userID, postID int64) (*PostResult, error)
}

type dispatcherService struct {
	pr       repository.PostRepository
	ca       repository.ConnectedAccountRepository
	pm       repository.PostMediaRepository
	ma       repository.MediaAssetRepository
	registry *platform.Registry
	vault    *vault.Vault
	now      func() time.Time
	timeout  time.Duration
}

func NewDispatcherService(
	pr repository.PostRepository,
	ca repository.ConnectedAccountRepository,
	pm repository.PostMediaRepository,
	ma repository.MediaAssetRepository,
	registry *platform.Registry,
	v *vault.Vault) DispatcherService {
	return &dispatcherService{
		pr:       pr,
		ca:       ca,
		pm:       pm,
		ma:       ma,
		registry: registry,
		vault:    v,
		now:      time.Now,
		timeout:  perPostTimeout,
	}
}

// Sweep selects every scheduled post that is due and publishes each one
// independently. One post's failure, timeout, or rejection never aborts
// the others; the report covers every selected post.
func (s *dispatcherService) Sweep(ctx context.Context) (*SweepReport, error) {
	posts, err := s.pr.ListDue(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("error selecting due posts: %w", err)
	}

	results := make([]PostResult, len(posts))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, sweepConcurrency)

	for i, post := range posts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, post *models.Post) {
			defer wg.Done()
			defer func() { <-semaphore }()

			results[i] = s.attempt(ctx, post)
		}(i, post)
	}

	wg.Wait()

	report := &SweepReport{Results: results}
	for _, r := range results {
		switch r.Status {
		case ResultPublished:
			report.Succeeded++
		case ResultFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	return report, nil
}

// PublishNow pushes a single draft or scheduled post through the same
// transition path the sweep uses, after an ownership check.
func (s *dispatcherService) PublishNow(ctx context.Context, userID, postID int64) (*PostResult, error) {
	if userID == 0 {
		return nil, apperrors.NewValidation("user id is not valid")
	}

	ownerID, exists, err := s.pr.OwnerByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrNotFound
	}
	if ownerID != userID {
		return nil, apperrors.ErrForbidden
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, apperrors.ErrNotFound
	}

	result := s.attempt(ctx, post)
	if result.Status == ResultSkipped {
		return nil, apperrors.NewValidation("post is not in a publishable state")
	}

	return &result, nil
}

// attempt claims the post, resolves its account and credential, calls
// the platform adapter, and records the outcome. The guarded claim makes
// concurrent runs safe: whoever loses the claim skips.
func (s *dispatcherService) attempt(ctx context.Context, post *models.Post) PostResult {
	result := PostResult{PostID: post.ID}

	claimed, err := s.pr.MarkPublishing(ctx, post.ID)
	if err != nil {
		result.Status = ResultSkipped
		result.Error = err.Error()
		return result
	}
	if !claimed {
		result.Status = ResultSkipped
		return result
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	externalID, err := s.publish(attemptCtx, post)
	if err != nil {
		slog.Info(fmt.Sprintf("publish failed for post %d: %v", post.ID, err))
		if _, markErr := s.pr.MarkFailed(ctx, post.ID); markErr != nil {
			slog.Info(fmt.Sprintf("error marking post %d failed: %v", post.ID, markErr))
		}
		result.Status = ResultFailed
		result.Error = err.Error()
		return result
	}

	recorded, err := s.pr.MarkPublished(ctx, post.ID, externalID, s.now())
	if err != nil || !recorded {
		// published remotely but the row moved under us; surface it
		result.Status = ResultFailed
		result.PlatformPostID = externalID
		result.Error = "published remotely but state transition was rejected"
		return result
	}

	result.Status = ResultPublished
	result.PlatformPostID = externalID
	return result
}

func (s *dispatcherService) publish(ctx context.Context, post *models.Post) (string, error) {
	account, err := s.ca.GetByID(ctx, post.AccountID)
	if err != nil {
		return "", fmt.Errorf("error resolving connected account: %w", err)
	}
	if account == nil {
		return "", fmt.Errorf("connected account %d no longer exists", post.AccountID)
	}

	adapter, err := s.registry.Get(account.Platform)
	if err != nil {
		return "", err
	}

	accessToken, err := s.vault.Open(account.AccessToken)
	if err != nil {
		return "", err
	}

	media, err := s.loadMedia(ctx, post.ID)
	if err != nil {
		return "", err
	}

	return adapter.Publish(ctx, accessToken, account.AccountID, post, media)
}

func (s *dispatcherService) loadMedia(ctx context.Context, postID int64) ([]*models.MediaAsset, error) {
	links, err := s.pm.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error loading post media: %w", err)
	}

	assets := make([]*models.MediaAsset, 0, len(links))
	for _, link := range links {
		asset, err := s.ma.GetByID(ctx, link.AssetID)
		if err != nil {
			return nil, fmt.Errorf("error loading media asset %d: %w", link.AssetID, err)
		}
		if asset == nil {
			return nil, fmt.Errorf("media asset %d is missing", link.AssetID)
		}
		assets = append(assets, asset)
	}

	return assets, nil
}
