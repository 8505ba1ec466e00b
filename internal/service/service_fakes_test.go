package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/crossposthq/crosspost/internal/models"
	"github.com/crossposthq/crosspost/internal/repository"
	"github.com/crossposthq/crosspost/internal/transfer"
)

// fakePostRepo keeps posts in memory and enforces the same guarded
// transitions the SQL layer does, so concurrent sweeps can be exercised
// without a database.
type fakePostRepo struct {
	mu     sync.Mutex
	nextID int64
	posts  map[int64]*models.Post

	markPublishingErr error
	updateContentErr  error
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{nextID: 1, posts: make(map[int64]*models.Post)}
}

func (r *fakePostRepo) add(post *models.Post) *models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	if post.ID == 0 {
		post.ID = r.nextID
		r.nextID++
	}
	r.posts[post.ID] = post
	return post
}

func (r *fakePostRepo) get(id int64) models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.posts[id]
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	return r.add(post).ID, nil
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	copied := *post
	return &copied, nil
}

func (r *fakePostRepo) ListByUserID(ctx context.Context, userID int64, filter repository.PostFilter) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, post := range r.posts {
		if post.UserID != userID {
			continue
		}
		if filter.Status != "" && post.Status != filter.Status {
			continue
		}
		copied := *post
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakePostRepo) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, post := range r.posts {
		if post.Status != models.PostStatusScheduled || post.ScheduledFor == nil {
			continue
		}
		if post.ScheduledFor.After(now) {
			continue
		}
		copied := *post
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakePostRepo) OwnerByID(ctx context.Context, postID int64) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[postID]
	if !ok {
		return 0, false, nil
	}
	return post.UserID, true, nil
}

func (r *fakePostRepo) UpdateContent(ctx context.Context, post *models.Post) error {
	if r.updateContentErr != nil {
		return r.updateContentErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.posts[post.ID]
	if !ok {
		return sql.ErrNoRows
	}
	switch current.Status {
	case models.PostStatusDraft, models.PostStatusScheduled, models.PostStatusFailed:
		copied := *post
		r.posts[post.ID] = &copied
		return nil
	default:
		return sql.ErrNoRows
	}
}

func (r *fakePostRepo) MarkPublishing(ctx context.Context, id int64) (bool, error) {
	if r.markPublishingErr != nil {
		return false, r.markPublishingErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return false, nil
	}
	switch post.Status {
	case models.PostStatusDraft, models.PostStatusScheduled:
		post.Status = models.PostStatusPublishing
		return true, nil
	default:
		return false, nil
	}
}

func (r *fakePostRepo) MarkPublished(ctx context.Context, id int64, platformPostID string, publishedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok || post.Status != models.PostStatusPublishing {
		return false, nil
	}
	post.Status = models.PostStatusPublished
	post.PlatformPostID = platformPostID
	post.PublishedAt = &publishedAt
	return true, nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok || post.Status != models.PostStatusPublishing {
		return false, nil
	}
	post.Status = models.PostStatusFailed
	return true, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.posts, id)
	return nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*models.ConnectedAccount

	upserted []*models.ConnectedAccount
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{nextID: 1, accounts: make(map[int64]*models.ConnectedAccount)}
}

func (r *fakeAccountRepo) add(acc *models.ConnectedAccount) *models.ConnectedAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acc.ID == 0 {
		acc.ID = r.nextID
		r.nextID++
	}
	r.accounts[acc.ID] = acc
	return acc
}

func (r *fakeAccountRepo) Upsert(ctx context.Context, tx *sql.Tx, ca *models.ConnectedAccount) (int64, error) {
	r.mu.Lock()
	r.upserted = append(r.upserted, ca)
	r.mu.Unlock()
	return r.add(ca).ID, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.ConnectedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *acc
	return &copied, nil
}

func (r *fakeAccountRepo) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.ConnectedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ConnectedAccount
	for _, acc := range r.accounts {
		if acc.UserID != userID {
			continue
		}
		copied := *acc
		copied.AccessToken = ""
		copied.RefreshToken = ""
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeAccountRepo) ListExpiringBetween(ctx context.Context, initialTime, finalTime time.Time) ([]*models.ConnectedAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[accountID]
	return ok && acc.UserID == userID, nil
}

func (r *fakeAccountRepo) SetToken(ctx context.Context, accountID int64, ca *models.ConnectedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[accountID]
	if !ok {
		return sql.ErrNoRows
	}
	acc.AccessToken = ca.AccessToken
	if ca.RefreshToken != "" {
		acc.RefreshToken = ca.RefreshToken
	}
	acc.TokenExpiresAt = ca.TokenExpiresAt
	return nil
}

func (r *fakeAccountRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

type fakePostMediaRepo struct {
	mu      sync.Mutex
	byPost  map[int64][]*models.PostMedia
	removed []int64
}

func newFakePostMediaRepo() *fakePostMediaRepo {
	return &fakePostMediaRepo{byPost: make(map[int64][]*models.PostMedia)}
}

func (r *fakePostMediaRepo) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPost[pm.PostID] = append(r.byPost[pm.PostID], pm)
	return nil
}

func (r *fakePostMediaRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byPost[postID], nil
}

func (r *fakePostMediaRepo) Remove(ctx context.Context, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPost, postID)
	r.removed = append(r.removed, postID)
	return nil
}

type fakeMediaAssetRepo struct {
	mu     sync.Mutex
	nextID int64
	assets map[int64]*models.MediaAsset
}

func newFakeMediaAssetRepo() *fakeMediaAssetRepo {
	return &fakeMediaAssetRepo{nextID: 1, assets: make(map[int64]*models.MediaAsset)}
}

func (r *fakeMediaAssetRepo) Create(ctx context.Context, tx *sql.Tx, ma *models.MediaAsset) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ma.ID = r.nextID
	r.nextID++
	r.assets[ma.ID] = ma
	return ma.ID, nil
}

func (r *fakeMediaAssetRepo) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	asset, ok := r.assets[id]
	if !ok {
		return nil, nil
	}
	copied := *asset
	return &copied, nil
}

func (r *fakeMediaAssetRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assets, id)
	return nil
}

// fakeAdapter is a scriptable platform adapter. Unset hooks fail loudly
// so a test only exercises the calls it expects.
type fakeAdapter struct {
	authCodeURLFn func(state, challenge string) (string, error)
	exchangeFn    func(ctx context.Context, code, verifier string) (*transfer.PlatformToken, error)
	refreshFn     func(ctx context.Context, refreshToken string) (*transfer.PlatformToken, error)
	identityFn    func(ctx context.Context, accessToken string) (*transfer.PlatformIdentity, error)
	publishFn     func(ctx context.Context, accessToken, accountID string, post *models.Post, media []*models.MediaAsset) (string, error)
}

func (a *fakeAdapter) AuthCodeURL(state, challenge string) (string, error) {
	if a.authCodeURLFn == nil {
		return "", fmt.Errorf("unexpected AuthCodeURL call")
	}
	return a.authCodeURLFn(state, challenge)
}

func (a *fakeAdapter) ExchangeCode(ctx context.Context, code, verifier string) (*transfer.PlatformToken, error) {
	if a.exchangeFn == nil {
		return nil, fmt.Errorf("unexpected ExchangeCode call")
	}
	return a.exchangeFn(ctx, code, verifier)
}

func (a *fakeAdapter) Refresh(ctx context.Context, refreshToken string) (*transfer.PlatformToken, error) {
	if a.refreshFn == nil {
		return nil, fmt.Errorf("unexpected Refresh call")
	}
	return a.refreshFn(ctx, refreshToken)
}

func (a *fakeAdapter) Identity(ctx context.Context, accessToken string) (*transfer.PlatformIdentity, error) {
	if a.identityFn == nil {
		return nil, fmt.Errorf("unexpected Identity call")
	}
	return a.identityFn(ctx, accessToken)
}

func (a *fakeAdapter) Publish(ctx context.Context, accessToken, accountID string, post *models.Post, media []*models.MediaAsset) (string, error) {
	if a.publishFn == nil {
		return "", fmt.Errorf("unexpected Publish call")
	}
	return a.publishFn(ctx, accessToken, accountID, post, media)
}
