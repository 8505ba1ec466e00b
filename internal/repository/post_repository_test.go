package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossposthq/crosspost/internal/models"
)

func newMockRepo(t *testing.T) (PostRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostRepository(db), mock
}

func TestMarkPublishingClaimsGuardedRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE posts`).
		WithArgs(models.PostStatusPublishing, sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.MarkPublishing(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPublishingLosesClaimWhenRowAlreadyMoved(t *testing.T) {
	repo, mock := newMockRepo(t)

	// another runner moved the row out of draft/scheduled first
	mock.ExpectExec(`UPDATE posts`).
		WithArgs(models.PostStatusPublishing, sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.MarkPublishing(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMarkPublishedRecordsExternalID(t *testing.T) {
	repo, mock := newMockRepo(t)
	publishedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE posts`).
		WithArgs(models.PostStatusPublished, "ext-123", publishedAt, sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	recorded, err := repo.MarkPublished(context.Background(), 5, "ext-123", publishedAt)
	require.NoError(t, err)
	assert.True(t, recorded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedRequiresPublishingState(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE posts`).
		WithArgs(models.PostStatusFailed, sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := repo.MarkFailed(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestUpdateContentRefusesClaimedRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE posts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateContent(context.Background(), &models.Post{ID: 5, Caption: "edit", Status: models.PostStatusDraft})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestOwnerByIDDerivesOwnerThroughAccount(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT ca.user_id FROM posts p`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(7)))

	ownerID, exists, err := repo.OwnerByID(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(7), ownerID)
}

func TestOwnerByIDMissingPost(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT ca.user_id FROM posts p`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, exists, err := repo.OwnerByID(context.Background(), 404)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListDueSelectsScheduledBeforeCutoff(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(-time.Minute)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "account_id", "post_type", "caption", "title",
		"scheduled_for", "status", "published_at", "platform_post_id",
		"metrics", "created_at", "updated_at",
	}).AddRow(int64(5), int64(7), int64(3), models.PostTypeSingle, "hello", "",
		due, models.PostStatusScheduled, nil, nil, []byte("{}"), now, now)

	mock.ExpectQuery(`SELECT .+ FROM posts WHERE status = \$1 AND scheduled_for <= \$2`).
		WithArgs(models.PostStatusScheduled, now).
		WillReturnRows(rows)

	posts, err := repo.ListDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, int64(5), posts[0].ID)
	assert.Equal(t, models.PostStatusScheduled, posts[0].Status)
	require.NotNil(t, posts[0].ScheduledFor)
}

func TestListByUserIDAppliesFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "account_id", "post_type", "caption", "title",
		"scheduled_for", "status", "published_at", "platform_post_id",
		"metrics", "created_at", "updated_at",
	})

	mock.ExpectQuery(`FROM posts p\s+JOIN connected_accounts ca`).
		WithArgs(int64(7), models.PostStatusScheduled, models.PlatformInstagram, from).
		WillReturnRows(rows)

	_, err := repo.ListByUserID(context.Background(), 7, PostFilter{
		Status:   models.PostStatusScheduled,
		Platform: models.PlatformInstagram,
		From:     &from,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
