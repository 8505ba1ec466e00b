package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/crossposthq/crosspost/internal/models"
)

// PostFilter narrows a post listing. Zero values mean "no constraint".
type PostFilter struct {
	Status   string
	Platform string
	From     *time.Time
	To       *time.Time
}

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListByUserID(ctx context.Context, userID int64, filter PostFilter) ([]*models.Post, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.Post, error)
	OwnerByID(ctx context.Context, postID int64) (int64, bool, error)
	UpdateContent(ctx context.Context, post *models.Post) error
	MarkPublishing(ctx context.Context, id int64) (bool, error)
	MarkPublished(ctx context.Context, id int64, platformPostID string, publishedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, account_id, post_type, caption, title, scheduled_for,
	status, published_at, platform_post_id, metrics, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	var post models.Post
	var scheduledFor, publishedAt sql.NullTime
	var platformPostID sql.NullString

	err := row.Scan(&post.ID, &post.UserID, &post.AccountID, &post.PostType, &post.Caption,
		&post.Title, &scheduledFor, &post.Status, &publishedAt, &platformPostID,
		&post.Metrics, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if scheduledFor.Valid {
		post.ScheduledFor = &scheduledFor.Time
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	if platformPostID.Valid {
		post.PlatformPostID = platformPostID.String
	}

	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, account_id, post_type, caption, title, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var scheduledFor sql.NullTime
	if post.ScheduledFor != nil {
		scheduledFor = sql.NullTime{Time: *post.ScheduledFor, Valid: true}
	}

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.UserID, post.AccountID, post.PostType, post.Caption, post.Title, scheduledFor, post.Status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.UserID, post.AccountID, post.PostType, post.Caption, post.Title, scheduledFor, post.Status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := fmt.Sprintf(`SELECT %s FROM posts WHERE id = $1`, postColumns)
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) ListByUserID(ctx context.Context, userID int64, filter PostFilter) ([]*models.Post, error) {
	query := `SELECT p.id, p.user_id, p.account_id, p.post_type, p.caption, p.title,
		p.scheduled_for, p.status, p.published_at, p.platform_post_id, p.metrics,
		p.created_at, p.updated_at
		FROM posts p
		JOIN connected_accounts ca ON ca.id = p.account_id
		WHERE p.user_id = $1`
	args := []interface{}{userID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND p.status = $%d", len(args))
	}
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		query += fmt.Sprintf(" AND ca.platform = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND p.scheduled_for >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND p.scheduled_for <= $%d", len(args))
	}

	query += " ORDER BY p.created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return posts, nil
}

// ListDue selects every scheduled post whose time has come. The sweep
// owns these rows from here on.
func (r *postRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := fmt.Sprintf(`SELECT %s FROM posts WHERE status = $1 AND scheduled_for <= $2`, postColumns)
	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return posts, nil
}

// OwnerByID resolves the post's owner through its connected account, so
// authorization never trusts a user id supplied by the client.
func (r *postRepository) OwnerByID(ctx context.Context, postID int64) (int64, bool, error) {
	query := `SELECT ca.user_id FROM posts p
		JOIN connected_accounts ca ON ca.id = p.account_id
		WHERE p.id = $1`

	var ownerID int64
	err := r.db.QueryRowContext(ctx, query, postID).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		slog.Info(err.Error())
		return 0, false, err
	}

	return ownerID, true, nil
}

// UpdateContent rewrites the editable fields. Rows already in
// publishing or published are left untouched; editing is only legal
// while the post is draft, scheduled, or failed.
func (r *postRepository) UpdateContent(ctx context.Context, post *models.Post) error {
	query := `
		UPDATE posts
		SET caption = $1,
			title = $2,
			scheduled_for = $3,
			status = $4,
			updated_at = $5
		WHERE id = $6 AND status IN ('draft', 'scheduled', 'failed')
	`

	var scheduledFor sql.NullTime
	if post.ScheduledFor != nil {
		scheduledFor = sql.NullTime{Time: *post.ScheduledFor, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query, post.Caption, post.Title, scheduledFor, post.Status, time.Now(), post.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return sql.ErrNoRows
	}

	return nil
}

// MarkPublishing claims a post for an in-flight publish attempt. The
// predecessor-state guard makes concurrent sweeps safe: only one caller
// sees true, everyone else finds the row already claimed.
func (r *postRepository) MarkPublishing(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ('draft', 'scheduled')
	`
	return r.transition(ctx, query, models.PostStatusPublishing, time.Now(), id)
}

// MarkPublished records the external post id and publish time exactly
// once. Both fields are immutable afterwards because no legal
// transition leaves published.
func (r *postRepository) MarkPublished(ctx context.Context, id int64, platformPostID string, publishedAt time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, platform_post_id = $2, published_at = $3, updated_at = $4
		WHERE id = $5 AND status = 'publishing'
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, platformPostID, publishedAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}

func (r *postRepository) MarkFailed(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = 'publishing'
	`
	return r.transition(ctx, query, models.PostStatusFailed, time.Now(), id)
}

func (r *postRepository) transition(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
