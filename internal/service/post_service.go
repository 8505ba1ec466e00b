package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/crossposthq/crosspost/internal/apperrors"
	"github.com/crossposthq/crosspost/internal/models"
	"github.com/crossposthq/crosspost/internal/repository"
	"github.com/crossposthq/crosspost/internal/transfer"
)

const scheduleLayout = "2006-01-02T15:04"

// PostService owns the compose-side of the post lifecycle. Every
// mutation re-derives ownership through the post's connected account
// before touching anything.
type PostService interface {
	Create(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) ([]int64, error)
	Update(ctx context.Context, userID, postID int64, upd *transfer.PostUpdate) (*models.Post, error)
	List(ctx context.Context, userID int64, filter repository.PostFilter) ([]*models.Post, error)
	Info(ctx context.Context, postID, userID int64) (*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db    *sql.DB
	pr    repository.PostRepository
	ca    repository.ConnectedAccountRepository
	ma    repository.MediaAssetRepository
	pm    repository.PostMediaRepository
	store MediaStore
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	ca repository.ConnectedAccountRepository,
	ma repository.MediaAssetRepository,
	pm repository.PostMediaRepository,
	store MediaStore) PostService {
	return &postService{
		db:    db,
		pr:    pr,
		ca:    ca,
		ma:    ma,
		pm:    pm,
		store: store,
	}
}

// Create validates the form, uploads media once, and creates one Post
// row per target account, all inside a single transaction.
func (s *postService) Create(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) ([]int64, error) {
	if pc == nil {
		return nil, apperrors.NewValidation("post creation data is nil")
	}
	if pc.Caption == "" {
		return nil, apperrors.NewValidation("caption cannot be empty")
	}

	var scheduledFor *time.Time
	if pc.ScheduledFor != "" {
		t, err := time.Parse(scheduleLayout, pc.ScheduledFor)
		if err != nil {
			return nil, apperrors.NewValidation("invalid scheduled time format: %v", err)
		}
		scheduledFor = &t
	}

	var accountIDs []int64
	if err := json.Unmarshal([]byte(pc.Accounts), &accountIDs); err != nil {
		return nil, apperrors.NewValidation("invalid accounts format: %v", err)
	}
	if len(accountIDs) == 0 {
		return nil, apperrors.NewValidation("no connected accounts selected")
	}

	for _, accountID := range accountIDs {
		owned, err := s.ca.CheckByUserID(ctx, accountID, userID)
		if err != nil {
			return nil, fmt.Errorf("error checking connected account %d: %w", accountID, err)
		}
		if !owned {
			return nil, apperrors.NewValidation("connected account %d does not belong to you", accountID)
		}
	}

	postType := models.PostTypeSingle
	if len(files) > 1 {
		postType = models.PostTypeMultiple
	}

	status := models.PostStatusDraft
	if scheduledFor != nil {
		status = models.PostStatusScheduled
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	assetIDs, err := s.processFiles(ctx, tx, userID, files)
	if err != nil {
		return nil, err
	}

	postIDs := make([]int64, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		post := models.Post{
			UserID:       userID,
			AccountID:    accountID,
			PostType:     postType,
			Caption:      pc.Caption,
			Title:        pc.Title,
			ScheduledFor: scheduledFor,
			Status:       status,
		}

		postID, createErr := s.pr.Create(ctx, tx, &post)
		if createErr != nil {
			err = fmt.Errorf("error creating post: %w", createErr)
			return nil, err
		}

		for i, assetID := range assetIDs {
			postMedia := models.PostMedia{
				PostID:       postID,
				AssetID:      assetID,
				DisplayOrder: i,
			}
			if mediaErr := s.pm.Create(ctx, tx, &postMedia); mediaErr != nil {
				err = fmt.Errorf("error saving post media: %w", mediaErr)
				return nil, err
			}
		}

		postIDs = append(postIDs, postID)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return postIDs, nil
}

func (s *postService) processFiles(ctx context.Context, tx *sql.Tx, userID int64, files []*multipart.FileHeader) ([]int64, error) {
	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {},
	}

	assetIDs := make([]int64, 0, len(files))
	for _, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}

		fileBytes, err := io.ReadAll(fileContent)
		fileContent.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return nil, apperrors.NewValidation("unsupported file type")
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return nil, apperrors.NewValidation("file type %s is not allowed", fileType.Extension)
		}

		assetID, err := s.saveFile(ctx, tx, userID, fileType.MIME.Value, int64(len(fileBytes)), fileBytes)
		if err != nil {
			return nil, fmt.Errorf("error uploading file: %w", err)
		}

		assetIDs = append(assetIDs, assetID)
	}

	return assetIDs, nil
}

func (s *postService) saveFile(ctx context.Context, tx *sql.Tx, userID int64, contentType string, size int64, file []byte) (int64, error) {
	key, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	fileURL, err := s.store.Upload(ctx, key, file, contentType)
	if err != nil {
		return 0, err
	}

	ma := models.MediaAsset{
		UserID:   userID,
		FileName: key,
		FileType: contentType,
		FileSize: size,
		FileURL:  fileURL,
	}

	return s.ma.Create(ctx, tx, &ma)
}

// Update edits a draft, scheduled, or failed post. Setting a schedule
// time moves the post to scheduled, which is also the explicit re-entry
// path for a failed post. Clearing it parks the post in draft.
func (s *postService) Update(ctx context.Context, userID, postID int64, upd *transfer.PostUpdate) (*models.Post, error) {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	switch post.Status {
	case models.PostStatusPublishing, models.PostStatusPublished:
		return nil, apperrors.NewValidation("post in status %s cannot be edited", post.Status)
	}

	if upd.Caption != nil {
		if *upd.Caption == "" {
			return nil, apperrors.NewValidation("caption cannot be empty")
		}
		post.Caption = *upd.Caption
	}
	if upd.Title != nil {
		post.Title = *upd.Title
	}
	if upd.ScheduledFor != nil {
		if *upd.ScheduledFor == "" {
			post.ScheduledFor = nil
			post.Status = models.PostStatusDraft
		} else {
			t, parseErr := time.Parse(scheduleLayout, *upd.ScheduledFor)
			if parseErr != nil {
				return nil, apperrors.NewValidation("invalid scheduled time format: %v", parseErr)
			}
			post.ScheduledFor = &t
			post.Status = models.PostStatusScheduled
		}
	}

	if err := s.pr.UpdateContent(ctx, post); err != nil {
		if err == sql.ErrNoRows {
			// raced with a dispatch sweep; the claimed state wins
			return nil, apperrors.NewValidation("post is being published and cannot be edited")
		}
		return nil, fmt.Errorf("error updating post: %w", err)
	}

	return post, nil
}

func (s *postService) Info(ctx context.Context, postID, userID int64) (*models.Post, error) {
	if postID == 0 {
		return nil, apperrors.NewValidation("post id is not valid")
	}
	return s.ownedPost(ctx, userID, postID)
}

func (s *postService) List(ctx context.Context, userID int64, filter repository.PostFilter) ([]*models.Post, error) {
	if userID == 0 {
		return nil, apperrors.NewValidation("user id is not valid")
	}

	posts, err := s.pr.ListByUserID(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing posts")
	}
	return posts, nil
}

// Remove deletes the post and its media links. Deleting a published
// post does not retract it from the platform.
func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	if _, err := s.ownedPost(ctx, userID, postID); err != nil {
		return err
	}

	if err := s.pm.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post media: %w", err)
	}

	if err := s.pr.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post: %w", err)
	}

	return nil
}

// ownedPost distinguishes missing from foreign-owned so the API layer
// can decide whether to leak existence.
func (s *postService) ownedPost(ctx context.Context, userID, postID int64) (*models.Post, error) {
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
		slog.Info("post access rejected: owned by another user")
		return nil, apperrors.ErrForbidden
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, apperrors.ErrNotFound
	}

	return post, nil
}
