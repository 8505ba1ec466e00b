package models

import (
	"encoding/json"
	"time"
)

// Post is one unit of content targeted at one connected account. Content
// fanned out to several accounts is stored as several rows sharing the
// same caption, not one row with many targets.
type Post struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	AccountID      int64           `db:"account_id" json:"account_id"`
	PostType       string          `db:"post_type" json:"post_type"`
	Caption        string          `db:"caption" json:"caption"`
	Title          string          `db:"title" json:"title"`
	ScheduledFor   *time.Time      `db:"scheduled_for" json:"scheduled_for,omitempty"`
	Status         string          `db:"status" json:"status"`
	PublishedAt    *time.Time      `db:"published_at" json:"published_at,omitempty"`
	PlatformPostID string          `db:"platform_post_id" json:"platform_post_id,omitempty"`
	Metrics        json.RawMessage `db:"metrics" json:"metrics,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

type MediaAsset struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	FileName     string    `db:"file_name"`
	FileType     string    `db:"file_type"`
	FileSize     int64     `db:"file_size"`
	FileURL      string    `db:"file_url"`
	ThumbnailURL string    `db:"thumbnail_url"`
	CreatedAt    time.Time `db:"created_at"`
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}

// Post statuses. published is terminal; failed re-enters scheduled only
// through an explicit reschedule.
const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

const (
	PostTypeSingle   = "single"
	PostTypeMultiple = "multiple"
)
