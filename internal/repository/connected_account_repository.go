package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/crossposthq/crosspost/internal/models"
)

type ConnectedAccountRepository interface {
	Upsert(ctx context.Context, tx *sql.Tx, ca *models.ConnectedAccount) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ConnectedAccount, error)
	ListInfoByUserID(ctx context.Context, userID int64) ([]*models.ConnectedAccount, error)
	ListExpiringBetween(ctx context.Context, initialTime, finalTime time.Time) ([]*models.ConnectedAccount, error)
	CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error)
	SetToken(ctx context.Context, accountID int64, ca *models.ConnectedAccount) error
	Remove(ctx context.Context, id int64) error
}

type connectedAccountRepository struct {
	db *sql.DB
}

func NewConnectedAccountRepository(db *sql.DB) ConnectedAccountRepository {
	return &connectedAccountRepository{db: db}
}

// Upsert inserts a linked account or, when the (user_id, platform,
// account_id) triple already exists, refreshes its tokens and profile
// fields in place. Linking the same remote account twice never
// duplicates the row.
func (r *connectedAccountRepository) Upsert(ctx context.Context, tx *sql.Tx, ca *models.ConnectedAccount) (int64, error) {
	var err error
	var id int64

	var upsertQuery = `
			INSERT INTO connected_accounts(
				user_id,
				platform,
				account_id,
				account_name,
				account_username,
				profile_picture_url,
				access_token,
				refresh_token,
				token_expires_at,
				account_status
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (user_id, platform, account_id) DO UPDATE SET
				account_name = EXCLUDED.account_name,
				account_username = EXCLUDED.account_username,
				profile_picture_url = EXCLUDED.profile_picture_url,
				access_token = EXCLUDED.access_token,
				refresh_token = EXCLUDED.refresh_token,
				token_expires_at = EXCLUDED.token_expires_at,
				account_status = EXCLUDED.account_status,
				updated_at = CURRENT_TIMESTAMP
			RETURNING id
		`

	if tx != nil {
		err = tx.QueryRowContext(ctx, upsertQuery,
			ca.UserID,
			ca.Platform,
			ca.AccountID,
			ca.AccountName,
			ca.AccountUsername,
			ca.ProfilePicture,
			ca.AccessToken,
			ca.RefreshToken,
			ca.TokenExpiresAt,
			ca.AccountStatus,
		).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, upsertQuery,
			ca.UserID,
			ca.Platform,
			ca.AccountID,
			ca.AccountName,
			ca.AccountUsername,
			ca.ProfilePicture,
			ca.AccessToken,
			ca.RefreshToken,
			ca.TokenExpiresAt,
			ca.AccountStatus,
		).Scan(&id)
	}

	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *connectedAccountRepository) GetByID(ctx context.Context, id int64) (*models.ConnectedAccount, error) {
	query := `SELECT id, user_id, platform, account_id, account_name, account_username,
		profile_picture_url, access_token, refresh_token, token_expires_at,
		account_status, created_at, updated_at
		FROM connected_accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var ca models.ConnectedAccount
	err := row.Scan(&ca.ID, &ca.UserID, &ca.Platform, &ca.AccountID, &ca.AccountName,
		&ca.AccountUsername, &ca.ProfilePicture, &ca.AccessToken, &ca.RefreshToken,
		&ca.TokenExpiresAt, &ca.AccountStatus, &ca.CreatedAt, &ca.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &ca, nil
}

// ListInfoByUserID selects the non-secret columns only. Listing callers
// never see token ciphertext.
func (r *connectedAccountRepository) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.ConnectedAccount, error) {
	query := `SELECT id, platform, account_id, account_name, account_username,
		profile_picture_url, account_status
		FROM connected_accounts WHERE user_id = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.ConnectedAccount
	for rows.Next() {
		var ca models.ConnectedAccount
		err := rows.Scan(&ca.ID, &ca.Platform, &ca.AccountID, &ca.AccountName,
			&ca.AccountUsername, &ca.ProfilePicture, &ca.AccountStatus)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &ca)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return accounts, nil
}

func (r *connectedAccountRepository) ListExpiringBetween(ctx context.Context, initialTime, finalTime time.Time) ([]*models.ConnectedAccount, error) {
	query := `SELECT
			id,
			user_id,
			platform,
			refresh_token,
			token_expires_at
			FROM connected_accounts
			WHERE (token_expires_at BETWEEN $1 AND $2)
			OR (token_expires_at < $1)`
	rows, err := r.db.QueryContext(ctx, query, initialTime, finalTime)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.ConnectedAccount
	for rows.Next() {
		var ca models.ConnectedAccount
		err := rows.Scan(&ca.ID, &ca.UserID, &ca.Platform, &ca.RefreshToken, &ca.TokenExpiresAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &ca)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return accounts, nil
}

func (r *connectedAccountRepository) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	query := "SELECT 1 FROM connected_accounts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *connectedAccountRepository) SetToken(ctx context.Context, accountID int64, ca *models.ConnectedAccount) error {
	query := `
		UPDATE connected_accounts
		SET
			access_token = COALESCE(NULLIF($2, ''), access_token),
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expires_at = COALESCE($4, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, accountID, ca.AccessToken, ca.RefreshToken, ca.TokenExpiresAt)
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
		slog.Info("no rows affected; account may not exist")
		return sql.ErrNoRows
	}

	return nil
}

func (r *connectedAccountRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM connected_accounts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
