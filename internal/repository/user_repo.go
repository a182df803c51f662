package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/saeid-a/SigmaChatSync/internal/models"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, image, avatar_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, user.Name, user.Email, user.PasswordHash, user.Image, user.AvatarURL).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, image, avatar_url, fcm_token, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, image, avatar_url, fcm_token, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// UpdateFCMToken overwrites the routing token of a user. Writing the same
// token twice is harmless.
func (r *UserRepository) UpdateFCMToken(ctx context.Context, userID string, token string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET fcm_token = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *UserRepository) DeleteFCMToken(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET fcm_token = NULL, updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Image,
		&user.AvatarURL,
		&user.FCMToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
