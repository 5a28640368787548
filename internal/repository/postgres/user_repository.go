package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/trendz-app/auth-service/internal/client"
	"github.com/trendz-app/auth-service/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")
)

const uniqueViolation = "23505"

const userColumns = `id, email, username, password_hash, is_verified,
	display_name, bio, avatar_url, followers, following, created_at, updated_at`

// UserRepository is the Postgres-backed credential and profile store
type UserRepository struct {
	db *client.PostgresClient
}

func NewUserRepository(db *client.PostgresClient) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new unverified account. Conflicts on email or username
// are reported as distinct errors so the caller can name the taken field.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, display_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_verified, followers, following, created_at, updated_at`

	err := r.db.Pool.QueryRow(ctx, query,
		user.Email, user.Username, user.PasswordHash, user.DisplayName,
	).Scan(&user.ID, &user.IsVerified, &user.Followers, &user.Following,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return ErrEmailTaken
			}
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanUser(r.db.Pool.QueryRow(ctx, query, username))
}

// MarkVerified flips the verification flag after a successful OTP check
func (r *UserRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfile persists the mutable profile fields
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET display_name = $2, bio = $3, avatar_url = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query,
		user.ID, user.DisplayName, user.Bio, user.AvatarURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash,
		&user.IsVerified, &user.DisplayName, &user.Bio, &user.AvatarURL,
		&user.Followers, &user.Following, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
