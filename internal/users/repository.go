package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a user lookup finds no matching record.
var ErrNotFound = errors.New("user not found")

// ErrNoLinkedAccount is returned when a user has no GitHub account linked,
// or the linked account carries no access token.
var ErrNoLinkedAccount = errors.New("no linked github account")

// ErrDuplicateEmail is returned when an insert collides with a registered email.
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository provides CRUD operations for users against PostgreSQL.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user record. Sets ID, CreatedAt, UpdatedAt on the user.
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	q := `
		INSERT INTO users (id, email, name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, q, u.ID, u.Email, u.Name, u.AvatarURL, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their internal UUID.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanOne(ctx, `SELECT id, email, name, avatar_url, created_at, updated_at FROM users WHERE id = $1`, id)
}

// GetByGitHubID retrieves the user linked to the given GitHub account ID.
func (r *UserRepository) GetByGitHubID(ctx context.Context, githubID int64) (*User, error) {
	q := `
		SELECT u.id, u.email, u.name, u.avatar_url, u.created_at, u.updated_at
		FROM users u
		JOIN github_accounts g ON g.user_id = u.id
		WHERE g.github_id = $1`
	return r.scanOne(ctx, q, githubID)
}

// LinkGitHub attaches a GitHub identity to a user, or refreshes the stored
// login and access token if the identity is already linked.
func (r *UserRepository) LinkGitHub(ctx context.Context, userID uuid.UUID, githubID int64, login, accessToken string) error {
	now := time.Now().UTC()
	q := `
		INSERT INTO github_accounts (id, user_id, github_id, login, access_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (github_id) DO UPDATE
		SET login = EXCLUDED.login, access_token = EXCLUDED.access_token, updated_at = EXCLUDED.updated_at`
	_, err := r.db.Exec(ctx, q, uuid.New(), userID, githubID, login, accessToken, now)
	if err != nil {
		return fmt.Errorf("link github account: %w", err)
	}
	return nil
}

// AccessToken returns the stored OAuth access token for the user's linked
// GitHub account. Returns ErrNoLinkedAccount when absent or empty.
func (r *UserRepository) AccessToken(ctx context.Context, userID uuid.UUID) (string, error) {
	var token string
	q := `SELECT access_token FROM github_accounts WHERE user_id = $1`
	if err := r.db.QueryRow(ctx, q, userID).Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoLinkedAccount
		}
		return "", fmt.Errorf("query access token: %w", err)
	}
	if token == "" {
		return "", ErrNoLinkedAccount
	}
	return token, nil
}

// UpdateIdentity refreshes the display fields we mirror from GitHub.
func (r *UserRepository) UpdateIdentity(ctx context.Context, userID uuid.UUID, name, avatarURL string) error {
	q := `UPDATE users SET name = $2, avatar_url = $3, updated_at = $4 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, userID, name, avatarURL, time.Now().UTC())
	return err
}

// scanOne executes a single-row query and scans the result into a User.
func (r *UserRepository) scanOne(ctx context.Context, q string, args ...any) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&u.ID, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
