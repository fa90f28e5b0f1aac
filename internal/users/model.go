package users

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated Octodevs account holder. Accounts are
// created through GitHub OAuth only; there is no password login.
type User struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	Email     string    `json:"email"      db:"email"`
	Name      string    `json:"name"       db:"name"`
	AvatarURL string    `json:"avatar_url" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// GitHubAccount links a user to their GitHub identity and holds the OAuth
// access token used for authenticated API calls on their behalf.
type GitHubAccount struct {
	ID          uuid.UUID `json:"id"           db:"id"`
	UserID      uuid.UUID `json:"user_id"      db:"user_id"`
	GitHubID    int64     `json:"github_id"    db:"github_id"`
	Login       string    `json:"login"        db:"login"`
	AccessToken string    `json:"-"            db:"access_token"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"   db:"updated_at"`
}
