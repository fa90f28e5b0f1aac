// Package profile implements the Octodevs profile domain: the GitHub-backed
// profile records, the sync engine that keeps them fresh, and the cursor
// pagination over the published leaderboard.
package profile

import (
	"time"

	"github.com/google/uuid"

	"github.com/octodevs/octodevs/internal/github"
)

// Profile is one user's publishable GitHub-derived record. A user owns at
// most one profile, and a GitHub login belongs to at most one profile; both
// are unique keys in storage.
type Profile struct {
	UserID    uuid.UUID `json:"user_id"   db:"user_id"`
	GitHub    string    `json:"github"    db:"github"`
	Name      string    `json:"name"      db:"name"`
	Avatar    string    `json:"avatar"    db:"avatar"`
	Bio       string    `json:"bio"       db:"bio"`
	Location  string    `json:"location"  db:"location"`
	Website   string    `json:"website"   db:"website"`
	Twitter   string    `json:"twitter"   db:"twitter"`
	Followers int       `json:"followers" db:"followers"`
	Hireable  bool      `json:"hireable"  db:"hireable"`
	Published bool      `json:"published" db:"published"`
	// SyncedAt is the time of the last successful GitHub fetch. Local-only
	// mutations (unpublish) never touch it.
	SyncedAt  time.Time `json:"synced_at"  db:"synced_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// GitHubFields are the displayable fields a GitHub user record maps onto.
// They are written as a unit whenever a profile is refreshed.
type GitHubFields struct {
	Login     string
	Name      string
	Avatar    string
	Bio       string
	Location  string
	Website   string
	Twitter   string
	Followers int
	Hireable  bool
}

// MapGitHubUser converts an upstream user record into profile fields.
// Absent nullable fields become empty strings; a null hireable becomes false.
func MapGitHubUser(u *github.User) GitHubFields {
	return GitHubFields{
		Login:     u.Login,
		Name:      deref(u.Name),
		Avatar:    u.AvatarURL,
		Bio:       deref(u.Bio),
		Location:  deref(u.Location),
		Website:   deref(u.Blog),
		Twitter:   deref(u.Twitter),
		Followers: u.Followers,
		Hireable:  u.Hireable != nil && *u.Hireable,
	}
}

// apply writes the fields onto a profile.
func (f GitHubFields) apply(p *Profile) {
	p.GitHub = f.Login
	p.Name = f.Name
	p.Avatar = f.Avatar
	p.Bio = f.Bio
	p.Location = f.Location
	p.Website = f.Website
	p.Twitter = f.Twitter
	p.Followers = f.Followers
	p.Hireable = f.Hireable
}

// Page is one slice of the published leaderboard. NextCursor is empty on the
// last page; otherwise it is the GitHub login anchoring the next page.
type Page struct {
	Profiles   []Profile `json:"profiles"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
