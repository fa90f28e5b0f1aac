package profile

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

// profileColumns is the canonical select list; every scan uses this order.
const profileColumns = `user_id, github, name, avatar, bio, location, website, twitter,
	followers, hireable, published, synced_at, created_at, updated_at`

// Repository provides profile persistence against PostgreSQL. The profiles
// table carries unique constraints on user_id and github, which back the
// one-profile-per-user and one-profile-per-login invariants.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByUserID retrieves the profile owned by the given user.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	return r.scanOne(ctx, q, userID)
}

// GetByLogin retrieves the profile for the given GitHub login.
func (r *Repository) GetByLogin(ctx context.Context, login string) (*Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM profiles WHERE github = $1`
	return r.scanOne(ctx, q, login)
}

// ListPublished returns every published profile ordered by followers
// descending, login ascending. The secondary order keeps the listing
// deterministic when follower counts tie.
func (r *Repository) ListPublished(ctx context.Context) ([]Profile, error) {
	q := `SELECT ` + profileColumns + `
		FROM profiles
		WHERE published = true
		ORDER BY followers DESC, github ASC`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListPublishedPage returns up to limit published profiles ordered by
// (followers DESC, github ASC), starting at the cursor row inclusive when a
// cursor is given. The caller passes limit+1 to detect a following page.
// Returns ErrInvalidCursor if the cursor names no published profile.
func (r *Repository) ListPublishedPage(ctx context.Context, cursor string, limit int) ([]Profile, error) {
	if cursor == "" {
		q := `SELECT ` + profileColumns + `
			FROM profiles
			WHERE published = true
			ORDER BY followers DESC, github ASC
			LIMIT $1`
		rows, err := r.db.Query(ctx, q, limit)
		if err != nil {
			return nil, fmt.Errorf("list page: %w", err)
		}
		defer rows.Close()
		return scanAll(rows)
	}

	// Anchor the keyset on the cursor row's position in the sort order.
	var anchorFollowers int
	err := r.db.QueryRow(ctx,
		`SELECT followers FROM profiles WHERE github = $1 AND published = true`,
		cursor,
	).Scan(&anchorFollowers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCursor
		}
		return nil, fmt.Errorf("resolve cursor: %w", err)
	}

	q := `SELECT ` + profileColumns + `
		FROM profiles
		WHERE published = true
		  AND (followers < $1 OR (followers = $1 AND github >= $2))
		ORDER BY followers DESC, github ASC
		LIMIT $3`
	rows, err := r.db.Query(ctx, q, anchorFollowers, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list page: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// Create inserts a new profile row. Sets CreatedAt/UpdatedAt on the profile.
// A unique-constraint collision on user_id or github maps to ErrProfileExists.
func (r *Repository) Create(ctx context.Context, p *Profile) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	q := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.Exec(ctx, q,
		p.UserID, p.GitHub, p.Name, p.Avatar, p.Bio, p.Location, p.Website, p.Twitter,
		p.Followers, p.Hireable, p.Published, p.SyncedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrProfileExists
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// RefreshByLogin writes freshly fetched GitHub fields and a new synced_at
// onto the profile with the given login, returning the updated row.
// Used by the bulk sync path, which is keyed by login.
func (r *Repository) RefreshByLogin(ctx context.Context, login string, f GitHubFields, syncedAt time.Time) (*Profile, error) {
	q := `
		UPDATE profiles
		SET name = $2, avatar = $3, bio = $4, location = $5, website = $6,
		    twitter = $7, followers = $8, hireable = $9, synced_at = $10,
		    updated_at = $11
		WHERE github = $1
		RETURNING ` + profileColumns
	return r.scanOne(ctx, q,
		login, f.Name, f.Avatar, f.Bio, f.Location, f.Website,
		f.Twitter, f.Followers, f.Hireable, syncedAt, time.Now().UTC(),
	)
}

// RefreshByUserID writes fetched GitHub fields, a new synced_at, and the
// published flag onto the user's profile, returning the updated row. Used by
// the publish path; the login is rewritten too, so a renamed GitHub account
// converges on its current login.
func (r *Repository) RefreshByUserID(ctx context.Context, userID uuid.UUID, f GitHubFields, syncedAt time.Time, published bool) (*Profile, error) {
	q := `
		UPDATE profiles
		SET github = $2, name = $3, avatar = $4, bio = $5, location = $6,
		    website = $7, twitter = $8, followers = $9, hireable = $10,
		    published = $11, synced_at = $12, updated_at = $13
		WHERE user_id = $1
		RETURNING ` + profileColumns
	return r.scanOne(ctx, q,
		userID, f.Login, f.Name, f.Avatar, f.Bio, f.Location,
		f.Website, f.Twitter, f.Followers, f.Hireable, published, syncedAt, time.Now().UTC(),
	)
}

// SetPublished flips only the published flag, leaving synced_at and the
// displayable fields untouched.
func (r *Repository) SetPublished(ctx context.Context, userID uuid.UUID, published bool) (*Profile, error) {
	q := `
		UPDATE profiles
		SET published = $2, updated_at = $3
		WHERE user_id = $1
		RETURNING ` + profileColumns
	return r.scanOne(ctx, q, userID, published, time.Now().UTC())
}

// CountPublished returns the number of published profiles. Feeds the
// leaderboard gauge.
func (r *Repository) CountPublished(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE published = true`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count published: %w", err)
	}
	return n, nil
}

// scanOne executes a single-row query and scans the result into a Profile.
func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*Profile, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	p, err := scanProfile(rows)
	if err != nil {
		return nil, err
	}
	return p, rows.Err()
}

func scanAll(rows pgx.Rows) ([]Profile, error) {
	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanProfile(rows pgx.Rows) (*Profile, error) {
	var p Profile
	if err := rows.Scan(
		&p.UserID, &p.GitHub, &p.Name, &p.Avatar, &p.Bio, &p.Location, &p.Website, &p.Twitter,
		&p.Followers, &p.Hireable, &p.Published, &p.SyncedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}
