package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/octodevs/octodevs/internal/github"
)

// Staleness policy. The listing tolerates a day-old snapshot; publish is the
// moment a user is looking at their own data, so it refreshes after minutes.
const (
	listStaleAfter    = 24 * time.Hour
	publishStaleAfter = 10 * time.Minute
)

// Page limits for the paginated listing.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50
)

// maxConcurrentFetches bounds in-flight GitHub calls during a bulk sync.
const maxConcurrentFetches = 10

// repo is the storage interface consumed by Service.
type repo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
	ListPublished(ctx context.Context) ([]Profile, error)
	ListPublishedPage(ctx context.Context, cursor string, limit int) ([]Profile, error)
	Create(ctx context.Context, p *Profile) error
	RefreshByLogin(ctx context.Context, login string, f GitHubFields, syncedAt time.Time) (*Profile, error)
	RefreshByUserID(ctx context.Context, userID uuid.UUID, f GitHubFields, syncedAt time.Time, published bool) (*Profile, error)
	SetPublished(ctx context.Context, userID uuid.UUID, published bool) (*Profile, error)
}

// githubAPI is the upstream interface consumed by Service.
type githubAPI interface {
	UserByLogin(ctx context.Context, login string) (*github.User, error)
	AuthenticatedUser(ctx context.Context, token string) (*github.User, error)
}

// tokenSource yields a user's stored GitHub access token. Satisfied by
// *users.Service; returns users.ErrNoLinkedAccount when none is stored.
type tokenSource interface {
	AccessToken(ctx context.Context, userID uuid.UUID) (string, error)
}

// SyncRecordFunc is an optional callback for recording per-profile sync
// results (success or failure), typically wired to metrics.
type SyncRecordFunc func(success bool)

// Service implements the profile sync engine and the leaderboard queries.
type Service struct {
	repo   repo
	gh     githubAPI
	tokens tokenSource
	cache  *ListingCache // nil disables listing caching
	onSync SyncRecordFunc
	logger *zap.Logger
}

// NewService creates a Service. cache may be nil.
func NewService(r repo, gh githubAPI, tokens tokenSource, cache *ListingCache, logger *zap.Logger) *Service {
	return &Service{repo: r, gh: gh, tokens: tokens, cache: cache, logger: logger}
}

// SetSyncRecord configures the sync-result recording callback.
func (s *Service) SetSyncRecord(fn SyncRecordFunc) {
	s.onSync = fn
}

// PublishedProfiles returns every published profile, refreshing any whose
// last sync is older than 24 hours. Refreshes run concurrently and fail
// independently: a profile whose GitHub fetch fails keeps its stored data
// and stays in the result. The result has no duplicate logins and is ordered
// by followers descending with a stable tiebreak.
//
// Only a storage failure aborts the call.
func (s *Service) PublishedProfiles(ctx context.Context) ([]Profile, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx); ok {
			return cached, nil
		}
	}

	profiles, err := s.repo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("load published profiles: %w", err)
	}

	now := time.Now().UTC()
	var stale []Profile
	for _, p := range profiles {
		if now.Sub(p.SyncedAt) > listStaleAfter {
			stale = append(stale, p)
		}
	}

	if len(stale) > 0 {
		refreshed, err := s.refreshFromGitHub(ctx, stale)
		if err != nil {
			return nil, err
		}
		profiles = MergeByLogin(profiles, refreshed)
	}

	SortByFollowers(profiles)

	if s.cache != nil {
		s.cache.Set(ctx, profiles)
	}
	return profiles, nil
}

// Paginated returns one page of the published leaderboard. limit must be in
// [1, 50]; 0 selects the default of 10. cursor, when set, must be a login
// returned as NextCursor by a previous page.
//
// This path never syncs with GitHub — it serves whatever storage holds.
// Freshness is enforced only on the bulk listing and on publish, so page
// views stay a single query instead of N upstream calls.
func (s *Service) Paginated(ctx context.Context, limit int, cursor string) (*Page, error) {
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit < 1 || limit > MaxPageLimit {
		return nil, ErrInvalidLimit
	}

	// Fetch one extra row: its presence means another page exists, and its
	// login anchors that page.
	rows, err := s.repo.ListPublishedPage(ctx, cursor, limit+1)
	if err != nil {
		if errors.Is(err, ErrInvalidCursor) {
			return nil, err
		}
		return nil, fmt.Errorf("load page: %w", err)
	}

	page := &Page{Profiles: rows}
	if len(rows) > limit {
		page.NextCursor = rows[limit].GitHub
		page.Profiles = rows[:limit]
	}
	if page.Profiles == nil {
		page.Profiles = []Profile{}
	}
	return page, nil
}

// Publish makes the user's profile visible in the public listing, creating
// it from their linked GitHub account on first publish. An existing profile
// is re-fetched from GitHub only when its last sync is older than 10
// minutes; otherwise the stored data is reused as-is.
//
// Error kinds the caller can branch on: users.ErrNoLinkedAccount (the user
// must reconnect GitHub), github.ErrUnavailable (retry later), anything else
// is a storage fault.
func (s *Service) Publish(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.publishNew(ctx, userID)
	case err != nil:
		return nil, fmt.Errorf("lookup profile: %w", err)
	}

	if time.Now().UTC().Sub(p.SyncedAt) > publishStaleAfter {
		return s.publishRefreshed(ctx, userID)
	}

	if !p.Published {
		p, err = s.repo.SetPublished(ctx, userID, true)
		if err != nil {
			return nil, fmt.Errorf("set published: %w", err)
		}
	}
	s.invalidateListing(ctx)
	return p, nil
}

// publishNew creates the profile row on first publish. The unique
// constraints on user_id and github are the backstop against two concurrent
// first publishes; losing the race downgrades to a refresh of the winner's
// row.
func (s *Service) publishNew(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	f, err := s.fetchAuthenticated(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Profile{UserID: userID, Published: true, SyncedAt: now}
	f.apply(p)

	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrProfileExists) {
			refreshed, uerr := s.repo.RefreshByUserID(ctx, userID, f, now, true)
			if uerr != nil {
				return nil, fmt.Errorf("refresh after create race: %w", uerr)
			}
			s.invalidateListing(ctx)
			return refreshed, nil
		}
		return nil, err
	}

	s.logger.Info("profile published",
		zap.String("user_id", userID.String()),
		zap.String("github", p.GitHub),
	)
	s.invalidateListing(ctx)
	return p, nil
}

// publishRefreshed re-fetches the authenticated record and writes all mapped
// fields plus a fresh synced_at, setting published in the same statement.
func (s *Service) publishRefreshed(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	f, err := s.fetchAuthenticated(ctx, userID)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.RefreshByUserID(ctx, userID, f, time.Now().UTC(), true)
	if err != nil {
		return nil, fmt.Errorf("refresh profile: %w", err)
	}
	s.invalidateListing(ctx)
	return p, nil
}

// fetchAuthenticated resolves the user's stored GitHub token and fetches
// their authenticated record. Both failure kinds pass through unwrapped so
// handlers can distinguish "reconnect GitHub" from "GitHub is down".
func (s *Service) fetchAuthenticated(ctx context.Context, userID uuid.UUID) (GitHubFields, error) {
	token, err := s.tokens.AccessToken(ctx, userID)
	if err != nil {
		return GitHubFields{}, err
	}
	u, err := s.gh.AuthenticatedUser(ctx, token)
	if err != nil {
		return GitHubFields{}, err
	}
	return MapGitHubUser(u), nil
}

// Unpublish hides the user's profile from the public listing. The row, its
// displayable fields, and synced_at all remain untouched, so a later publish
// inside the freshness window needs no GitHub call. Returns ErrNotFound when
// the user has never published.
func (s *Service) Unpublish(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	p, err := s.repo.SetPublished(ctx, userID, false)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("unpublish: %w", err)
	}
	s.invalidateListing(ctx)
	return p, nil
}

// Me returns the caller's own profile row without any sync.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// ResyncAll refreshes every published profile from GitHub by login,
// regardless of age. Individual fetch failures are absorbed; the call
// reports how many profiles were refreshed. Only a storage failure returns
// an error. This is the scheduled-trigger entry point.
func (s *Service) ResyncAll(ctx context.Context) (int, error) {
	profiles, err := s.repo.ListPublished(ctx)
	if err != nil {
		return 0, fmt.Errorf("load published profiles: %w", err)
	}

	refreshed, err := s.refreshFromGitHub(ctx, profiles)
	if err != nil {
		return 0, err
	}
	if len(refreshed) > 0 {
		s.invalidateListing(ctx)
	}

	s.logger.Info("bulk resync finished",
		zap.Int("published", len(profiles)),
		zap.Int("refreshed", len(refreshed)),
	)
	return len(refreshed), nil
}

// refreshFromGitHub fetches the given profiles from GitHub concurrently with
// bounded parallelism and writes each successful result back to storage.
// A failed fetch only drops that profile from the returned set; a storage
// write failure fails the whole call. Once ctx is cancelled no further
// fetches or writes are issued, but in-flight ones run to completion.
func (s *Service) refreshFromGitHub(ctx context.Context, stale []Profile) ([]Profile, error) {
	sem := make(chan struct{}, maxConcurrentFetches)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var refreshed []Profile
	var storageErr error

	for _, p := range stale {
		wg.Add(1)
		go func(login string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			u, err := s.gh.UserByLogin(ctx, login)
			if err != nil {
				s.record(false)
				s.logger.Warn("profile sync failed, keeping stored data",
					zap.String("github", login),
					zap.Error(err),
				)
				return
			}

			updated, err := s.repo.RefreshByLogin(ctx, login, MapGitHubUser(u), time.Now().UTC())
			if err != nil {
				s.record(false)
				mu.Lock()
				if storageErr == nil {
					storageErr = fmt.Errorf("store refreshed profile %s: %w", login, err)
				}
				mu.Unlock()
				return
			}

			s.record(true)
			mu.Lock()
			refreshed = append(refreshed, *updated)
			mu.Unlock()
		}(p.GitHub)
	}
	wg.Wait()

	if storageErr != nil {
		return nil, storageErr
	}
	return refreshed, nil
}

func (s *Service) record(success bool) {
	if s.onSync != nil {
		s.onSync(success)
	}
}

func (s *Service) invalidateListing(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}
