package profile_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/octodevs/octodevs/internal/github"
	"github.com/octodevs/octodevs/internal/profile"
	"github.com/octodevs/octodevs/internal/users"
)

// ── Stub repo ─────────────────────────────────────────────────────────────

type stubProfileRepo struct {
	mu      sync.RWMutex
	byUser  map[uuid.UUID]*profile.Profile
	byLogin map[string]uuid.UUID

	listErr    error // forced failure for ListPublished
	refreshErr error // forced failure for RefreshByLogin
}

func newStubProfileRepo() *stubProfileRepo {
	return &stubProfileRepo{
		byUser:  make(map[uuid.UUID]*profile.Profile),
		byLogin: make(map[string]uuid.UUID),
	}
}

func (r *stubProfileRepo) put(p profile.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.byUser[p.UserID] = &cp
	r.byLogin[p.GitHub] = p.UserID
}

func (r *stubProfileRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*profile.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byUser[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// published returns the published set ordered by (followers DESC, github ASC),
// mirroring the SQL repository's ordering contract.
func (r *stubProfileRepo) published() []profile.Profile {
	var out []profile.Profile
	for _, p := range r.byUser {
		if p.Published {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Followers != out[j].Followers {
			return out[i].Followers > out[j].Followers
		}
		return out[i].GitHub < out[j].GitHub
	})
	return out
}

func (r *stubProfileRepo) ListPublished(_ context.Context) ([]profile.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.published(), nil
}

func (r *stubProfileRepo) ListPublishedPage(_ context.Context, cursor string, limit int) ([]profile.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.published()

	start := 0
	if cursor != "" {
		start = -1
		for i, p := range all {
			if p.GitHub == cursor {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, profile.ErrInvalidCursor
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *stubProfileRepo) Create(_ context.Context, p *profile.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUser[p.UserID]; exists {
		return profile.ErrProfileExists
	}
	if _, exists := r.byLogin[p.GitHub]; exists {
		return profile.ErrProfileExists
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	r.byUser[p.UserID] = &cp
	r.byLogin[p.GitHub] = p.UserID
	return nil
}

func (r *stubProfileRepo) RefreshByLogin(_ context.Context, login string, f profile.GitHubFields, syncedAt time.Time) (*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refreshErr != nil {
		return nil, r.refreshErr
	}
	id, ok := r.byLogin[login]
	if !ok {
		return nil, profile.ErrNotFound
	}
	p := r.byUser[id]
	applyFields(p, f, false)
	p.SyncedAt = syncedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (r *stubProfileRepo) RefreshByUserID(_ context.Context, userID uuid.UUID, f profile.GitHubFields, syncedAt time.Time, published bool) (*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUser[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	delete(r.byLogin, p.GitHub)
	applyFields(p, f, true)
	r.byLogin[p.GitHub] = userID
	p.Published = published
	p.SyncedAt = syncedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (r *stubProfileRepo) SetPublished(_ context.Context, userID uuid.UUID, published bool) (*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUser[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	p.Published = published
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func applyFields(p *profile.Profile, f profile.GitHubFields, withLogin bool) {
	if withLogin {
		p.GitHub = f.Login
	}
	p.Name = f.Name
	p.Avatar = f.Avatar
	p.Bio = f.Bio
	p.Location = f.Location
	p.Website = f.Website
	p.Twitter = f.Twitter
	p.Followers = f.Followers
	p.Hireable = f.Hireable
}

// ── Stub GitHub API ───────────────────────────────────────────────────────

type stubGitHub struct {
	mu        sync.Mutex
	users     map[string]*github.User // by login
	authed    map[string]*github.User // by token
	failing   map[string]bool         // logins whose fetch fails
	byLoginN  int
	authedN   int
}

func newStubGitHub() *stubGitHub {
	return &stubGitHub{
		users:   make(map[string]*github.User),
		authed:  make(map[string]*github.User),
		failing: make(map[string]bool),
	}
}

func (g *stubGitHub) UserByLogin(_ context.Context, login string) (*github.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byLoginN++
	if g.failing[login] {
		return nil, fmt.Errorf("%w: status 502", github.ErrUnavailable)
	}
	u, ok := g.users[login]
	if !ok {
		return nil, fmt.Errorf("%w: status 404", github.ErrUnavailable)
	}
	cp := *u
	return &cp, nil
}

func (g *stubGitHub) AuthenticatedUser(_ context.Context, token string) (*github.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authedN++
	u, ok := g.authed[token]
	if !ok {
		return nil, fmt.Errorf("%w: status 401", github.ErrUnavailable)
	}
	cp := *u
	return &cp, nil
}

func (g *stubGitHub) fetchCounts() (byLogin, authed int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byLoginN, g.authedN
}

// ── Stub token source ─────────────────────────────────────────────────────

type stubTokens struct {
	tokens map[uuid.UUID]string
}

func (s *stubTokens) AccessToken(_ context.Context, userID uuid.UUID) (string, error) {
	tok, ok := s.tokens[userID]
	if !ok {
		return "", users.ErrNoLinkedAccount
	}
	return tok, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────

func ghUser(login string, followers int) *github.User {
	name := "Dev " + login
	return &github.User{Login: login, Name: &name, AvatarURL: "https://avatars.example/" + login, Followers: followers}
}

func storedProfile(login string, followers int, syncedAgo time.Duration, published bool) profile.Profile {
	return profile.Profile{
		UserID:    uuid.New(),
		GitHub:    login,
		Name:      "Dev " + login,
		Followers: followers,
		Published: published,
		SyncedAt:  time.Now().UTC().Add(-syncedAgo),
	}
}

func newTestService(repo *stubProfileRepo, gh *stubGitHub, tokens *stubTokens) *profile.Service {
	if tokens == nil {
		tokens = &stubTokens{tokens: map[uuid.UUID]string{}}
	}
	return profile.NewService(repo, gh, tokens, nil, zap.NewNop())
}

// ── PublishedProfiles ─────────────────────────────────────────────────────

func TestPublishedProfilesStalenessGate(t *testing.T) {
	repo := newStubProfileRepo()
	gh := newStubGitHub()

	repo.put(storedProfile("fresh", 10, time.Hour, true))
	repo.put(storedProfile("stale", 20, 25*time.Hour, true))
	gh.users["fresh"] = ghUser("fresh", 11)
	gh.users["stale"] = ghUser("stale", 21)

	svc := newTestService(repo, gh, nil)
	out, err := svc.PublishedProfiles(context.Background())
	if err != nil {
		t.Fatalf("PublishedProfiles: %v", err)
	}

	if n, _ := gh.fetchCounts(); n != 1 {
		t.Errorf("GitHub fetches = %d, want 1 (only the stale profile)", n)
	}

	byLogin := indexByLogin(out)
	if byLogin["fresh"].Followers != 10 {
		t.Errorf("fresh profile must keep stored data, got %d followers", byLogin["fresh"].Followers)
	}
	if byLogin["stale"].Followers != 21 {
		t.Errorf("stale profile must be refreshed, got %d followers", byLogin["stale"].Followers)
	}
}

func TestPublishedProfilesPartialFailureIsolation(t *testing.T) {
	repo := newStubProfileRepo()
	gh := newStubGitHub()

	repo.put(storedProfile("broken", 30, 48*time.Hour, true))
	repo.put(storedProfile("working", 40, 48*time.Hour, true))
	gh.users["working"] = ghUser("working", 44)
	gh.failing["broken"] = true

	svc := newTestService(repo, gh, nil)
	out, err := svc.PublishedProfiles(context.Background())
	if err != nil {
		t.Fatalf("call must succeed despite a per-item fetch failure: %v", err)
	}

	byLogin := indexByLogin(out)
	if byLogin["working"].Followers != 44 {
		t.Errorf("working = %d followers, want refreshed 44", byLogin["working"].Followers)
	}
	if byLogin["broken"].Followers != 30 {
		t.Errorf("broken = %d followers, want prior stored 30", byLogin["broken"].Followers)
	}

	// The failed fetch must not have written anything.
	stored, err := repo.GetByUserID(context.Background(), byLogin["broken"].UserID)
	if err != nil {
		t.Fatalf("GetByUserID: %v", err)
	}
	if time.Since(stored.SyncedAt) < 47*time.Hour {
		t.Error("synced_at must be untouched on fetch failure")
	}
}

func TestPublishedProfilesDedupAndSortInvariants(t *testing.T) {
	repo := newStubProfileRepo()
	gh := newStubGitHub()

	for i, login := range []string{"a", "b", "c", "d", "e"} {
		age := time.Hour
		if i%2 == 0 {
			age = 30 * time.Hour
		}
		repo.put(storedProfile(login, 100-i*7, age, true))
		gh.users[login] = ghUser(login, 200+i)
	}

	svc := newTestService(repo, gh, nil)
	out, err := svc.PublishedProfiles(context.Background())
	if err != nil {
		t.Fatalf("PublishedProfiles: %v", err)
	}

	seen := make(map[string]bool)
	for _, p := range out {
		if seen[p.GitHub] {
			t.Fatalf("duplicate login %q in result", p.GitHub)
		}
		seen[p.GitHub] = true
	}
	for i := 1; i < len(out); i++ {
		if out[i].Followers > out[i-1].Followers {
			t.Fatalf("result not non-increasing by followers at index %d", i)
		}
	}
}

func TestPublishedProfilesStorageFailureIsFatal(t *testing.T) {
	repo := newStubProfileRepo()
	repo.listErr = errors.New("connection reset")

	svc := newTestService(repo, newStubGitHub(), nil)
	if _, err := svc.PublishedProfiles(context.Background()); err == nil {
		t.Fatal("storage read failure must fail the whole call")
	}
}

func TestPublishedProfilesRefreshWriteFailureIsFatal(t *testing.T) {
	repo := newStubProfileRepo()
	gh := newStubGitHub()
	repo.put(storedProfile("stale", 5, 48*time.Hour, true))
	gh.users["stale"] = ghUser("stale", 6)
	repo.refreshErr = errors.New("disk full")

	svc := newTestService(repo, gh, nil)
	if _, err := svc.PublishedProfiles(context.Background()); err == nil {
		t.Fatal("storage write failure must fail the whole call")
	}
}

// ── Paginated ─────────────────────────────────────────────────────────────

func TestPaginatedExactness(t *testing.T) {
	repo := newStubProfileRepo()
	for i := 0; i < 17; i++ {
		repo.put(storedProfile(fmt.Sprintf("dev%02d", i), 1000-i, time.Hour, true))
	}

	svc := newTestService(repo, newStubGitHub(), nil)
	ctx := context.Background()

	var all []profile.Profile
	cursor := ""
	var lengths []int
	for {
		page, err := svc.Paginated(ctx, 8, cursor)
		if err != nil {
			t.Fatalf("Paginated: %v", err)
		}
		lengths = append(lengths, len(page.Profiles))
		all = append(all, page.Profiles...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if len(lengths) != 3 || lengths[0] != 8 || lengths[1] != 8 || lengths[2] != 1 {
		t.Fatalf("page lengths = %v, want [8 8 1]", lengths)
	}
	if len(all) != 17 {
		t.Fatalf("concatenated length = %d, want 17", len(all))
	}
	seen := make(map[string]bool)
	for i, p := range all {
		if seen[p.GitHub] {
			t.Fatalf("duplicate %q across pages", p.GitHub)
		}
		seen[p.GitHub] = true
		want := fmt.Sprintf("dev%02d", i)
		if p.GitHub != want {
			t.Fatalf("position %d = %q, want %q", i, p.GitHub, want)
		}
	}
}

func TestPaginatedLimitValidation(t *testing.T) {
	repo := newStubProfileRepo()
	svc := newTestService(repo, newStubGitHub(), nil)
	ctx := context.Background()

	for _, limit := range []int{-1, 51, 100} {
		if _, err := svc.Paginated(ctx, limit, ""); !errors.Is(err, profile.ErrInvalidLimit) {
			t.Errorf("limit %d: err = %v, want ErrInvalidLimit", limit, err)
		}
	}

	// Zero selects the default.
	for i := 0; i < 12; i++ {
		repo.put(storedProfile(fmt.Sprintf("u%02d", i), 50-i, time.Hour, true))
	}
	page, err := svc.Paginated(ctx, 0, "")
	if err != nil {
		t.Fatalf("Paginated: %v", err)
	}
	if len(page.Profiles) != profile.DefaultPageLimit {
		t.Errorf("default page length = %d, want %d", len(page.Profiles), profile.DefaultPageLimit)
	}
	if page.NextCursor == "" {
		t.Error("expected a next cursor with 12 rows and limit 10")
	}
}

func TestPaginatedUnknownCursor(t *testing.T) {
	repo := newStubProfileRepo()
	repo.put(storedProfile("alice", 10, time.Hour, true))

	svc := newTestService(repo, newStubGitHub(), nil)
	if _, err := svc.Paginated(context.Background(), 8, "nobody"); !errors.Is(err, profile.ErrInvalidCursor) {
		t.Errorf("err = %v, want ErrInvalidCursor", err)
	}
}

func TestPaginatedNeverSyncs(t *testing.T) {
	repo := newStubProfileRepo()
	gh := newStubGitHub()
	repo.put(storedProfile("ancient", 10, 1000*time.Hour, true))
	gh.users["ancient"] = ghUser("ancient", 99)

	svc := newTestService(repo, gh, nil)
	if _, err := svc.Paginated(context.Background(), 8, ""); err != nil {
		t.Fatalf("Paginated: %v", err)
	}
	if n, _ := gh.fetchCounts(); n != 0 {
		t.Errorf("paginated path performed %d GitHub fetches, want 0", n)
	}
}

// ── Publish / Unpublish ───────────────────────────────────────────────────

func TestPublishCreatesFromAuthenticatedFetch(t *testing.T) {
	repo := newStubProfileRepo()
	gh := newStubGitHub()
	userID := uuid.New()
	gh.authed["gho_tok"] = ghUser("newdev", 7)
	tokens := &stubTokens{tokens: map[uuid.UUID]string{userID: "gho_tok"}}

	svc := newTestService(repo, gh, tokens)
	p, err := svc.Publish(context.Background(), userID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if !p.Published {
		t.Error("published must be true")
	}
	if p.GitHub != "newdev" || p.Followers != 7 {
		t.Errorf("profile = %+v", p)
	}
	if p.SyncedAt.IsZero() {
		t.Error("synced_at must be set on create")
	}
}

func TestPublishIdempotentWithinFreshnessWindow(t *testing.T) {
	repo := newStubProfileRepo()
	gh := newStubGitHub()
	userID := uuid.New()
	gh.authed["gho_tok"] = ghUser("dev", 7)
	tokens := &stubTokens{tokens: map[uuid.UUID]string{userID: "gho_tok"}}

	svc := newTestService(repo, gh, tokens)
	ctx := context.Background()

	if _, err := svc.Publish(ctx, userID); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	p, err := svc.Publish(ctx, userID)
	if err != nil {
		t.Fatalf("second Publish: %v", err)
	}

	if _, authed := gh.fetchCounts(); authed != 1 {
		t.Errorf("authenticated fetches = %d, want exactly 1", authed)
	}
	if !p.Published {
		t.Error("published must remain true")
	}
}

func TestPublishRefreshesOutsideFreshnessWindow(t *testing.T) {
	repo := newStubProfileRepo()
	gh := newStubGitHub()
	old := storedProfile("dev", 7, 11*time.Minute, false)
	repo.put(old)
	gh.authed["gho_tok"] = ghUser("dev", 9)
	tokens := &stubTokens{tokens: map[uuid.UUID]string{old.UserID: "gho_tok"}}

	svc := newTestService(repo, gh, tokens)
	p, err := svc.Publish(context.Background(), old.UserID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if _, authed := gh.fetchCounts(); authed != 1 {
		t.Errorf("authenticated fetches = %d, want 1", authed)
	}
	if p.Followers != 9 || !p.Published {
		t.Errorf("profile = %+v, want refreshed and published", p)
	}
	if time.Since(p.SyncedAt) > time.Minute {
		t.Error("synced_at must be refreshed")
	}
}

func TestPublishNoLinkedAccount(t *testing.T) {
	svc := newTestService(newStubProfileRepo(), newStubGitHub(), nil)
	_, err := svc.Publish(context.Background(), uuid.New())
	if !errors.Is(err, users.ErrNoLinkedAccount) {
		t.Errorf("err = %v, want ErrNoLinkedAccount", err)
	}
}

func TestPublishUpstreamFailureIsFatal(t *testing.T) {
	repo := newStubProfileRepo()
	gh := newStubGitHub() // no authed entry → 401
	userID := uuid.New()
	tokens := &stubTokens{tokens: map[uuid.UUID]string{userID: "gho_revoked"}}

	svc := newTestService(repo, gh, tokens)
	_, err := svc.Publish(context.Background(), userID)
	if !errors.Is(err, github.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if _, gerr := repo.GetByUserID(context.Background(), userID); !errors.Is(gerr, profile.ErrNotFound) {
		t.Error("no profile row may be created when the fetch fails")
	}
}

func TestUnpublishRetainsData(t *testing.T) {
	repo := newStubProfileRepo()
	stored := storedProfile("keeper", 123, time.Hour, true)
	stored.Bio = "likes compilers"
	repo.put(stored)

	svc := newTestService(repo, newStubGitHub(), nil)
	ctx := context.Background()

	p, err := svc.Unpublish(ctx, stored.UserID)
	if err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	if p.Published {
		t.Error("published must be false")
	}

	listing, err := svc.PublishedProfiles(ctx)
	if err != nil {
		t.Fatalf("PublishedProfiles: %v", err)
	}
	for _, lp := range listing {
		if lp.GitHub == "keeper" {
			t.Error("unpublished profile must not appear in the listing")
		}
	}

	kept, err := svc.Me(ctx, stored.UserID)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if kept.Bio != "likes compilers" || kept.Followers != 123 {
		t.Errorf("displayable fields must be unchanged, got %+v", kept)
	}
	if !kept.SyncedAt.Equal(stored.SyncedAt) {
		t.Error("synced_at must not move on unpublish")
	}
}

func TestUnpublishWithoutProfileIsNotFound(t *testing.T) {
	svc := newTestService(newStubProfileRepo(), newStubGitHub(), nil)
	if _, err := svc.Unpublish(context.Background(), uuid.New()); !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ── ResyncAll ─────────────────────────────────────────────────────────────

func TestResyncAllRefreshesEverythingAndAbsorbsFailures(t *testing.T) {
	repo := newStubProfileRepo()
	gh := newStubGitHub()

	repo.put(storedProfile("ok1", 5, time.Minute, true)) // fresh — still resynced
	repo.put(storedProfile("ok2", 6, 48*time.Hour, true))
	repo.put(storedProfile("bad", 7, 48*time.Hour, true))
	repo.put(storedProfile("hidden", 8, 48*time.Hour, false))
	gh.users["ok1"] = ghUser("ok1", 50)
	gh.users["ok2"] = ghUser("ok2", 60)
	gh.failing["bad"] = true

	svc := newTestService(repo, gh, nil)
	n, err := svc.ResyncAll(context.Background())
	if err != nil {
		t.Fatalf("ResyncAll: %v", err)
	}
	if n != 2 {
		t.Errorf("refreshed = %d, want 2", n)
	}
	if fetches, _ := gh.fetchCounts(); fetches != 3 {
		t.Errorf("fetches = %d, want 3 (unpublished rows are skipped)", fetches)
	}
}

func indexByLogin(ps []profile.Profile) map[string]profile.Profile {
	m := make(map[string]profile.Profile, len(ps))
	for _, p := range ps {
		m[p.GitHub] = p
	}
	return m
}
