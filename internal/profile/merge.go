package profile

import "sort"

// MergeByLogin combines the stored listing with freshly refreshed rows,
// keyed by GitHub login. Where both sets contain a login the refreshed row
// wins. The order of existing is preserved, which keeps the follower sort's
// tiebreak deterministic across calls; refreshed logins not present in
// existing are appended.
func MergeByLogin(existing, refreshed []Profile) []Profile {
	if len(refreshed) == 0 {
		return existing
	}

	byLogin := make(map[string]Profile, len(refreshed))
	for _, p := range refreshed {
		byLogin[p.GitHub] = p
	}

	merged := make([]Profile, 0, len(existing))
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		if fresh, ok := byLogin[p.GitHub]; ok {
			p = fresh
		}
		merged = append(merged, p)
		seen[p.GitHub] = true
	}
	for _, p := range refreshed {
		if !seen[p.GitHub] {
			merged = append(merged, p)
		}
	}
	return merged
}

// SortByFollowers orders profiles by follower count, highest first. The sort
// is stable: equal follower counts keep their incoming order, so repeated
// calls over identical input produce identical sequences.
func SortByFollowers(ps []Profile) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Followers > ps[j].Followers
	})
}
