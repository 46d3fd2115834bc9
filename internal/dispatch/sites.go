package dispatch

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SiteResolver resolves free-text pickup/delivery descriptions to site ids
// through the backend's find-or-create operation, deduplicating identical
// texts within one batch. A resolver is scoped to a single batch run; the
// cache never outlives it and never holds failures, so a later line retries
// a text that failed. Safe for concurrent use by batch workers.
type SiteResolver struct {
	directory SiteDirectory
	group     singleflight.Group

	mu    sync.RWMutex
	cache map[string]string // normalized search text -> site id
}

// NewSiteResolver creates a resolver for one batch run.
func NewSiteResolver(directory SiteDirectory) *SiteResolver {
	return &SiteResolver{
		directory: directory,
		cache:     make(map[string]string),
	}
}

// Seed primes the cache from a sites snapshot so names the backend already
// knows resolve without a remote call. First entry wins for colliding names.
func (r *SiteResolver) Seed(sites []Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range sites {
		key := normalizeSiteKey(s.CompanyName)
		if key == "" || s.ID == "" {
			continue
		}
		if _, ok := r.cache[key]; !ok {
			r.cache[key] = s.ID
		}
	}
}

// Resolve returns the site id for the given search text, calling the
// backend at most once per distinct text per batch. Empty or whitespace
// text resolves to an empty id with no remote call and no error.
func (r *SiteResolver) Resolve(ctx context.Context, searchText string, siteType SiteType) (string, error) {
	key := normalizeSiteKey(searchText)
	if key == "" {
		return "", nil
	}

	r.mu.RLock()
	id, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	// Concurrent workers hitting the same text share one remote call.
	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.RLock()
		id, ok := r.cache[key]
		r.mu.RUnlock()
		if ok {
			return id, nil
		}

		site, err := r.directory.FindOrCreateSite(ctx, strings.TrimSpace(searchText), siteType)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[key] = site.ID
		r.mu.Unlock()
		return site.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// CacheSize reports how many distinct texts have resolved so far.
func (r *SiteResolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// normalizeSiteKey lowercases and collapses whitespace so trivially
// different spellings of the same place share a cache entry.
func normalizeSiteKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
