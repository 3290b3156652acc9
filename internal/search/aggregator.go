package search

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hbmusic/songd/internal/base"
	"github.com/hbmusic/songd/internal/cache"
	"github.com/hbmusic/songd/internal/music"
)

const pageSize = 30

// ErrBusy is returned when a page load is already in flight for the
// current session.
var ErrBusy = errors.New("search already in progress")

// Aggregator merges the two providers into one result list. Fallback
// results come first (they carry direct lossless links), then main-API
// results, deduplicated by tagged id. Only the main API paginates; LoadMore
// advances it alone.
//
// Each Search call opens a new session identified by a uuid; pages that
// finish after their session was superseded are discarded.
type Aggregator struct {
	main     music.Provider
	fallback music.Provider
	cache    *cache.Store
	log      *zap.Logger

	mu       sync.Mutex
	session  string
	keywords string
	offset   int
	hasMore  bool
	loading  bool
	seen     map[string]struct{}
	results  []*music.Track
}

func NewAggregator(main, fallback music.Provider, store *cache.Store) *Aggregator {
	return &Aggregator{
		main:     main,
		fallback: fallback,
		cache:    store,
		log:      base.Log(),
	}
}

// Results returns a copy of the current merged list.
func (a *Aggregator) Results() []*music.Track {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*music.Track, len(a.results))
	copy(out, a.results)
	return out
}

// Search starts a fresh session for keywords, superseding any in-flight
// page load, and returns the first merged page plus whether more pages
// exist on the main API.
func (a *Aggregator) Search(ctx context.Context, keywords string) ([]*music.Track, bool, error) {
	keywords = strings.TrimSpace(keywords)
	if keywords == "" {
		return nil, false, nil
	}
	cacheKey := strings.ToLower(keywords)

	a.mu.Lock()
	session := uuid.NewString()
	a.session = session
	a.keywords = keywords
	a.offset = 0
	a.hasMore = false
	a.loading = true
	a.seen = make(map[string]struct{})
	a.results = nil
	a.mu.Unlock()

	if entry := a.cache.Get(ctx, cache.SearchResults, cacheKey); entry != nil {
		if tracks, ok := cache.Decode[[]*music.Track](entry); ok && len(tracks) > 0 {
			a.mu.Lock()
			defer a.mu.Unlock()
			if a.session != session {
				return nil, false, nil
			}
			for _, t := range tracks {
				a.seen[t.ID] = struct{}{}
			}
			a.results = tracks
			a.offset = countBySource(tracks, music.Netease)
			a.hasMore = true // cached first page: let the main API say no itself
			a.loading = false
			return a.snapshot(), a.hasMore, nil
		}
	}

	kwTracks, _, kwErr := a.fallback.Search(ctx, keywords, pageSize, 0)
	if kwErr != nil {
		a.log.Warn("search: fallback provider failed", zap.String("keywords", keywords), zap.Error(kwErr))
	}
	mainTracks, hasMore, mainErr := a.main.Search(ctx, keywords, pageSize, 0)
	if mainErr != nil {
		a.log.Warn("search: main provider failed", zap.String("keywords", keywords), zap.Error(mainErr))
	}
	if kwErr != nil && mainErr != nil {
		a.mu.Lock()
		if a.session == session {
			a.loading = false
		}
		a.mu.Unlock()
		return nil, false, mainErr
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != session {
		// a newer Search superseded this one while it was in flight
		return nil, false, nil
	}
	a.merge(kwTracks)
	a.merge(mainTracks)
	a.offset = len(mainTracks)
	a.hasMore = hasMore
	a.loading = false

	a.cache.Put(ctx, cache.SearchResults, cacheKey, a.results)
	return a.snapshot(), a.hasMore, nil
}

// LoadMore fetches the next main-API page for the current session and
// returns only the newly added tracks. The fallback provider never has
// more pages, so it is not queried again.
func (a *Aggregator) LoadMore(ctx context.Context) ([]*music.Track, bool, error) {
	a.mu.Lock()
	if a.loading {
		a.mu.Unlock()
		return nil, true, ErrBusy
	}
	if !a.hasMore || a.keywords == "" {
		hasMore := a.hasMore
		a.mu.Unlock()
		return nil, hasMore, nil
	}
	session := a.session
	keywords := a.keywords
	offset := a.offset
	a.loading = true
	a.mu.Unlock()

	tracks, hasMore, err := a.main.Search(ctx, keywords, pageSize, offset)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != session {
		return nil, false, nil
	}
	a.loading = false
	if err != nil {
		return nil, a.hasMore, err
	}

	before := len(a.results)
	a.merge(tracks)
	a.offset = offset + len(tracks)
	a.hasMore = hasMore

	added := make([]*music.Track, len(a.results)-before)
	copy(added, a.results[before:])
	a.cache.Put(ctx, cache.SearchResults, strings.ToLower(keywords), a.results)
	return added, a.hasMore, nil
}

// merge appends unseen tracks. Search results are references, not playable
// answers: the URL is dropped and the track is marked so the resolver
// never trusts a stale cached link for it.
func (a *Aggregator) merge(tracks []*music.Track) {
	for _, t := range tracks {
		if _, dup := a.seen[t.ID]; dup {
			continue
		}
		a.seen[t.ID] = struct{}{}
		cp := *t
		cp.URL = ""
		cp.DirectPlayURL = ""
		cp.ForceRefresh = true
		a.results = append(a.results, &cp)
	}
}

func (a *Aggregator) snapshot() []*music.Track {
	out := make([]*music.Track, len(a.results))
	copy(out, a.results)
	return out
}

func countBySource(tracks []*music.Track, src music.Source) int {
	n := 0
	for _, t := range tracks {
		if t.Source == src {
			n++
		}
	}
	return n
}
