package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hbmusic/songd/internal/base"
	"github.com/hbmusic/songd/internal/cache"
	"github.com/hbmusic/songd/internal/favorites"
	"github.com/hbmusic/songd/internal/music"
	"github.com/hbmusic/songd/internal/syncx"
)

// Error taxonomy surfaced to callers. Provider-specific errors never cross
// this boundary.
var (
	ErrTrackNotFound       = errors.New("track not found")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrNoMatchFound        = errors.New("no fallback match found")
	ErrResolutionFailed    = errors.New("resolution failed")
)

// Resolution is a playable URL bundle. NeedsRefresh marks a stale cache
// entry served because every live attempt failed.
type Resolution struct {
	URL           string       `json:"url"`
	DirectPlayURL string       `json:"directPlayUrl,omitempty"`
	DurationMs    int64        `json:"duration"`
	Source        music.Source `json:"source"`
	ResolvedAt    int64        `json:"resolvedAt"` // ms epoch
	NeedsRefresh  bool         `json:"needsRefresh,omitempty"`
}

// FallbackProvider is the fallback client surface; on top of the common
// provider operations it can mint a direct play URL from a native id
// without a round trip.
type FallbackProvider interface {
	music.Provider
	DirectPlayURL(rid string) string
}

// Engine turns Track references into fresh playable URLs: cache check,
// origin-provider resolve with bounded retries, by-name fallback search on
// the other provider, stale-cache degradation, write-through on success.
type Engine struct {
	main     music.Provider
	fallback FallbackProvider
	cache    *cache.Store
	favs     favorites.Store
	log      *zap.Logger

	flight     syncx.Flight[*Resolution]
	refreshq   syncx.UnboundedChan[*music.Track]
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

func NewEngine(main music.Provider, fallback FallbackProvider, store *cache.Store, favs favorites.Store) *Engine {
	return &Engine{
		main:       main,
		fallback:   fallback,
		cache:      store,
		favs:       favs,
		log:        base.Log(),
		refreshq:   syncx.NewUnboundedChan[*music.Track](16),
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
		now:        time.Now,
	}
}

// SetRetryDelay shortens the retry backoff, for tests.
func (e *Engine) SetRetryDelay(d time.Duration) { e.retryDelay = d }

// SetNow overrides the clock, for tests.
func (e *Engine) SetNow(now func() time.Time) { e.now = now }

// Resolve produces a playable URL for t. Concurrent calls for the same
// tagged id coalesce into a single provider round trip.
func (e *Engine) Resolve(ctx context.Context, t *music.Track) (*Resolution, error) {
	return e.flight.Do(t.ID, func() (*Resolution, error) {
		return e.resolve(ctx, t)
	})
}

func (e *Engine) resolve(ctx context.Context, t *music.Track) (*Resolution, error) {
	favorited := false
	if e.favs != nil {
		if rec, err := e.favs.Get(ctx, t.ID); err == nil && rec != nil {
			favorited = true
		}
	}

	// Keep whatever entry exists in hand: it is the fresh-hit answer on
	// the happy path and the last-resort answer when every provider fails.
	entry := e.cache.GetStale(ctx, cache.Songs, t.ID)
	cached, _ := cache.Decode[*Resolution](entry)

	if cached != nil && !favorited && !t.ForceRefresh && e.fresh(entry, cached.Source) {
		return cached, nil
	}

	res, err := e.resolveLive(ctx, t)
	if err == nil {
		e.writeThrough(ctx, t, res, favorited)
		return res, nil
	}

	if cached != nil {
		e.log.Warn("resolve: serving stale cache after provider failures",
			zap.String("id", t.ID), zap.Error(err))
		stale := *cached
		stale.NeedsRefresh = true
		return &stale, nil
	}

	return nil, fmt.Errorf("%w: %s: %v", ErrResolutionFailed, t.ID, err)
}

func (e *Engine) fresh(entry *cache.Entry, src music.Source) bool {
	age := entry.Age(e.now())
	if src == music.Kuwo {
		return age <= cache.KuwoSongTTL
	}
	return age <= cache.TTL[cache.Songs]
}

func (e *Engine) resolveLive(ctx context.Context, t *music.Track) (*Resolution, error) {
	if t.Source == music.Kuwo {
		if rid, ok := music.KuwoRid(t); ok {
			if info, err := e.fallback.ResolveURL(ctx, rid); err == nil {
				return e.fromInfo(info), nil
			} else {
				e.log.Warn("resolve: kuwo direct resolve failed",
					zap.String("id", t.ID), zap.String("rid", rid), zap.Error(err))
			}
		}
		// no usable rid, or the direct lookup failed: search by name
		return e.fallbackByName(ctx, t)
	}

	nativeID := music.NativeID(t)
	var lastErr error
	for attempt := 0; ; attempt++ {
		info, err := e.main.ResolveURL(ctx, nativeID)
		if err == nil {
			return e.fromInfo(info), nil
		}
		lastErr = err

		if errors.Is(err, music.ErrTrackUnavailable) {
			// 404/403/gray track: retrying the main API is pointless
			break
		}
		if attempt >= e.maxRetries {
			break
		}
		e.log.Warn("resolve: main api failed, retrying",
			zap.String("id", t.ID), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.retryDelay):
		}
	}

	if res, err := e.fallbackByName(ctx, t); err == nil {
		return res, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}

// fallbackByName searches the fallback provider with name+artist glued
// together (the upstream matcher behaves better that way), scores the
// candidates and plays the winner.
func (e *Engine) fallbackByName(ctx context.Context, t *music.Track) (*Resolution, error) {
	if t.Name == "" {
		return nil, ErrNoMatchFound
	}

	query := t.Name
	if t.Artist != "" {
		query = t.Name + t.Artist
	}
	candidates, _, err := e.fallback.Search(ctx, query, 30, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoMatchFound
	}

	best := candidates[0]
	bestScore := 0
	for _, c := range candidates {
		if s := matchScore(c, t.Name, t.Artist); s > bestScore {
			best, bestScore = c, s
		}
	}

	res := &Resolution{
		DurationMs: best.DurationMs,
		Source:     music.Kuwo,
	}
	switch {
	case best.URL != "":
		// inline search URLs are trusted only on this path
		res.URL = best.URL
		res.DirectPlayURL = best.URL
	default:
		rid, ok := music.KuwoRid(best)
		if !ok {
			return nil, ErrNoMatchFound
		}
		u := e.fallback.DirectPlayURL(rid)
		res.URL = u
		res.DirectPlayURL = u
	}
	return res, nil
}

// matchScore: exact name 10, substring 5; exact artist 8, substring either
// direction 4. Heuristic constants carried over from production tuning.
func matchScore(c *music.Track, name, artist string) int {
	score := 0
	cn := strings.ToLower(c.Name)
	n := strings.ToLower(name)
	switch {
	case cn == n:
		score += 10
	case strings.Contains(cn, n):
		score += 5
	}
	if artist != "" && c.Artist != "" {
		ca := strings.ToLower(c.Artist)
		a := strings.ToLower(artist)
		switch {
		case ca == a:
			score += 8
		case strings.Contains(ca, a), strings.Contains(a, ca):
			score += 4
		}
	}
	return score
}

func (e *Engine) fromInfo(info *music.URLInfo) *Resolution {
	return &Resolution{
		URL:           music.UpgradeCDNURL(info.URL),
		DirectPlayURL: music.UpgradeCDNURL(info.DirectPlayURL),
		DurationMs:    info.DurationMs,
		Source:        info.Source,
	}
}

func (e *Engine) writeThrough(ctx context.Context, t *music.Track, res *Resolution, favorited bool) {
	res.ResolvedAt = e.now().UnixMilli()
	e.cache.Put(ctx, cache.Songs, t.ID, res)

	if favorited && e.favs != nil {
		rid := ""
		if res.Source == music.Kuwo {
			rid, _ = music.KuwoRid(t)
		}
		if err := e.favs.UpdateResolution(ctx, t.ID, res.URL, res.Source.String(), rid, res.ResolvedAt); err != nil {
			e.log.Warn("resolve: favorite update failed", zap.String("id", t.ID), zap.Error(err))
		}
	}
}

// QueueRefresh schedules a background re-resolution for t. Never blocks.
func (e *Engine) QueueRefresh(t *music.Track) {
	cp := *t
	cp.ForceRefresh = true
	e.refreshq.In() <- &cp
}

// Run drains the refresh queue until ctx is cancelled. Failures are logged
// and dropped; the stale entry stays in cache for the degrade path.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-e.refreshq.Out():
			if !ok {
				return
			}
			if _, err := e.Resolve(ctx, t); err != nil {
				e.log.Warn("refresh: background resolve failed",
					zap.String("id", t.ID), zap.Error(err))
			}
		}
	}
}

// RefreshFavorites queues every favorited track whose resolved URL has
// outlived its freshness window.
func (e *Engine) RefreshFavorites(ctx context.Context) error {
	if e.favs == nil {
		return nil
	}
	recs, err := e.favs.All(ctx)
	if err != nil {
		return err
	}
	now := e.now()
	for _, rec := range recs {
		ttl := cache.TTL[cache.Songs]
		if rec.Source == music.Kuwo.String() {
			ttl = cache.KuwoSongTTL
		}
		if rec.ForceRefresh || rec.ResolvedAt == 0 ||
			now.Sub(time.UnixMilli(rec.ResolvedAt)) > ttl {
			e.QueueRefresh(&music.Track{
				ID:     rec.ID,
				Rid:    rec.Rid,
				Name:   rec.Name,
				Artist: rec.Artist,
				Source: sourceOf(rec.Source),
			})
		}
	}
	return nil
}

func sourceOf(s string) music.Source {
	if s == music.Kuwo.String() {
		return music.Kuwo
	}
	return music.Netease
}

// LyricSet is parsed lyrics plus their translation, when one exists.
type LyricSet struct {
	Lines      []music.LyricLine `json:"lines"`
	Translated []music.LyricLine `json:"translated,omitempty"`
}

// Lyrics fetches and parses lyrics for t, serving from cache within the
// song TTL. Parse failures and provider errors degrade to an empty
// sequence; the caller substitutes a placeholder line.
func (e *Engine) Lyrics(ctx context.Context, t *music.Track) *LyricSet {
	key := "lyrics:" + t.ID
	if entry := e.cache.Get(ctx, cache.Songs, key); entry != nil {
		if set, ok := cache.Decode[*LyricSet](entry); ok && set != nil {
			return set
		}
	}

	provider := e.main
	nativeID := music.NativeID(t)
	if t.Source == music.Kuwo {
		provider = e.fallback
		if rid, ok := music.KuwoRid(t); ok {
			nativeID = rid
		}
	}

	b, err := provider.Lyrics(ctx, nativeID)
	if err != nil {
		e.log.Warn("lyrics: fetch failed", zap.String("id", t.ID), zap.Error(err))
		return &LyricSet{}
	}
	set := &LyricSet{
		Lines:      music.ParseLRC(b.Lyric),
		Translated: music.ParseLRC(b.Translated),
	}
	if len(set.Lines) > 0 {
		e.cache.Put(ctx, cache.Songs, key, set)
	}
	return set
}
