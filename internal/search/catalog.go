package search

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/hbmusic/songd/internal/base"
	"github.com/hbmusic/songd/internal/cache"
	"github.com/hbmusic/songd/internal/music"
)

// initialSongsKey is fixed: there is exactly one default list per deploy.
const initialSongsKey = "initialSongs"

// rankings seeding the default list, fetched in this order so chart tracks
// lead the playlist.
var initialRankings = []string{"飙升榜", "新歌榜"}

type dailyProvider interface {
	DailyRecommend(ctx context.Context) ([]*music.Track, error)
}

type playlistProvider interface {
	PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]*music.Track, error)
}

type rankingProvider interface {
	Ranking(ctx context.Context, name string) ([]*music.Track, error)
}

// Catalog serves the browse surfaces that fill the player before any
// search happens: the default song list (fallback charts first, then the
// main API's daily feed) and playlist contents. Both are cached under
// their own categories.
type Catalog struct {
	main     dailyProvider
	playlist playlistProvider
	fallback rankingProvider
	cache    *cache.Store
	log      *zap.Logger
}

func NewCatalog(main *music.NeteaseClient, fallback *music.KuwoClient, store *cache.Store) *Catalog {
	return &Catalog{
		main:     main,
		playlist: main,
		fallback: fallback,
		cache:    store,
		log:      base.Log(),
	}
}

// InitialSongs returns the default list, chart tracks before daily-feed
// tracks, deduplicated by tagged id. One healthy source is enough; the
// result is cached for the InitialSongs window.
func (c *Catalog) InitialSongs(ctx context.Context) ([]*music.Track, error) {
	if entry := c.cache.Get(ctx, cache.InitialSongs, initialSongsKey); entry != nil {
		if tracks, ok := cache.Decode[[]*music.Track](entry); ok && len(tracks) > 0 {
			return tracks, nil
		}
	}

	var (
		merged  []*music.Track
		seen    = make(map[string]struct{})
		lastErr error
	)
	add := func(tracks []*music.Track) {
		for _, t := range tracks {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			cp := *t
			cp.URL = ""
			cp.DirectPlayURL = ""
			cp.ForceRefresh = true
			merged = append(merged, &cp)
		}
	}

	for _, name := range initialRankings {
		tracks, err := c.fallback.Ranking(ctx, name)
		if err != nil {
			c.log.Warn("catalog: ranking fetch failed", zap.String("ranking", name), zap.Error(err))
			lastErr = err
			continue
		}
		add(tracks)
	}

	daily, err := c.main.DailyRecommend(ctx)
	if err != nil {
		c.log.Warn("catalog: daily recommend failed", zap.Error(err))
		lastErr = err
	} else {
		add(daily)
	}

	if len(merged) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, errors.New("no initial songs available")
	}

	c.cache.Put(ctx, cache.InitialSongs, initialSongsKey, merged)
	return merged, nil
}

// Playlist returns one page of a playlist's tracks, cached per
// playlist+page for the Playlists window.
func (c *Catalog) Playlist(ctx context.Context, playlistID string, limit, offset int) ([]*music.Track, error) {
	if limit <= 0 {
		limit = 50
	}
	key := playlistID + ":" + strconv.Itoa(limit) + ":" + strconv.Itoa(offset)
	if entry := c.cache.Get(ctx, cache.Playlists, key); entry != nil {
		if tracks, ok := cache.Decode[[]*music.Track](entry); ok {
			return tracks, nil
		}
	}

	tracks, err := c.playlist.PlaylistTracks(ctx, playlistID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*music.Track, 0, len(tracks))
	for _, t := range tracks {
		cp := *t
		cp.URL = ""
		cp.DirectPlayURL = ""
		cp.ForceRefresh = true
		out = append(out, &cp)
	}
	c.cache.Put(ctx, cache.Playlists, key, out)
	return out, nil
}
