package search

import (
	"context"
	"errors"
	"testing"

	"github.com/hbmusic/songd/internal/base"
	"github.com/hbmusic/songd/internal/cache"
	"github.com/hbmusic/songd/internal/music"
)

type fakeDaily struct {
	tracks []*music.Track
	err    error
	calls  int
}

func (f *fakeDaily) DailyRecommend(ctx context.Context) ([]*music.Track, error) {
	f.calls++
	return f.tracks, f.err
}

type fakePlaylist struct {
	tracks []*music.Track
	err    error
	calls  int
}

func (f *fakePlaylist) PlaylistTracks(ctx context.Context, id string, limit, offset int) ([]*music.Track, error) {
	f.calls++
	return f.tracks, f.err
}

type fakeRanking struct {
	byName map[string][]*music.Track
	err    error
}

func (f *fakeRanking) Ranking(ctx context.Context, name string) ([]*music.Track, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byName[name], nil
}

func newTestCatalog(daily *fakeDaily, pl *fakePlaylist, rank *fakeRanking, store *cache.Store) *Catalog {
	return &Catalog{
		main:     daily,
		playlist: pl,
		fallback: rank,
		cache:    store,
		log:      base.Log(),
	}
}

func TestInitialSongsChartsFirst(t *testing.T) {
	daily := &fakeDaily{tracks: []*music.Track{neteaseTrack("1")}}
	rank := &fakeRanking{byName: map[string][]*music.Track{
		"飙升榜": {kuwoTrack("10")},
		"新歌榜": {kuwoTrack("11"), kuwoTrack("10")}, // charts overlap
	}}
	c := newTestCatalog(daily, &fakePlaylist{}, rank, cache.NewStore(nil))

	tracks, err := c.InitialSongs(context.Background())
	if err != nil {
		t.Fatalf("InitialSongs: %v", err)
	}
	wantOrder := []string{"kw_10", "kw_11", "main_1"}
	if len(tracks) != len(wantOrder) {
		t.Fatalf("got %d tracks, want %d", len(tracks), len(wantOrder))
	}
	for i, want := range wantOrder {
		if tracks[i].ID != want {
			t.Errorf("tracks[%d] = %s, want %s", i, tracks[i].ID, want)
		}
	}
	for _, tr := range tracks {
		if tr.URL != "" || !tr.ForceRefresh {
			t.Errorf("initial track is not a reference: %+v", tr)
		}
	}
}

func TestInitialSongsCached(t *testing.T) {
	store := cache.NewStore(nil)
	daily := &fakeDaily{tracks: []*music.Track{neteaseTrack("1")}}
	rank := &fakeRanking{byName: map[string][]*music.Track{}}
	c := newTestCatalog(daily, &fakePlaylist{}, rank, store)

	if _, err := c.InitialSongs(context.Background()); err != nil {
		t.Fatalf("InitialSongs: %v", err)
	}
	if _, err := c.InitialSongs(context.Background()); err != nil {
		t.Fatalf("cached InitialSongs: %v", err)
	}
	if daily.calls != 1 {
		t.Errorf("daily feed fetched %d times, want 1 (second call from cache)", daily.calls)
	}
}

func TestInitialSongsOneSourceEnough(t *testing.T) {
	daily := &fakeDaily{err: errors.New("down")}
	rank := &fakeRanking{byName: map[string][]*music.Track{"飙升榜": {kuwoTrack("10")}}}
	c := newTestCatalog(daily, &fakePlaylist{}, rank, cache.NewStore(nil))

	tracks, err := c.InitialSongs(context.Background())
	if err != nil {
		t.Fatalf("one healthy source should not fail: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != "kw_10" {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestInitialSongsAllSourcesDown(t *testing.T) {
	daily := &fakeDaily{err: errors.New("down")}
	rank := &fakeRanking{err: errors.New("down too")}
	c := newTestCatalog(daily, &fakePlaylist{}, rank, cache.NewStore(nil))

	if _, err := c.InitialSongs(context.Background()); err == nil {
		t.Fatal("all sources down, want an error")
	}
}

func TestPlaylistCached(t *testing.T) {
	store := cache.NewStore(nil)
	pl := &fakePlaylist{tracks: []*music.Track{neteaseTrack("7")}}
	c := newTestCatalog(&fakeDaily{}, pl, &fakeRanking{}, store)
	ctx := context.Background()

	first, err := c.Playlist(ctx, "555", 50, 0)
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	if len(first) != 1 || first[0].URL != "" || !first[0].ForceRefresh {
		t.Fatalf("playlist tracks are references: %+v", first)
	}

	if _, err := c.Playlist(ctx, "555", 50, 0); err != nil {
		t.Fatalf("cached Playlist: %v", err)
	}
	if pl.calls != 1 {
		t.Errorf("provider fetched %d times, want 1", pl.calls)
	}

	// a different page is its own cache entry
	if _, err := c.Playlist(ctx, "555", 50, 50); err != nil {
		t.Fatalf("second page: %v", err)
	}
	if pl.calls != 2 {
		t.Errorf("second page should miss the cache: %d calls", pl.calls)
	}
}
