package search

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/hbmusic/songd/internal/cache"
	"github.com/hbmusic/songd/internal/music"
)

type fakeProvider struct {
	src     music.Source
	pages   [][]*music.Track
	hasMore []bool
	err     error
	calls   int
	offsets []int
}

func (f *fakeProvider) Source() music.Source { return f.src }

func (f *fakeProvider) Search(ctx context.Context, keywords string, limit, offset int) ([]*music.Track, bool, error) {
	f.offsets = append(f.offsets, offset)
	if f.err != nil {
		return nil, false, f.err
	}
	i := f.calls
	f.calls++
	if i >= len(f.pages) {
		return nil, false, nil
	}
	return f.pages[i], f.hasMore[i], nil
}

func (f *fakeProvider) ResolveURL(ctx context.Context, nativeID string) (*music.URLInfo, error) {
	return nil, music.ErrTrackUnavailable
}
func (f *fakeProvider) Lyrics(ctx context.Context, nativeID string) (*music.LyricBundle, error) {
	return &music.LyricBundle{}, nil
}
func (f *fakeProvider) Detail(ctx context.Context, nativeID string) (*music.Track, error) {
	return nil, music.ErrTrackUnavailable
}

func neteaseTrack(id string) *music.Track {
	return &music.Track{ID: "main_" + id, Name: "n" + id, Source: music.Netease}
}

func kuwoTrack(id string) *music.Track {
	return &music.Track{
		ID:     "kw_" + id,
		Rid:    id,
		Name:   "k" + id,
		Source: music.Kuwo,
		URL:    "https://kw/" + id + ".flac",
	}
}

func TestSearchMergesKuwoFirst(t *testing.T) {
	main := &fakeProvider{
		src:     music.Netease,
		pages:   [][]*music.Track{{neteaseTrack("1"), neteaseTrack("2")}},
		hasMore: []bool{true},
	}
	fb := &fakeProvider{
		src:     music.Kuwo,
		pages:   [][]*music.Track{{kuwoTrack("10"), kuwoTrack("11")}},
		hasMore: []bool{false},
	}
	a := NewAggregator(main, fb, cache.NewStore(nil))

	results, hasMore, err := a.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !hasMore {
		t.Error("hasMore lost")
	}
	wantOrder := []string{"kw_10", "kw_11", "main_1", "main_2"}
	if len(results) != len(wantOrder) {
		t.Fatalf("got %d results, want %d", len(results), len(wantOrder))
	}
	for i, want := range wantOrder {
		if results[i].ID != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].ID, want)
		}
	}
}

func TestSearchResultsAreReferences(t *testing.T) {
	fb := &fakeProvider{
		src:     music.Kuwo,
		pages:   [][]*music.Track{{kuwoTrack("10")}},
		hasMore: []bool{false},
	}
	main := &fakeProvider{src: music.Netease, pages: [][]*music.Track{nil}, hasMore: []bool{false}}
	a := NewAggregator(main, fb, cache.NewStore(nil))

	results, _, err := a.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.URL != "" || r.DirectPlayURL != "" {
		t.Errorf("search result kept a URL: %+v", r)
	}
	if !r.ForceRefresh {
		t.Error("search result not marked for fresh resolution")
	}
}

func TestSearchOneProviderDown(t *testing.T) {
	main := &fakeProvider{
		src:     music.Netease,
		pages:   [][]*music.Track{{neteaseTrack("1")}},
		hasMore: []bool{false},
	}
	fb := &fakeProvider{src: music.Kuwo, err: errors.New("down")}
	a := NewAggregator(main, fb, cache.NewStore(nil))

	results, _, err := a.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("one healthy provider should not fail the search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "main_1" {
		t.Fatalf("results = %+v", results)
	}
}

func TestSearchBothProvidersDown(t *testing.T) {
	main := &fakeProvider{src: music.Netease, err: errors.New("down")}
	fb := &fakeProvider{src: music.Kuwo, err: errors.New("down too")}
	a := NewAggregator(main, fb, cache.NewStore(nil))

	if _, _, err := a.Search(context.Background(), "query"); err == nil {
		t.Fatal("both providers down, want an error")
	}
}

func TestLoadMoreAppendsAndDedups(t *testing.T) {
	main := &fakeProvider{
		src: music.Netease,
		pages: [][]*music.Track{
			{neteaseTrack("1"), neteaseTrack("2")},
			// second page repeats an id, a known upstream quirk
			{neteaseTrack("2"), neteaseTrack("3")},
		},
		hasMore: []bool{true, false},
	}
	fb := &fakeProvider{src: music.Kuwo, pages: [][]*music.Track{nil}, hasMore: []bool{false}}
	a := NewAggregator(main, fb, cache.NewStore(nil))

	if _, _, err := a.Search(context.Background(), "query"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	added, hasMore, err := a.LoadMore(context.Background())
	if err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if hasMore {
		t.Error("hasMore should be exhausted")
	}
	if len(added) != 1 || added[0].ID != "main_3" {
		t.Fatalf("added = %+v, want only the unseen track", added)
	}
	if got := len(a.Results()); got != 3 {
		t.Errorf("total results = %d, want 3", got)
	}
	// second request must advance past the first page
	if len(main.offsets) != 2 || main.offsets[1] != 2 {
		t.Errorf("offsets = %v, want second call at offset 2", main.offsets)
	}
}

func TestLoadMoreWithoutMorePages(t *testing.T) {
	main := &fakeProvider{
		src:     music.Netease,
		pages:   [][]*music.Track{{neteaseTrack("1")}},
		hasMore: []bool{false},
	}
	fb := &fakeProvider{src: music.Kuwo, pages: [][]*music.Track{nil}, hasMore: []bool{false}}
	a := NewAggregator(main, fb, cache.NewStore(nil))

	if _, _, err := a.Search(context.Background(), "query"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	added, hasMore, err := a.LoadMore(context.Background())
	if err != nil || hasMore || len(added) != 0 {
		t.Fatalf("LoadMore on exhausted session = (%v, %v, %v)", added, hasMore, err)
	}
	if len(main.offsets) != 1 {
		t.Errorf("provider queried again with no pages left: %v", main.offsets)
	}
}

func TestSearchServesCachedResults(t *testing.T) {
	store := cache.NewStore(nil)
	main := &fakeProvider{
		src:     music.Netease,
		pages:   [][]*music.Track{{neteaseTrack("1")}},
		hasMore: []bool{false},
	}
	fb := &fakeProvider{src: music.Kuwo, pages: [][]*music.Track{{kuwoTrack("10")}}, hasMore: []bool{false}}

	a1 := NewAggregator(main, fb, store)
	first, _, err := a1.Search(context.Background(), "Query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// a fresh process with the same store answers from cache
	down := &fakeProvider{src: music.Netease, err: errors.New("down")}
	a2 := NewAggregator(down, down, store)
	second, _, err := a2.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("cached Search: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("cached results = %d, want %d", len(second), len(first))
	}
	for i := range second {
		if second[i].ID != first[i].ID {
			t.Errorf("cached[%d] = %s, want %s", i, second[i].ID, first[i].ID)
		}
	}
}

func TestSearchEmptyKeywords(t *testing.T) {
	a := NewAggregator(&fakeProvider{src: music.Netease}, &fakeProvider{src: music.Kuwo}, cache.NewStore(nil))
	results, hasMore, err := a.Search(context.Background(), "   ")
	if results != nil || hasMore || err != nil {
		t.Fatalf("empty keywords = (%v, %v, %v)", results, hasMore, err)
	}
}

func TestNewSearchSupersedesSession(t *testing.T) {
	pages := [][]*music.Track{}
	hasMore := []bool{}
	for i := 0; i < 2; i++ {
		pages = append(pages, []*music.Track{neteaseTrack(strconv.Itoa(i))})
		hasMore = append(hasMore, true)
	}
	main := &fakeProvider{src: music.Netease, pages: pages, hasMore: hasMore}
	fb := &fakeProvider{src: music.Kuwo, pages: [][]*music.Track{nil, nil}, hasMore: []bool{false, false}}
	a := NewAggregator(main, fb, cache.NewStore(nil))

	if _, _, err := a.Search(context.Background(), "first"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, _, err := a.Search(context.Background(), "second"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	results := a.Results()
	if len(results) != 1 || results[0].ID != "main_1" {
		t.Fatalf("second search state polluted by the first: %+v", results)
	}
}
