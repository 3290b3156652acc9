package cache

import (
	"context"
	"testing"
	"time"
)

type payload struct {
	URL      string `json:"url"`
	Duration int64  `json:"duration"`
}

func TestPutGetFresh(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	s.Put(ctx, Songs, "main_1", payload{URL: "https://a", Duration: 1000})

	e := s.Get(ctx, Songs, "main_1")
	if e == nil {
		t.Fatal("fresh entry not found")
	}
	p, ok := Decode[payload](e)
	if !ok || p.URL != "https://a" || p.Duration != 1000 {
		t.Fatalf("decoded %+v, ok=%v", p, ok)
	}
}

func TestGetMiss(t *testing.T) {
	s := NewStore(nil)
	if e := s.Get(context.Background(), Songs, "nope"); e != nil {
		t.Fatalf("miss returned %+v", e)
	}
	if _, ok := Decode[payload](nil); ok {
		t.Fatal("Decode(nil) reported ok")
	}
}

func TestExpiryPerCategory(t *testing.T) {
	testCases := []struct {
		cat Category
		ttl time.Duration
	}{
		{Playlists, 24 * time.Hour},
		{Songs, 7 * 24 * time.Hour},
		{SearchResults, 24 * time.Hour},
		{InitialSongs, 12 * time.Hour},
	}
	ctx := context.Background()
	for _, tc := range testCases {
		s := NewStore(nil)
		captured := time.Now()
		s.SetNow(func() time.Time { return captured })
		s.Put(ctx, tc.cat, "k", payload{URL: "x"})

		s.SetNow(func() time.Time { return captured.Add(tc.ttl - time.Minute) })
		if s.Get(ctx, tc.cat, "k") == nil {
			t.Errorf("%s: entry expired before its window", tc.cat)
		}

		s.SetNow(func() time.Time { return captured.Add(tc.ttl + time.Minute) })
		if s.Get(ctx, tc.cat, "k") != nil {
			t.Errorf("%s: entry still fresh past its window", tc.cat)
		}
		if s.GetStale(ctx, tc.cat, "k") == nil {
			t.Errorf("%s: stale entry unavailable for the degrade path", tc.cat)
		}
	}
}

func TestEntryAge(t *testing.T) {
	captured := time.Now().Truncate(time.Millisecond)
	e := &Entry{Category: Songs, CapturedAt: captured.UnixMilli()}
	if got := e.Age(captured.Add(time.Hour)); got != time.Hour {
		t.Errorf("Age = %v, want 1h", got)
	}
	if !e.Fresh(captured.Add(6 * 24 * time.Hour)) {
		t.Error("song entry not fresh at 6d")
	}
	if e.Fresh(captured.Add(8 * 24 * time.Hour)) {
		t.Error("song entry fresh at 8d")
	}
}

func TestClearNotifies(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	s.Put(ctx, Songs, "k", payload{URL: "x"})

	var category string
	fired := false
	s.OnInvalidate(func(cat string) { fired, category = true, cat })

	s.Clear(ctx, Songs)
	if !fired || category != string(Songs) {
		t.Fatalf("invalidate hook: fired=%v category=%q", fired, category)
	}
	if s.GetStale(ctx, Songs, "k") != nil {
		t.Fatal("entry survived Clear")
	}
}

func TestClearSingleCategory(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	s.Put(ctx, Songs, "k", payload{URL: "song"})
	s.Put(ctx, SearchResults, "k", payload{URL: "search"})

	s.Clear(ctx, Songs)
	if s.GetStale(ctx, Songs, "k") != nil {
		t.Fatal("cleared category still readable")
	}
	if s.GetStale(ctx, SearchResults, "k") == nil {
		t.Fatal("other category wiped by a single-category clear")
	}

	s.Clear(ctx, "")
	if s.GetStale(ctx, SearchResults, "k") != nil {
		t.Fatal("full clear left an entry behind")
	}
}

func TestSanitize(t *testing.T) {
	in := map[string]any{
		"name": "song",
		"fn":   func() {},
		"nested": map[string]any{
			"ch":  make(chan int),
			"dur": 1000,
		},
		"list": []any{"a", func() {}, 2},
	}
	out, ok := Sanitize(in).(map[string]any)
	if !ok {
		t.Fatal("sanitize changed the top-level shape")
	}
	if _, exists := out["fn"]; exists {
		t.Error("func survived sanitize")
	}
	nested := out["nested"].(map[string]any)
	if _, exists := nested["ch"]; exists {
		t.Error("chan survived sanitize")
	}
	if nested["dur"] != 1000 {
		t.Error("plain value dropped")
	}
	if list := out["list"].([]any); len(list) != 2 {
		t.Errorf("list = %v, want the func dropped", list)
	}
}
