package music

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/imroc/req/v3"
)

// KuwoClient talks to the fallback API. One query endpoint, dispatched on
// the type parameter; search ignores limit/offset upstream and returns a
// single batch. Durations come back in seconds and are converted to
// milliseconds here, never later.
type KuwoClient struct {
	base string
	http *req.Client
}

func NewKuwoClient(baseURL string, timeout time.Duration) *KuwoClient {
	return &KuwoClient{
		base: baseURL,
		http: newHTTPClient(timeout),
	}
}

func (c *KuwoClient) Source() Source { return Kuwo }

func (c *KuwoClient) Search(ctx context.Context, keywords string, limit, offset int) ([]*Track, bool, error) {
	// the upstream matcher works better without whitespace
	name := strings.Join(strings.Fields(keywords), "")

	r, err := getJSON(ctx, c.http, c.base, map[string]string{
		"name":  name,
		"level": "lossless",
	})
	if err != nil {
		return nil, false, err
	}
	if r.Get("code").Int() != 200 {
		return nil, false, fmt.Errorf("kuwo search: code %d", r.Get("code").Int())
	}

	var tracks []*Track
	r.Get("data").ForEach(func(_, item gjson.Result) bool {
		tracks = append(tracks, parseKuwoTrack(item))
		return true
	})

	// no pagination upstream: everything arrives in the first batch
	return tracks, false, nil
}

// Ranking fetches one of the upstream charts (e.g. 飙升榜, 新歌榜) used to
// seed the default song list.
func (c *KuwoClient) Ranking(ctx context.Context, name string) ([]*Track, error) {
	r, err := getJSON(ctx, c.http, c.base, map[string]string{
		"name": name,
		"type": "rank",
	})
	if err != nil {
		return nil, err
	}
	list := r.Get("data.musicList")
	if r.Get("code").Int() != 200 || !list.IsArray() {
		return nil, fmt.Errorf("kuwo ranking %s: unexpected response", name)
	}
	var tracks []*Track
	list.ForEach(func(_, item gjson.Result) bool {
		tracks = append(tracks, parseKuwoTrack(item))
		return true
	})
	return tracks, nil
}

func parseKuwoTrack(item gjson.Result) *Track {
	rid := item.Get("rid").String()
	if rid == "" {
		rid = item.Get("id").String()
	}
	t := &Track{
		ID:         TagID(Kuwo, rid),
		Rid:        rid,
		Name:       item.Get("name").String(),
		Artist:     item.Get("artist").String(),
		Album:      item.Get("album").String(),
		AlbumArt:   normalizeArt(item.Get("pic").String()),
		DurationMs: item.Get("duration").Int() * 1000,
		Source:     Kuwo,
		Raw:        item,
	}
	if u := item.Get("url").String(); strings.HasPrefix(u, "http") {
		t.URL = ConvertToLossless(u)
	}
	if lrc := item.Get("lrc").String(); strings.HasPrefix(lrc, "http") {
		t.LrcURL = ConvertToLossless(lrc)
	}
	return t
}

// DirectPlayURL builds a playable link from a rid without a round trip.
func (c *KuwoClient) DirectPlayURL(rid string) string {
	return fmt.Sprintf("%s?id=%s&type=song&level=lossless&format=flac", c.base, rid)
}

func (c *KuwoClient) ResolveURL(ctx context.Context, nativeID string) (*URLInfo, error) {
	r, err := getJSON(ctx, c.http, c.base, map[string]string{
		"id":    nativeID,
		"type":  "song",
		"level": "lossless",
	})
	if err != nil {
		return nil, err
	}
	data := r.Get("data")
	if r.Get("code").Int() != 200 || !data.Exists() {
		return nil, fmt.Errorf("kuwo song %s: %w", nativeID, ErrTrackUnavailable)
	}

	u := data.Get("url").String()
	if u != "" {
		u = ConvertToLossless(u)
	} else {
		u = c.DirectPlayURL(nativeID)
	}
	return &URLInfo{
		URL:           u,
		DirectPlayURL: u,
		DurationMs:    data.Get("duration").Int() * 1000,
		Source:        Kuwo,
	}, nil
}

func (c *KuwoClient) Lyrics(ctx context.Context, nativeID string) (*LyricBundle, error) {
	r, err := getJSON(ctx, c.http, c.base, map[string]string{
		"id":     nativeID,
		"type":   "lyr",
		"format": "json",
	})
	if err != nil {
		return nil, err
	}
	// no translations upstream
	return &LyricBundle{Lyric: NormalizeKuwoLyric(r.Get("data"))}, nil
}

func (c *KuwoClient) Detail(ctx context.Context, nativeID string) (*Track, error) {
	r, err := getJSON(ctx, c.http, c.base, map[string]string{
		"id":    nativeID,
		"type":  "song",
		"level": "lossless",
	})
	if err != nil {
		return nil, err
	}
	data := r.Get("data")
	if r.Get("code").Int() != 200 || !data.Exists() {
		return nil, fmt.Errorf("kuwo detail %s: %w", nativeID, ErrTrackUnavailable)
	}
	t := &Track{
		ID:         TagID(Kuwo, nativeID),
		Rid:        nativeID,
		Name:       data.Get("name").String(),
		Artist:     data.Get("artist").String(),
		Album:      data.Get("album").String(),
		AlbumArt:   normalizeArt(data.Get("pic").String()),
		DurationMs: data.Get("duration").Int() * 1000,
		Source:     Kuwo,
		Raw:        data,
	}
	if u := data.Get("url").String(); u != "" {
		t.URL = ConvertToLossless(u)
		t.DirectPlayURL = t.URL
	}
	return t, nil
}
