package music

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/imroc/req/v3"
)

// NeteaseClient talks to the main API proxy. It is the only provider with
// real offset pagination.
type NeteaseClient struct {
	base string
	http *req.Client
}

func NewNeteaseClient(baseURL string, timeout time.Duration) *NeteaseClient {
	return &NeteaseClient{
		base: baseURL,
		http: newHTTPClient(timeout),
	}
}

func (c *NeteaseClient) Source() Source { return Netease }

func (c *NeteaseClient) Search(ctx context.Context, keywords string, limit, offset int) ([]*Track, bool, error) {
	r, err := getJSON(ctx, c.http, c.base+"/search", map[string]string{
		"keywords": keywords,
		"limit":    strconv.Itoa(limit),
		"offset":   strconv.Itoa(offset),
		"type":     "1",
	})
	if err != nil {
		return nil, false, err
	}
	if r.Get("code").Int() != 200 {
		return nil, false, fmt.Errorf("netease search: code %d", r.Get("code").Int())
	}

	var tracks []*Track
	r.Get("result.songs").ForEach(func(_, item gjson.Result) bool {
		art := item.Get("album.picUrl").String()
		if art == "" {
			art = item.Get("artists.0.img1v1Url").String()
		}
		tracks = append(tracks, &Track{
			ID:         TagID(Netease, item.Get("id").String()),
			Name:       item.Get("name").String(),
			Artist:     joinedArtists(item.Get("artists")),
			Album:      item.Get("album.name").String(),
			AlbumArt:   normalizeArt(art),
			DurationMs: item.Get("duration").Int(), // already ms
			Source:     Netease,
			Raw:        item,
		})
		return true
	})

	// absent hasMore reads as no more pages
	hasMore := r.Get("result.hasMore").Bool()
	return tracks, hasMore, nil
}

func (c *NeteaseClient) ResolveURL(ctx context.Context, nativeID string) (*URLInfo, error) {
	r, err := getJSON(ctx, c.http, c.base+"/song/url", map[string]string{"id": nativeID})
	if err != nil {
		return nil, err
	}
	data := r.Get("data.0")
	u := data.Get("url").String()
	if u == "" {
		// gray track: licensed away upstream, retrying won't help
		return nil, fmt.Errorf("netease url empty for %s: %w", nativeID, ErrTrackUnavailable)
	}
	return &URLInfo{
		URL:        UpgradeCDNURL(u),
		DurationMs: data.Get("time").Int(), // ms
		Source:     Netease,
	}, nil
}

// Lyrics prefers the per-syllable yrc body when the upstream has one; the
// parser collapses it to plain lines. The translation comes from tlyric,
// falling back to the romanized romalrc body when no translation exists.
func (c *NeteaseClient) Lyrics(ctx context.Context, nativeID string) (*LyricBundle, error) {
	r, err := getJSON(ctx, c.http, c.base+"/lyric/new", map[string]string{"id": nativeID})
	if err != nil {
		r, err = getJSON(ctx, c.http, c.base+"/lyric", map[string]string{"id": nativeID})
		if err != nil {
			return nil, err
		}
	}
	b := &LyricBundle{Lyric: r.Get("lrc.lyric").String()}
	if y := r.Get("yrc.lyric").String(); y != "" {
		b.Lyric = y
	}
	b.Translated = r.Get("tlyric.lyric").String()
	if b.Translated == "" {
		b.Translated = r.Get("romalrc.lyric").String()
	}
	return b, nil
}

// DailyRecommend fetches the main API's daily song feed, tolerating both
// known response layouts.
func (c *NeteaseClient) DailyRecommend(ctx context.Context) ([]*Track, error) {
	r, err := getJSON(ctx, c.http, c.base+"/recommend/songs", nil)
	if err != nil {
		return nil, err
	}
	songs := r.Get("data.dailySongs")
	if !songs.IsArray() {
		songs = r.Get("recommend")
	}
	var tracks []*Track
	songs.ForEach(func(_, item gjson.Result) bool {
		tracks = append(tracks, parseNeteaseSong(item))
		return true
	})
	return tracks, nil
}

// PlaylistTracks fetches one page of a playlist's songs.
func (c *NeteaseClient) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]*Track, error) {
	r, err := getJSON(ctx, c.http, c.base+"/playlist/track/all", map[string]string{
		"id":     playlistID,
		"limit":  strconv.Itoa(limit),
		"offset": strconv.Itoa(offset),
	})
	if err != nil {
		return nil, err
	}
	var tracks []*Track
	r.Get("songs").ForEach(func(_, item gjson.Result) bool {
		tracks = append(tracks, parseNeteaseSong(item))
		return true
	})
	return tracks, nil
}

// parseNeteaseSong reads the al/ar/dt song shape, falling back to the
// older album/artists/duration field names.
func parseNeteaseSong(item gjson.Result) *Track {
	art := item.Get("al.picUrl").String()
	if art == "" {
		if u := item.Get("ar.0.img1v1Url").String(); u != "" && !strings.Contains(u, "default") {
			art = u
		}
	}
	if art == "" {
		art = item.Get("album.picUrl").String()
	}
	artists := item.Get("ar")
	if !artists.IsArray() {
		artists = item.Get("artists")
	}
	album := item.Get("al.name").String()
	if album == "" {
		album = item.Get("album.name").String()
	}
	duration := item.Get("dt").Int()
	if duration == 0 {
		duration = item.Get("duration").Int()
	}
	return &Track{
		ID:         TagID(Netease, item.Get("id").String()),
		Name:       item.Get("name").String(),
		Artist:     joinedArtists(artists),
		Album:      album,
		AlbumArt:   normalizeArt(art),
		DurationMs: duration, // already ms
		Source:     Netease,
		Raw:        item,
	}
}

func (c *NeteaseClient) Detail(ctx context.Context, nativeID string) (*Track, error) {
	r, err := getJSON(ctx, c.http, c.base+"/song/detail", map[string]string{"ids": nativeID})
	if err != nil {
		return nil, err
	}
	d := r.Get("songs.0")
	if !d.Exists() {
		return nil, fmt.Errorf("netease detail %s: %w", nativeID, ErrTrackUnavailable)
	}
	return &Track{
		ID:         TagID(Netease, nativeID),
		Name:       d.Get("name").String(),
		Artist:     joinedArtists(d.Get("ar")),
		Album:      d.Get("al.name").String(),
		AlbumArt:   normalizeArt(d.Get("al.picUrl").String()),
		DurationMs: d.Get("dt").Int(),
		Source:     Netease,
		Raw:        d,
	}, nil
}
