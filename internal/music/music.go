package music

import (
	"context"
	"errors"

	"github.com/tidwall/gjson"
)

type Source int

const (
	Netease Source = iota // main API, offset pagination
	Kuwo                  // fallback API, single batch
)

func (s Source) String() string {
	switch s {
	case Netease:
		return "netease"
	case Kuwo:
		return "kuwo"
	default:
		return "unknown"
	}
}

// Track is the canonical unit handed to the player. Durations are always
// milliseconds; the kuwo client multiplies at the ingestion boundary.
type Track struct {
	ID            string `json:"id"`
	Rid           string `json:"rid,omitempty"` // kuwo native id, numeric
	Name          string `json:"name"`
	Artist        string `json:"artist"`
	Album         string `json:"album"`
	AlbumArt      string `json:"albumArt"`
	DurationMs    int64  `json:"duration"`
	Source        Source `json:"source"`
	URL           string `json:"url,omitempty"`
	DirectPlayURL string `json:"directPlayUrl,omitempty"`
	LrcURL        string `json:"lrcUrl,omitempty"`
	ResolvedAt    int64  `json:"resolvedAt,omitempty"` // ms epoch of last URL resolution
	ForceRefresh  bool   `json:"forceRefresh,omitempty"`

	// Raw keeps the provider payload for diagnostics. Excluded from
	// serialization so it never reaches the durable cache tier.
	Raw gjson.Result `json:"-"`
}

// URLInfo is the product of a URL resolution.
type URLInfo struct {
	URL           string `json:"url"`
	DirectPlayURL string `json:"directPlayUrl,omitempty"`
	DurationMs    int64  `json:"duration"`
	Source        Source `json:"source"`
}

// ErrTrackUnavailable marks a definitive miss (404/403 or an empty URL for
// a region-locked track). Callers go straight to the fallback provider
// instead of retrying.
var ErrTrackUnavailable = errors.New("track unavailable")

// LyricBundle is a raw lyric payload in the LRC intermediate plus its
// optional translation. Only the main API carries translations.
type LyricBundle struct {
	Lyric      string
	Translated string
}

// Provider is the surface both upstream clients implement.
type Provider interface {
	Source() Source
	// Search returns one page of tracks and whether more pages exist.
	// The kuwo client ignores limit/offset upstream and never has more.
	Search(ctx context.Context, keywords string, limit, offset int) ([]*Track, bool, error)
	// ResolveURL turns a provider-native id into a playable URL.
	ResolveURL(ctx context.Context, nativeID string) (*URLInfo, error)
	// Lyrics returns the raw lyric text normalized to the LRC intermediate.
	Lyrics(ctx context.Context, nativeID string) (*LyricBundle, error)
	// Detail fetches display metadata for a provider-native id.
	Detail(ctx context.Context, nativeID string) (*Track, error)
}
