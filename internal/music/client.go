package music

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"

	"github.com/hbmusic/songd/internal/base"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"

// DefaultAlbumArt replaces missing or placeholder artwork.
var DefaultAlbumArt = "https://p2.music.126.net/6y-UleORITEDbvrOLV0Q8A==/5639395138885805.jpg"

func newHTTPClient(timeout time.Duration) *req.Client {
	return req.C().
		SetTimeout(timeout).
		SetUserAgent(userAgent)
}

// getJSON issues a GET and parses the body with gjson. HTTP 404/403 map to
// ErrTrackUnavailable so the resolution engine skips retries.
func getJSON(ctx context.Context, c *req.Client, dest string, params map[string]string) (gjson.Result, error) {
	resp, err := c.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(dest)
	if err != nil {
		return gjson.Result{}, err
	}
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusForbidden:
		return gjson.Result{}, fmt.Errorf("%s: %w", dest, ErrTrackUnavailable)
	}
	if resp.IsErrorState() {
		return gjson.Result{}, fmt.Errorf("%s: status %d", dest, resp.StatusCode)
	}
	return gjson.ParseBytes(resp.Bytes()), nil
}

// cdn hosts that serve artwork/audio over plain http in provider payloads
var upgradeHosts = []string{
	".music.126.net",
	".music.127.net",
}

// UpgradeCDNURL rewrites http:// to https:// for known provider CDN hosts.
// Applying it twice yields the same result as applying it once.
func UpgradeCDNURL(u string) string {
	if !strings.HasPrefix(u, "http://") {
		return u
	}
	for _, host := range upgradeHosts {
		if strings.Contains(u, host) {
			return "https://" + strings.TrimPrefix(u, "http://")
		}
	}
	return u
}

// ConvertToLossless bumps kuwo direct-play URLs from the default exhigh
// quality to lossless. Idempotent.
func ConvertToLossless(u string) string {
	return strings.Replace(u, "level=exhigh", "level=lossless", 1)
}

// normalizeArt applies the NO_PIC sentinel and default artwork rules.
func normalizeArt(pic string) string {
	pic = strings.TrimSpace(pic)
	if pic == "" || pic == "NO_PIC" || strings.Contains(pic, "default") {
		if base.Config.DefaultAlbumArt != "" {
			return base.Config.DefaultAlbumArt
		}
		return DefaultAlbumArt
	}
	return UpgradeCDNURL(pic)
}

func joinedArtists(ar gjson.Result) string {
	artist := ""
	ar.ForEach(func(_, value gjson.Result) bool {
		if artist != "" {
			artist += ", "
		}
		artist += value.Get("name").String()
		return true
	})
	return artist
}
