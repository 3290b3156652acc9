package music

import (
	"regexp"
	"strings"
)

// Tagged-id scheme. Every id ingested from the main API carries MainIDPrefix
// and every id from the fallback API carries KwIDPrefix, so a bare id is
// never ambiguous between providers. Tagging happens exactly once per
// ingestion point; TagID strips any existing tag first so a double prefix
// cannot survive a buggy caller.
const (
	MainIDPrefix = "main_"
	KwIDPrefix   = "kw_"

	// legacy prefix still present in old favorite records
	legacyKwPrefix = "kw-"
)

var numericRe = regexp.MustCompile(`^\d+$`)

// TaggingEnabled gates the prefix scheme. When off, ids pass through bare
// and provider attribution relies on the Source field alone.
var TaggingEnabled = true

func TagID(s Source, id string) string {
	id, _, _ = StripID(id)
	if !TaggingEnabled {
		return id
	}
	switch s {
	case Kuwo:
		return KwIDPrefix + id
	default:
		return MainIDPrefix + id
	}
}

// StripID removes the provider tag from id, reporting which provider it
// belonged to. Untagged ids return tagged=false and Source is meaningless.
func StripID(id string) (clean string, src Source, tagged bool) {
	for {
		switch {
		case strings.HasPrefix(id, MainIDPrefix):
			id, src, tagged = id[len(MainIDPrefix):], Netease, true
		case strings.HasPrefix(id, KwIDPrefix):
			id, src, tagged = id[len(KwIDPrefix):], Kuwo, true
		case strings.HasPrefix(id, legacyKwPrefix):
			id, src, tagged = id[len(legacyKwPrefix):], Kuwo, true
		default:
			return id, src, tagged
		}
	}
}

// NativeID returns the id to use against the track's own provider.
func NativeID(t *Track) string {
	clean, _, _ := StripID(t.ID)
	return clean
}

// KuwoRid derives the numeric kuwo id for t, from the Rid field or from a
// kuwo-tagged id. A bare numeric id is trusted only when the track is
// explicitly marked as kuwo-sourced.
func KuwoRid(t *Track) (string, bool) {
	if t.Rid != "" && numericRe.MatchString(t.Rid) {
		return t.Rid, true
	}
	clean, src, tagged := StripID(t.ID)
	if tagged && src == Kuwo && numericRe.MatchString(clean) {
		return clean, true
	}
	if !tagged && t.Source == Kuwo && numericRe.MatchString(clean) {
		return clean, true
	}
	return "", false
}
