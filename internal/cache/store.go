package cache

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hbmusic/songd/internal/base"
)

type Category string

const (
	Playlists     Category = "playlists"
	Songs         Category = "songs"
	SearchResults Category = "searchResults"
	InitialSongs  Category = "initialSongs"
)

// Freshness windows per category. Kuwo-resolved song URLs expire faster
// than the category window; the resolution engine enforces that stricter
// rule on top of this table.
var TTL = map[Category]time.Duration{
	Playlists:     24 * time.Hour,
	Songs:         7 * 24 * time.Hour,
	SearchResults: 24 * time.Hour,
	InitialSongs:  12 * time.Hour,
}

// KuwoSongTTL is the stricter window for fallback-provider URL entries,
// whose upstream links rot within a day.
const KuwoSongTTL = 24 * time.Hour

// retention in the durable tier; entries past their TTL stay readable for
// the allow-stale last-resort path until retention runs out
const retention = 30 * 24 * time.Hour

const (
	keyPrefix         = "songd:cache:"
	InvalidateChannel = "songd:invalidate"
)

// Entry wraps a cached payload with its capture time.
type Entry struct {
	Key        string          `json:"key"`
	Category   Category        `json:"category"`
	CapturedAt int64           `json:"capturedAt"` // ms epoch
	Data       json.RawMessage `json:"data"`
}

func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(e.CapturedAt))
}

func (e *Entry) Fresh(now time.Time) bool {
	return e.Age(now) <= TTL[e.Category]
}

// Decode unmarshals an entry payload. A nil entry decodes to ok=false.
func Decode[T any](e *Entry) (T, bool) {
	var v T
	if e == nil || json.Unmarshal(e.Data, &v) != nil {
		return v, false
	}
	return v, true
}

// Store is the two-tier cache: an in-process LRU in front of Redis. The
// durable tier is best-effort; every Redis failure is logged and swallowed
// so the memory tier keeps serving. rdb may be nil (memory-only mode).
type Store struct {
	mem    *expirable.LRU[string, *Entry]
	rdb    *redis.Client
	log    *zap.Logger
	now    func() time.Time
	notify func(category string)
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{
		mem: expirable.NewLRU[string, *Entry](512, nil, 30*time.Minute),
		rdb: rdb,
		log: base.Log(),
		now: time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (s *Store) SetNow(now func() time.Time) { s.now = now }

// OnInvalidate registers a hook fired after Clear, used to fan the notice
// out to connected players.
func (s *Store) OnInvalidate(fn func(category string)) { s.notify = fn }

func cacheKey(cat Category, key string) string {
	return keyPrefix + string(cat) + ":" + key
}

// Get returns a fresh entry or nil. Durable-tier hits are promoted into
// the memory tier.
func (s *Store) Get(ctx context.Context, cat Category, key string) *Entry {
	if e := s.lookup(ctx, cat, key); e != nil && e.Fresh(s.now()) {
		return e
	}
	return nil
}

// GetStale returns whatever entry still exists, expired or not. Last-resort
// path only: callers must mark the result as needing refresh.
func (s *Store) GetStale(ctx context.Context, cat Category, key string) *Entry {
	return s.lookup(ctx, cat, key)
}

func (s *Store) lookup(ctx context.Context, cat Category, key string) *Entry {
	k := cacheKey(cat, key)
	if e, ok := s.mem.Get(k); ok {
		return e
	}
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, k).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("cache: durable read failed", zap.String("key", k), zap.Error(err))
		}
		return nil
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		s.log.Warn("cache: durable entry corrupt", zap.String("key", k), zap.Error(err))
		return nil
	}
	s.mem.Add(k, &e)
	return &e
}

// Put stamps capturedAt and writes both tiers.
func (s *Store) Put(ctx context.Context, cat Category, key string, v any) {
	data, err := json.Marshal(Sanitize(v))
	if err != nil {
		s.log.Warn("cache: payload not serializable", zap.String("category", string(cat)), zap.Error(err))
		return
	}
	e := &Entry{
		Key:        key,
		Category:   cat,
		CapturedAt: s.now().UnixMilli(),
		Data:       data,
	}
	k := cacheKey(cat, key)
	s.mem.Add(k, e)

	if s.rdb == nil {
		return
	}
	raw, _ := json.Marshal(e)
	if err := s.rdb.Set(ctx, k, raw, retention).Err(); err != nil {
		s.log.Warn("cache: durable write failed", zap.String("key", k), zap.Error(err))
	}
}

// Clear wipes one category, or everything when cat is empty, and signals
// out-of-process caches over pub/sub.
func (s *Store) Clear(ctx context.Context, cat Category) {
	if cat == "" {
		s.mem.Purge()
	} else {
		prefix := keyPrefix + string(cat) + ":"
		for _, k := range s.mem.Keys() {
			if strings.HasPrefix(k, prefix) {
				s.mem.Remove(k)
			}
		}
	}

	if s.rdb != nil {
		pattern := keyPrefix + "*"
		if cat != "" {
			pattern = keyPrefix + string(cat) + ":*"
		}
		iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
				s.log.Warn("cache: durable delete failed", zap.String("key", iter.Val()), zap.Error(err))
			}
		}
		if err := iter.Err(); err != nil {
			s.log.Warn("cache: durable scan failed", zap.Error(err))
		}
		if err := s.rdb.Publish(ctx, InvalidateChannel, string(cat)).Err(); err != nil {
			s.log.Warn("cache: invalidate publish failed", zap.Error(err))
		}
	}

	if s.notify != nil {
		s.notify(string(cat))
	}
}

// Sanitize strips values json.Marshal would choke on (functions, channels,
// unsafe pointers) from free-form provider blobs. Typed payloads pass
// through untouched; the pass exists for map[string]any trees captured from
// upstream responses.
func Sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if serializable(item) {
				out[k] = Sanitize(item)
			}
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if serializable(item) {
				out = append(out, Sanitize(item))
			}
		}
		return out
	default:
		return v
	}
}

func serializable(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return false
	}
	return true
}
