package favorites

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Record is one favorited track. The resolution engine only ever rewrites
// the resolution fields (URL, ResolvedAt, Source, Rid, ForceRefresh);
// display fields belong to whoever favorited the track.
type Record struct {
	ID           string `gorm:"primaryKey" json:"id"`
	Name         string `json:"name"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	AlbumArt     string `json:"albumArt"`
	DurationMs   int64  `json:"duration"`
	URL          string `json:"url"`
	Source       string `json:"source"`
	Rid          string `json:"rid"`
	ResolvedAt   int64  `json:"resolvedAt"` // ms epoch
	ForceRefresh bool   `json:"forceRefresh"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (Record) TableName() string { return "favorites" }

type Store interface {
	// Get returns nil, nil when the id is not favorited.
	Get(ctx context.Context, id string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	// UpdateResolution rewrites only the resolution fields, leaving the
	// rest of the record untouched.
	UpdateResolution(ctx context.Context, id, url, source, rid string, resolvedAt int64) error
	All(ctx context.Context) ([]*Record, error)
}

// DBStore persists favorites in Postgres.
type DBStore struct {
	db *gorm.DB
}

func OpenDB(dsn string) (*DBStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &DBStore{db: db}, nil
}

func (s *DBStore) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put replaces the whole record. Save writes every column, so a re-Put can
// clear fields back to their zero values (struct Updates would skip them).
func (s *DBStore) Put(ctx context.Context, rec *Record) error {
	var existing Record
	err := s.db.WithContext(ctx).Where("id = ?", rec.ID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(rec).Error
	}
	if err != nil {
		return err
	}
	rec.CreatedAt = existing.CreatedAt
	return s.db.WithContext(ctx).Save(rec).Error
}

func (s *DBStore) UpdateResolution(ctx context.Context, id, url, source, rid string, resolvedAt int64) error {
	return s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).
		Updates(map[string]any{
			"url":           url,
			"source":        source,
			"rid":           rid,
			"resolved_at":   resolvedAt,
			"force_refresh": false,
		}).Error
}

func (s *DBStore) All(ctx context.Context) ([]*Record, error) {
	var recs []*Record
	if err := s.db.WithContext(ctx).Order("created_at").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// MemStore keeps favorites in memory, for tests and database-less runs.
type MemStore struct {
	mu   sync.Mutex
	recs map[string]*Record
}

func NewMemStore() *MemStore {
	return &MemStore{recs: make(map[string]*Record)}
}

func (s *MemStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.recs[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.recs[rec.ID] = &cp
	return nil
}

func (s *MemStore) UpdateResolution(_ context.Context, id, url, source, rid string, resolvedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.recs[id]; ok {
		r.URL = url
		r.Source = source
		r.Rid = rid
		r.ResolvedAt = resolvedAt
		r.ForceRefresh = false
	}
	return nil
}

func (s *MemStore) All(_ context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, len(s.recs))
	for _, r := range s.recs {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}
