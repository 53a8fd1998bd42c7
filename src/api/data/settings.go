package data

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/stake-plus/stratomai-agents/src/api/types"
)

// Settings caches the settings table.
type Settings struct {
	db *gorm.DB

	mu    sync.RWMutex
	cache map[string]string
}

func NewSettings(db *gorm.DB) *Settings {
	return &Settings{db: db, cache: map[string]string{}}
}

// Load replaces the cache with the current table contents.
func (s *Settings) Load(ctx context.Context) error {
	var rows []types.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return err
	}

	fresh := make(map[string]string, len(rows))
	for _, r := range rows {
		fresh[r.Name] = r.Value
	}

	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	return nil
}

// Get returns a cached value, "" when unset.
func (s *Settings) Get(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[name]
}

// Set upserts a setting and updates the cache.
func (s *Settings) Set(ctx context.Context, name, value string) error {
	if err := s.db.WithContext(ctx).Save(&types.Setting{Name: name, Value: value}).Error; err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()
	return nil
}
