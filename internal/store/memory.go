package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"coinchart-api/internal/chart"
)

// MemoryStore is an in-process Store used in tests and in cache-less dev
// runs. Expiry is checked lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	series  map[string]memoryEntry
	strings map[string]memoryEntry
}

type memoryEntry struct {
	points    []chart.PricePoint
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series:  make(map[string]memoryEntry),
		strings: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) GetSeries(_ context.Context, key string) ([]chart.PricePoint, bool, error) {
	s.mu.RLock()
	entry, ok := s.series[key]
	s.mu.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return nil, false, nil
	}
	points := make([]chart.PricePoint, len(entry.points))
	copy(points, entry.points)
	return points, true, nil
}

func (s *MemoryStore) SetSeries(_ context.Context, key string, points []chart.PricePoint, ttl time.Duration) error {
	stored := make([]chart.PricePoint, len(points))
	copy(stored, points)
	s.mu.Lock()
	s.series[key] = memoryEntry{points: stored, expiresAt: deadline(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetString(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	entry, ok := s.strings[key]
	s.mu.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) SetString(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	s.strings[key] = memoryEntry{value: value, expiresAt: deadline(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SetStringNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.strings[key]; ok && !entry.expired(now) {
		return false, nil
	}
	s.strings[key] = memoryEntry{value: value, expiresAt: deadline(ttl)}
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.series, key)
		delete(s.strings, key)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key, entry := range s.series {
		if strings.HasPrefix(key, prefix) && !entry.expired(now) {
			keys = append(keys, key)
		}
	}
	for key, entry := range s.strings {
		if strings.HasPrefix(key, prefix) && !entry.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
