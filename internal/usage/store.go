// Package usage tracks the clicks and sales this process has admitted per
// affiliate per UTC day. It tightens admission decisions between tier
// status fetches: the backend's remaining count is decremented by what we
// let through locally since that count was read.
package usage

import (
	"context"
	"sync"
	"time"
)

type Store interface {
	GetDailyUsage(ctx context.Context, affiliateID string) (clicks, sales int, err error)
	AddDailyUsage(ctx context.Context, affiliateID string, clicks, sales int) error
}

// MemoryStore is the single-process fallback when Redis is not configured.
type MemoryStore struct {
	mu     sync.RWMutex
	clicks map[string]int
	sales  map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clicks: make(map[string]int),
		sales:  make(map[string]int),
	}
}

func (s *MemoryStore) GetDailyUsage(ctx context.Context, affiliateID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := s.makeKey(affiliateID)
	return s.clicks[key], s.sales[key], nil
}

func (s *MemoryStore) AddDailyUsage(ctx context.Context, affiliateID string, clicks, sales int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.makeKey(affiliateID)
	s.clicks[key] += clicks
	s.sales[key] += sales
	return nil
}

func (s *MemoryStore) makeKey(affiliateID string) string {
	// split by UTC date so counters roll over with the program day
	return affiliateID + ":" + time.Now().UTC().Format("2006-01-02")
}
