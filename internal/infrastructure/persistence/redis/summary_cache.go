package redis

import (
	"context"
	"errors"
	"time"
)

// SummaryCache caches per-student summaries as opaque JSON documents.
type SummaryCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewSummaryCache creates a summary cache. A non-positive ttl uses TTLSummary.
func NewSummaryCache(cache *Cache, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = TTLSummary
	}
	return &SummaryCache{cache: cache, ttl: ttl}
}

// Load decodes a cached summary into dest. ok is false on a miss.
func (s *SummaryCache) Load(ctx context.Context, studentID string, dest any) (bool, error) {
	err := s.cache.Get(ctx, SummaryKey(studentID), dest)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Store caches a summary for the configured TTL.
func (s *SummaryCache) Store(ctx context.Context, studentID string, summary any) error {
	return s.cache.Set(ctx, SummaryKey(studentID), summary, s.ttl)
}

// Invalidate drops the cached summaries of the given students.
func (s *SummaryCache) Invalidate(ctx context.Context, studentIDs ...string) error {
	keys := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		if id != "" {
			keys = append(keys, SummaryKey(id))
		}
	}
	return s.cache.Delete(ctx, keys...)
}

// InvalidateAll drops every cached summary.
func (s *SummaryCache) InvalidateAll(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, PrefixSummary+"*")
}
