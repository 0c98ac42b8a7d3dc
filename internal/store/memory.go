package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryDedup is an in-process DedupStore. Used by tests and as a degraded
// mode when no store URL is configured (dedup then only spans one process).
type MemoryDedup struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryDedup creates an empty in-memory dedup set.
func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (d *MemoryDedup) SetClock(now func() time.Time) { d.now = now }

func (d *MemoryDedup) TestAndSet(_ context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.expires[fingerprint]; ok && exp.After(now) {
		return false, nil
	}
	d.expires[fingerprint] = now.Add(minTTL(ttl))
	return true, nil
}

func (d *MemoryDedup) Clear(_ context.Context, fingerprint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.expires, fingerprint)
	return nil
}

func (d *MemoryDedup) SetTTL(_ context.Context, fingerprint string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expires[fingerprint] = d.now().Add(minTTL(ttl))
	return nil
}

// Contains reports whether a fingerprint is currently in the set.
func (d *MemoryDedup) Contains(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.expires[fingerprint]
	return ok && exp.After(d.now())
}

// TTL returns the remaining TTL for a fingerprint, zero when absent.
func (d *MemoryDedup) TTL(fingerprint string) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.expires[fingerprint]
	if !ok {
		return 0
	}
	remaining := exp.Sub(d.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MemoryIncidents is an in-process IncidentStore mirror of the Redis
// implementation, with the same TTL semantics.
type MemoryIncidents struct {
	mu      sync.Mutex
	records map[string]*IncidentRecord
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryIncidents creates an empty in-memory incident store.
func NewMemoryIncidents() *MemoryIncidents {
	return &MemoryIncidents{
		records: make(map[string]*IncidentRecord),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *MemoryIncidents) SetClock(now func() time.Time) { s.now = now }

func (s *MemoryIncidents) Get(_ context.Context, key string) (*IncidentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !s.expires[key].After(s.now()) {
		return nil, ErrNotFound
	}
	copy := *rec
	return &copy, nil
}

func (s *MemoryIncidents) Put(_ context.Context, rec *IncidentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *rec
	s.records[rec.Key()] = &copy
	s.expires[rec.Key()] = s.now().Add(RecordTTL)
	return nil
}

func (s *MemoryIncidents) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	delete(s.expires, key)
	return nil
}

func (s *MemoryIncidents) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		if s.expires[key].After(now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// KeysWithPrefix is a test helper mirroring a prefix scan.
func (s *MemoryIncidents) KeysWithPrefix(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}
