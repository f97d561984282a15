// Package usecase contains application business logic services.
package usecase

import (
	"sync"
	"time"

	"github.com/fairyhunter13/sensor-relay/internal/domain"
)

// ReadingStore owns the process-wide latest sensor reading. It is
// constructed once at startup and passed by reference to everything that
// needs the current conditions; each ingest replaces the value wholesale.
type ReadingStore struct {
	mu sync.RWMutex
	r  domain.SensorReading
	ok bool

	now func() time.Time
}

// NewReadingStore constructs an empty store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{now: time.Now}
}

// Ingest validates and replaces the singleton reading.
func (s *ReadingStore) Ingest(r domain.SensorReading) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.IngestedAt = s.now().UTC()
	s.mu.Lock()
	s.r = r
	s.ok = true
	s.mu.Unlock()
	return nil
}

// Current returns the latest reading, or ok=false if none was ever ingested.
func (s *ReadingStore) Current() (domain.SensorReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.r, s.ok
}
