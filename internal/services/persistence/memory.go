// Package persistence holds the detection stores, the spray history and the image stores.
package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
)

var (
	_ detection.DetectionStore = (*MemoryStore)(nil)
	_ detection.SprayRecorder  = (*MemoryStore)(nil)
)

// MemoryStore keeps records and spray history in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	recs   map[string]entities.DetectionRecord
	sprays map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recs:   make(map[string]entities.DetectionRecord),
		sprays: make(map[string]time.Time),
	}
}

// Save keeps the first record written under an id.
func (s *MemoryStore) Save(_ context.Context, rec entities.DetectionRecord) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.DetectionID]; ok {
		return rec.DetectionID, false, nil
	}
	s.recs[rec.DetectionID] = rec
	return rec.DetectionID, true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (entities.DetectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return entities.DetectionRecord{}, detection.ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) RecordSpray(_ context.Context, deviceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sprays[deviceID]; !ok || at.After(prev) {
		s.sprays[deviceID] = at
	}
	return nil
}

func (s *MemoryStore) LastSpray(_ context.Context, deviceID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.sprays[deviceID]
	return t, ok, nil
}

func (s *MemoryStore) Close() error { return nil }
