package detection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/model/messages"
)

type memStore struct {
	mu   sync.Mutex
	recs map[string]entities.DetectionRecord
	err  error
}

func newMemStore() *memStore { return &memStore{recs: map[string]entities.DetectionRecord{}} }

func (s *memStore) Save(_ context.Context, rec entities.DetectionRecord) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	if _, ok := s.recs[rec.DetectionID]; ok {
		return "doc-" + rec.DetectionID, false, nil
	}
	s.recs[rec.DetectionID] = rec
	return "doc-" + rec.DetectionID, true, nil
}

func (s *memStore) Get(_ context.Context, id string) (entities.DetectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return entities.DetectionRecord{}, s.err
	}
	rec, ok := s.recs[id]
	if !ok {
		return entities.DetectionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type fakeImages struct {
	mu    sync.Mutex
	puts  int
	types []string
	err   error
}

func (f *fakeImages) Put(_ context.Context, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.puts++
	f.types = append(f.types, contentType)
	return "https://blobs.test/leaf.png", nil
}

type fakeSafety struct {
	checks messages.SafetyChecks
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeSafety) Check(context.Context, SafetyQuery) (messages.SafetyChecks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.checks, f.err
}

type sent struct {
	device string
	cmd    *messages.SprayerCommand
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	attempts int
	sent     []sent
}

func (f *fakePublisher) Publish(_ context.Context, device string, cmd *messages.SprayerCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, sent{device: device, cmd: cmd})
	return nil
}

func (f *fakePublisher) delivered() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeSprays struct {
	mu      sync.Mutex
	devices []string
}

func (f *fakeSprays) RecordSpray(_ context.Context, device string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, device)
	return nil
}

type fakeEvents struct {
	mu   sync.Mutex
	recs []entities.DetectionRecord
}

func (f *fakeEvents) Record(rec entities.DetectionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
}

type fakeProvider struct {
	scores RawScores
	err    error
}

func (f fakeProvider) Infer(context.Context, []byte, string) (RawScores, error) {
	return f.scores, f.err
}

func (f *fakePublisher) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = 0
}

func (f *fakeEvents) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
