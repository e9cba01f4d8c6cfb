// Package timers runs the wall-clock side of the bed engine: deferred
// transitions such as "cleaning finished" fire here and are handed back to
// the domain layer, where they contend for the same per-bed locks as
// interactive callers.
package timers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind identifies what a timer fires for.
type Kind string

const (
	KindCleaning      Kind = "cleaning"
	KindOxygenWeaning Kind = "oxygen_weaning"
)

// Entry describes one scheduled firing.
type Entry struct {
	BedID  uuid.UUID
	Kind   Kind
	FireAt time.Time
}

// Handler receives fired entries. It must be safe for concurrent calls.
type Handler func(ctx context.Context, e Entry)

type key struct {
	bedID uuid.UUID
	kind  Kind
}

// Scheduler owns the pending timers. It never mutates domain state itself;
// every firing goes through the configured Handler.
type Scheduler struct {
	logger  zerolog.Logger
	mu      sync.Mutex
	handler Handler
	pending map[key]*time.Timer
	closed  bool
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger:  logger,
		pending: make(map[key]*time.Timer),
	}
}

// SetHandler wires the firing callback. Must be called before Schedule.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Schedule arms a timer for the bed. An existing timer of the same kind for
// the same bed is replaced.
func (s *Scheduler) Schedule(bedID uuid.UUID, kind Kind, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.handler == nil {
		return
	}

	k := key{bedID: bedID, kind: kind}
	if t, ok := s.pending[k]; ok {
		t.Stop()
	}

	entry := Entry{BedID: bedID, Kind: kind, FireAt: time.Now().Add(d)}
	s.pending[k] = time.AfterFunc(d, func() {
		s.fire(k, entry)
	})
	s.logger.Debug().
		Str("bed_id", bedID.String()).
		Str("kind", string(kind)).
		Dur("in", d).
		Msg("timer scheduled")
}

func (s *Scheduler) fire(k key, e Entry) {
	s.mu.Lock()
	delete(s.pending, k)
	h := s.handler
	closed := s.closed
	s.mu.Unlock()

	if closed || h == nil {
		return
	}
	h(context.Background(), e)
}

// Cancel drops every pending timer for the bed.
func (s *Scheduler) Cancel(bedID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.pending {
		if k.bedID == bedID {
			t.Stop()
			delete(s.pending, k)
		}
	}
}

// PendingCount reports how many timers are armed.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown stops all timers. Entries that already fired may still be running
// their handler.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for k, t := range s.pending {
		t.Stop()
		delete(s.pending, k)
	}
}
