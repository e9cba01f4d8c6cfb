package waitlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caresuite/bedflow/internal/domain/patient"
)

var (
	ErrAlreadyWaiting = errors.New("patient already on the waiting list")
	ErrNotWaiting     = errors.New("patient not on the waiting list")
)

// Entry is one waiting-list membership. The score is not stored; it is
// recomputed from the live patient record on every ranking.
type Entry struct {
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	Reason        string    `db:"reason" json:"reason"`
	TargetService string    `db:"target_service" json:"target_service,omitempty"`
	Searching     bool      `db:"searching" json:"searching"`
	EnteredAt     time.Time `db:"entered_at" json:"entered_at"`
}

// RankedEntry joins an entry with the patient record and its score.
type RankedEntry struct {
	Rank        int              `json:"rank"`
	Patient     *patient.Patient `json:"patient"`
	Reason      string           `json:"reason"`
	TargetService string         `json:"target_service,omitempty"`
	EnteredAt   time.Time        `json:"entered_at"`
	WaitMinutes int              `json:"wait_minutes"`
	Score       Breakdown        `json:"score"`
}

// Directory provides live patient records for scoring.
type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Recorder mirrors waiting-list membership onto the patient record. The
// manager stays the sole writer of membership.
type Recorder interface {
	RecordWaitingState(ctx context.Context, patientID uuid.UUID, state patient.WaitingState, since *time.Time) error
}

// Manager owns waiting-list membership for one hospital. Entries live in
// memory with write-through persistence; rankings are computed on demand
// from a snapshot, so readers never block writers for long.
type Manager struct {
	dir      Directory
	recorder Recorder
	repo     Repository
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

func NewManager(dir Directory, recorder Recorder, repo Repository, logger zerolog.Logger) *Manager {
	return &Manager{
		dir:      dir,
		recorder: recorder,
		repo:     repo,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[uuid.UUID]*Entry),
	}
}

// Load restores persisted memberships on boot.
func (m *Manager) Load(ctx context.Context) (int, error) {
	if m.repo == nil {
		return 0, nil
	}
	entries, err := m.repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load waiting list: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.PatientID] = e
	}
	return len(entries), nil
}

// Enter adds a patient to the waiting list. A patient who already holds a bed
// enters in "searching" mode (looking for a better bed); one without a bed
// waits for first placement.
func (m *Manager) Enter(ctx context.Context, patientID uuid.UUID, reason string) error {
	p, err := m.dir.Get(ctx, patientID)
	if err != nil {
		return err
	}

	e := &Entry{
		PatientID: patientID,
		Reason:    reason,
		Searching: p.CurrentBedID != nil,
		EnteredAt: m.now(),
	}

	m.mu.Lock()
	if _, exists := m.entries[patientID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("patient %s: %w", patientID, ErrAlreadyWaiting)
	}
	m.entries[patientID] = e
	m.mu.Unlock()

	m.persist(ctx, e)
	state := patient.WaitingActive
	if e.Searching {
		state = patient.WaitingSearching
	}
	m.record(ctx, patientID, state, &e.EnteredAt)
	return nil
}

// SetTargetService narrows the entry to a destination service, used by the
// filtered views. No-op on the score.
func (m *Manager) SetTargetService(ctx context.Context, patientID uuid.UUID, service string) error {
	m.mu.Lock()
	e, ok := m.entries[patientID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("patient %s: %w", patientID, ErrNotWaiting)
	}
	e.TargetService = service
	snapshot := *e
	m.mu.Unlock()

	m.persist(ctx, &snapshot)
	return nil
}

// Withdraw removes a patient without assigning a bed.
func (m *Manager) Withdraw(ctx context.Context, patientID uuid.UUID) error {
	m.mu.Lock()
	_, ok := m.entries[patientID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("patient %s: %w", patientID, ErrNotWaiting)
	}
	delete(m.entries, patientID)
	m.mu.Unlock()

	m.unpersist(ctx, patientID)
	m.record(ctx, patientID, patient.WaitingNone, nil)
	return nil
}

// Matched removes a patient because a bed was reserved for them.
func (m *Manager) Matched(ctx context.Context, patientID, bedID uuid.UUID) error {
	m.mu.Lock()
	e, ok := m.entries[patientID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("patient %s: %w", patientID, ErrNotWaiting)
	}
	since := e.EnteredAt
	delete(m.entries, patientID)
	m.mu.Unlock()

	m.unpersist(ctx, patientID)
	m.record(ctx, patientID, patient.WaitingMatched, &since)
	m.logger.Info().
		Str("patient_id", patientID.String()).
		Str("bed_id", bedID.String()).
		Msg("waiting list match")
	return nil
}

// IsWaiting reports membership.
func (m *Manager) IsWaiting(patientID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[patientID]
	return ok
}

// IsSearching reports whether the patient waits from inside a bed.
func (m *Manager) IsSearching(patientID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[patientID]
	return ok && e.Searching
}

// Len returns the number of active entries.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Rank produces the ordered waiting list: descending score, FIFO among equal
// scores. It works on a snapshot, so it runs in parallel with writers and
// tolerates a brief staleness window.
func (m *Manager) Rank(ctx context.Context) ([]RankedEntry, error) {
	m.mu.RLock()
	snapshot := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		snapshot = append(snapshot, *e)
	}
	m.mu.RUnlock()

	now := m.now()
	out := make([]RankedEntry, 0, len(snapshot))
	for _, e := range snapshot {
		p, err := m.dir.Get(ctx, e.PatientID)
		if err != nil {
			// The entry may lag a just-deleted patient; skip it.
			m.logger.Warn().Err(err).Str("patient_id", e.PatientID.String()).Msg("rank: patient lookup")
			continue
		}
		elapsed := now.Sub(e.EnteredAt)
		out = append(out, RankedEntry{
			Patient:       p,
			Reason:        e.Reason,
			TargetService: e.TargetService,
			EnteredAt:     e.EnteredAt,
			WaitMinutes:   int(elapsed.Minutes()),
			Score:         Score(p, elapsed),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score.Total != out[j].Score.Total {
			return out[i].Score.Total > out[j].Score.Total
		}
		return out[i].EnteredAt.Before(out[j].EnteredAt)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// Filter returns the ranked view narrowed by origin type and target service.
// Zero values match everything. Read-only.
func (m *Manager) Filter(ctx context.Context, origin patient.OriginType, targetService string) ([]RankedEntry, error) {
	ranked, err := m.Rank(ctx)
	if err != nil {
		return nil, err
	}
	if origin == "" && targetService == "" {
		return ranked, nil
	}
	out := make([]RankedEntry, 0, len(ranked))
	for _, e := range ranked {
		if origin != "" && e.Patient.Origin != origin {
			continue
		}
		if targetService != "" && e.TargetService != targetService {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Manager) persist(ctx context.Context, e *Entry) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Upsert(ctx, e); err != nil {
		m.logger.Warn().Err(err).Str("patient_id", e.PatientID.String()).Msg("persist waiting entry")
	}
}

func (m *Manager) unpersist(ctx context.Context, patientID uuid.UUID) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Delete(ctx, patientID); err != nil {
		m.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("delete waiting entry")
	}
}

func (m *Manager) record(ctx context.Context, patientID uuid.UUID, state patient.WaitingState, since *time.Time) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordWaitingState(ctx, patientID, state, since); err != nil {
		m.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("mirror waiting state")
	}
}
