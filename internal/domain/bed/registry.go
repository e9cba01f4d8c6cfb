package bed

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caresuite/bedflow/internal/domain/patient"
)

// slot pairs a bed with its serialization lock. All state-changing
// operations on one bed run under slot.mu; the actual bed value is only
// written while additionally holding the registry lock, so index reads under
// Registry.mu always see committed state.
type slot struct {
	// id duplicates bed.ID; it never changes, so lock ordering can read it
	// without holding any lock.
	id  uuid.UUID
	mu  sync.Mutex
	bed Bed
}

// Registry is the in-memory arena of beds for one hospital. It is the sole
// writer of bed state; every mutation goes through the transition table.
type Registry struct {
	hospitalID string

	mu        sync.RWMutex
	beds      map[uuid.UUID]*slot
	byState   map[State]map[uuid.UUID]struct{}
	byService map[string]map[uuid.UUID]struct{}
	byRoom    map[string]map[uuid.UUID]struct{}
	// placed maps a patient to the bed holding them as occupant; incoming
	// maps a patient to the bed reserving them. Together they enforce the
	// "never claimed twice" invariants.
	placed   map[uuid.UUID]uuid.UUID
	incoming map[uuid.UUID]uuid.UUID
}

func NewRegistry(hospitalID string) *Registry {
	return &Registry{
		hospitalID: hospitalID,
		beds:       make(map[uuid.UUID]*slot),
		byState:    make(map[State]map[uuid.UUID]struct{}),
		byService:  make(map[string]map[uuid.UUID]struct{}),
		byRoom:     make(map[string]map[uuid.UUID]struct{}),
		placed:     make(map[uuid.UUID]uuid.UUID),
		incoming:   make(map[uuid.UUID]uuid.UUID),
	}
}

// HospitalID returns the hospital this registry belongs to.
func (r *Registry) HospitalID() string { return r.hospitalID }

// Add registers a bed. New beds start FREE unless they carry state already
// (reload from storage).
func (r *Registry) Add(b Bed) (Bed, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.HospitalID == "" {
		b.HospitalID = r.hospitalID
	}
	if b.State == "" {
		b.State = StateFree
	}
	if !b.Complexity.Valid() {
		return Bed{}, fmt.Errorf("bed %s: unknown complexity tier %q", b.ID, b.Complexity)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = b.CreatedAt

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.beds[b.ID]; exists {
		return Bed{}, fmt.Errorf("bed %s already registered", b.ID)
	}
	if b.Occupant != nil {
		if other, taken := r.placed[b.Occupant.PatientID]; taken {
			return Bed{}, fmt.Errorf("patient %s already in bed %s: %w", b.Occupant.PatientID, other, ErrPatientPlaced)
		}
	}
	s := &slot{id: b.ID, bed: b}
	r.beds[b.ID] = s
	r.indexLocked(b)
	return b, nil
}

// Remove unregisters a bed. Only beds with nobody attached can be removed.
func (r *Registry) Remove(id uuid.UUID) error {
	s, err := r.slot(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	b := s.bed
	if b.State != StateFree && b.State != StateBlocked {
		return &TransitionError{BedID: id.String(), Current: b.State, Event: "remove"}
	}
	r.unindexLocked(b)
	delete(r.beds, id)
	return nil
}

// Get returns a copy of the bed.
func (r *Registry) Get(id uuid.UUID) (Bed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.beds[id]
	if !ok {
		return Bed{}, ErrNotFound
	}
	return s.bed, nil
}

// Filter narrows List output. Zero values match everything.
type Filter struct {
	Service string
	Ward    string
	State   State
}

// List returns a consistent snapshot of beds matching the filter, ordered by
// service, ward, room.
func (r *Registry) List(f Filter) []Bed {
	r.mu.RLock()
	out := make([]Bed, 0, len(r.beds))
	for _, s := range r.beds {
		b := s.bed
		if f.Service != "" && b.Service != f.Service {
			continue
		}
		if f.Ward != "" && b.Ward != f.Ward {
			continue
		}
		if f.State != "" && b.State != f.State {
			continue
		}
		out = append(out, b)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		if out[i].Ward != out[j].Ward {
			return out[i].Ward < out[j].Ward
		}
		if out[i].Room != out[j].Room {
			return out[i].Room < out[j].Room
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Placement is what a patient needs from a bed.
type Placement struct {
	Complexity        patient.ComplexityTier
	RequiresIsolation bool
	Sex               patient.Sex
}

// FindCompatible returns all FREE beds that could take a patient with the
// given needs.
func (r *Registry) FindCompatible(p Placement) []Bed {
	occ := Occupant{Sex: p.Sex, Complexity: p.Complexity, RequiresIsolation: p.RequiresIsolation}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Bed
	for id := range r.byState[StateFree] {
		s := r.beds[id]
		if s == nil {
			continue
		}
		if err := r.compatibleLocked(&s.bed, occ); err == nil {
			out = append(out, s.bed)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// HasCompatible reports whether at least one compatible FREE bed exists.
func (r *Registry) HasCompatible(p Placement) bool {
	return len(r.FindCompatible(p)) > 0
}

// ---------------------------------------------------------------------------
// Single-bed operations
// ---------------------------------------------------------------------------

// Block takes a free bed out of service.
func (r *Registry) Block(id uuid.UUID, reason string) (Change, error) {
	return r.apply(id, EventBlock, false, func(b *Bed) {
		b.BlockReason = reason
	}, nil)
}

// Unblock returns a blocked bed to service with no residual block reason.
func (r *Registry) Unblock(id uuid.UUID) (Change, error) {
	return r.apply(id, EventUnblock, false, func(b *Bed) {
		b.BlockReason = ""
		b.StatusNote = ""
	}, nil)
}

// Assign places a patient into a free bed, guarded by complexity, isolation
// and room-sex compatibility, and by global patient uniqueness.
func (r *Registry) Assign(id uuid.UUID, occ Occupant) (Change, error) {
	return r.apply(id, EventAssign, false, func(b *Bed) {
		o := occ
		b.Occupant = &o
	}, func(b *Bed) error {
		return r.compatibleLocked(b, occ)
	})
}

// RequestNewBed flags that the current bed no longer fits the occupant's
// needs; the patient stays in place while a new bed is searched.
func (r *Registry) RequestNewBed(id uuid.UUID) (Change, error) {
	return r.apply(id, EventRequestNewBed, false, nil, nil)
}

// SuggestDischarge, InitiateDischarge, ExecuteDischarge, CancelDischarge
// walk the discharge leg of the machine.
func (r *Registry) SuggestDischarge(id uuid.UUID) (Change, error) {
	return r.apply(id, EventSuggestDischarge, false, nil, nil)
}

func (r *Registry) InitiateDischarge(id uuid.UUID) (Change, error) {
	return r.apply(id, EventInitiateDischarge, false, nil, nil)
}

func (r *Registry) ExecuteDischarge(id uuid.UUID) (Change, error) {
	return r.apply(id, EventExecuteDischarge, false, func(b *Bed) {
		b.Occupant = nil
	}, nil)
}

func (r *Registry) CancelDischarge(id uuid.UUID) (Change, error) {
	return r.apply(id, EventCancelDischarge, false, nil, nil)
}

// RecordDeath marks the occupant deceased in place.
func (r *Registry) RecordDeath(id uuid.UUID) (Change, error) {
	return r.apply(id, EventRecordDeath, false, nil, nil)
}

// CompleteDeathDischarge releases the bed to cleaning after a death.
func (r *Registry) CompleteDeathDischarge(id uuid.UUID) (Change, error) {
	return r.apply(id, EventCompleteDeathDischarge, false, func(b *Bed) {
		b.Occupant = nil
	}, nil)
}

// CancelDeath reverses an erroneous death record. Manual mode only.
func (r *Registry) CancelDeath(id uuid.UUID, manualMode bool) (Change, error) {
	return r.apply(id, EventCancelDeath, manualMode, nil, nil)
}

// RequestReferral parks the bed while a cross-hospital referral is arranged.
func (r *Registry) RequestReferral(id uuid.UUID) (Change, error) {
	return r.apply(id, EventRequestReferral, false, nil, nil)
}

func (r *Registry) AcceptReferral(id uuid.UUID) (Change, error) {
	return r.apply(id, EventAcceptReferral, false, nil, nil)
}

func (r *Registry) CancelReferral(id uuid.UUID) (Change, error) {
	return r.apply(id, EventCancelReferral, false, nil, nil)
}

// ConfirmReferralEgress releases the origin bed once the destination
// hospital has taken the patient in.
func (r *Registry) ConfirmReferralEgress(id uuid.UUID) (Change, error) {
	return r.apply(id, EventConfirmReferralEgress, false, func(b *Bed) {
		b.Occupant = nil
	}, nil)
}

// FinishCleaning is fired by the timer collaborator when the cleaning
// duration elapses.
func (r *Registry) FinishCleaning(id uuid.UUID) (Change, error) {
	return r.apply(id, EventCleaningDone, false, func(b *Bed) {
		b.BlockReason = ""
		b.StatusNote = ""
	}, nil)
}

// ReserveIncoming reserves a free bed for a patient arriving from outside
// the local transfer flow (cross-hospital referral admission).
func (r *Registry) ReserveIncoming(id uuid.UUID, occ Occupant) (Change, error) {
	return r.apply(id, EventReserveIncoming, false, func(b *Bed) {
		o := occ
		b.Incoming = &o
	}, func(b *Bed) error {
		if other, taken := r.incoming[occ.PatientID]; taken && other != b.ID {
			return fmt.Errorf("patient %s already expected at bed %s: %w", occ.PatientID, other, ErrPatientPlaced)
		}
		return r.compatibleLocked(b, occ)
	})
}

// ---------------------------------------------------------------------------
// Transfers (two-bed operations)
// ---------------------------------------------------------------------------

// InitiateTransfer reserves dest for the occupant of origin. Origin must be
// BED_SEARCHING; dest must be FREE and compatible. Both beds are locked in a
// fixed global order to prevent deadlock.
func (r *Registry) InitiateTransfer(originID, destID uuid.UUID) ([]Change, error) {
	if originID == destID {
		return nil, fmt.Errorf("origin and destination are the same bed: %w", ErrInvalidTransition)
	}
	so, err := r.slot(originID)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	sd, err := r.slot(destID)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	unlock := lockPair(so, sd)
	defer unlock()

	oldO, oldD := so.bed, sd.bed
	trO, err := next(oldO.ID.String(), oldO.State, EventBeginOutgoing, false)
	if err != nil {
		return nil, err
	}
	trD, err := next(oldD.ID.String(), oldD.State, EventReserveIncoming, false)
	if err != nil {
		return nil, err
	}
	if oldO.Occupant == nil {
		return nil, fmt.Errorf("origin bed %s has no occupant: %w", originID, ErrInvalidTransition)
	}
	occ := *oldO.Occupant

	newO := oldO
	newO.State = trO.next
	newO.UpdatedAt = time.Now()
	newD := oldD
	newD.State = trD.next
	newD.Incoming = &occ
	newD.UpdatedAt = newO.UpdatedAt

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.compatibleLocked(&oldD, occ); err != nil {
		return nil, err
	}
	if other, taken := r.incoming[occ.PatientID]; taken {
		return nil, fmt.Errorf("patient %s already expected at bed %s: %w", occ.PatientID, other, ErrPatientPlaced)
	}
	r.commitLocked(so, newO)
	r.commitLocked(sd, newD)
	return []Change{
		{Bed: newO, From: oldO.State, To: newO.State, Event: EventBeginOutgoing, Alert: trO.alert, PatientID: changePatientID(oldO, newO)},
		{Bed: newD, From: oldD.State, To: newD.State, Event: EventReserveIncoming, Alert: trD.alert, PatientID: changePatientID(oldD, newD)},
	}, nil
}

// ConfirmTransfer acknowledges the destination's confirmation on the origin
// side.
func (r *Registry) ConfirmTransfer(originID uuid.UUID) (Change, error) {
	return r.apply(originID, EventConfirmTransfer, false, nil, nil)
}

// CompleteTransfer moves the incoming patient into the destination bed. If
// the patient's origin bed is local and already confirmed, it is released to
// cleaning in the same step (implicit completion).
func (r *Registry) CompleteTransfer(destID uuid.UUID) ([]Change, error) {
	sd, err := r.slot(destID)
	if err != nil {
		return nil, err
	}

	// Peek at the incoming patient to locate a local origin bed.
	r.mu.RLock()
	var originID uuid.UUID
	if sd.bed.Incoming != nil {
		originID = r.placed[sd.bed.Incoming.PatientID]
	}
	r.mu.RUnlock()

	var so *slot
	if originID != uuid.Nil && originID != destID {
		if so, err = r.slot(originID); err != nil {
			so = nil
		}
	}

	if so == nil {
		ch, err := r.apply(destID, EventCompleteTransfer, false, func(b *Bed) {
			b.Occupant = b.Incoming
			b.Incoming = nil
		}, nil)
		if err != nil {
			return nil, err
		}
		return []Change{ch}, nil
	}

	unlock := lockPair(so, sd)
	defer unlock()

	oldD, oldO := sd.bed, so.bed
	if oldD.Incoming == nil {
		return nil, &TransitionError{BedID: destID.String(), Current: oldD.State, Event: EventCompleteTransfer}
	}
	trD, err := next(oldD.ID.String(), oldD.State, EventCompleteTransfer, false)
	if err != nil {
		return nil, err
	}

	newD := oldD
	newD.State = trD.next
	newD.Occupant = oldD.Incoming
	newD.Incoming = nil
	newD.UpdatedAt = time.Now()

	changes := make([]Change, 0, 2)

	r.mu.Lock()
	defer r.mu.Unlock()

	// A local origin still holding the patient must have reached
	// TRANSFER_CONFIRMED; completing before the confirmation would leave the
	// patient occupant of both beds. Once confirmed, the origin releases to
	// cleaning in the same step.
	if oldO.Occupant != nil && oldO.Occupant.PatientID == oldD.Incoming.PatientID {
		if oldO.State != StateTransferConfirmed {
			return nil, &TransitionError{BedID: oldO.ID.String(), Current: oldO.State, Event: EventCompleteTransfer}
		}
		trO, err := next(oldO.ID.String(), oldO.State, EventReleaseOrigin, false)
		if err != nil {
			return nil, err
		}
		newO := oldO
		newO.State = trO.next
		newO.Occupant = nil
		newO.UpdatedAt = newD.UpdatedAt
		r.commitLocked(so, newO)
		changes = append(changes, Change{Bed: newO, From: oldO.State, To: newO.State, Event: EventReleaseOrigin, Alert: trO.alert, PatientID: changePatientID(oldO, newO)})
	}

	r.commitLocked(sd, newD)
	changes = append(changes, Change{Bed: newD, From: oldD.State, To: newD.State, Event: EventCompleteTransfer, Alert: trD.alert, PatientID: changePatientID(oldD, newD)})
	return changes, nil
}

// CancelTransfer unwinds an in-flight transfer from either side. The
// destination returns to FREE; a local counterpart bed is reverted in the
// same step.
func (r *Registry) CancelTransfer(id uuid.UUID) ([]Change, error) {
	s, err := r.slot(id)
	if err != nil {
		return nil, err
	}

	// Locate the counterpart bed through the patient indexes.
	r.mu.RLock()
	var peerID uuid.UUID
	switch s.bed.State {
	case StateTransferIncoming, StateTransferConfirmed:
		if s.bed.Incoming != nil {
			peerID = r.placed[s.bed.Incoming.PatientID]
		}
		if peerID == uuid.Nil && s.bed.Occupant != nil {
			peerID = r.incoming[s.bed.Occupant.PatientID]
		}
	case StateTransferOutgoing:
		if s.bed.Occupant != nil {
			peerID = r.incoming[s.bed.Occupant.PatientID]
		}
	}
	r.mu.RUnlock()

	var peer *slot
	if peerID != uuid.Nil && peerID != id {
		if peer, err = r.slot(peerID); err != nil {
			peer = nil
		}
	}

	if peer == nil {
		ch, err := r.cancelOne(s)
		if err != nil {
			return nil, err
		}
		return []Change{ch}, nil
	}

	unlock := lockPair(s, peer)
	defer unlock()

	first, err := r.cancelOneLocked(s)
	if err != nil {
		return nil, err
	}
	second, err := r.cancelOneLocked(peer)
	if err != nil {
		// The peer may have moved on; the primary cancellation stands.
		return []Change{first}, nil
	}
	return []Change{first, second}, nil
}

func (r *Registry) cancelOne(s *slot) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.cancelOneLocked(s)
}

func (r *Registry) cancelOneLocked(s *slot) (Change, error) {
	old := s.bed
	tr, err := next(old.ID.String(), old.State, EventCancelTransfer, false)
	if err != nil {
		return Change{}, err
	}
	nb := old
	nb.State = tr.next
	if tr.next == StateFree {
		nb.Incoming = nil
	}
	nb.UpdatedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitLocked(s, nb)
	return Change{Bed: nb, From: old.State, To: nb.State, Event: EventCancelTransfer, Alert: tr.alert, PatientID: changePatientID(old, nb)}, nil
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (r *Registry) slot(id uuid.UUID) (*slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.beds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// apply runs one single-bed transition: resolve the table row, run the
// effect on a copy, run the guard and commit under the registry lock.
func (r *Registry) apply(id uuid.UUID, ev Event, manualMode bool, effect func(*Bed), guard func(*Bed) error) (Change, error) {
	s, err := r.slot(id)
	if err != nil {
		return Change{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.bed
	tr, err := next(old.ID.String(), old.State, ev, manualMode)
	if err != nil {
		return Change{}, err
	}

	nb := old
	if effect != nil {
		effect(&nb)
	}
	nb.State = tr.next
	nb.UpdatedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if guard != nil {
		if err := guard(&old); err != nil {
			return Change{}, err
		}
	}
	if nb.Occupant != nil {
		if other, taken := r.placed[nb.Occupant.PatientID]; taken && other != nb.ID {
			return Change{}, fmt.Errorf("patient %s already in bed %s: %w", nb.Occupant.PatientID, other, ErrPatientPlaced)
		}
	}
	r.commitLocked(s, nb)
	return Change{Bed: nb, From: old.State, To: nb.State, Event: ev, Alert: tr.alert, PatientID: changePatientID(old, nb)}, nil
}

// commitLocked publishes the new bed value and refreshes every index.
// Callers hold both the slot lock and the registry write lock.
func (r *Registry) commitLocked(s *slot, nb Bed) {
	r.unindexLocked(s.bed)
	s.bed = nb
	r.indexLocked(nb)
}

func (r *Registry) indexLocked(b Bed) {
	addIndex(r.byState, b.State, b.ID)
	addIndex(r.byService, b.Service, b.ID)
	addIndex(r.byRoom, b.RoomKey(), b.ID)
	if b.Occupant != nil {
		r.placed[b.Occupant.PatientID] = b.ID
	}
	if b.Incoming != nil {
		r.incoming[b.Incoming.PatientID] = b.ID
	}
}

func (r *Registry) unindexLocked(b Bed) {
	dropIndex(r.byState, b.State, b.ID)
	dropIndex(r.byService, b.Service, b.ID)
	dropIndex(r.byRoom, b.RoomKey(), b.ID)
	if b.Occupant != nil && r.placed[b.Occupant.PatientID] == b.ID {
		delete(r.placed, b.Occupant.PatientID)
	}
	if b.Incoming != nil && r.incoming[b.Incoming.PatientID] == b.ID {
		delete(r.incoming, b.Incoming.PatientID)
	}
}

func addIndex[K comparable](idx map[K]map[uuid.UUID]struct{}, key K, id uuid.UUID) {
	set, ok := idx[key]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func dropIndex[K comparable](idx map[K]map[uuid.UUID]struct{}, key K, id uuid.UUID) {
	if set, ok := idx[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(idx, key)
		}
	}
}

// compatibleLocked checks complexity, isolation and room-sex segregation.
// Callers hold Registry.mu (read or write).
func (r *Registry) compatibleLocked(b *Bed, occ Occupant) error {
	if !b.Complexity.Covers(occ.Complexity) {
		return fmt.Errorf("bed %s tier %s cannot take %s patient: %w", b.ID, b.Complexity, occ.Complexity, ErrIncompatibleBed)
	}
	if occ.RequiresIsolation && !b.IsolationCapable {
		return fmt.Errorf("bed %s has no isolation: %w", b.ID, ErrIncompatibleBed)
	}
	for otherID := range r.byRoom[b.RoomKey()] {
		if otherID == b.ID {
			continue
		}
		other, ok := r.beds[otherID]
		if !ok {
			continue
		}
		for _, roommate := range []*Occupant{other.bed.Occupant, other.bed.Incoming} {
			if roommate != nil && roommate.Sex != occ.Sex {
				return fmt.Errorf("room %s holds a %s patient: %w", b.RoomKey(), roommate.Sex, ErrIncompatibleBed)
			}
		}
	}
	return nil
}

// lockPair locks two slots in a fixed global order (by bed id) and returns
// the matching unlock.
func lockPair(a, b *slot) func() {
	first, second := a, b
	if strings.Compare(a.id.String(), b.id.String()) > 0 {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}
