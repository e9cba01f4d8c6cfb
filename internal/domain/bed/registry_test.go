package bed

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/caresuite/bedflow/internal/domain/patient"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry("hosp-a")
}

func addBed(t *testing.T, r *Registry, service, ward, room string, tier patient.ComplexityTier, isolation bool) Bed {
	t.Helper()
	b, err := r.Add(Bed{Service: service, Ward: ward, Room: room, Complexity: tier, IsolationCapable: isolation})
	if err != nil {
		t.Fatalf("add bed: %v", err)
	}
	return b
}

func occupant(sex patient.Sex, tier patient.ComplexityTier) Occupant {
	return Occupant{PatientID: uuid.New(), Sex: sex, Complexity: tier}
}

func TestRegistry_AssignRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	b := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	occ := occupant(patient.SexMale, patient.ComplexityLow)

	ch, err := r.Assign(b.ID, occ)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if ch.From != StateFree || ch.To != StateOccupied {
		t.Errorf("change %s -> %s, want FREE -> OCCUPIED", ch.From, ch.To)
	}
	if !ch.Alert {
		t.Error("assign should carry the alert flag")
	}
	if ch.PatientID == nil || *ch.PatientID != occ.PatientID {
		t.Error("change should reference the assigned patient")
	}

	got, err := r.Get(b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateOccupied {
		t.Errorf("state = %s, want %s", got.State, StateOccupied)
	}
	if got.Occupant == nil || got.Occupant.PatientID != occ.PatientID {
		t.Error("occupant not recorded")
	}
}

func TestRegistry_BlockUnblockClearsReason(t *testing.T) {
	r := newTestRegistry(t)
	b := addBed(t, r, "medicine", "w1", "101", patient.ComplexityNone, false)

	if _, err := r.Block(b.ID, "broken rail"); err != nil {
		t.Fatalf("block: %v", err)
	}
	got, _ := r.Get(b.ID)
	if got.State != StateBlocked || got.BlockReason != "broken rail" {
		t.Fatalf("after block: state=%s reason=%q", got.State, got.BlockReason)
	}

	if _, err := r.Unblock(b.ID); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	got, _ = r.Get(b.ID)
	if got.State != StateFree || got.BlockReason != "" {
		t.Errorf("after unblock: state=%s reason=%q, want FREE with empty reason", got.State, got.BlockReason)
	}
}

func TestRegistry_AssignRejectsIncompatibleTier(t *testing.T) {
	r := newTestRegistry(t)
	b := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)

	_, err := r.Assign(b.ID, occupant(patient.SexMale, patient.ComplexityCritical))
	if !errors.Is(err, ErrIncompatibleBed) {
		t.Fatalf("expected ErrIncompatibleBed, got %v", err)
	}
	got, _ := r.Get(b.ID)
	if got.State != StateFree || got.Occupant != nil {
		t.Error("rejected assign must not mutate the bed")
	}
}

func TestRegistry_AssignRejectsIsolationMismatch(t *testing.T) {
	r := newTestRegistry(t)
	b := addBed(t, r, "medicine", "w1", "101", patient.ComplexityCritical, false)

	occ := occupant(patient.SexFemale, patient.ComplexityLow)
	occ.RequiresIsolation = true
	if _, err := r.Assign(b.ID, occ); !errors.Is(err, ErrIncompatibleBed) {
		t.Fatalf("expected ErrIncompatibleBed, got %v", err)
	}
}

func TestRegistry_RoomSexSegregation(t *testing.T) {
	r := newTestRegistry(t)
	b1 := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	b2 := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	other := addBed(t, r, "medicine", "w1", "102", patient.ComplexityLow, false)

	if _, err := r.Assign(b1.ID, occupant(patient.SexMale, patient.ComplexityLow)); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if _, err := r.Assign(b2.ID, occupant(patient.SexFemale, patient.ComplexityLow)); !errors.Is(err, ErrIncompatibleBed) {
		t.Fatalf("same-room opposite sex should be rejected, got %v", err)
	}
	// A different room is unconstrained.
	if _, err := r.Assign(other.ID, occupant(patient.SexFemale, patient.ComplexityLow)); err != nil {
		t.Fatalf("different room: %v", err)
	}
}

func TestRegistry_PatientNeverPlacedTwice(t *testing.T) {
	r := newTestRegistry(t)
	b1 := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	b2 := addBed(t, r, "medicine", "w1", "102", patient.ComplexityLow, false)
	occ := occupant(patient.SexMale, patient.ComplexityLow)

	if _, err := r.Assign(b1.ID, occ); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if _, err := r.Assign(b2.ID, occ); !errors.Is(err, ErrPatientPlaced) {
		t.Fatalf("expected ErrPatientPlaced, got %v", err)
	}
}

func TestRegistry_ConcurrentAssignSingleWinner(t *testing.T) {
	r := newTestRegistry(t)
	b := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Assign(b.ID, occupant(patient.SexMale, patient.ComplexityLow))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrInvalidTransition):
		default:
			t.Errorf("loser got unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	got, _ := r.Get(b.ID)
	if got.State != StateOccupied || got.Occupant == nil {
		t.Error("bed should end OCCUPIED with one occupant")
	}
}

func TestRegistry_TransferLifecycle(t *testing.T) {
	r := newTestRegistry(t)
	origin := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	dest := addBed(t, r, "icu", "w2", "201", patient.ComplexityCritical, false)
	occ := occupant(patient.SexMale, patient.ComplexityLow)

	if _, err := r.Assign(origin.ID, occ); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := r.RequestNewBed(origin.ID); err != nil {
		t.Fatalf("request new bed: %v", err)
	}
	got, _ := r.Get(origin.ID)
	if got.State != StateBedSearching || got.Occupant == nil {
		t.Fatalf("searching bed must retain its occupant, state=%s", got.State)
	}

	changes, err := r.InitiateTransfer(origin.ID, dest.ID)
	if err != nil {
		t.Fatalf("initiate transfer: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	gotO, _ := r.Get(origin.ID)
	gotD, _ := r.Get(dest.ID)
	if gotO.State != StateTransferOutgoing {
		t.Errorf("origin state = %s, want %s", gotO.State, StateTransferOutgoing)
	}
	if gotD.State != StateTransferIncoming || gotD.Incoming == nil || gotD.Incoming.PatientID != occ.PatientID {
		t.Errorf("destination should reserve the incoming patient, state=%s", gotD.State)
	}

	if _, err := r.ConfirmTransfer(origin.ID); err != nil {
		t.Fatalf("confirm transfer: %v", err)
	}

	changes, err = r.CompleteTransfer(dest.ID)
	if err != nil {
		t.Fatalf("complete transfer: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("complete changes = %d, want 2 (origin release plus destination)", len(changes))
	}
	gotO, _ = r.Get(origin.ID)
	gotD, _ = r.Get(dest.ID)
	if gotO.State != StateCleaning || gotO.Occupant != nil {
		t.Errorf("origin should be CLEANING and empty, state=%s", gotO.State)
	}
	if gotD.State != StateOccupied || gotD.Occupant == nil || gotD.Occupant.PatientID != occ.PatientID {
		t.Errorf("destination should be OCCUPIED by the moved patient, state=%s", gotD.State)
	}
	if gotD.Incoming != nil {
		t.Error("incoming reference must be cleared on completion")
	}
}

func TestRegistry_CompleteTransferBeforeConfirmRejected(t *testing.T) {
	r := newTestRegistry(t)
	origin := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	dest := addBed(t, r, "icu", "w2", "201", patient.ComplexityCritical, false)
	occ := occupant(patient.SexMale, patient.ComplexityLow)

	if _, err := r.Assign(origin.ID, occ); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := r.RequestNewBed(origin.ID); err != nil {
		t.Fatalf("request new bed: %v", err)
	}
	if _, err := r.InitiateTransfer(origin.ID, dest.ID); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	// Destination completes while the origin never confirmed.
	_, err := r.CompleteTransfer(dest.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete before confirm: err = %v, want ErrInvalidTransition", err)
	}
	var terr *TransitionError
	if !errors.As(err, &terr) || terr.Current != StateTransferOutgoing {
		t.Fatalf("error should name the unconfirmed origin, got %v", err)
	}

	// Both beds are untouched and the patient occupies exactly one bed.
	gotO, _ := r.Get(origin.ID)
	gotD, _ := r.Get(dest.ID)
	if gotO.State != StateTransferOutgoing || gotO.Occupant == nil || gotO.Occupant.PatientID != occ.PatientID {
		t.Errorf("origin must keep its occupant, state=%s", gotO.State)
	}
	if gotD.State != StateTransferIncoming || gotD.Occupant != nil {
		t.Errorf("destination must stay reserved, not occupied, state=%s", gotD.State)
	}

	// Confirming unblocks the completion.
	if _, err := r.ConfirmTransfer(origin.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := r.CompleteTransfer(dest.ID); err != nil {
		t.Fatalf("complete after confirm: %v", err)
	}
	gotO, _ = r.Get(origin.ID)
	gotD, _ = r.Get(dest.ID)
	if gotO.Occupant != nil || gotD.Occupant == nil {
		t.Error("patient must end up occupant of exactly the destination")
	}
}

func TestRegistry_ConcurrentTransferAndSingleBedOps(t *testing.T) {
	r := newTestRegistry(t)
	dest := addBed(t, r, "medicine", "w1", "102", patient.ComplexityLow, false)

	origins := make([]Bed, 4)
	for i := range origins {
		origins[i] = addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
		if _, err := r.Assign(origins[i].ID, occupant(patient.SexMale, patient.ComplexityLow)); err != nil {
			t.Fatalf("assign: %v", err)
		}
		if _, err := r.RequestNewBed(origins[i].ID); err != nil {
			t.Fatalf("request new bed: %v", err)
		}
	}

	// Transfers against dest race with block/unblock cycles on dest. Every
	// outcome is either success or a clean transition rejection.
	var wg sync.WaitGroup
	for i := range origins {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.InitiateTransfer(origins[i].ID, dest.ID); err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("initiate: %v", err)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if _, err := r.Block(dest.ID, "maintenance"); err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("block: %v", err)
				return
			}
			if _, err := r.Unblock(dest.ID); err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("unblock: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	got, _ := r.Get(dest.ID)
	if got.Incoming != nil && got.State != StateTransferIncoming {
		t.Errorf("reservation without the matching state, state=%s", got.State)
	}
}

func TestRegistry_CancelTransferRevertsBothBeds(t *testing.T) {
	r := newTestRegistry(t)
	origin := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	dest := addBed(t, r, "medicine", "w1", "102", patient.ComplexityLow, false)
	occ := occupant(patient.SexMale, patient.ComplexityLow)

	if _, err := r.Assign(origin.ID, occ); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := r.RequestNewBed(origin.ID); err != nil {
		t.Fatalf("request new bed: %v", err)
	}
	if _, err := r.InitiateTransfer(origin.ID, dest.ID); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	changes, err := r.CancelTransfer(dest.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	gotO, _ := r.Get(origin.ID)
	gotD, _ := r.Get(dest.ID)
	if gotD.State != StateFree || gotD.Incoming != nil {
		t.Errorf("destination should return FREE with no reservation, state=%s", gotD.State)
	}
	if gotO.State != StateOccupied || gotO.Occupant == nil {
		t.Errorf("origin should return OCCUPIED with its patient, state=%s", gotO.State)
	}
}

func TestRegistry_TransferRejectsIncompatibleDestination(t *testing.T) {
	r := newTestRegistry(t)
	origin := addBed(t, r, "medicine", "w1", "101", patient.ComplexityCritical, false)
	dest := addBed(t, r, "medicine", "w1", "102", patient.ComplexityNone, false)
	occ := occupant(patient.SexMale, patient.ComplexityCritical)

	if _, err := r.Assign(origin.ID, occ); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := r.RequestNewBed(origin.ID); err != nil {
		t.Fatalf("request new bed: %v", err)
	}
	if _, err := r.InitiateTransfer(origin.ID, dest.ID); !errors.Is(err, ErrIncompatibleBed) {
		t.Fatalf("expected ErrIncompatibleBed, got %v", err)
	}
	gotO, _ := r.Get(origin.ID)
	gotD, _ := r.Get(dest.ID)
	if gotO.State != StateBedSearching || gotD.State != StateFree {
		t.Error("failed transfer must leave both beds untouched")
	}
}

func TestRegistry_OccupantStateImplication(t *testing.T) {
	r := newTestRegistry(t)
	b := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	occ := occupant(patient.SexMale, patient.ComplexityLow)

	if _, err := r.Assign(b.ID, occ); err != nil {
		t.Fatalf("assign: %v", err)
	}
	steps := []func() (Change, error){
		func() (Change, error) { return r.SuggestDischarge(b.ID) },
		func() (Change, error) { return r.InitiateDischarge(b.ID) },
	}
	for _, step := range steps {
		if _, err := step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		got, _ := r.Get(b.ID)
		if got.Occupant != nil && !got.State.AllowsOccupant() {
			t.Fatalf("occupant present in state %s which does not allow it", got.State)
		}
	}

	if _, err := r.ExecuteDischarge(b.ID); err != nil {
		t.Fatalf("execute discharge: %v", err)
	}
	got, _ := r.Get(b.ID)
	if got.State != StateCleaning || got.Occupant != nil {
		t.Errorf("after discharge: state=%s occupant=%v", got.State, got.Occupant)
	}

	if _, err := r.FinishCleaning(b.ID); err != nil {
		t.Fatalf("finish cleaning: %v", err)
	}
	got, _ = r.Get(b.ID)
	if got.State != StateFree {
		t.Errorf("after cleaning: state=%s, want FREE", got.State)
	}
}

func TestRegistry_DeathPath(t *testing.T) {
	r := newTestRegistry(t)
	b := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	if _, err := r.Assign(b.ID, occupant(patient.SexMale, patient.ComplexityLow)); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, err := r.RecordDeath(b.ID); err != nil {
		t.Fatalf("record death: %v", err)
	}
	if _, err := r.CancelDeath(b.ID, false); !errors.Is(err, ErrManualModeRequired) {
		t.Fatalf("cancel death without manual mode: got %v", err)
	}
	ch, err := r.CancelDeath(b.ID, true)
	if err != nil {
		t.Fatalf("cancel death in manual mode: %v", err)
	}
	if ch.To != StateOccupied {
		t.Errorf("cancel death should restore OCCUPIED, got %s", ch.To)
	}

	if _, err := r.RecordDeath(b.ID); err != nil {
		t.Fatalf("record death again: %v", err)
	}
	if _, err := r.CompleteDeathDischarge(b.ID); err != nil {
		t.Fatalf("complete death discharge: %v", err)
	}
	got, _ := r.Get(b.ID)
	if got.State != StateCleaning || got.Occupant != nil {
		t.Errorf("after death discharge: state=%s occupant=%v", got.State, got.Occupant)
	}
}

func TestRegistry_FindCompatible(t *testing.T) {
	r := newTestRegistry(t)
	low := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	crit := addBed(t, r, "icu", "w2", "201", patient.ComplexityCritical, true)
	blocked := addBed(t, r, "medicine", "w1", "103", patient.ComplexityLow, false)
	if _, err := r.Block(blocked.ID, "maintenance"); err != nil {
		t.Fatalf("block: %v", err)
	}

	beds := r.FindCompatible(Placement{Complexity: patient.ComplexityLow, Sex: patient.SexMale})
	ids := make(map[uuid.UUID]bool, len(beds))
	for _, b := range beds {
		ids[b.ID] = true
	}
	if !ids[low.ID] || !ids[crit.ID] {
		t.Error("both the low and the critical bed can take a low patient")
	}
	if ids[blocked.ID] {
		t.Error("blocked beds are never candidates")
	}

	iso := r.FindCompatible(Placement{Complexity: patient.ComplexityLow, RequiresIsolation: true, Sex: patient.SexMale})
	if len(iso) != 1 || iso[0].ID != crit.ID {
		t.Errorf("only the isolation-capable bed qualifies, got %d beds", len(iso))
	}

	if r.HasCompatible(Placement{Complexity: patient.ComplexityCritical, RequiresIsolation: true, Sex: patient.SexFemale}) != true {
		t.Error("critical isolation bed should match")
	}
}

func TestRegistry_RemoveGuards(t *testing.T) {
	r := newTestRegistry(t)
	b := addBed(t, r, "medicine", "w1", "101", patient.ComplexityLow, false)
	if _, err := r.Assign(b.ID, occupant(patient.SexMale, patient.ComplexityLow)); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := r.Remove(b.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("removing an occupied bed: got %v", err)
	}

	free := addBed(t, r, "medicine", "w1", "102", patient.ComplexityLow, false)
	if err := r.Remove(free.ID); err != nil {
		t.Fatalf("removing a free bed: %v", err)
	}
	if _, err := r.Get(free.ID); !errors.Is(err, ErrNotFound) {
		t.Error("removed bed should be gone")
	}
}
