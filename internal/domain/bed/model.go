package bed

import (
	"time"

	"github.com/google/uuid"

	"github.com/caresuite/bedflow/internal/domain/patient"
)

// State is the lifecycle state of a physical bed.
type State string

const (
	StateFree               State = "FREE"
	StateOccupied           State = "OCCUPIED"
	StateTransferIncoming   State = "TRANSFER_INCOMING"
	StateBedSearching       State = "BED_SEARCHING"
	StateTransferOutgoing   State = "TRANSFER_OUTGOING"
	StateTransferConfirmed  State = "TRANSFER_CONFIRMED"
	StateDischargeSuggested State = "DISCHARGE_SUGGESTED"
	StateDischargePending   State = "DISCHARGE_PENDING"
	StateCleaning           State = "CLEANING"
	StateBlocked            State = "BLOCKED"
	StateReferralPending    State = "REFERRAL_PENDING"
	StateReferralConfirmed  State = "REFERRAL_CONFIRMED"
	StateDeceased           State = "DECEASED"
)

// Event is a transition trigger on a bed's state machine.
type Event string

const (
	EventAssign                 Event = "assign"
	EventBlock                  Event = "block"
	EventUnblock                Event = "unblock"
	EventRequestNewBed          Event = "request_new_bed"
	EventReserveIncoming        Event = "reserve_incoming"
	EventBeginOutgoing          Event = "begin_outgoing"
	EventConfirmTransfer        Event = "confirm_transfer"
	EventCompleteTransfer       Event = "complete_transfer"
	EventReleaseOrigin          Event = "release_origin"
	EventCancelTransfer         Event = "cancel_transfer"
	EventSuggestDischarge       Event = "suggest_discharge"
	EventInitiateDischarge      Event = "initiate_discharge"
	EventExecuteDischarge       Event = "execute_discharge"
	EventCancelDischarge        Event = "cancel_discharge"
	EventRequestReferral        Event = "request_referral"
	EventAcceptReferral         Event = "accept_referral"
	EventCancelReferral         Event = "cancel_referral"
	EventConfirmReferralEgress  Event = "confirm_referral_egress"
	EventRecordDeath            Event = "record_death"
	EventCompleteDeathDischarge Event = "complete_death_discharge"
	EventCancelDeath            Event = "cancel_death"
	EventCleaningDone           Event = "cleaning_done"
)

// Occupant is the slice of a patient record the registry needs for
// compatibility guards. The patient service stays the owner of the full
// record.
type Occupant struct {
	PatientID         uuid.UUID              `db:"patient_id" json:"patient_id"`
	Sex               patient.Sex            `db:"sex" json:"sex"`
	Complexity        patient.ComplexityTier `db:"complexity" json:"complexity"`
	RequiresIsolation bool                   `db:"requires_isolation" json:"requires_isolation"`
}

// Bed maps to the bed table.
type Bed struct {
	ID               uuid.UUID              `db:"id" json:"id"`
	HospitalID       string                 `db:"hospital_id" json:"hospital_id"`
	Service          string                 `db:"service" json:"service"`
	Ward             string                 `db:"ward" json:"ward"`
	Room             string                 `db:"room" json:"room"`
	State            State                  `db:"state" json:"state"`
	Complexity       patient.ComplexityTier `db:"complexity" json:"complexity"`
	IsolationCapable bool                   `db:"isolation_capable" json:"isolation_capable"`

	// Occupant and Incoming are mutually exclusive except during the
	// TRANSFER_CONFIRMED window, where the destination bed still holds the
	// incoming reference while the origin holds the occupant.
	Occupant *Occupant `db:"-" json:"occupant,omitempty"`
	Incoming *Occupant `db:"-" json:"incoming,omitempty"`

	BlockReason string `db:"block_reason" json:"block_reason,omitempty"`
	StatusNote  string `db:"status_note" json:"status_note,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RoomKey identifies the physical room for sex-segregation checks.
func (b *Bed) RoomKey() string {
	return b.Service + "/" + b.Ward + "/" + b.Room
}

// Change describes one applied transition, for persistence and event fan-out.
type Change struct {
	Bed       Bed
	From      State
	To        State
	Event     Event
	Alert     bool
	PatientID *uuid.UUID
}

// changePatientID picks the patient a transition was about: the new
// occupant, or whoever was attached before the transition cleared them.
func changePatientID(old, nb Bed) *uuid.UUID {
	switch {
	case nb.Occupant != nil:
		return &nb.Occupant.PatientID
	case old.Occupant != nil:
		return &old.Occupant.PatientID
	case nb.Incoming != nil:
		return &nb.Incoming.PatientID
	case old.Incoming != nil:
		return &old.Incoming.PatientID
	}
	return nil
}

// occupantStates are the states in which a bed may hold a current occupant.
var occupantStates = map[State]bool{
	StateOccupied:           true,
	StateBedSearching:       true,
	StateTransferOutgoing:   true,
	StateTransferConfirmed:  true,
	StateDischargeSuggested: true,
	StateDischargePending:   true,
	StateReferralPending:    true,
	StateReferralConfirmed:  true,
	StateDeceased:           true,
}

// incomingStates are the states in which a bed may hold an incoming
// occupant. A destination bed keeps its incoming reference through the
// confirmed window until the move-in completes.
var incomingStates = map[State]bool{
	StateTransferIncoming:  true,
	StateTransferConfirmed: true,
}

// AllowsOccupant reports whether the state admits a current occupant.
func (s State) AllowsOccupant() bool { return occupantStates[s] }

// AllowsIncoming reports whether the state admits an incoming occupant.
func (s State) AllowsIncoming() bool { return incomingStates[s] }
