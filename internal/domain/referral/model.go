package referral

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/caresuite/bedflow/internal/domain/patient"
)

var (
	ErrNotFound = errors.New("referral not found")
	// ErrLocalBedAvailable is the fast-fail of the local exhaustion check: a
	// compatible bed exists in this hospital, so the normal assignment path
	// applies instead of a referral.
	ErrLocalBedAvailable = errors.New("a compatible local bed is available")
	ErrAlreadyResolved   = errors.New("referral already resolved")
)

// State of a referral request.
type State string

const (
	StatePending   State = "pending"
	StateAccepted  State = "accepted"
	StateRejected  State = "rejected"
	StateCancelled State = "cancelled"
)

// Direction distinguishes requests this hospital sent from requests it
// received from a peer.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Request maps to the referral_request table. The same record exists on both
// sides of a referral under the same id: the origin creates it and submits a
// copy to the destination, which resolves it.
type Request struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Direction Direction `db:"direction" json:"direction"`

	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	OriginBedID *uuid.UUID `db:"origin_bed_id" json:"origin_bed_id,omitempty"`

	// OriginHospital is the sending hospital's id. DestinationHospital is
	// the peer's base URL on the outbound side and this hospital's id on the
	// inbound side.
	OriginHospital      string `db:"origin_hospital" json:"origin_hospital"`
	DestinationHospital string `db:"destination_hospital" json:"destination_hospital"`

	Reason       string `db:"reason" json:"reason"`
	DocumentRef  string `db:"document_ref" json:"document_ref,omitempty"`
	State        State  `db:"state" json:"state"`
	RejectReason string `db:"reject_reason" json:"reject_reason,omitempty"`

	// Patient is the clinical snapshot carried on the wire so the
	// destination can score and admit without reaching back.
	Patient *patient.Patient `db:"patient_snapshot" json:"patient,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Resolved reports whether the request left the pending state.
func (r *Request) Resolved() bool {
	return r.State != StatePending
}
