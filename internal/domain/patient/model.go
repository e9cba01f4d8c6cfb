package patient

import (
	"time"

	"github.com/google/uuid"
)

// ComplexityTier is the required intensity of care for a patient, and the
// level of care a bed is equipped to deliver.
type ComplexityTier string

const (
	ComplexityNone         ComplexityTier = "none"
	ComplexityLow          ComplexityTier = "low"
	ComplexityIntermediate ComplexityTier = "intermediate"
	ComplexityCritical     ComplexityTier = "critical"
)

var tierRank = map[ComplexityTier]int{
	ComplexityNone:         0,
	ComplexityLow:          1,
	ComplexityIntermediate: 2,
	ComplexityCritical:     3,
}

// Rank returns the ordinal position of the tier (none < low < intermediate < critical).
// Unknown tiers rank below none.
func (t ComplexityTier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// Valid reports whether t is one of the four known tiers.
func (t ComplexityTier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Covers reports whether a bed of tier t can care for a patient requiring `required`.
func (t ComplexityTier) Covers(required ComplexityTier) bool {
	return t.Rank() >= required.Rank()
}

// Sex is used for room segregation rules, not for anything clinical.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// OriginType classifies where a patient seeking a bed comes from.
type OriginType string

const (
	OriginHospitalized OriginType = "hospitalized"
	OriginEmergency    OriginType = "emergency"
	OriginOutpatient   OriginType = "outpatient"
	OriginReferredIn   OriginType = "referred_in"
)

// WaitingState tracks a patient's membership in the waiting list.
type WaitingState string

const (
	WaitingNone      WaitingState = "not_waiting"
	WaitingActive    WaitingState = "waiting"
	WaitingSearching WaitingState = "searching"
	WaitingMatched   WaitingState = "matched"
)

// ReferralState tracks where a patient stands in a cross-hospital referral.
type ReferralState string

const (
	ReferralNone      ReferralState = "none"
	ReferralRequested ReferralState = "requested"
	ReferralAccepted  ReferralState = "accepted"
	ReferralRejected  ReferralState = "rejected"
)

// Requirement is a single clinical support need. Requirements are closed
// enum values, each belonging to one complexity tier, so compatibility
// checks and scoring never parse free text.
type Requirement string

const (
	// Low tier
	ReqOxygenTherapy   Requirement = "oxygen_therapy"
	ReqBasicMonitoring Requirement = "basic_monitoring"
	ReqIVTherapy       Requirement = "iv_therapy"
	ReqWoundCare       Requirement = "wound_care"

	// Intermediate tier
	ReqTelemetry           Requirement = "telemetry"
	ReqNonInvasiveVent     Requirement = "non_invasive_ventilation"
	ReqHighFlowOxygen      Requirement = "high_flow_oxygen"
	ReqComplexDrugInfusion Requirement = "complex_drug_infusion"

	// Critical tier
	ReqMechanicalVent     Requirement = "mechanical_ventilation"
	ReqVasoactiveDrugs    Requirement = "vasoactive_drugs"
	ReqContinuousDialysis Requirement = "continuous_dialysis"
	ReqInvasiveMonitoring Requirement = "invasive_monitoring"
)

var requirementTier = map[Requirement]ComplexityTier{
	ReqOxygenTherapy:   ComplexityLow,
	ReqBasicMonitoring: ComplexityLow,
	ReqIVTherapy:       ComplexityLow,
	ReqWoundCare:       ComplexityLow,

	ReqTelemetry:           ComplexityIntermediate,
	ReqNonInvasiveVent:     ComplexityIntermediate,
	ReqHighFlowOxygen:      ComplexityIntermediate,
	ReqComplexDrugInfusion: ComplexityIntermediate,

	ReqMechanicalVent:     ComplexityCritical,
	ReqVasoactiveDrugs:    ComplexityCritical,
	ReqContinuousDialysis: ComplexityCritical,
	ReqInvasiveMonitoring: ComplexityCritical,
}

// Tier returns the complexity tier a requirement belongs to.
func (r Requirement) Tier() (ComplexityTier, bool) {
	t, ok := requirementTier[r]
	return t, ok
}

// DeriveComplexity returns the highest tier among the given requirements,
// or ComplexityNone when the list is empty.
func DeriveComplexity(reqs []Requirement) ComplexityTier {
	out := ComplexityNone
	for _, r := range reqs {
		if t, ok := requirementTier[r]; ok && t.Rank() > out.Rank() {
			out = t
		}
	}
	return out
}

// Patient maps to the patient table.
type Patient struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Age             int       `db:"age" json:"age"`
	Sex             Sex       `db:"sex" json:"sex"`
	Pregnant        bool      `db:"pregnant" json:"pregnant"`
	Diagnosis       string    `db:"diagnosis" json:"diagnosis"`
	DiseaseCategory string    `db:"disease_category" json:"disease_category"`

	RequiresIsolation  bool           `db:"requires_isolation" json:"requires_isolation"`
	RequiredComplexity ComplexityTier `db:"required_complexity" json:"required_complexity"`
	Requirements       []Requirement  `db:"requirements" json:"requirements"`

	SocioMedical           bool `db:"socio_medical" json:"socio_medical"`
	SocioLegal             bool `db:"socio_legal" json:"socio_legal"`
	AwaitingCardiacSurgery bool `db:"awaiting_cardiac_surgery" json:"awaiting_cardiac_surgery"`

	Origin        OriginType    `db:"origin" json:"origin"`
	WaitingState  WaitingState  `db:"waiting_state" json:"waiting_state"`
	ReferralState ReferralState `db:"referral_state" json:"referral_state"`

	CurrentBedID     *uuid.UUID `db:"current_bed_id" json:"current_bed_id,omitempty"`
	DestinationBedID *uuid.UUID `db:"destination_bed_id" json:"destination_bed_id,omitempty"`

	AdmittedAt   *time.Time `db:"admitted_at" json:"admitted_at,omitempty"`
	WaitingSince *time.Time `db:"waiting_since" json:"waiting_since,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
