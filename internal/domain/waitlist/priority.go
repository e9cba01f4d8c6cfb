package waitlist

import (
	"time"

	"github.com/caresuite/bedflow/internal/domain/patient"
)

// Weight tables for the priority score. The score is additive: origin,
// required complexity, a bounded wait-time ramp and the special-case boosts
// contribute independently, with no precedence among them.
var originWeights = map[patient.OriginType]int{
	patient.OriginEmergency:    300,
	patient.OriginHospitalized: 200,
	patient.OriginReferredIn:   150,
	patient.OriginOutpatient:   100,
}

var complexityWeights = map[patient.ComplexityTier]int{
	patient.ComplexityCritical:     400,
	patient.ComplexityIntermediate: 250,
	patient.ComplexityLow:          120,
	patient.ComplexityNone:         0,
}

// Wait time ramps in 30-minute steps and stops growing after 12 hours, so a
// very old entry cannot drown out clinical urgency.
const (
	waitStep       = 30 * time.Minute
	waitStepWeight = 10
	waitWeightCap  = 240
)

// Special-case boosts. Each toggles independently and adds to the total.
const (
	boostCardiacSurgery = 180
	boostSocioLegal     = 120
	boostSocioMedical   = 90
)

// Breakdown is the decomposed priority score. Every component is reported
// separately so the ranking can be audited and displayed, not only sorted by.
type Breakdown struct {
	Origin         int `json:"origin"`
	Complexity     int `json:"complexity"`
	Wait           int `json:"wait"`
	CardiacSurgery int `json:"cardiac_surgery"`
	SocioLegal     int `json:"socio_legal"`
	SocioMedical   int `json:"socio_medical"`
	Total          int `json:"total"`
}

// Score computes the priority of a waiting patient after the given elapsed
// wait. Pure function: identical inputs always produce identical output.
func Score(p *patient.Patient, elapsed time.Duration) Breakdown {
	b := Breakdown{
		Origin:     originWeights[p.Origin],
		Complexity: complexityWeights[p.RequiredComplexity],
		Wait:       waitWeight(elapsed),
	}
	if p.AwaitingCardiacSurgery {
		b.CardiacSurgery = boostCardiacSurgery
	}
	if p.SocioLegal {
		b.SocioLegal = boostSocioLegal
	}
	if p.SocioMedical {
		b.SocioMedical = boostSocioMedical
	}
	b.Total = b.Origin + b.Complexity + b.Wait + b.CardiacSurgery + b.SocioLegal + b.SocioMedical
	return b
}

// waitWeight grows by waitStepWeight per full step and is capped. Monotonic
// in elapsed time.
func waitWeight(elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	w := int(elapsed/waitStep) * waitStepWeight
	if w > waitWeightCap {
		return waitWeightCap
	}
	return w
}
