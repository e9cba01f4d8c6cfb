package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Sex != SexMale && p.Sex != SexFemale {
		return fmt.Errorf("sex must be %q or %q", SexMale, SexFemale)
	}
	if p.Origin == "" {
		p.Origin = OriginHospitalized
	}
	if p.WaitingState == "" {
		p.WaitingState = WaitingNone
	}
	if p.ReferralState == "" {
		p.ReferralState = ReferralNone
	}
	if p.RequiredComplexity == "" {
		p.RequiredComplexity = DeriveComplexity(p.Requirements)
	}
	if !p.RequiredComplexity.Valid() {
		return fmt.Errorf("unknown complexity tier %q", p.RequiredComplexity)
	}
	for _, r := range p.Requirements {
		if _, ok := r.Tier(); !ok {
			return fmt.Errorf("unknown requirement %q", r)
		}
	}
	if p.AdmittedAt == nil {
		now := time.Now()
		p.AdmittedAt = &now
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	return s.repo.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// ListWaiting returns every patient in the given waiting state, oldest wait
// first.
func (s *Service) ListWaiting(ctx context.Context, state WaitingState) ([]*Patient, error) {
	return s.repo.ListByWaitingState(ctx, state)
}

// ClinicalUpdate carries the fields a reevaluation may change.
type ClinicalUpdate struct {
	Diagnosis         *string       `json:"diagnosis,omitempty"`
	DiseaseCategory   *string       `json:"disease_category,omitempty"`
	RequiresIsolation *bool         `json:"requires_isolation,omitempty"`
	Requirements      []Requirement `json:"requirements,omitempty"`
	SocioMedical      *bool         `json:"socio_medical,omitempty"`
	SocioLegal        *bool         `json:"socio_legal,omitempty"`
	AwaitingCardiac   *bool         `json:"awaiting_cardiac_surgery,omitempty"`
}

// UpdateClinical applies a reevaluation to the patient record. It returns the
// updated patient and whether the change affects bed compatibility or
// priority, so the caller can trigger a re-score or a new bed search.
func (s *Service) UpdateClinical(ctx context.Context, id uuid.UUID, upd ClinicalUpdate) (*Patient, bool, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	rescore := false
	if upd.Diagnosis != nil {
		p.Diagnosis = *upd.Diagnosis
	}
	if upd.DiseaseCategory != nil {
		p.DiseaseCategory = *upd.DiseaseCategory
	}
	if upd.RequiresIsolation != nil && *upd.RequiresIsolation != p.RequiresIsolation {
		p.RequiresIsolation = *upd.RequiresIsolation
		rescore = true
	}
	if upd.Requirements != nil {
		for _, r := range upd.Requirements {
			if _, ok := r.Tier(); !ok {
				return nil, false, fmt.Errorf("unknown requirement %q", r)
			}
		}
		p.Requirements = upd.Requirements
		if derived := DeriveComplexity(upd.Requirements); derived != p.RequiredComplexity {
			p.RequiredComplexity = derived
			rescore = true
		}
	}
	if upd.SocioMedical != nil && *upd.SocioMedical != p.SocioMedical {
		p.SocioMedical = *upd.SocioMedical
		rescore = true
	}
	if upd.SocioLegal != nil && *upd.SocioLegal != p.SocioLegal {
		p.SocioLegal = *upd.SocioLegal
		rescore = true
	}
	if upd.AwaitingCardiac != nil && *upd.AwaitingCardiac != p.AwaitingCardiacSurgery {
		p.AwaitingCardiacSurgery = *upd.AwaitingCardiac
		rescore = true
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, false, err
	}
	return p, rescore, nil
}

// RecordBedAssignment is called by the bed registry when a patient moves into
// a bed (or out of one, with a nil bed id). The patient record is the mirror;
// the bed registry remains the owner of bed state.
func (s *Service) RecordBedAssignment(ctx context.Context, patientID uuid.UUID, bedID *uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return err
	}
	p.CurrentBedID = bedID
	p.DestinationBedID = nil
	if bedID != nil {
		p.WaitingState = WaitingNone
		p.WaitingSince = nil
	}
	return s.repo.Update(ctx, p)
}

// RecordDestination marks a bed as reserved for the patient during a transfer.
func (s *Service) RecordDestination(ctx context.Context, patientID uuid.UUID, bedID *uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return err
	}
	p.DestinationBedID = bedID
	if bedID != nil {
		p.WaitingState = WaitingMatched
	}
	return s.repo.Update(ctx, p)
}

// RecordWaitingState is called by the waiting list manager, the sole writer
// of waiting-list membership.
func (s *Service) RecordWaitingState(ctx context.Context, patientID uuid.UUID, state WaitingState, since *time.Time) error {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return err
	}
	p.WaitingState = state
	p.WaitingSince = since
	return s.repo.Update(ctx, p)
}

// RecordReferralState is called by the referral workflow, the sole writer of
// referral state.
func (s *Service) RecordReferralState(ctx context.Context, patientID uuid.UUID, state ReferralState) error {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return err
	}
	p.ReferralState = state
	return s.repo.Update(ctx, p)
}
