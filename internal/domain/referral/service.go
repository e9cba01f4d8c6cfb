package referral

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caresuite/bedflow/internal/domain/bed"
	"github.com/caresuite/bedflow/internal/domain/patient"
)

// BedGate is the slice of the bed service the referral workflow drives.
type BedGate interface {
	GetBed(ctx context.Context, id uuid.UUID) (bed.Bed, error)
	FindCompatible(ctx context.Context, p bed.Placement) []bed.Bed
	RequestReferral(ctx context.Context, id uuid.UUID) (bed.Change, error)
	AcceptReferral(ctx context.Context, id uuid.UUID) (bed.Change, error)
	CancelReferral(ctx context.Context, id uuid.UUID) (bed.Change, error)
	ConfirmReferralEgress(ctx context.Context, id uuid.UUID) (bed.Change, error)
}

// PatientDirectory is the slice of the patient service the workflow needs.
type PatientDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	Create(ctx context.Context, p *patient.Patient) error
	RecordReferralState(ctx context.Context, patientID uuid.UUID, state patient.ReferralState) error
}

// Waitlist admits accepted referred-in patients on the destination side.
type Waitlist interface {
	Enter(ctx context.Context, patientID uuid.UUID, reason string) error
	IsWaiting(patientID uuid.UUID) bool
	Withdraw(ctx context.Context, patientID uuid.UUID) error
}

// Service owns ReferralRequest state on both sides of the protocol.
type Service struct {
	repo     Repository
	beds     BedGate
	patients PatientDirectory
	waitlist Waitlist
	searcher *Searcher
	client   HospitalClient
	logger   zerolog.Logger

	hospitalID   string
	hospitalName string
}

func NewService(repo Repository, beds BedGate, patients PatientDirectory, searcher *Searcher, client HospitalClient, hospitalID, hospitalName string, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		beds:         beds,
		patients:     patients,
		searcher:     searcher,
		client:       client,
		hospitalID:   hospitalID,
		hospitalName: hospitalName,
		logger:       logger,
	}
}

// SetWaitlist wires the waiting list manager. Optional in tests.
func (s *Service) SetWaitlist(w Waitlist) { s.waitlist = w }

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Request, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// ListByState returns every referral in the given state, oldest first.
func (s *Service) ListByState(ctx context.Context, state State) ([]*Request, error) {
	return s.repo.ListByState(ctx, state)
}

func criteriaFor(p *patient.Patient) Criteria {
	return Criteria{
		Complexity:        p.RequiredComplexity,
		RequiresIsolation: p.RequiresIsolation,
		Sex:               p.Sex,
	}
}

// Search runs the two first phases of the protocol: the local exhaustion
// check, then the network fan-out. A compatible local bed fails fast with
// ErrLocalBedAvailable so the caller uses the normal assignment path.
func (s *Service) Search(ctx context.Context, patientID uuid.UUID) (SearchResult, error) {
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return SearchResult{}, err
	}
	crit := criteriaFor(p)
	local := s.beds.FindCompatible(ctx, bed.Placement{
		Complexity:        crit.Complexity,
		RequiresIsolation: crit.RequiresIsolation,
		Sex:               crit.Sex,
	})
	if len(local) > 0 {
		return SearchResult{}, fmt.Errorf("%d candidate bed(s) in this hospital: %w", len(local), ErrLocalBedAvailable)
	}
	return s.searcher.Search(ctx, crit), nil
}

// LocalInventory serves a peer's network search from the local registry.
func (s *Service) LocalInventory(ctx context.Context, crit Criteria) Inventory {
	beds := s.beds.FindCompatible(ctx, bed.Placement{
		Complexity:        crit.Complexity,
		RequiresIsolation: crit.RequiresIsolation,
		Sex:               crit.Sex,
	})
	inv := Inventory{HospitalID: s.hospitalID, HospitalName: s.hospitalName, Beds: make([]RemoteBed, 0, len(beds))}
	for _, b := range beds {
		inv.Beds = append(inv.Beds, RemoteBed{
			BedID:            b.ID,
			HospitalID:       s.hospitalID,
			HospitalName:     s.hospitalName,
			Service:          b.Service,
			Ward:             b.Ward,
			Room:             b.Room,
			Complexity:       b.Complexity,
			IsolationCapable: b.IsolationCapable,
		})
	}
	return inv
}

// CreateParams describe an outbound referral.
type CreateParams struct {
	PatientID      uuid.UUID `json:"patient_id"`
	DestinationURL string    `json:"destination_url"`
	Reason         string    `json:"reason"`
	DocumentRef    string    `json:"document_ref"`
}

// Create opens an outbound referral: the origin bed parks in
// REFERRAL_PENDING and the request is submitted to the destination hospital.
// A failed submission rolls the bed back.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Request, error) {
	if params.DestinationURL == "" {
		return nil, fmt.Errorf("destination_url is required")
	}
	p, err := s.patients.Get(ctx, params.PatientID)
	if err != nil {
		return nil, err
	}
	if p.CurrentBedID == nil {
		return nil, fmt.Errorf("patient %s holds no bed to refer from", p.ID)
	}

	if _, err := s.beds.RequestReferral(ctx, *p.CurrentBedID); err != nil {
		return nil, err
	}

	req := &Request{
		ID:                  uuid.New(),
		Direction:           DirectionOutbound,
		PatientID:           p.ID,
		OriginBedID:         p.CurrentBedID,
		OriginHospital:      s.hospitalID,
		DestinationHospital: params.DestinationURL,
		Reason:              params.Reason,
		DocumentRef:         params.DocumentRef,
		State:               StatePending,
		Patient:             p,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		s.rollbackOrigin(ctx, *p.CurrentBedID)
		return nil, err
	}
	if err := s.client.SubmitReferral(ctx, params.DestinationURL, req); err != nil {
		req.State = StateCancelled
		if uerr := s.repo.Update(ctx, req); uerr != nil {
			s.logger.Warn().Err(uerr).Str("referral_id", req.ID.String()).Msg("mark failed referral")
		}
		s.rollbackOrigin(ctx, *p.CurrentBedID)
		return nil, fmt.Errorf("submit referral: %w", err)
	}

	if err := s.patients.RecordReferralState(ctx, p.ID, patient.ReferralRequested); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("mirror referral state")
	}
	return req, nil
}

// AcceptInbound stores a request submitted by a peer hospital.
func (s *Service) AcceptInbound(ctx context.Context, req *Request) error {
	if req.ID == uuid.Nil || req.PatientID == uuid.Nil {
		return fmt.Errorf("inbound referral missing identifiers")
	}
	if req.Patient == nil {
		return fmt.Errorf("inbound referral missing patient snapshot")
	}
	req.Direction = DirectionInbound
	req.DestinationHospital = s.hospitalID
	req.State = StatePending
	req.OriginBedID = nil
	return s.repo.Create(ctx, req)
}

// Respond resolves an inbound request. Accepting admits the patient snapshot
// into this hospital and enqueues them as referred-in; rejecting records the
// reason for the origin to pick up.
func (s *Service) Respond(ctx context.Context, id uuid.UUID, accept bool, reason string) (*Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Direction != DirectionInbound {
		return nil, fmt.Errorf("referral %s was not received by this hospital", id)
	}
	if req.Resolved() {
		return nil, fmt.Errorf("referral %s is %s: %w", id, req.State, ErrAlreadyResolved)
	}

	if !accept {
		req.State = StateRejected
		req.RejectReason = reason
		if err := s.repo.Update(ctx, req); err != nil {
			return nil, err
		}
		return req, nil
	}

	// Admit the snapshot as a local patient seeking first placement.
	admitted := *req.Patient
	admitted.Origin = patient.OriginReferredIn
	admitted.ReferralState = patient.ReferralAccepted
	admitted.CurrentBedID = nil
	admitted.DestinationBedID = nil
	admitted.WaitingState = patient.WaitingNone
	admitted.WaitingSince = nil
	if err := s.patients.Create(ctx, &admitted); err != nil {
		return nil, fmt.Errorf("admit referred patient: %w", err)
	}
	if s.waitlist != nil {
		if err := s.waitlist.Enter(ctx, admitted.ID, "referred in from "+req.OriginHospital); err != nil {
			return nil, fmt.Errorf("enqueue referred patient: %w", err)
		}
	}

	req.State = StateAccepted
	if err := s.repo.Update(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// SyncStatus polls the destination for the resolution of an outbound
// pending request and applies it to the origin bed.
func (s *Service) SyncStatus(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Direction != DirectionOutbound || req.Resolved() {
		return req, nil
	}

	remote, err := s.client.FetchStatus(ctx, req.DestinationHospital, req.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch referral status: %w", err)
	}

	switch remote.State {
	case StateAccepted:
		if req.OriginBedID != nil {
			if _, err := s.beds.AcceptReferral(ctx, *req.OriginBedID); err != nil {
				return nil, err
			}
		}
		req.State = StateAccepted
		s.mirrorPatient(ctx, req.PatientID, patient.ReferralAccepted)
	case StateRejected:
		if req.OriginBedID != nil {
			s.rollbackOrigin(ctx, *req.OriginBedID)
		}
		req.State = StateRejected
		req.RejectReason = remote.RejectReason
		s.mirrorPatient(ctx, req.PatientID, patient.ReferralRejected)
	default:
		return req, nil
	}

	if err := s.repo.Update(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Cancel withdraws a referral from either side. On the origin the bed
// returns to OCCUPIED; on the destination an already-enqueued patient is
// withdrawn.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.State == StateCancelled || req.State == StateRejected {
		return nil, fmt.Errorf("referral %s is %s: %w", id, req.State, ErrAlreadyResolved)
	}

	if req.Direction == DirectionOutbound {
		if req.OriginBedID != nil {
			if _, err := s.beds.CancelReferral(ctx, *req.OriginBedID); err != nil {
				return nil, err
			}
		}
		s.mirrorPatient(ctx, req.PatientID, patient.ReferralNone)
		// Best effort: the peer prunes its inbound copy on its own schedule
		// if this call does not get through.
		if err := s.client.CancelReferral(ctx, req.DestinationHospital, req.ID); err != nil {
			s.logger.Warn().Err(err).Str("referral_id", req.ID.String()).Msg("notify referral cancel")
		}
	} else if s.waitlist != nil && s.waitlist.IsWaiting(req.PatientID) {
		if err := s.waitlist.Withdraw(ctx, req.PatientID); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", req.PatientID.String()).Msg("withdraw cancelled referral")
		}
	}

	req.State = StateCancelled
	if err := s.repo.Update(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ConfirmEgress releases the origin bed once the destination hospital has
// placed the patient.
func (s *Service) ConfirmEgress(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Direction != DirectionOutbound {
		return nil, fmt.Errorf("referral %s was not sent by this hospital", id)
	}
	if req.State != StateAccepted {
		return nil, fmt.Errorf("referral %s is %s, egress requires accepted: %w", id, req.State, ErrAlreadyResolved)
	}
	if req.OriginBedID != nil {
		if _, err := s.beds.ConfirmReferralEgress(ctx, *req.OriginBedID); err != nil {
			return nil, err
		}
	}
	s.mirrorPatient(ctx, req.PatientID, patient.ReferralNone)
	return req, nil
}

func (s *Service) rollbackOrigin(ctx context.Context, bedID uuid.UUID) {
	if _, err := s.beds.CancelReferral(ctx, bedID); err != nil {
		s.logger.Warn().Err(err).Str("bed_id", bedID.String()).Msg("revert referral bed")
	}
}

func (s *Service) mirrorPatient(ctx context.Context, patientID uuid.UUID, state patient.ReferralState) {
	if err := s.patients.RecordReferralState(ctx, patientID, state); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("mirror referral state")
	}
}
