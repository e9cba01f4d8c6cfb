package bed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caresuite/bedflow/internal/config"
	"github.com/caresuite/bedflow/internal/domain/patient"
	"github.com/caresuite/bedflow/internal/platform/events"
	"github.com/caresuite/bedflow/internal/platform/timers"
)

// PatientDirectory is the slice of the patient service the bed registry
// needs. Bed state stays here; the patient record mirrors it.
type PatientDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	RecordBedAssignment(ctx context.Context, patientID uuid.UUID, bedID *uuid.UUID) error
	RecordDestination(ctx context.Context, patientID uuid.UUID, bedID *uuid.UUID) error
}

// Waitlist is the slice of the waiting list manager the bed service calls
// into when beds start or finish a search.
type Waitlist interface {
	Enter(ctx context.Context, patientID uuid.UUID, reason string) error
	Withdraw(ctx context.Context, patientID uuid.UUID) error
	Matched(ctx context.Context, patientID, bedID uuid.UUID) error
	IsWaiting(patientID uuid.UUID) bool
	IsSearching(patientID uuid.UUID) bool
}

// TimerScheduler arms deferred transitions (cleaning done, oxygen-weaning
// pause elapsed).
type TimerScheduler interface {
	Schedule(bedID uuid.UUID, kind timers.Kind, d time.Duration)
	Cancel(bedID uuid.UUID)
}

type Service struct {
	reg      *Registry
	repo     Repository
	settings *config.Settings
	events   events.Publisher
	timers   TimerScheduler
	logger   zerolog.Logger

	patients PatientDirectory
	waitlist Waitlist
}

func NewService(reg *Registry, repo Repository, settings *config.Settings, pub events.Publisher, sched TimerScheduler, logger zerolog.Logger) *Service {
	return &Service{
		reg:      reg,
		repo:     repo,
		settings: settings,
		events:   pub,
		timers:   sched,
		logger:   logger,
	}
}

// SetPatientDirectory wires the patient mirror. Optional in tests.
func (s *Service) SetPatientDirectory(d PatientDirectory) { s.patients = d }

// SetWaitlist wires the waiting list manager. Optional in tests.
func (s *Service) SetWaitlist(w Waitlist) { s.waitlist = w }

// Registry exposes read access for collaborators (referral search, matcher).
func (s *Service) Registry() *Registry { return s.reg }

// Load rebuilds the in-memory arena from storage and re-arms cleaning
// timers for beds that were mid-cleaning when the node stopped.
func (s *Service) Load(ctx context.Context) (int, error) {
	beds, err := s.repo.LoadAll(ctx, s.reg.HospitalID())
	if err != nil {
		return 0, fmt.Errorf("load beds: %w", err)
	}
	for _, b := range beds {
		if _, err := s.reg.Add(*b); err != nil {
			return 0, fmt.Errorf("register bed %s: %w", b.ID, err)
		}
		if b.State == StateCleaning && s.timers != nil {
			s.timers.Schedule(b.ID, timers.KindCleaning, s.cleaningDuration())
		}
	}
	return len(beds), nil
}

func (s *Service) CreateBed(ctx context.Context, b *Bed) error {
	if b.Service == "" {
		return fmt.Errorf("service is required")
	}
	if b.Room == "" {
		return fmt.Errorf("room is required")
	}
	if b.Complexity == "" {
		b.Complexity = patient.ComplexityNone
	}
	added, err := s.reg.Add(*b)
	if err != nil {
		return err
	}
	*b = added
	s.persist(ctx, added)
	return nil
}

func (s *Service) GetBed(_ context.Context, id uuid.UUID) (Bed, error) {
	return s.reg.Get(id)
}

func (s *Service) ListBeds(_ context.Context, f Filter) []Bed {
	return s.reg.List(f)
}

func (s *Service) DeleteBed(ctx context.Context, id uuid.UUID) error {
	if err := s.reg.Remove(id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// FindCompatible lists local FREE beds able to take the given needs.
func (s *Service) FindCompatible(_ context.Context, p Placement) []Bed {
	return s.reg.FindCompatible(p)
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

// AssignBed places a patient into a free bed. A patient whose automatic
// search is still running can only be hand-placed in manual mode.
func (s *Service) AssignBed(ctx context.Context, bedID, patientID uuid.UUID) (Change, error) {
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return Change{}, err
	}
	if s.waitlist != nil && s.waitlist.IsSearching(patientID) && !s.settings.ManualMode() {
		return Change{}, fmt.Errorf("patient %s is in automatic search: %w", patientID, ErrManualModeRequired)
	}

	ch, err := s.reg.Assign(bedID, Occupant{
		PatientID:         p.ID,
		Sex:               p.Sex,
		Complexity:        p.RequiredComplexity,
		RequiresIsolation: p.RequiresIsolation,
	})
	if err != nil {
		return Change{}, err
	}

	if s.waitlist != nil && s.waitlist.IsWaiting(patientID) {
		if err := s.waitlist.Matched(ctx, patientID, bedID); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("waitlist matched")
		}
	}
	if err := s.patients.RecordBedAssignment(ctx, patientID, &bedID); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("mirror bed assignment")
	}
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) BlockBed(ctx context.Context, id uuid.UUID, reason string) (Change, error) {
	ch, err := s.reg.Block(id, reason)
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) UnblockBed(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.Unblock(id)
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

// RequestNewBed starts a bed search for the occupant whose needs changed.
// The patient stays in place and enters the waiting list.
func (s *Service) RequestNewBed(ctx context.Context, id uuid.UUID, reason string) (Change, error) {
	ch, err := s.reg.RequestNewBed(id)
	if err != nil {
		return Change{}, err
	}
	if s.waitlist != nil && ch.PatientID != nil {
		if err := s.waitlist.Enter(ctx, *ch.PatientID, reason); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", ch.PatientID.String()).Msg("enter waiting list")
		}
	}
	s.finish(ctx, ch)
	return ch, nil
}

// PauseOxygenWeaning suspends the occupant's bed search for the configured
// pause, then automatically resumes it.
func (s *Service) PauseOxygenWeaning(ctx context.Context, id uuid.UUID) error {
	b, err := s.reg.Get(id)
	if err != nil {
		return err
	}
	if b.State != StateBedSearching || b.Occupant == nil {
		return &TransitionError{BedID: id.String(), Current: b.State, Event: "pause_oxygen_weaning"}
	}
	if s.waitlist != nil && s.waitlist.IsWaiting(b.Occupant.PatientID) {
		if err := s.waitlist.Withdraw(ctx, b.Occupant.PatientID); err != nil {
			return err
		}
	}
	if s.timers != nil {
		s.timers.Schedule(id, timers.KindOxygenWeaning, time.Duration(s.settings.OxygenWeaningPauseMinutes())*time.Minute)
	}
	return nil
}

func (s *Service) InitiateTransfer(ctx context.Context, originID, destID uuid.UUID) ([]Change, error) {
	changes, err := s.reg.InitiateTransfer(originID, destID)
	if err != nil {
		return nil, err
	}
	for _, ch := range changes {
		if ch.Event == EventReserveIncoming && ch.PatientID != nil {
			dest := ch.Bed.ID
			if s.patients != nil {
				if err := s.patients.RecordDestination(ctx, *ch.PatientID, &dest); err != nil {
					s.logger.Warn().Err(err).Msg("mirror destination bed")
				}
			}
			if s.waitlist != nil && s.waitlist.IsWaiting(*ch.PatientID) {
				if err := s.waitlist.Matched(ctx, *ch.PatientID, dest); err != nil {
					s.logger.Warn().Err(err).Msg("waitlist matched")
				}
			}
		}
		s.finish(ctx, ch)
	}
	return changes, nil
}

func (s *Service) ConfirmTransfer(ctx context.Context, originID uuid.UUID) (Change, error) {
	ch, err := s.reg.ConfirmTransfer(originID)
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) CompleteTransfer(ctx context.Context, destID uuid.UUID) ([]Change, error) {
	changes, err := s.reg.CompleteTransfer(destID)
	if err != nil {
		return nil, err
	}
	for _, ch := range changes {
		if ch.Event == EventCompleteTransfer && ch.PatientID != nil && s.patients != nil {
			dest := ch.Bed.ID
			if err := s.patients.RecordBedAssignment(ctx, *ch.PatientID, &dest); err != nil {
				s.logger.Warn().Err(err).Msg("mirror bed assignment")
			}
		}
		s.finish(ctx, ch)
	}
	return changes, nil
}

func (s *Service) CancelTransfer(ctx context.Context, id uuid.UUID) ([]Change, error) {
	changes, err := s.reg.CancelTransfer(id)
	if err != nil {
		return nil, err
	}
	for _, ch := range changes {
		if ch.PatientID != nil && s.patients != nil {
			if err := s.patients.RecordDestination(ctx, *ch.PatientID, nil); err != nil {
				s.logger.Warn().Err(err).Msg("clear destination bed")
			}
		}
		s.finish(ctx, ch)
	}
	return changes, nil
}

func (s *Service) SuggestDischarge(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.SuggestDischarge(id)
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) InitiateDischarge(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.InitiateDischarge(id)
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) ExecuteDischarge(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.ExecuteDischarge(id)
	if err != nil {
		return Change{}, err
	}
	s.releasePatient(ctx, ch)
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) CancelDischarge(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.CancelDischarge(id)
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) RecordDeath(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.RecordDeath(id)
	if err != nil {
		return Change{}, err
	}
	// A deceased patient leaves the waiting list, whatever the search state.
	if s.waitlist != nil && ch.PatientID != nil && s.waitlist.IsWaiting(*ch.PatientID) {
		if err := s.waitlist.Withdraw(ctx, *ch.PatientID); err != nil {
			s.logger.Warn().Err(err).Msg("withdraw deceased patient")
		}
	}
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) CompleteDeathDischarge(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.CompleteDeathDischarge(id)
	if err != nil {
		return Change{}, err
	}
	s.releasePatient(ctx, ch)
	s.finish(ctx, ch)
	return ch, nil
}

// CancelDeath reverses an erroneous death record. Permitted in manual mode only.
func (s *Service) CancelDeath(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.CancelDeath(id, s.settings.ManualMode())
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

// Referral-side transitions, driven by the referral workflow.

func (s *Service) RequestReferral(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.RequestReferral(id)
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) AcceptReferral(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.AcceptReferral(id)
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) CancelReferral(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.CancelReferral(id)
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

func (s *Service) ConfirmReferralEgress(ctx context.Context, id uuid.UUID) (Change, error) {
	ch, err := s.reg.ConfirmReferralEgress(id)
	if err != nil {
		return Change{}, err
	}
	s.releasePatient(ctx, ch)
	s.finish(ctx, ch)
	return ch, nil
}

// ReserveIncoming books a free bed for a referred-in patient.
func (s *Service) ReserveIncoming(ctx context.Context, id uuid.UUID, occ Occupant) (Change, error) {
	ch, err := s.reg.ReserveIncoming(id, occ)
	if err != nil {
		return Change{}, err
	}
	s.finish(ctx, ch)
	return ch, nil
}

// HandleTimer receives fired timers from the scheduler. It runs the same
// transition path as interactive callers.
func (s *Service) HandleTimer(ctx context.Context, e timers.Entry) {
	switch e.Kind {
	case timers.KindCleaning:
		ch, err := s.reg.FinishCleaning(e.BedID)
		if err != nil {
			s.logger.Warn().Err(err).Str("bed_id", e.BedID.String()).Msg("cleaning timer")
			return
		}
		s.finish(ctx, ch)
	case timers.KindOxygenWeaning:
		b, err := s.reg.Get(e.BedID)
		if err != nil || b.State != StateBedSearching || b.Occupant == nil {
			return
		}
		if s.waitlist != nil {
			if err := s.waitlist.Enter(ctx, b.Occupant.PatientID, "oxygen weaning pause elapsed"); err != nil {
				s.logger.Warn().Err(err).Str("bed_id", e.BedID.String()).Msg("resume search")
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (s *Service) cleaningDuration() time.Duration {
	return time.Duration(s.settings.CleaningDurationMinutes()) * time.Minute
}

// releasePatient clears the bed mirror on the patient record after a
// discharge, death discharge or referral egress.
func (s *Service) releasePatient(ctx context.Context, ch Change) {
	if s.patients == nil || ch.PatientID == nil {
		return
	}
	if err := s.patients.RecordBedAssignment(ctx, *ch.PatientID, nil); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", ch.PatientID.String()).Msg("release patient")
	}
}

// finish persists the committed change, publishes the domain event and arms
// the cleaning timer when the bed entered CLEANING.
func (s *Service) finish(ctx context.Context, ch Change) {
	s.persist(ctx, ch.Bed)
	if ch.To == StateCleaning && s.timers != nil {
		s.timers.Schedule(ch.Bed.ID, timers.KindCleaning, s.cleaningDuration())
	}
	if s.events != nil {
		ev := events.BedEvent{
			BedID:      ch.Bed.ID,
			HospitalID: ch.Bed.HospitalID,
			Service:    ch.Bed.Service,
			OldState:   string(ch.From),
			NewState:   string(ch.To),
			PatientID:  ch.PatientID,
			Alert:      ch.Alert,
			Timestamp:  ch.Bed.UpdatedAt,
		}
		if err := s.events.PublishBedEvent(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("bed_id", ch.Bed.ID.String()).Msg("publish bed event")
		}
	}
}

// persist mirrors the committed bed to storage. The registry stays
// authoritative; persistence failures are logged, not propagated.
func (s *Service) persist(ctx context.Context, b Bed) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, &b); err != nil {
		s.logger.Warn().Err(err).Str("bed_id", b.ID.String()).Msg("persist bed")
	}
}
