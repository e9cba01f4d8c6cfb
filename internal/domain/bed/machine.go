package bed

import (
	"errors"
	"fmt"
)

// Sentinel errors for the bed registry.
var (
	ErrNotFound           = errors.New("bed not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrIncompatibleBed    = errors.New("bed incompatible with patient requirements")
	ErrPatientPlaced      = errors.New("patient already occupies another bed")
	ErrManualModeRequired = errors.New("operation requires manual mode")
)

// TransitionError reports a rejected event with the state it was attempted
// from, so the caller can render meaningful feedback. It unwraps to
// ErrInvalidTransition.
type TransitionError struct {
	BedID   string
	Current State
	Event   Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("bed %s: event %q not allowed in state %q", e.BedID, e.Event, e.Current)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// transition is one row of the state machine table.
type transition struct {
	next State
	// alert marks transitions the notification layer should surface loudly
	// (bed freed, death, incoming transfer), mirroring the dashboard's
	// notification priority.
	alert bool
	// manualOnly transitions are permitted only while the node runs in
	// manual mode.
	manualOnly bool
}

type stateEvent struct {
	state State
	event Event
}

// table is the single authority on legal bed transitions. Every pair not
// listed here is rejected with a TransitionError; no event is silently
// dropped.
var table = map[stateEvent]transition{
	{StateFree, EventBlock}:           {next: StateBlocked},
	{StateBlocked, EventUnblock}:      {next: StateFree},
	{StateFree, EventAssign}:          {next: StateOccupied, alert: true},
	{StateFree, EventReserveIncoming}: {next: StateTransferIncoming, alert: true},

	{StateOccupied, EventRequestNewBed}:     {next: StateBedSearching},
	{StateBedSearching, EventBeginOutgoing}: {next: StateTransferOutgoing},

	{StateTransferIncoming, EventCompleteTransfer}: {next: StateOccupied, alert: true},
	{StateTransferIncoming, EventCancelTransfer}:   {next: StateFree},
	{StateTransferOutgoing, EventCancelTransfer}:   {next: StateOccupied},
	{StateTransferOutgoing, EventConfirmTransfer}:  {next: StateTransferConfirmed},
	{StateTransferConfirmed, EventCancelTransfer}:  {next: StateOccupied},
	{StateTransferConfirmed, EventReleaseOrigin}:   {next: StateCleaning},

	{StateOccupied, EventSuggestDischarge}:            {next: StateDischargeSuggested},
	{StateDischargeSuggested, EventInitiateDischarge}: {next: StateDischargePending},
	{StateDischargePending, EventExecuteDischarge}:    {next: StateCleaning, alert: true},
	{StateDischargePending, EventCancelDischarge}:     {next: StateOccupied},

	{StateOccupied, EventRequestReferral}:                 {next: StateReferralPending},
	{StateReferralPending, EventAcceptReferral}:           {next: StateReferralConfirmed, alert: true},
	{StateReferralPending, EventCancelReferral}:           {next: StateOccupied},
	{StateReferralConfirmed, EventCancelReferral}:         {next: StateOccupied},
	{StateReferralConfirmed, EventConfirmReferralEgress}:  {next: StateCleaning, alert: true},

	{StateOccupied, EventRecordDeath}:                 {next: StateDeceased, alert: true},
	{StateDeceased, EventCompleteDeathDischarge}:      {next: StateCleaning},
	{StateDeceased, EventCancelDeath}:                 {next: StateOccupied, manualOnly: true},

	{StateCleaning, EventCleaningDone}: {next: StateFree, alert: true},
}

// next resolves a transition or rejects it. manualMode gates manual-only rows.
func next(bedID string, current State, ev Event, manualMode bool) (transition, error) {
	tr, ok := table[stateEvent{current, ev}]
	if !ok {
		return transition{}, &TransitionError{BedID: bedID, Current: current, Event: ev}
	}
	if tr.manualOnly && !manualMode {
		return transition{}, fmt.Errorf("%s from %s: %w", ev, current, ErrManualModeRequired)
	}
	return tr, nil
}
