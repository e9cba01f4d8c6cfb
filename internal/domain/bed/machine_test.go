package bed

import (
	"errors"
	"testing"
)

func TestNext_LegalPaths(t *testing.T) {
	cases := []struct {
		name  string
		from  State
		event Event
		want  State
		alert bool
	}{
		{"block", StateFree, EventBlock, StateBlocked, false},
		{"unblock", StateBlocked, EventUnblock, StateFree, false},
		{"assign", StateFree, EventAssign, StateOccupied, true},
		{"reserve incoming", StateFree, EventReserveIncoming, StateTransferIncoming, true},
		{"request new bed", StateOccupied, EventRequestNewBed, StateBedSearching, false},
		{"begin outgoing", StateBedSearching, EventBeginOutgoing, StateTransferOutgoing, false},
		{"complete transfer", StateTransferIncoming, EventCompleteTransfer, StateOccupied, true},
		{"cancel incoming", StateTransferIncoming, EventCancelTransfer, StateFree, false},
		{"cancel outgoing", StateTransferOutgoing, EventCancelTransfer, StateOccupied, false},
		{"confirm transfer", StateTransferOutgoing, EventConfirmTransfer, StateTransferConfirmed, false},
		{"cancel confirmed", StateTransferConfirmed, EventCancelTransfer, StateOccupied, false},
		{"release origin", StateTransferConfirmed, EventReleaseOrigin, StateCleaning, false},
		{"suggest discharge", StateOccupied, EventSuggestDischarge, StateDischargeSuggested, false},
		{"initiate discharge", StateDischargeSuggested, EventInitiateDischarge, StateDischargePending, false},
		{"execute discharge", StateDischargePending, EventExecuteDischarge, StateCleaning, true},
		{"cancel discharge", StateDischargePending, EventCancelDischarge, StateOccupied, false},
		{"request referral", StateOccupied, EventRequestReferral, StateReferralPending, false},
		{"accept referral", StateReferralPending, EventAcceptReferral, StateReferralConfirmed, true},
		{"cancel referral pending", StateReferralPending, EventCancelReferral, StateOccupied, false},
		{"cancel referral confirmed", StateReferralConfirmed, EventCancelReferral, StateOccupied, false},
		{"referral egress", StateReferralConfirmed, EventConfirmReferralEgress, StateCleaning, true},
		{"record death", StateOccupied, EventRecordDeath, StateDeceased, true},
		{"complete death discharge", StateDeceased, EventCompleteDeathDischarge, StateCleaning, false},
		{"cleaning done", StateCleaning, EventCleaningDone, StateFree, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := next("b1", tc.from, tc.event, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr.next != tc.want {
				t.Errorf("next = %s, want %s", tr.next, tc.want)
			}
			if tr.alert != tc.alert {
				t.Errorf("alert = %v, want %v", tr.alert, tc.alert)
			}
		})
	}
}

func TestNext_RejectsUnlistedPairs(t *testing.T) {
	cases := []struct {
		from  State
		event Event
	}{
		{StateFree, EventExecuteDischarge},
		{StateBlocked, EventAssign},
		{StateOccupied, EventCleaningDone},
		{StateCleaning, EventAssign},
		{StateDeceased, EventRecordDeath},
		{StateTransferIncoming, EventBlock},
	}
	for _, tc := range cases {
		_, err := next("b1", tc.from, tc.event, false)
		if err == nil {
			t.Fatalf("%s from %s: expected rejection", tc.event, tc.from)
		}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s from %s: error %v does not unwrap to ErrInvalidTransition", tc.event, tc.from, err)
		}
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("%s from %s: error is not a TransitionError", tc.event, tc.from)
		}
		if te.Current != tc.from || te.Event != tc.event {
			t.Errorf("TransitionError reports %s/%s, want %s/%s", te.Current, te.Event, tc.from, tc.event)
		}
	}
}

func TestNext_CancelDeathRequiresManualMode(t *testing.T) {
	if _, err := next("b1", StateDeceased, EventCancelDeath, false); !errors.Is(err, ErrManualModeRequired) {
		t.Fatalf("expected ErrManualModeRequired, got %v", err)
	}
	tr, err := next("b1", StateDeceased, EventCancelDeath, true)
	if err != nil {
		t.Fatalf("manual mode: unexpected error: %v", err)
	}
	if tr.next != StateOccupied {
		t.Errorf("next = %s, want %s", tr.next, StateOccupied)
	}
}

func TestNext_EveryTableRowResolves(t *testing.T) {
	for key := range table {
		if _, err := next("b1", key.state, key.event, true); err != nil {
			t.Errorf("%s from %s: table row rejected: %v", key.event, key.state, err)
		}
	}
}
