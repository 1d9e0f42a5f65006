package workflow

import (
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateApproved, true},
		{StateRejected, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"approved", StateApproved, true},
		{"invalid state", State("CREATED"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTrigger_IsOverride(t *testing.T) {
	if !TriggerOverrideReject.IsOverride() || !TriggerOverrideApprove.IsOverride() {
		t.Error("override triggers should report IsOverride")
	}
	if TriggerApprove.IsOverride() || TriggerAdvance.IsOverride() {
		t.Error("evaluated triggers should not report IsOverride")
	}
}

func TestBuilder_ConfigureTerminalPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure(terminal) should panic")
		}
	}()
	NewBuilder().Configure(StateApproved)
}

func TestBuilder_BuildIsSnapshot(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePending).Permit(TriggerApprove, StateApproved)
	machine := builder.Build(StatePending)

	builder.Configure(StatePending).Permit(TriggerReject, StateRejected)

	if err := machine.Fire(TriggerReject); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, machine built earlier must not see later transitions", err)
	}
}

func TestExpenseStateMachine(t *testing.T) {
	tests := []struct {
		name      string
		initial   State
		trigger   Trigger
		wantState State
		wantErr   error
	}{
		{"advance keeps pending", StatePending, TriggerAdvance, StatePending, nil},
		{"approve", StatePending, TriggerApprove, StateApproved, nil},
		{"reject", StatePending, TriggerReject, StateRejected, nil},
		{"override approve", StatePending, TriggerOverrideApprove, StateApproved, nil},
		{"override reject", StatePending, TriggerOverrideReject, StateRejected, nil},
		{"approved is terminal", StateApproved, TriggerReject, StateApproved, ErrInvalidTransition},
		{"rejected is terminal", StateRejected, TriggerAdvance, StateRejected, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewExpenseStateMachine(tt.initial)
			err := m.Fire(tt.trigger)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fire() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Fire() unexpected error: %v", err)
			}
			if m.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", m.State(), tt.wantState)
			}
		})
	}
}

func TestBuilder_PermitReplacesTarget(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePending).
		Permit(TriggerApprove, StateRejected).
		Permit(TriggerApprove, StateApproved)
	m := builder.Build(StatePending)

	if err := m.Fire(TriggerApprove); err != nil {
		t.Fatalf("Fire() unexpected error: %v", err)
	}
	if m.State() != StateApproved {
		t.Errorf("State() = %v, want %v", m.State(), StateApproved)
	}
}

func TestStateMachine_UnconfiguredState(t *testing.T) {
	m := NewBuilder().Build(StatePending)
	if err := m.Fire(TriggerAdvance); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Fire() error = %v, want ErrInvalidTransition", err)
	}
}

func TestErrStaleStepIsAlreadyDecided(t *testing.T) {
	if !errors.Is(ErrStaleStep, ErrAlreadyDecided) {
		t.Error("ErrStaleStep must be in the ErrAlreadyDecided class")
	}
	if !IsConflict(ErrConcurrentUpdate) || IsConflict(ErrNotFound) {
		t.Error("IsConflict classification is wrong")
	}
}
