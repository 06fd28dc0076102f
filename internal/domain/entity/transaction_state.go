package entity

import (
	"fmt"
	"math/big"
)

// TransactionPhase is the coarse state of a vault transaction orchestrator.
type TransactionPhase int

const (
	PhaseIdle TransactionPhase = iota
	PhaseCheckingApproval
	PhaseApproving
	PhaseExecuting
	PhaseSucceeded
	PhaseFailed
)

func (p TransactionPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCheckingApproval:
		return "checking_approval"
	case PhaseApproving:
		return "approving"
	case PhaseExecuting:
		return "executing"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// TransactionState is the orchestrator state. ResultID is set for Succeeded,
// Err for Failed.
type TransactionState struct {
	Phase    TransactionPhase
	ResultID *big.Int
	Err      error
}

// Idle is the initial state.
func Idle() TransactionState { return TransactionState{Phase: PhaseIdle} }

// Succeeded is the terminal success state carrying the resulting position id.
func Succeeded(positionID *big.Int) TransactionState {
	return TransactionState{Phase: PhaseSucceeded, ResultID: positionID}
}

// Failed is the terminal failure state.
func Failed(err error) TransactionState {
	return TransactionState{Phase: PhaseFailed, Err: err}
}

// InPhase returns a non-terminal state.
func InPhase(p TransactionPhase) TransactionState {
	return TransactionState{Phase: p}
}

// IsTerminal reports whether no further transition will happen.
func (s TransactionState) IsTerminal() bool {
	return s.Phase == PhaseSucceeded || s.Phase == PhaseFailed
}

// IsActive reports whether the state is non-terminal and not Idle.
func (s TransactionState) IsActive() bool {
	return s.Phase != PhaseIdle && !s.IsTerminal()
}

func (s TransactionState) String() string {
	switch s.Phase {
	case PhaseSucceeded:
		return fmt.Sprintf("succeeded(%v)", s.ResultID)
	case PhaseFailed:
		return fmt.Sprintf("failed(%v)", s.Err)
	default:
		return s.Phase.String()
	}
}
