// Package workflow implements the Workflow Orchestrator (WO): an
// event-driven saga state machine driven by transition tables rather than
// a dedicated control loop, per CREATE/REVISE templates (§7).
package workflow

import (
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
)

// TerminalKind labels why a saga reached a terminal state, selecting
// which workflow-* event the orchestrator emits on arrival (§7.3).
type TerminalKind string

const (
	TerminalNone      TerminalKind = ""
	TerminalComplete  TerminalKind = "complete"
	TerminalError     TerminalKind = "error"
	TerminalCancelled TerminalKind = "cancelled"
)

// Guard inspects a saga's accumulated data to decide whether a transition
// fires. A nil Guard always fires.
type Guard func(data map[string]any) bool

// TransitionRule is one entry in a state's transition table: on receiving
// eventType, move to NextState if Guard passes.
type TransitionRule struct {
	EventType string
	NextState string
	Guard     Guard

	// RuleSet, when non-empty, names a policy business-rule set that
	// must pass (via Policy.EvaluateRules) before this transition fires.
	RuleSet string
}

// StateSpec describes one state in a saga template: its entry action, its
// timeout behavior, and its outgoing transitions (§7.2).
type StateSpec struct {
	Name string

	// EntryQueue, when non-empty, names the queue a task is enqueued to
	// on entering this state (the state's "entry action").
	EntryQueue string

	// Auto marks a state with no external wait: its entry action runs
	// and the orchestrator immediately evaluates Transitions against an
	// internal "__enter__" pseudo-event (used by ADMIT, which waits on no
	// agent's completion event).
	Auto bool

	// Timeout, if non-zero, arms a timer on entry; MaxRetries bounds how
	// many times the entry action is re-run before the saga ends with
	// TerminalError and a workflow-error event (§7.2 "Timeouts"). No
	// timeout-specific reason is attached to that event.
	Timeout    time.Duration
	MaxRetries int

	Transitions []TransitionRule

	Terminal     bool
	TerminalKind TerminalKind
}

// Template is a saga's transition table: a flat, data-driven description
// of every state and how it moves to the next, standing in for a
// hand-written control-flow graph (§7.2).
type Template struct {
	Name         string
	InitialState string
	States       map[string]StateSpec
}

// Status is a saga instance's externally visible state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// StateTransition records one move in a saga's history (§3: "stateHistory
// (state, timestamp, prev)").
type StateTransition struct {
	State     string
	Prev      string
	Timestamp time.Time
}

// Instance is one running saga (§7.1).
type Instance struct {
	SagaID        string
	CorrelationID string
	Template      string
	State         string
	Status        Status

	Data map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
	StartTime time.Time
	EndTime   time.Time

	EnteredState time.Time
	StateHistory []StateTransition

	RevisionOf string // SagaID this saga revises, if any
	Revision   int

	// StateAttempts counts how many times the current state has timed
	// out, informing timeout-then-fail semantics at the template level.
	StateAttempts int

	timer holon.Timer
}
