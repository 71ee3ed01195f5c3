// Package statemachine provides a generic, stateless finite-state transition
// table for records whose current state is persisted elsewhere.
//
// Unlike an in-memory machine that owns its current state, Machine only
// answers "where does this event take a record in state X?". Billing records
// are loaded, transitioned and saved by many goroutines and processes, so the
// table itself holds no mutable state and may be shared freely.
//
// States and events are any string-based types, which keeps the enums typed
// at call sites:
//
//	type Status string
//	type Event string
//
//	m := statemachine.MustNew(
//		statemachine.WithTransition[Status, Event]("active", "pay", []Status{"trialing", "past_due"}),
//		statemachine.WithTransition[Status, Event]("past_due", "fail", []Status{"trialing", "active"}),
//		statemachine.WithTerminal[Status, Event]("cancelled"),
//	)
//
//	next, err := m.Next(current, "pay", nil)
//
// Guards receive the caller supplied data value and may veto a transition.
// When several transitions share a source state and event, the first one whose
// guards all pass is selected.
//
// Errors are typed: ErrNoTransitionAvailable when nothing is registered for
// the pair and ErrTransitionRejected when guards blocked every candidate. Use
// IsNoTransitionAvailableError and IsTransitionRejectedError to tell them apart.
package statemachine
