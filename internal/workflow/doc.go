// Package workflow enforces the task and subtask status lifecycle.
//
// # Status domain
//
// Statuses form a closed six-value set cycling in the fixed order
//
//	pending → in-progress → review → done → deferred → cancelled → pending
//
// CycleNext serves "advance to next status" UI requests and wraps around.
// Dependency blockage is not a status; it is derived from the dependency
// graph (see Blocked).
//
// # Workflow steps
//
// Named business events (pr-created, merged, ...) map to status transitions
// and structured note updates through a closed transition table. Step names
// arriving from the outside are parsed with ParseStep, which rejects unknown
// names at the boundary; ApplyWorkflowStep performs no mutation for an
// invalid transition or an unrecognized step.
//
// The package composes notes and decides transitions; durable persistence
// goes through the Store collaborator and is never written here directly.
package workflow
