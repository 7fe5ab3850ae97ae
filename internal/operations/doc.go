// Package operations runs long-lived, cancellable, user-visible operations
// such as PRD parsing, complexity analysis, and task expansion.
//
// # Overview
//
// The package has two pieces:
//
//   - A Registry of operation configs: each operation type declares its
//     phases, rotating progress hints, and whether it can be cancelled.
//   - An Orchestrator that owns at most one in-flight operation at a time
//     and drives it through a fixed state machine:
//
//	idle → preparing → processing → {completed | cancelled | errored} → idle
//
// # Execution model
//
// Callers supply an Executor closure that performs the actual work (AI
// calls, git commands). The orchestrator never blocks on it: the executor
// runs in its own goroutine and reports back through a Reporter. The first
// Reporter.Phase call moves the operation from preparing to processing.
//
// Cancellation is cooperative. Cancel closes the executor's context; an
// executor that ignores the context runs to completion before the
// orchestrator can report the cancelled state. A result produced after
// cancellation was requested is discarded: cancelled wins.
//
// # Observation
//
// Subscribe registers an observer that receives a Snapshot for every state
// change, synchronously and in subscription order. Multiple observers are
// supported; each Subscribe returns its own unsubscribe handle, so a new
// observer never silently displaces an existing one.
package operations
