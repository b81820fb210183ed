// Package events defines the fleet events emitted on the event bus.
//
// Available event types:
//   - StatusChange: a robot changed status
//   - TaskOutcome: a task was completed, rejected or aborted
//   - DeadlockEvent: a wait-for cycle was detected and handled
package events
