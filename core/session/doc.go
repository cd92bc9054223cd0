// Package session defines the snapshot of a single rap battle.
//
// A [State] is owned by the orchestrator. Every value handed to callers is a
// deep copy made with [State.Clone], so readers can keep it around while the
// battle continues without observing later turns.
package session
