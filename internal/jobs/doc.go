// Package jobs tracks conversion jobs: the status state machine, the
// generation-guarded Registry contract, and its in-memory and SQLite
// implementations.
package jobs
