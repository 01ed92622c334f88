// Package preflight provides readiness checks for the directories, binaries
// and remote services tikzflow depends on.
//
// The daemon runs RunAll at startup and reports failures without refusing to
// start; the CLI "tikzflow status" command renders the same results next to
// the daemon's own view.
package preflight
