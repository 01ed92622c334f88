// Package logs reads daemon log files for `tikzflow logs`.
//
// Tail returns the last N entries of a file together with the byte offset
// to resume from. Follow streams entries appended after that offset until
// the context ends. Both accept a Filter that keeps only the entries of a
// single conversion job, in either the console or the JSON log format.
package logs
