// Package storage holds the output sinks of the CLI.
package storage

// Sink receives JSON-serializable records, one per Write.
type Sink interface {
	Write(value interface{}) error
	Close() error
}
