// Package event describes the actions a sync pass performs and renders them
// as log messages.
package event

import (
	"fmt"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	ReplicaCreated Type = iota + 1
	DirCreated
	FileCopied
	DirRemoved
	FileRemoved
	PassFailed
	PassCompleted
)

var typeNames = [...]string{
	ReplicaCreated: "ReplicaCreated",
	DirCreated:     "DirCreated",
	FileCopied:     "FileCopied",
	DirRemoved:     "DirRemoved",
	FileRemoved:    "FileRemoved",
	PassFailed:     "PassFailed",
	PassCompleted:  "PassCompleted",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Mutation reports whether the event records a change to the replica.
func (t Type) Mutation() bool {
	switch t {
	case ReplicaCreated, DirCreated, FileCopied, DirRemoved, FileRemoved:
		return true
	default:
		return false
	}
}

// Event is one action record emitted by the engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // replica path
	Size      int64
	Error     error
}

// Message returns the human-readable line written to the log sink.
func (e Event) Message() string {
	switch e.Type {
	case ReplicaCreated:
		return "Created replica folder: " + e.Path
	case DirCreated:
		return "Created folder: " + e.Path
	case FileCopied:
		return "Copied/Updated file: " + e.Path
	case DirRemoved:
		return "Removed folder: " + e.Path
	case FileRemoved:
		return "Removed file: " + e.Path
	case PassFailed:
		return fmt.Sprintf("Error during synchronization: %v", e.Error)
	case PassCompleted:
		return "Synchronization pass completed"
	default:
		return e.Type.String() + ": " + e.Path
	}
}
