// Package snapshot defines the manifest the Archiver engine populates
// and persists (spec.md §3 "Snapshot", §6 "Snapshot manifest fields").
package snapshot

import (
	"time"

	"github.com/nilsson-dev/vaultic/internal/ident"
)

// DeletePolicy controls when a snapshot becomes eligible for pruning
// by a separate (out-of-scope) subsystem.
type DeletePolicy struct {
	Kind  DeleteKind `json:"kind"`
	After time.Time  `json:"after,omitempty"`
}

type DeleteKind int

const (
	DeleteNotSet DeleteKind = iota
	DeleteNever
	DeleteAfter
)

// Snapshot is the manifest produced by a completed backup. Its Id is
// assigned only once the backend has named it by content hash.
type Snapshot struct {
	Id       ident.Id     `json:"id,omitempty"`
	Time     time.Time    `json:"time"`
	Parent   *ident.Id    `json:"parent,omitempty"`
	Tree     ident.Id     `json:"tree"`
	Paths    []string     `json:"paths"`
	Hostname string       `json:"hostname"`
	Username string       `json:"username,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
	Delete   DeletePolicy `json:"delete"`
	Summary  Summary      `json:"summary"`
}

// New returns a Snapshot ready to be handed to an Archiver, stamped
// with the current time (via timeNow) and carrying the given paths,
// hostname and parent. The summary's BackupStart is filled in by the
// Archiver constructor; its Command field is left for the caller to
// set.
func New(paths []string, hostname string, parent *ident.Id) *Snapshot {
	return &Snapshot{
		Time:     timeNow(),
		Parent:   parent,
		Paths:    paths,
		Hostname: hostname,
	}
}

// timeNow is a seam so tests can stub the snapshot clock.
var timeNow = time.Now
