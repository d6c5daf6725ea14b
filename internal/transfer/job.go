package transfer

import "github.com/google/uuid"

// Job is a value-typed snapshot of one file to copy. It carries its
// own copies of the endpoint strings, so deactivating the SyncPair it
// was enumerated from after enqueue time does NOT cancel it — exactly
// the snapshot semantics the data model requires.
type Job struct {
	ID uuid.UUID

	SourceHost string
	SourcePort int
	SourceDir  string

	TargetHost string
	TargetPort int
	TargetDir  string

	Filename string
}
