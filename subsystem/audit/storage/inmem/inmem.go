// Package inmem implements an in-memory audit trail storage backend.
package inmem

import (
	"github.com/intentops/intentengine/subsystem/audit/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvmap"
)

// InMem is an in-memory audit trail storage backend.
type InMem struct {
	*kv.KV
}

// New creates a new in-memory audit trail storage backend.
func New() *InMem {
	return &InMem{KV: kv.New(kvmap.New())}
}
