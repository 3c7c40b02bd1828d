// Package diskv implements an audit trail storage backend using an on-disk key-value store.
package diskv

import (
	"path/filepath"

	"github.com/intentops/intentengine/subsystem/audit/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvdiskv"
	"github.com/peterbourgon/diskv/v3"
)

// Diskv is an on-disk audit trail storage backend.
type Diskv struct {
	*kv.KV
}

// New creates a new audit trail storage backend on disk at path.
func New(path string) *Diskv {
	return &Diskv{KV: kv.New(
		kvdiskv.New(diskv.New(diskv.Options{
			BasePath:     filepath.Join(path, "audit", "records"),
			Transform:    kvdiskv.FlatTransform,
			CacheSizeMax: 1024 * 1024,
		})),
	)}
}
