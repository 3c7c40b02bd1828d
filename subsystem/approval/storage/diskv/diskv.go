// Package diskv implements an approval subsystem storage backend using an on-disk key-value store.
package diskv

import (
	"path/filepath"

	"github.com/intentops/intentengine/subsystem/approval/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvdiskv"
	"github.com/peterbourgon/diskv/v3"
)

// Diskv is an on-disk approval subsystem storage backend.
type Diskv struct {
	*kv.KV
}

// New creates a new approval subsystem storage backend on disk at path.
func New(path string) *Diskv {
	return &Diskv{KV: kv.New(
		kvdiskv.New(diskv.New(diskv.Options{
			BasePath:     filepath.Join(path, "approval"),
			Transform:    kvdiskv.FlatTransform,
			CacheSizeMax: 1024 * 1024,
		})),
	)}
}
