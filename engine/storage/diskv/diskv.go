// Package diskv implements an engine storage backend using an on-disk key-value store.
package diskv

import (
	"path/filepath"

	"github.com/intentops/intentengine/engine/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvdiskv"
	"github.com/peterbourgon/diskv/v3"
)

// Diskv is an on-disk engine storage backend.
type Diskv struct {
	*kv.KV
}

// New creates a new engine storage backend on disk at path.
func New(path string) *Diskv {
	return &Diskv{KV: kv.New(
		kvdiskv.New(diskv.New(diskv.Options{
			BasePath:     filepath.Join(path, "engine", "workflow"),
			Transform:    kvdiskv.FlatTransform,
			CacheSizeMax: 1024 * 1024,
		})),
		kvdiskv.New(diskv.New(diskv.Options{
			BasePath:     filepath.Join(path, "engine", "ledger"),
			Transform:    kvdiskv.FlatTransform,
			CacheSizeMax: 1024 * 1024,
		})),
	)}
}
