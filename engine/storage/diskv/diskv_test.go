package diskv

import (
	"testing"

	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/engine/storage/test"
)

func TestDiskv(t *testing.T) {
	// fresh path per invocation; the suite assumes a clean store
	test.TestEngineStorage(t, func() storage.AllStorage { return New(t.TempDir()) })
}
