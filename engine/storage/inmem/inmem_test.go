package inmem

import (
	"testing"

	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/engine/storage/test"
)

func TestInMem(t *testing.T) {
	test.TestEngineStorage(t, func() storage.AllStorage { return New() })
}
