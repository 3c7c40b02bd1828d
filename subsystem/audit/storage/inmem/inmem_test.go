package inmem

import (
	"testing"

	"github.com/intentops/intentengine/subsystem/audit/storage"
	"github.com/intentops/intentengine/subsystem/audit/storage/test"
)

func TestInMem(t *testing.T) {
	test.TestAuditStorage(t, func() storage.Storage { return New() })
}
