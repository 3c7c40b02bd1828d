package diskv

import (
	"testing"

	"github.com/intentops/intentengine/subsystem/audit/storage"
	"github.com/intentops/intentengine/subsystem/audit/storage/test"
)

func TestDiskv(t *testing.T) {
	test.TestAuditStorage(t, func() storage.Storage { return New(t.TempDir()) })
}
