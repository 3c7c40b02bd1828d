package inmem

import (
	"testing"

	"github.com/intentops/intentengine/subsystem/approval/storage"
	"github.com/intentops/intentengine/subsystem/approval/storage/test"
)

func TestInMem(t *testing.T) {
	test.TestApprovalStorage(t, func() storage.Storage { return New() })
}
