package mysql

import (
	"os"
	"testing"

	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/engine/storage/test"

	_ "github.com/go-sql-driver/mysql"
)

func TestMySQLStorage(t *testing.T) {
	testDSN := os.Getenv("INTENTENGINE_MYSQL_STORAGE_TEST_DSN")
	if testDSN == "" {
		t.Skip("INTENTENGINE_MYSQL_STORAGE_TEST_DSN not set")
	}

	s, err := New(WithDSN(testDSN))
	if err != nil {
		t.Fatal(err)
	}

	// to re-run against an existing DB/DSN:
	//
	// DELETE FROM workflows;
	// DELETE FROM workflow_transitions;

	test.TestEngineStorage(t, func() storage.AllStorage { return s })
}
