package testutil

import (
	"os"
	"testing"
)

// PostgresDSNEnv names the variable holding the test database DSN.
const PostgresDSNEnv = "COLLOBOQUE_TEST_PG_DSN"

// PostgresDSN returns the test database DSN, or skips the test when none is
// configured.
func PostgresDSN(t testing.TB) string {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set; skipping Postgres test", PostgresDSNEnv)
	}
	return dsn
}
