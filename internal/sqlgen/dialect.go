package sqlgen

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavor to generate.
type Dialect int

const (
	// Postgres targets PostgreSQL 15 or newer (MERGE support).
	Postgres Dialect = iota + 1
	// SQLite targets the embedded local mirror.
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// ParseDialect maps a dialect name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return 0, fmt.Errorf("unknown dialect %q: must be postgres or sqlite", name)
	}
}
