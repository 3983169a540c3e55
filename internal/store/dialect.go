package store

import (
	"fmt"
	"strings"
)

type dialect struct {
	name       string
	driverName string
	rowLocks   bool
	serial     string
	timestamp  string
}

var (
	postgresDialect = dialect{
		name:       "postgres",
		driverName: "postgres",
		rowLocks:   true,
		serial:     "BIGSERIAL PRIMARY KEY",
		timestamp:  "TIMESTAMPTZ",
	}
	sqliteDialect = dialect{
		name:       "sqlite",
		driverName: "sqlite",
		serial:     "INTEGER PRIMARY KEY AUTOINCREMENT",
		timestamp:  "DATETIME",
	}
)

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql", "pq":
		return postgresDialect, nil
	case "sqlite", "sqlite3":
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// rebind turns $1 placeholders into ?1, which sqlite binds positionally.
func (d dialect) rebind(q string) string {
	if d.name == "postgres" {
		return q
	}
	return strings.ReplaceAll(q, "$", "?")
}

func (d dialect) forUpdate() string {
	if d.rowLocks {
		return " FOR UPDATE"
	}
	return ""
}
