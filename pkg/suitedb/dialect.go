package suitedb

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	// Link supported database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect captures the SQL differences between the supported stores.
type Dialect struct {
	Driver string

	quote       byte
	numbered    bool
	backslashes bool
	autoID      string
	textType    string
	stringType  string
	timestamp   string
	sessionStmt func(d Dialect, name, value string) (string, []any)
}

var (
	Postgres = Dialect{
		Driver:     "postgres",
		quote:      '"',
		numbered:   true,
		autoID:     "BIGSERIAL PRIMARY KEY",
		textType:   "TEXT",
		stringType: "VARCHAR(256)",
		timestamp:  "TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP",
		sessionStmt: func(d Dialect, name, value string) (string, []any) {
			return "SELECT set_config($1, $2, false)", []any{name, value}
		},
	}

	MySQL = Dialect{
		Driver:      "mysql",
		quote:       '`',
		backslashes: true,
		autoID:      "BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY",
		textType:    "MEDIUMTEXT",
		stringType:  "VARCHAR(256)",
		timestamp:   "DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP",
		sessionStmt: func(d Dialect, name, value string) (string, []any) {
			if isCustomProperty(name) {
				return "SET @" + d.Quote(name) + " = ?", []any{value}
			}
			return "SET SESSION " + d.Quote(name) + " = ?", []any{value}
		},
	}

	SQLite = Dialect{
		Driver:     "sqlite3",
		quote:      '"',
		autoID:     "INTEGER PRIMARY KEY AUTOINCREMENT",
		textType:   "TEXT",
		stringType: "VARCHAR(256)",
		timestamp:  "DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP",
		sessionStmt: func(d Dialect, name, value string) (string, []any) {
			if isCustomProperty(name) {
				return "", nil
			}
			// PRAGMA does not accept bound parameters.
			return "PRAGMA " + d.Quote(name) + " = " + d.StringLiteral(value), nil
		},
	}
)

var dialects = map[string]Dialect{
	Postgres.Driver: Postgres,
	MySQL.Driver:    MySQL,
	SQLite.Driver:   SQLite,
}

func DialectFor(driver string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(driver)]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
	return d, nil
}

func (d Dialect) String() string { return d.Driver }

// Quote quotes an identifier. Embedded quote characters are doubled.
func (d Dialect) Quote(ident string) string {
	q := string(d.quote)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

func (d Dialect) StringLiteral(s string) string {
	if d.backslashes {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Placeholder returns the bind parameter marker for the i-th (1-based)
// argument.
func (d Dialect) Placeholder(i int) string {
	if d.numbered {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

func (d Dialect) Placeholders(n int) []string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	return ph
}

var sessionPropertyName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// isCustomProperty reports whether name is a namespaced property defined by
// the suite rather than a server setting, e.g. "benchsuite.max".
func isCustomProperty(name string) bool {
	return strings.Contains(name, ".")
}

// SessionStatement builds the statement setting a session property on the
// current connection. Postgres stores namespaced properties as custom
// settings and MySQL as user variables. SQLite has no place for them and
// returns an empty statement.
func (d Dialect) SessionStatement(name, value string) (string, []any, error) {
	if !sessionPropertyName.MatchString(name) {
		return "", nil, fmt.Errorf("invalid session property name %q", name)
	}
	stmt, args := d.sessionStmt(d, name, value)
	return stmt, args, nil
}
