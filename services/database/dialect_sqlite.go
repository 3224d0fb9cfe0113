package database

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// SqliteStrategy needs almost no repair: SQLite accepts standard quoting
// and LIMIT, so it only normalizes foreign quoting styles.
type SqliteStrategy struct{}

func (SqliteStrategy) Type() models.DatabaseType { return models.DatabaseTypeSQLite }

func (SqliteStrategy) DriverName() string { return "sqlite3" }

func (SqliteStrategy) EscapeIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SqliteStrategy) ApplyLimit(sql string, n int) string {
	return appendLimit(sql, n)
}

func (SqliteStrategy) ValidateSyntax(sql string) []string {
	return sharedSyntaxProblems(sql)
}

var bracketIdentRe = regexp.MustCompile(`\[([^\]]+)\]`)

func (SqliteStrategy) Repair(sql string, _ *models.DatabaseSchemaInfo) string {
	sql = normalizeStatement(sql)
	sql = strings.ReplaceAll(sql, "`", `"`)
	return bracketIdentRe.ReplaceAllString(sql, `"$1"`)
}

func (SqliteStrategy) PromptNotes() string {
	return "SQLite: use standard double-quoted identifiers and LIMIT at the end of the statement."
}

// appendLimit adds a trailing LIMIT when the statement has none. Shared by
// the dialects whose limit clause sits at the end.
func appendLimit(sql string, n int) string {
	if n <= 0 || anyLimitRe.MatchString(maskLiterals(sql)) {
		return sql
	}
	return fmt.Sprintf("%s LIMIT %d", normalizeStatement(sql), n)
}
