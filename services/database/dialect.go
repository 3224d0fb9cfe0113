package database

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// DialectStrategy adapts generated SQL to one database dialect: identifier
// escaping, row limiting, syntax checks, and rule-based repair of the
// mistakes language models actually make for that dialect.
type DialectStrategy interface {
	Type() models.DatabaseType

	// DriverName is the database/sql driver this dialect registers under.
	DriverName() string

	EscapeIdentifier(name string) string

	// ApplyLimit caps the number of returned rows, adding the dialect's
	// limit form when the statement has none.
	ApplyLimit(sql string, n int) string

	// ValidateSyntax returns the list of shape problems in the statement.
	// Empty means acceptable.
	ValidateSyntax(sql string) []string

	// Repair applies the dialect's rule-based rewrites. The schema lets
	// repairs distinguish column names from functions and fix casing.
	Repair(sql string, schema *models.DatabaseSchemaInfo) string

	// PromptNotes returns reminders injected into the SQL generation
	// prompt for this dialect.
	PromptNotes() string
}

// StrategyFor returns the strategy registered for a database type.
func StrategyFor(dbType models.DatabaseType) (DialectStrategy, error) {
	switch dbType {
	case models.DatabaseTypeSQLite:
		return SqliteStrategy{}, nil
	case models.DatabaseTypeSqlServer:
		return SqlServerStrategy{}, nil
	case models.DatabaseTypeMySQL:
		return MySqlStrategy{}, nil
	case models.DatabaseTypePostgreSQL:
		return PostgreSqlStrategy{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

var (
	forbiddenStatementRe = regexp.MustCompile(`(?i)\b(DROP|DELETE|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|EXECUTE|EXEC)\b`)
	crossJoinRe          = regexp.MustCompile(`(?i)\bCROSS\s+JOIN\b`)
	selectKeywordRe      = regexp.MustCompile(`(?i)\bSELECT\b`)
	anyLimitRe           = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	trailingLimitRe      = regexp.MustCompile(`(?i)\s+LIMIT\s+(\d+)\s*$`)
)

// maxNestedSelects bounds subquery depth in generated SQL.
const maxNestedSelects = 2

// maskLiterals blanks the contents of single-quoted literals so keyword
// and identifier scans cannot match inside string constants. Offsets are
// preserved. Doubled quotes ('') escape per the SQL standard.
func maskLiterals(sql string) string {
	out := []byte(sql)
	inLiteral := false
	for i := 0; i < len(out); i++ {
		if out[i] == '\'' {
			inLiteral = !inLiteral
			continue
		}
		if inLiteral {
			out[i] = ' '
		}
	}
	return string(out)
}

// normalizeStatement trims whitespace and a trailing semicolon.
func normalizeStatement(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\n")
}

// sharedSyntaxProblems runs the dialect-independent checks: destructive or
// DDL keywords outside literals, CROSS JOIN, and excessive SELECT nesting.
func sharedSyntaxProblems(sql string) []string {
	masked := maskLiterals(sql)

	var problems []string
	seen := make(map[string]struct{})
	for _, m := range forbiddenStatementRe.FindAllString(masked, -1) {
		kw := strings.ToUpper(m)
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		problems = append(problems, fmt.Sprintf("forbidden keyword %s", kw))
	}

	if crossJoinRe.MatchString(masked) {
		problems = append(problems, "CROSS JOIN is not allowed")
	}

	if n := len(selectKeywordRe.FindAllString(masked, -1)); n-1 > maxNestedSelects {
		problems = append(problems, fmt.Sprintf("too many nested SELECT statements (%d)", n-1))
	}

	return problems
}

func containsUpper(s string) bool {
	return strings.ToLower(s) != s
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isWordStartByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// sqlKeywords are words the rewrites must never mistake for identifiers.
var sqlKeywords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "JOIN": {}, "INNER": {}, "LEFT": {},
	"RIGHT": {}, "FULL": {}, "OUTER": {}, "ON": {}, "AS": {}, "AND": {}, "OR": {},
	"NOT": {}, "IN": {}, "IS": {}, "NULL": {}, "LIKE": {}, "BETWEEN": {},
	"GROUP": {}, "BY": {}, "ORDER": {}, "HAVING": {}, "LIMIT": {}, "OFFSET": {},
	"UNION": {}, "ALL": {}, "DISTINCT": {}, "CASE": {}, "WHEN": {}, "THEN": {},
	"ELSE": {}, "END": {}, "EXISTS": {}, "ASC": {}, "DESC": {}, "WITH": {},
	"TOP": {}, "FETCH": {}, "FIRST": {}, "ROWS": {}, "ONLY": {}, "USING": {},
}
