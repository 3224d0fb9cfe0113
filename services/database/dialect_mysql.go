package database

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

type MySqlStrategy struct{}

func (MySqlStrategy) Type() models.DatabaseType { return models.DatabaseTypeMySQL }

func (MySqlStrategy) DriverName() string { return "mysql" }

func (MySqlStrategy) EscapeIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySqlStrategy) ApplyLimit(sql string, n int) string {
	return appendLimit(sql, n)
}

func (MySqlStrategy) ValidateSyntax(sql string) []string {
	return sharedSyntaxProblems(sql)
}

func (MySqlStrategy) Repair(sql string, _ *models.DatabaseSchemaInfo) string {
	return aliasDerivedTables(normalizeStatement(sql))
}

func (MySqlStrategy) PromptNotes() string {
	return "MySQL: escape identifiers with backticks and give every derived table (subquery in FROM) an alias."
}

var derivedTableOpenRe = regexp.MustCompile(`(?i)\b(FROM|JOIN)\s*\(`)

// followers that may legally come after a derived table without an alias
// do not exist in MySQL; anything other than an identifier or AS means the
// alias is missing.
var derivedFollowerRe = regexp.MustCompile(`(?i)^(WHERE|GROUP|ORDER|LIMIT|HAVING|ON|JOIN|INNER|LEFT|RIGHT|FULL|UNION|EXCEPT|INTERSECT)\b`)

// aliasDerivedTables appends an alias to FROM/JOIN subqueries that lack
// one. MySQL rejects "Every derived table must have its own alias".
// Matches are processed right to left so insertions never invalidate the
// positions of matches still to be handled.
func aliasDerivedTables(sql string) string {
	locs := derivedTableOpenRe.FindAllStringIndex(maskLiterals(sql), -1)
	counter := 0

	for i := len(locs) - 1; i >= 0; i-- {
		openParen := locs[i][1] - 1
		closeParen := matchParen(sql, openParen)
		if closeParen < 0 {
			continue
		}

		// An identifier or AS after the closing paren means the derived
		// table is already aliased.
		rest := strings.TrimLeft(sql[closeParen+1:], " \t\n")
		if rest != "" && rest[0] != ',' && rest[0] != ')' && !derivedFollowerRe.MatchString(rest) {
			continue
		}

		alias := "_dt"
		if counter > 0 {
			alias = fmt.Sprintf("_dt%d", counter+1)
		}
		counter++
		sql = sql[:closeParen+1] + " AS " + alias + sql[closeParen+1:]
	}
	return sql
}

// matchParen returns the index of the parenthesis closing the one at
// open, or -1 when unbalanced. Single-quoted literals are skipped.
func matchParen(sql string, open int) int {
	depth := 0
	inLiteral := false
	for i := open; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			inLiteral = !inLiteral
		case '(':
			if !inLiteral {
				depth++
			}
		case ')':
			if !inLiteral {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}
