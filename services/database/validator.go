package database

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// ValidationResult separates hard errors (statement must not run) from
// warnings (statement runs, but intent and SQL disagree).
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

func (r ValidationResult) Valid() bool { return len(r.Errors) == 0 }

var (
	tableRefRe  = regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+([A-Za-z_\[\x60"][\w.\[\]\x60"]*)`)
	columnRefRe = regexp.MustCompile(`\b([A-Za-z_]\w*)\.([A-Za-z_]\w*)\b`)
)

// aliasAfter reads the optional "[AS] alias" token that follows a table
// reference ending at pos. Keywords are never aliases, so "FROM a JOIN b"
// yields none. Kept out of the table regex because RE2 cannot express
// "identifier unless it is a keyword".
func aliasAfter(masked string, pos int) string {
	readWord := func(i int) (string, int) {
		for i < len(masked) && (masked[i] == ' ' || masked[i] == '\t' || masked[i] == '\n') {
			i++
		}
		j := i
		for j < len(masked) && isWordByte(masked[j]) {
			j++
		}
		return masked[i:j], j
	}

	word, next := readWord(pos)
	if strings.EqualFold(word, "AS") {
		word, _ = readWord(next)
	}
	if word == "" || !isWordStartByte(word[0]) {
		return ""
	}
	if _, kw := sqlKeywords[strings.ToUpper(word)]; kw {
		return ""
	}
	return word
}

// ValidateQuery checks a generated statement against the target database's
// cataloged schema: every referenced table must exist (PostgreSQL matches
// case exactly), alias.column references must resolve for required tables,
// and references to other configured databases are flagged as leakage.
// Statement-shape checks (forbidden keywords, CROSS JOIN, nesting) live in
// the dialect strategies.
func ValidateQuery(sql string, schema *models.DatabaseSchemaInfo, requiredTables []string, allDatabaseNames []string) ValidationResult {
	var result ValidationResult
	masked := maskLiterals(sql)

	required := make(map[string]struct{}, len(requiredTables))
	for _, t := range requiredTables {
		required[strings.ToLower(t)] = struct{}{}
	}

	otherDatabases := make(map[string]string, len(allDatabaseNames))
	for _, name := range allDatabaseNames {
		if !strings.EqualFold(name, schema.DatabaseName) && !strings.EqualFold(name, schema.DatabaseID) {
			otherDatabases[strings.ToLower(name)] = name
		}
	}

	// alias (or bare table name) -> cataloged table
	aliases := make(map[string]*models.TableSchema)

	for _, m := range tableRefRe.FindAllStringSubmatchIndex(masked, -1) {
		rawName := masked[m[4]:m[5]]
		alias := aliasAfter(masked, m[5])
		name := strings.NewReplacer(`"`, "", "`", "", "[", "", "]", "").Replace(rawName)

		segments := strings.Split(name, ".")
		tableName := segments[len(segments)-1]
		if len(segments) > 1 {
			if db, leak := otherDatabases[strings.ToLower(segments[0])]; leak {
				result.Errors = append(result.Errors,
					fmt.Sprintf("references database %q; cross-database queries are not supported", db))
				continue
			}
		}
		table := schema.FindTable(tableName)
		if table == nil {
			if schema.DatabaseType.CaseSensitiveIdentifiers() {
				if match := schema.FindTableAnyCase(tableName); match != nil {
					result.Errors = append(result.Errors,
						fmt.Sprintf("table %q not found; PostgreSQL identifiers are case-sensitive, use %q", tableName, match.Name))
					continue
				}
			}
			if db, leak := otherDatabases[strings.ToLower(tableName)]; leak {
				result.Errors = append(result.Errors,
					fmt.Sprintf("references database %q as if it were a table; cross-database queries are not supported", db))
				continue
			}
			result.Errors = append(result.Errors,
				fmt.Sprintf("table %q does not exist in database %q", tableName, schema.DatabaseName))
			continue
		}

		if len(required) > 0 {
			if _, ok := required[strings.ToLower(table.Name)]; !ok {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("table %q is referenced but was not named by the query intent", table.Name))
			}
		}

		aliases[strings.ToLower(table.Name)] = table
		if alias != "" {
			aliases[strings.ToLower(alias)] = table
		}
	}

	caseSensitive := schema.DatabaseType.CaseSensitiveIdentifiers()
	reported := make(map[string]struct{})
	for _, m := range columnRefRe.FindAllStringSubmatch(masked, -1) {
		qualifier, column := m[1], m[2]
		table, ok := aliases[strings.ToLower(qualifier)]
		if !ok {
			continue
		}
		if _, isRequired := required[strings.ToLower(table.Name)]; len(required) > 0 && !isRequired {
			continue
		}
		key := strings.ToLower(table.Name + "." + column)
		if _, dup := reported[key]; dup {
			continue
		}

		if table.HasColumn(column, caseSensitive) {
			continue
		}
		reported[key] = struct{}{}
		if caseSensitive {
			if match := table.FindColumn(column, false); match != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("column %q has a case mismatch in table %q; use %q", column, table.Name, match.Name))
				continue
			}
		}
		result.Errors = append(result.Errors,
			fmt.Sprintf("column %q does not exist in table %q", column, table.Name))
	}

	return result
}
