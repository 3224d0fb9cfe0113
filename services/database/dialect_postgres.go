package database

import (
	"regexp"
	"strings"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// PostgreSqlStrategy quotes mixed-case identifiers to match the catalog
// exactly. PostgreSQL folds unquoted identifiers to lowercase, which is the
// single most common failure mode for generated SQL against schemas that
// carry PascalCase names.
type PostgreSqlStrategy struct{}

func (PostgreSqlStrategy) Type() models.DatabaseType { return models.DatabaseTypePostgreSQL }

func (PostgreSqlStrategy) DriverName() string { return "postgres" }

func (PostgreSqlStrategy) EscapeIdentifier(name string) string {
	if !containsUpper(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (PostgreSqlStrategy) ApplyLimit(sql string, n int) string {
	return appendLimit(sql, n)
}

func (PostgreSqlStrategy) ValidateSyntax(sql string) []string {
	return sharedSyntaxProblems(sql)
}

var (
	quotedAliasRe         = regexp.MustCompile(`(?i)\bAS\s+"([A-Za-z_]\w*)"`)
	schemaPrefixedTableRe = regexp.MustCompile(`(?i)\b(FROM|JOIN)(\s+)([A-Za-z_]\w*)\.([A-Za-z_]\w*)`)
)

func (PostgreSqlStrategy) Repair(sql string, schema *models.DatabaseSchemaInfo) string {
	sql = normalizeStatement(sql)

	// Models sometimes double the quoting: ""Users"" means "Users".
	sql = strings.ReplaceAll(sql, `""`, `"`)

	// Quoted aliases buy nothing and break case-insensitive references.
	sql = quotedAliasRe.ReplaceAllString(sql, "AS ${1}")

	sql = schemaPrefixedTableRe.ReplaceAllStringFunc(sql, func(m string) string {
		parts := schemaPrefixedTableRe.FindStringSubmatch(m)
		if !containsUpper(parts[3]) && !containsUpper(parts[4]) {
			return m
		}
		return parts[1] + parts[2] + quotePgIdent(parts[3]) + "." + quotePgIdent(parts[4])
	})

	if schema != nil {
		sql = quoteCatalogedIdentifiers(sql, schema)
	}
	return sql
}

func (PostgreSqlStrategy) PromptNotes() string {
	return "PostgreSQL: identifiers are case-sensitive; wrap mixed-case table and column names in double quotes exactly as listed in the schema."
}

func quotePgIdent(name string) string {
	if !containsUpper(name) {
		return name
	}
	return `"` + name + `"`
}

// quoteCatalogedIdentifiers walks the statement outside literals and
// quoted regions and replaces bare identifiers that match a mixed-case
// cataloged table or column with the exact cataloged spelling, quoted.
// Words followed by '(' are function calls and stay untouched.
func quoteCatalogedIdentifiers(sql string, schema *models.DatabaseSchemaInfo) string {
	exact := make(map[string]string)
	for _, t := range schema.Tables {
		if containsUpper(t.Name) {
			exact[strings.ToLower(t.Name)] = t.Name
		}
		for _, c := range t.Columns {
			if containsUpper(c.Name) {
				exact[strings.ToLower(c.Name)] = c.Name
			}
		}
	}
	if len(exact) == 0 {
		return sql
	}

	var b strings.Builder
	b.Grow(len(sql) + 16)
	inLiteral := false
	inQuoted := false
	for i := 0; i < len(sql); {
		ch := sql[i]
		switch {
		case ch == '\'' && !inQuoted:
			inLiteral = !inLiteral
		case ch == '"' && !inLiteral:
			inQuoted = !inQuoted
		}
		if inLiteral || inQuoted || !isWordStartByte(ch) {
			b.WriteByte(ch)
			i++
			continue
		}

		j := i
		for j < len(sql) && isWordByte(sql[j]) {
			j++
		}
		word := sql[i:j]
		i = j

		replacement, known := exact[strings.ToLower(word)]
		if !known {
			b.WriteString(word)
			continue
		}
		if _, kw := sqlKeywords[strings.ToUpper(word)]; kw {
			b.WriteString(word)
			continue
		}
		// A following '(' marks a function call, not a column.
		k := j
		for k < len(sql) && (sql[k] == ' ' || sql[k] == '\t') {
			k++
		}
		if k < len(sql) && sql[k] == '(' {
			b.WriteString(word)
			continue
		}
		b.WriteString(`"` + replacement + `"`)
	}
	return b.String()
}
