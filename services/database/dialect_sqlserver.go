package database

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// SqlServerStrategy carries the widest repair set: models trained mostly
// on MySQL/PostgreSQL keep emitting LIMIT, backticks, and misplaced TOP
// against T-SQL.
type SqlServerStrategy struct{}

func (SqlServerStrategy) Type() models.DatabaseType { return models.DatabaseTypeSqlServer }

func (SqlServerStrategy) DriverName() string { return "sqlserver" }

func (SqlServerStrategy) EscapeIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

var (
	backtickIdentRe   = regexp.MustCompile("`([^`]+)`")
	fetchFirstRe      = regexp.MustCompile(`(?i)\s+FETCH\s+FIRST\s+(\d+)\s+ROWS?\s+ONLY\s*$`)
	topClauseRe       = regexp.MustCompile(`(?i)\bTOP\s+(\d+)\b`)
	selectHeadRe      = regexp.MustCompile(`(?i)^\s*SELECT(\s+DISTINCT)?\b`)
	dottedAliasRe     = regexp.MustCompile(`(?i)\b(AS\s+)([A-Za-z_]\w*(?:\.[A-Za-z_]\w*)+)`)
	groupByOrdinalRe  = regexp.MustCompile(`(?i)\bGROUP\s+BY\s+(\d+(?:\s*,\s*\d+)*)`)
	commaBeforeFromRe = regexp.MustCompile(`(?i),\s+FROM\b`)
	columnCallRe      = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(([^()]*)\)`)
)

func (SqlServerStrategy) ApplyLimit(sql string, n int) string {
	if n <= 0 || topClauseRe.MatchString(maskLiterals(sql)) {
		return sql
	}
	return insertTopAfterSelect(sql, strconv.Itoa(n))
}

func (SqlServerStrategy) ValidateSyntax(sql string) []string {
	return sharedSyntaxProblems(sql)
}

func (SqlServerStrategy) Repair(sql string, schema *models.DatabaseSchemaInfo) string {
	sql = normalizeStatement(sql)
	sql = backtickIdentRe.ReplaceAllString(sql, "[$1]")
	sql = convertLimitToTop(sql)
	sql = relocateTop(sql)
	sql = expandGroupByOrdinals(sql)
	sql = dottedAliasRe.ReplaceAllStringFunc(sql, func(m string) string {
		parts := dottedAliasRe.FindStringSubmatch(m)
		segments := strings.Split(parts[2], ".")
		return parts[1] + segments[len(segments)-1]
	})
	if schema != nil {
		sql = stripColumnCalls(sql, schema)
	}
	return sql
}

func (SqlServerStrategy) PromptNotes() string {
	return "SQL Server: place TOP n immediately after SELECT and never use LIMIT; escape identifiers with [brackets]."
}

// insertTopAfterSelect puts TOP n right after the opening SELECT,
// after DISTINCT when present.
func insertTopAfterSelect(sql string, n string) string {
	head := selectHeadRe.FindStringIndex(sql)
	if head == nil {
		return sql
	}
	return sql[:head[1]] + " TOP " + n + sql[head[1]:]
}

// convertLimitToTop rewrites a trailing LIMIT n or FETCH FIRST n ROWS ONLY
// into TOP n, unless the statement already carries a TOP.
func convertLimitToTop(sql string) string {
	masked := maskLiterals(sql)

	var n string
	if m := trailingLimitRe.FindStringSubmatchIndex(masked); m != nil {
		n = masked[m[2]:m[3]]
		sql = sql[:m[0]]
	} else if m := fetchFirstRe.FindStringSubmatchIndex(masked); m != nil {
		n = masked[m[2]:m[3]]
		sql = sql[:m[0]]
	} else {
		return sql
	}

	if topClauseRe.MatchString(maskLiterals(sql)) {
		return sql
	}
	return insertTopAfterSelect(sql, n)
}

// relocateTop moves a TOP clause that drifted away from the SELECT head
// back where T-SQL requires it.
func relocateTop(sql string) string {
	masked := maskLiterals(sql)
	head := selectHeadRe.FindStringIndex(masked)
	if head == nil {
		return sql
	}
	top := topClauseRe.FindStringSubmatchIndex(masked)
	if top == nil {
		return sql
	}
	if strings.TrimSpace(masked[head[1]:top[0]]) == "" {
		return sql
	}

	n := masked[top[2]:top[3]]
	sql = strings.TrimRight(sql[:top[0]], " \t") + " " + strings.TrimLeft(sql[top[1]:], " \t")
	sql = commaBeforeFromRe.ReplaceAllString(sql, " FROM")
	return insertTopAfterSelect(sql, n)
}

// expandGroupByOrdinals replaces GROUP BY 1, 2 with the corresponding
// select-list expressions. T-SQL does not support ordinal grouping.
func expandGroupByOrdinals(sql string) string {
	m := groupByOrdinalRe.FindStringSubmatchIndex(maskLiterals(sql))
	if m == nil {
		return sql
	}
	exprs := selectListExpressions(sql)
	if exprs == nil {
		return sql
	}

	replaced := make([]string, 0, 4)
	for _, part := range strings.Split(sql[m[2]:m[3]], ",") {
		k, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || k < 1 || k > len(exprs) {
			return sql
		}
		replaced = append(replaced, exprs[k-1])
	}
	return sql[:m[2]] + strings.Join(replaced, ", ") + sql[m[3]:]
}

var trailingAliasRe = regexp.MustCompile(`(?i)\s+AS\s+[A-Za-z_]\w*\s*$`)

// selectListExpressions splits the select list of the outer statement at
// top-level commas and strips AS aliases, yielding the expressions that
// GROUP BY ordinals refer to.
func selectListExpressions(sql string) []string {
	masked := maskLiterals(sql)
	head := selectHeadRe.FindStringIndex(masked)
	if head == nil {
		return nil
	}
	start := head[1]
	if top := topClauseRe.FindStringIndex(masked[start:]); top != nil && strings.TrimSpace(masked[start:start+top[0]]) == "" {
		start += top[1]
	}

	fromIdx := topLevelFromIndex(masked, start)
	if fromIdx < 0 {
		return nil
	}

	var exprs []string
	depth := 0
	itemStart := start
	for i := start; i < fromIdx; i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				exprs = append(exprs, cleanSelectItem(sql[itemStart:i]))
				itemStart = i + 1
			}
		}
	}
	exprs = append(exprs, cleanSelectItem(sql[itemStart:fromIdx]))
	return exprs
}

func cleanSelectItem(item string) string {
	return trailingAliasRe.ReplaceAllString(strings.TrimSpace(item), "")
}

// topLevelFromIndex finds the FROM belonging to the outer SELECT.
func topLevelFromIndex(masked string, start int) int {
	depth := 0
	for i := start; i+4 <= len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth != 0 || !strings.EqualFold(masked[i:i+4], "FROM") {
			continue
		}
		beforeOK := i == 0 || !isWordByte(masked[i-1])
		afterOK := i+4 == len(masked) || !isWordByte(masked[i+4])
		if beforeOK && afterOK {
			return i
		}
	}
	return -1
}

// knownSqlFunctions lists callables the repair must not mistake for
// columns.
var knownSqlFunctions = map[string]struct{}{
	"COUNT": {}, "SUM": {}, "AVG": {}, "MIN": {}, "MAX": {},
	"YEAR": {}, "MONTH": {}, "DAY": {}, "DATEPART": {}, "DATEADD": {},
	"DATEDIFF": {}, "GETDATE": {}, "GETUTCDATE": {}, "CAST": {}, "CONVERT": {},
	"COALESCE": {}, "ISNULL": {}, "NULLIF": {}, "UPPER": {}, "LOWER": {},
	"LEN": {}, "LTRIM": {}, "RTRIM": {}, "TRIM": {}, "SUBSTRING": {},
	"REPLACE": {}, "ROUND": {}, "ABS": {}, "CEILING": {}, "FLOOR": {},
	"FORMAT": {}, "CONCAT": {}, "CHARINDEX": {}, "STUFF": {}, "IIF": {},
	"TRY_CAST": {}, "TRY_CONVERT": {}, "ROW_NUMBER": {}, "RANK": {},
	"DENSE_RANK": {}, "NTILE": {}, "LAG": {}, "LEAD": {}, "STRING_AGG": {},
}

// stripColumnCalls drops hallucinated function syntax around identifiers
// the schema knows to be columns: Amount(total) becomes Amount.
func stripColumnCalls(sql string, schema *models.DatabaseSchemaInfo) string {
	columns := make(map[string]struct{})
	for _, t := range schema.Tables {
		for _, c := range t.Columns {
			columns[strings.ToLower(c.Name)] = struct{}{}
		}
	}
	if len(columns) == 0 {
		return sql
	}

	return columnCallRe.ReplaceAllStringFunc(sql, func(m string) string {
		name := columnCallRe.FindStringSubmatch(m)[1]
		upper := strings.ToUpper(name)
		if _, fn := knownSqlFunctions[upper]; fn {
			return m
		}
		if _, kw := sqlKeywords[upper]; kw {
			return m
		}
		if _, col := columns[strings.ToLower(name)]; col {
			return name
		}
		return m
	})
}
