package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const maxCellWidth = 64

// scanRowsAsStrings drains a result set into column headers plus
// stringified cells, one slice per row. maxRows caps the scan when
// positive; the statement-level limit is the primary guard, this one
// catches queries that arrived with their own larger LIMIT.
func scanRowsAsStrings(rows *sql.Rows, maxRows int) ([]string, [][]string, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var data [][]string
	for rows.Next() {
		if maxRows > 0 && len(data) == maxRows {
			break
		}
		values := make([]any, len(columns))
		for i := range values {
			values[i] = new(any)
		}
		if err := rows.Scan(values...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		cells := make([]string, len(columns))
		for i, v := range values {
			cells[i] = formatCell(*(v.(*any)))
		}
		data = append(data, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, data, nil
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return clipCell(string(t))
	case time.Time:
		return t.Format(time.RFC3339)
	case string:
		return clipCell(t)
	default:
		return clipCell(fmt.Sprintf("%v", t))
	}
}

// clipCell keeps every cell on one line and caps its width so a single
// oversized value cannot blow up the rendered table.
func clipCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) <= maxCellWidth {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxCellWidth-3]) + "..."
}

// renderTextTable lays the rows out as a padded text table with a header
// rule, the shape both query results and schema samples are reported in.
func renderTextTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && utf8.RuneCountInString(cell) > widths[i] {
				widths[i] = utf8.RuneCountInString(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(cell)
			if pad := widths[i] - utf8.RuneCountInString(cell); pad > 0 && i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", pad))
			}
		}
		b.WriteString("\n")
	}

	writeRow(headers)
	for i, w := range widths {
		if i > 0 {
			b.WriteString("-+-")
		}
		b.WriteString(strings.Repeat("-", w))
	}
	b.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}
