package database

import (
	"fmt"
	"strings"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// BuildSchemaSystemMessage enumerates every analyzed database for the SQL
// generation call: tables, columns with types, primary and foreign keys,
// and the column names that recur across databases.
func BuildSchemaSystemMessage(schemas []models.DatabaseSchemaInfo) string {
	var b strings.Builder
	b.WriteString("You are a SQL generation engine. The following databases are available.\n")

	for i := range schemas {
		s := &schemas[i]
		fmt.Fprintf(&b, "\nDatabase: %s (type %s, id %q)\n", s.DatabaseName, s.DatabaseType, s.DatabaseID)
		if len(s.Tables) == 0 {
			b.WriteString("  (no tables)\n")
			continue
		}
		for _, t := range s.Tables {
			fmt.Fprintf(&b, "  Table %s (%d rows)\n", t.Name, t.RowCount)
			cols := make([]string, 0, len(t.Columns))
			for _, c := range t.Columns {
				cols = append(cols, describeColumn(c))
			}
			fmt.Fprintf(&b, "    Columns: %s\n", strings.Join(cols, ", "))
			for _, fk := range t.ForeignKeys {
				fmt.Fprintf(&b, "    Foreign key: %s.%s references %s.%s\n", t.Name, fk.ColumnName, fk.ReferencedTable, fk.ReferencedColumn)
			}
		}
	}

	if mappings := crossDatabaseMappings(schemas); len(mappings) > 0 {
		b.WriteString("\nColumns that name the same logical key in multiple databases:\n")
		for _, m := range mappings {
			b.WriteString("  " + m + "\n")
		}
	}

	return b.String()
}

func describeColumn(c models.ColumnSchema) string {
	desc := c.Name + " " + c.DataType
	if c.MaxLength != nil {
		desc += fmt.Sprintf("(%d)", *c.MaxLength)
	}
	if c.IsPrimaryKey {
		desc += " PK"
	}
	if c.IsForeignKey {
		desc += " FK"
	}
	if !c.IsNullable {
		desc += " NOT NULL"
	}
	return desc
}

// crossDatabaseMappings lists key-like columns whose name appears in more
// than one database. The generator uses these to answer questions whose
// entities span databases that cannot be joined.
func crossDatabaseMappings(schemas []models.DatabaseSchemaInfo) []string {
	type occurrence struct {
		database string
		table    string
		column   string
	}
	byColumn := make(map[string][]occurrence)
	var order []string

	for i := range schemas {
		for _, t := range schemas[i].Tables {
			for _, c := range t.Columns {
				lower := strings.ToLower(c.Name)
				if len(lower) <= 2 || !strings.HasSuffix(lower, "id") {
					continue
				}
				if _, seen := byColumn[lower]; !seen {
					order = append(order, lower)
				}
				byColumn[lower] = append(byColumn[lower], occurrence{schemas[i].DatabaseName, t.Name, c.Name})
			}
		}
	}

	const maxMappings = 10
	var mappings []string
	for _, key := range order {
		occ := byColumn[key]
		databases := make(map[string]struct{})
		for _, o := range occ {
			databases[o.database] = struct{}{}
		}
		if len(databases) < 2 {
			continue
		}
		refs := make([]string, 0, len(occ))
		for _, o := range occ {
			refs = append(refs, fmt.Sprintf("%s.%s.%s", o.database, o.table, o.column))
		}
		mappings = append(mappings, strings.Join(refs, " <-> "))
		if len(mappings) == maxMappings {
			break
		}
	}
	return mappings
}

// BuildSqlGenerationMessage builds the user half of the generation prompt:
// routing rules, dialect reminders, one worked example, and the question.
func BuildSqlGenerationMessage(query string, intent *models.QueryIntent, schemas []models.DatabaseSchemaInfo) string {
	byID := make(map[string]*models.DatabaseSchemaInfo, len(schemas))
	for i := range schemas {
		byID[schemas[i].DatabaseID] = &schemas[i]
	}

	var b strings.Builder
	b.WriteString("Translate the question into one SQL SELECT statement per database listed below.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Exactly one SELECT per database; no other statement kinds.\n")
	b.WriteString("2. Reference only tables and columns from the schema overview.\n")
	b.WriteString("3. Never join across databases; each statement runs in isolation.\n")
	b.WriteString("4. Prefer aggregates and filters over returning whole tables.\n")
	b.WriteString("5. No CROSS JOIN and at most two levels of nested SELECT.\n")

	b.WriteString("\nDialect notes:\n")
	seen := make(map[models.DatabaseType]struct{})
	for _, di := range intent.DatabaseIntents {
		schema, ok := byID[di.DatabaseID]
		if !ok {
			continue
		}
		if _, dup := seen[schema.DatabaseType]; dup {
			continue
		}
		seen[schema.DatabaseType] = struct{}{}
		if strategy, err := StrategyFor(schema.DatabaseType); err == nil {
			b.WriteString("- " + strategy.PromptNotes() + "\n")
		}
	}

	b.WriteString("\nDatabases to answer for, in priority order:\n")
	for _, di := range intent.DatabaseIntents {
		fmt.Fprintf(&b, "- id %q", di.DatabaseID)
		if len(di.RequiredTables) > 0 {
			fmt.Fprintf(&b, ", tables: %s", strings.Join(di.RequiredTables, ", "))
		}
		if di.Purpose != "" {
			fmt.Fprintf(&b, ", purpose: %s", di.Purpose)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nRespond with JSON only, in exactly this shape:\n")
	b.WriteString(`{"queries":[{"databaseId":"<id>","sql":"SELECT ..."}]}` + "\n")
	b.WriteString("\nExample:\n")
	b.WriteString("Question: how many orders were placed this year?\n")
	b.WriteString(`Response: {"queries":[{"databaseId":"sales","sql":"SELECT COUNT(*) FROM Orders WHERE OrderDate >= '2025-01-01'"}]}` + "\n")

	b.WriteString("\nQuestion: " + query + "\n")
	return b.String()
}

// BuildStrictRetryMessage re-asks after a malformed generation response.
func BuildStrictRetryMessage(original string) string {
	return "Your previous reply was not valid JSON. " +
		"Reply with nothing but the JSON object, no prose, no code fences.\n\n" + original
}
