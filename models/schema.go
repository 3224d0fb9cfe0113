package models

import (
	"strings"
	"time"
)

type DatabaseType string

const (
	DatabaseTypeSQLite     DatabaseType = "SQLite"
	DatabaseTypeSqlServer  DatabaseType = "SqlServer"
	DatabaseTypeMySQL      DatabaseType = "MySQL"
	DatabaseTypePostgreSQL DatabaseType = "PostgreSQL"
)

// CaseSensitiveIdentifiers reports whether table and column names match
// exactly for this dialect. Only PostgreSQL preserves case strictly.
func (t DatabaseType) CaseSensitiveIdentifiers() bool {
	return t == DatabaseTypePostgreSQL
}

type AnalysisStatus string

const (
	AnalysisStatusPending   AnalysisStatus = "Pending"
	AnalysisStatusCompleted AnalysisStatus = "Completed"
	AnalysisStatusFailed    AnalysisStatus = "Failed"
)

// DatabaseSchemaInfo is the cached introspection result for one database.
type DatabaseSchemaInfo struct {
	DatabaseID    string         `json:"databaseId"`
	DatabaseName  string         `json:"databaseName"`
	DatabaseType  DatabaseType   `json:"databaseType"`
	LastAnalyzed  time.Time      `json:"lastAnalyzed"`
	Tables        []TableSchema  `json:"tables"`
	TotalRowCount int64          `json:"totalRowCount"`
	Status        AnalysisStatus `json:"status"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
}

type TableSchema struct {
	Name        string             `json:"name"`
	Columns     []ColumnSchema     `json:"columns"`
	PrimaryKeys []string           `json:"primaryKeys,omitempty"`
	ForeignKeys []ForeignKeySchema `json:"foreignKeys,omitempty"`
	RowCount    int64              `json:"rowCount"`
	SampleData  string             `json:"sampleData,omitempty"`
}

type ColumnSchema struct {
	Name         string `json:"name"`
	DataType     string `json:"dataType"`
	IsNullable   bool   `json:"isNullable"`
	IsPrimaryKey bool   `json:"isPrimaryKey"`
	IsForeignKey bool   `json:"isForeignKey"`
	MaxLength    *int   `json:"maxLength,omitempty"`
}

type ForeignKeySchema struct {
	ColumnName       string `json:"columnName"`
	ReferencedTable  string `json:"referencedTable"`
	ReferencedColumn string `json:"referencedColumn"`
}

// FindTable resolves a table name under the schema's dialect case rules.
// PostgreSQL matches exactly; the other dialects match case-insensitively.
func (s *DatabaseSchemaInfo) FindTable(name string) *TableSchema {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	if !s.DatabaseType.CaseSensitiveIdentifiers() {
		for i := range s.Tables {
			if strings.EqualFold(s.Tables[i].Name, name) {
				return &s.Tables[i]
			}
		}
	}
	return nil
}

// FindTableAnyCase resolves a table ignoring case regardless of dialect.
// The validator uses it to propose the correct casing on PostgreSQL.
func (s *DatabaseSchemaInfo) FindTableAnyCase(name string) *TableSchema {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i]
		}
	}
	return nil
}

// HasColumn resolves a column name under the given case rule.
func (t *TableSchema) HasColumn(name string, caseSensitive bool) bool {
	return t.FindColumn(name, caseSensitive) != nil
}

func (t *TableSchema) FindColumn(name string, caseSensitive bool) *ColumnSchema {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	if !caseSensitive {
		for i := range t.Columns {
			if strings.EqualFold(t.Columns[i].Name, name) {
				return &t.Columns[i]
			}
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ConnectionStatus is the per-database shape returned by the connections API.
type ConnectionStatus struct {
	Name          string         `json:"name"`
	Type          DatabaseType   `json:"type"`
	IsValid       bool           `json:"isValid"`
	TableCount    int            `json:"tableCount"`
	TotalRowCount int64          `json:"totalRowCount"`
	Status        AnalysisStatus `json:"status"`
}
