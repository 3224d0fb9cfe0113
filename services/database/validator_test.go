package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

var allTestDatabases = []string{"Sales", "Billing"}

func TestValidateQuery_Valid(t *testing.T) {
	schema := testSchema(t)

	result := ValidateQuery(
		"SELECT o.Amount FROM Orders o JOIN Customers c ON o.CustomerId = c.Id",
		schema, []string{"Orders", "Customers"}, allTestDatabases)

	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestValidateQuery_UnknownTable(t *testing.T) {
	schema := testSchema(t)

	result := ValidateQuery("SELECT * FROM Invoices", schema, nil, allTestDatabases)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `"Invoices"`)
	assert.Contains(t, result.Errors[0], "does not exist")
}

func TestValidateQuery_CaseInsensitiveOutsidePostgres(t *testing.T) {
	schema := testSchema(t)

	result := ValidateQuery("SELECT o.amount FROM orders o", schema, []string{"Orders"}, allTestDatabases)

	assert.True(t, result.Valid())
}

func TestValidateQuery_PostgresCaseMismatch(t *testing.T) {
	schema := testSchema(t)
	schema.DatabaseType = models.DatabaseTypePostgreSQL

	result := ValidateQuery("SELECT * FROM orders", schema, nil, allTestDatabases)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "case-sensitive")
	assert.Contains(t, result.Errors[0], `"Orders"`)
}

func TestValidateQuery_PostgresColumnCaseMismatch(t *testing.T) {
	schema := testSchema(t)
	schema.DatabaseType = models.DatabaseTypePostgreSQL

	result := ValidateQuery(`SELECT o.amount FROM "Orders" o`, schema, []string{"Orders"}, allTestDatabases)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "case mismatch")
	assert.Contains(t, result.Errors[0], `"Amount"`)
}

func TestValidateQuery_UnknownColumn(t *testing.T) {
	schema := testSchema(t)

	result := ValidateQuery("SELECT o.Discount FROM Orders o", schema, []string{"Orders"}, allTestDatabases)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `"Discount"`)
}

func TestValidateQuery_ColumnsCheckedOnlyForRequiredTables(t *testing.T) {
	schema := testSchema(t)

	// Customers is not in the required set, so its columns are not checked,
	// but referencing it still warns.
	result := ValidateQuery(
		"SELECT c.Nickname FROM Customers c", schema, []string{"Orders"}, allTestDatabases)

	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], `"Customers"`)
}

func TestValidateQuery_CrossDatabaseLeakage(t *testing.T) {
	schema := testSchema(t)

	result := ValidateQuery("SELECT * FROM Billing.Invoices", schema, nil, allTestDatabases)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `"Billing"`)
	assert.Contains(t, result.Errors[0], "cross-database")
}

func TestValidateQuery_BareOtherDatabaseName(t *testing.T) {
	schema := testSchema(t)

	result := ValidateQuery("SELECT * FROM Billing", schema, nil, allTestDatabases)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "cross-database")
}

func TestValidateQuery_TableNamedLikeOwnDatabase(t *testing.T) {
	schema := testSchema(t)
	schema.Tables = append(schema.Tables, models.TableSchema{
		Name:    "Billing",
		Columns: []models.ColumnSchema{{Name: "Id", DataType: "int"}},
	})

	// A real local table wins over the leakage heuristic.
	result := ValidateQuery("SELECT * FROM Billing", schema, []string{"Billing"}, allTestDatabases)

	assert.True(t, result.Valid())
}

func TestValidateQuery_AliasKeywordSkipped(t *testing.T) {
	schema := testSchema(t)

	// "ON" after the join table is a keyword, not an alias.
	result := ValidateQuery(
		"SELECT Orders.Amount FROM Orders JOIN Customers ON Orders.CustomerId = Customers.Id",
		schema, []string{"Orders", "Customers"}, allTestDatabases)

	assert.True(t, result.Valid())
}

func TestValidateQuery_QuotedIdentifiers(t *testing.T) {
	schema := testSchema(t)

	result := ValidateQuery("SELECT o.Amount FROM [Orders] o", schema, []string{"Orders"}, allTestDatabases)
	assert.True(t, result.Valid())

	result = ValidateQuery("SELECT o.Amount FROM `Orders` o", schema, []string{"Orders"}, allTestDatabases)
	assert.True(t, result.Valid())
}
