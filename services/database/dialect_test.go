package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

func testSchema(t *testing.T) *models.DatabaseSchemaInfo {
	t.Helper()
	return &models.DatabaseSchemaInfo{
		DatabaseID:   "sales",
		DatabaseName: "Sales",
		DatabaseType: models.DatabaseTypeSqlServer,
		Status:       models.AnalysisStatusCompleted,
		Tables: []models.TableSchema{
			{
				Name: "Orders",
				Columns: []models.ColumnSchema{
					{Name: "Id", DataType: "int", IsPrimaryKey: true},
					{Name: "Amount", DataType: "decimal"},
					{Name: "OrderDate", DataType: "datetime"},
					{Name: "CustomerId", DataType: "int", IsForeignKey: true},
				},
				PrimaryKeys: []string{"Id"},
				ForeignKeys: []models.ForeignKeySchema{
					{ColumnName: "CustomerId", ReferencedTable: "Customers", ReferencedColumn: "Id"},
				},
			},
			{
				Name: "Customers",
				Columns: []models.ColumnSchema{
					{Name: "Id", DataType: "int", IsPrimaryKey: true},
					{Name: "Name", DataType: "nvarchar"},
				},
				PrimaryKeys: []string{"Id"},
			},
		},
	}
}

func TestStrategyFor_AllTypes(t *testing.T) {
	for _, dbType := range []models.DatabaseType{
		models.DatabaseTypeSQLite,
		models.DatabaseTypeSqlServer,
		models.DatabaseTypeMySQL,
		models.DatabaseTypePostgreSQL,
	} {
		strategy, err := StrategyFor(dbType)
		require.NoError(t, err)
		assert.Equal(t, dbType, strategy.Type())
	}

	_, err := StrategyFor(models.DatabaseType("Oracle"))
	assert.Error(t, err)
}

func TestValidateSyntax_ForbiddenKeywords(t *testing.T) {
	strategy := SqliteStrategy{}

	problems := strategy.ValidateSyntax("DROP TABLE Orders")
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "DROP")

	problems = strategy.ValidateSyntax("SELECT * FROM Orders WHERE Name = 'please delete me'")
	assert.Empty(t, problems)

	problems = strategy.ValidateSyntax("DELETE FROM Orders; DELETE FROM Customers")
	assert.Len(t, problems, 1)
}

func TestValidateSyntax_CrossJoin(t *testing.T) {
	problems := MySqlStrategy{}.ValidateSyntax("SELECT * FROM a CROSS JOIN b")
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "CROSS JOIN")
}

func TestValidateSyntax_NestedSelects(t *testing.T) {
	strategy := PostgreSqlStrategy{}

	ok := "SELECT * FROM (SELECT id FROM (SELECT id FROM orders) a) b"
	assert.Empty(t, strategy.ValidateSyntax(ok))

	tooDeep := "SELECT * FROM (SELECT id FROM (SELECT id FROM (SELECT id FROM orders) a) b) c"
	problems := strategy.ValidateSyntax(tooDeep)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "nested SELECT")
}

func TestEscapeIdentifier_PerDialect(t *testing.T) {
	assert.Equal(t, `"Order Items"`, SqliteStrategy{}.EscapeIdentifier("Order Items"))
	assert.Equal(t, "`Orders`", MySqlStrategy{}.EscapeIdentifier("Orders"))
	assert.Equal(t, "[Orders]", SqlServerStrategy{}.EscapeIdentifier("Orders"))
	assert.Equal(t, "[a]]b]", SqlServerStrategy{}.EscapeIdentifier("a]b"))

	// PostgreSQL only quotes identifiers that carry uppercase.
	assert.Equal(t, "orders", PostgreSqlStrategy{}.EscapeIdentifier("orders"))
	assert.Equal(t, `"Orders"`, PostgreSqlStrategy{}.EscapeIdentifier("Orders"))
}

func TestApplyLimit_AppendsWhenMissing(t *testing.T) {
	assert.Equal(t, "SELECT * FROM orders LIMIT 50", SqliteStrategy{}.ApplyLimit("SELECT * FROM orders", 50))
	assert.Equal(t, "SELECT * FROM orders LIMIT 10", MySqlStrategy{}.ApplyLimit("SELECT * FROM orders LIMIT 10", 50))
	assert.Equal(t, "SELECT * FROM orders", PostgreSqlStrategy{}.ApplyLimit("SELECT * FROM orders", 0))
}

func TestApplyLimit_SqlServerTop(t *testing.T) {
	strategy := SqlServerStrategy{}

	assert.Equal(t, "SELECT TOP 50 * FROM Orders", strategy.ApplyLimit("SELECT * FROM Orders", 50))
	assert.Equal(t, "SELECT DISTINCT TOP 50 Name FROM Customers", strategy.ApplyLimit("SELECT DISTINCT Name FROM Customers", 50))
	assert.Equal(t, "SELECT TOP 5 * FROM Orders", strategy.ApplyLimit("SELECT TOP 5 * FROM Orders", 50))
}

func TestSqliteRepair_NormalizesQuoting(t *testing.T) {
	got := SqliteStrategy{}.Repair("SELECT `Name` FROM [Order Items];", nil)
	assert.Equal(t, `SELECT "Name" FROM "Order Items"`, got)
}

func TestMySqlRepair_AliasesDerivedTables(t *testing.T) {
	strategy := MySqlStrategy{}

	got := strategy.Repair("SELECT * FROM (SELECT id FROM orders) WHERE id > 3", nil)
	assert.Equal(t, "SELECT * FROM (SELECT id FROM orders) AS _dt WHERE id > 3", got)

	// Already aliased subqueries stay untouched.
	aliased := "SELECT * FROM (SELECT id FROM orders) o WHERE o.id > 3"
	assert.Equal(t, aliased, strategy.Repair(aliased, nil))

	got = strategy.Repair("SELECT * FROM (SELECT id FROM a) JOIN (SELECT id FROM b) ON 1 = 1", nil)
	assert.Equal(t, "SELECT * FROM (SELECT id FROM a) AS _dt2 JOIN (SELECT id FROM b) AS _dt ON 1 = 1", got)
}

func TestMySqlRepair_TrailingDerivedTable(t *testing.T) {
	got := MySqlStrategy{}.Repair("SELECT * FROM (SELECT id FROM orders)", nil)
	assert.Equal(t, "SELECT * FROM (SELECT id FROM orders) AS _dt", got)
}

func TestSqlServerRepair_LimitBecomesTop(t *testing.T) {
	strategy := SqlServerStrategy{}

	got := strategy.Repair("SELECT Name FROM Customers LIMIT 10", nil)
	assert.Equal(t, "SELECT TOP 10 Name FROM Customers", got)

	got = strategy.Repair("SELECT Name FROM Customers FETCH FIRST 7 ROWS ONLY", nil)
	assert.Equal(t, "SELECT TOP 7 Name FROM Customers", got)

	got = strategy.Repair("SELECT TOP 5 Name FROM Customers LIMIT 10", nil)
	assert.Equal(t, "SELECT TOP 5 Name FROM Customers", got)
}

func TestSqlServerRepair_RelocatesTop(t *testing.T) {
	got := SqlServerStrategy{}.Repair("SELECT Name, TOP 10 FROM Customers", nil)
	assert.Equal(t, "SELECT TOP 10 Name FROM Customers", got)
}

func TestSqlServerRepair_BackticksBecomeBrackets(t *testing.T) {
	got := SqlServerStrategy{}.Repair("SELECT `Name` FROM `Customers`", nil)
	assert.Equal(t, "SELECT [Name] FROM [Customers]", got)
}

func TestSqlServerRepair_GroupByOrdinals(t *testing.T) {
	strategy := SqlServerStrategy{}

	got := strategy.Repair("SELECT OrderDate, COUNT(*) AS cnt FROM Orders GROUP BY 1", nil)
	assert.Equal(t, "SELECT OrderDate, COUNT(*) AS cnt FROM Orders GROUP BY OrderDate", got)

	got = strategy.Repair("SELECT YEAR(OrderDate), CustomerId, SUM(Amount) FROM Orders GROUP BY 1, 2", nil)
	assert.Equal(t, "SELECT YEAR(OrderDate), CustomerId, SUM(Amount) FROM Orders GROUP BY YEAR(OrderDate), CustomerId", got)

	// Out-of-range ordinals leave the statement alone.
	unchanged := "SELECT Name FROM Customers GROUP BY 4"
	assert.Equal(t, unchanged, strategy.Repair(unchanged, nil))
}

func TestSqlServerRepair_DottedAlias(t *testing.T) {
	got := SqlServerStrategy{}.Repair("SELECT Amount AS Orders.Amount FROM Orders", nil)
	assert.Equal(t, "SELECT Amount AS Amount FROM Orders", got)
}

func TestSqlServerRepair_StripsHallucinatedColumnCalls(t *testing.T) {
	schema := testSchema(t)
	strategy := SqlServerStrategy{}

	got := strategy.Repair("SELECT Amount(total) FROM Orders", schema)
	assert.Equal(t, "SELECT Amount FROM Orders", got)

	// Real functions and non-column names keep their calls.
	got = strategy.Repair("SELECT COUNT(Id), Custom(Id) FROM Orders", schema)
	assert.Equal(t, "SELECT COUNT(Id), Custom(Id) FROM Orders", got)
}

func TestPostgresRepair_QuotesCatalogedIdentifiers(t *testing.T) {
	schema := testSchema(t)
	schema.DatabaseType = models.DatabaseTypePostgreSQL

	got := PostgreSqlStrategy{}.Repair("SELECT amount FROM orders WHERE customerid = 3", schema)
	assert.Equal(t, `SELECT "Amount" FROM "Orders" WHERE "CustomerId" = 3`, got)
}

func TestPostgresRepair_LeavesFunctionsAndLiterals(t *testing.T) {
	schema := testSchema(t)
	schema.DatabaseType = models.DatabaseTypePostgreSQL
	schema.Tables = append(schema.Tables, models.TableSchema{
		Name:    "Counters",
		Columns: []models.ColumnSchema{{Name: "Count", DataType: "integer"}},
	})

	got := PostgreSqlStrategy{}.Repair("SELECT count(*) FROM orders WHERE name = 'orders'", schema)
	assert.Equal(t, `SELECT count(*) FROM "Orders" WHERE "Name" = 'orders'`, got)
}

func TestPostgresRepair_SchemaPrefixAndAliases(t *testing.T) {
	strategy := PostgreSqlStrategy{}

	got := strategy.Repair(`SELECT o.Total AS "Total" FROM Billing.Orders o`, nil)
	assert.Equal(t, `SELECT o.Total AS Total FROM "Billing"."Orders" o`, got)

	got = strategy.Repair(`SELECT ""Name"" FROM users`, nil)
	assert.Equal(t, `SELECT "Name" FROM users`, got)
}

func TestMaskLiterals_PreservesOffsets(t *testing.T) {
	in := "SELECT * FROM t WHERE a = 'DROP x' AND b = 2"
	masked := maskLiterals(in)

	assert.Equal(t, len(in), len(masked))
	assert.NotContains(t, masked, "DROP")
	assert.Contains(t, masked, "b = 2")
}
