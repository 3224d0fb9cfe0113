package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

func introspectTables(ctx context.Context, conn *catalogConnection) ([]models.TableSchema, error) {
	switch conn.strategy.Type() {
	case models.DatabaseTypeSQLite:
		return introspectSqlite(ctx, conn)
	case models.DatabaseTypeMySQL:
		return introspectMySql(ctx, conn)
	case models.DatabaseTypePostgreSQL:
		return introspectPostgres(ctx, conn)
	case models.DatabaseTypeSqlServer:
		return introspectSqlServer(ctx, conn)
	default:
		return nil, fmt.Errorf("unsupported database type %q", conn.strategy.Type())
	}
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func intPtrFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func markForeignKeyColumns(table *models.TableSchema) {
	for _, fk := range table.ForeignKeys {
		for i := range table.Columns {
			if table.Columns[i].Name == fk.ColumnName {
				table.Columns[i].IsForeignKey = true
			}
		}
	}
}

func introspectSqlite(ctx context.Context, conn *catalogConnection) ([]models.TableSchema, error) {
	names, err := queryStrings(ctx, conn.db,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]models.TableSchema, 0, len(names))
	for _, name := range names {
		table := models.TableSchema{Name: name}
		escaped := conn.strategy.EscapeIdentifier(name)

		rows, err := conn.db.QueryContext(ctx, "PRAGMA table_info("+escaped+")")
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %q: %w", name, err)
		}
		for rows.Next() {
			var cid, notNull, pk int
			var colName, colType string
			var dflt sql.NullString
			if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan column of %q: %w", name, err)
			}
			col := models.ColumnSchema{
				Name:         colName,
				DataType:     colType,
				IsNullable:   notNull == 0,
				IsPrimaryKey: pk > 0,
			}
			if col.IsPrimaryKey {
				table.PrimaryKeys = append(table.PrimaryKeys, colName)
			}
			table.Columns = append(table.Columns, col)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read columns of %q: %w", name, err)
		}

		fkRows, err := conn.db.QueryContext(ctx, "PRAGMA foreign_key_list("+escaped+")")
		if err != nil {
			return nil, fmt.Errorf("failed to read foreign keys of %q: %w", name, err)
		}
		for fkRows.Next() {
			var fkID, seq int
			var refTable, fromCol, onUpdate, onDelete, match string
			var toCol sql.NullString
			if err := fkRows.Scan(&fkID, &seq, &refTable, &fromCol, &toCol, &onUpdate, &onDelete, &match); err != nil {
				fkRows.Close()
				return nil, fmt.Errorf("failed to scan foreign key of %q: %w", name, err)
			}
			if !toCol.Valid {
				// References the implicit rowid primary key.
				toCol.String = "rowid"
			}
			table.ForeignKeys = append(table.ForeignKeys, models.ForeignKeySchema{
				ColumnName:       fromCol,
				ReferencedTable:  refTable,
				ReferencedColumn: toCol.String,
			})
		}
		fkRows.Close()
		if err := fkRows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read foreign keys of %q: %w", name, err)
		}

		markForeignKeyColumns(&table)
		tables = append(tables, table)
	}
	return tables, nil
}

func introspectMySql(ctx context.Context, conn *catalogConnection) ([]models.TableSchema, error) {
	names, err := queryStrings(ctx, conn.db,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]models.TableSchema, 0, len(names))
	for _, name := range names {
		table := models.TableSchema{Name: name}

		rows, err := conn.db.QueryContext(ctx,
			`SELECT column_name, data_type, is_nullable, column_key, character_maximum_length
			 FROM information_schema.columns
			 WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %q: %w", name, err)
		}
		for rows.Next() {
			var colName, dataType, nullable, columnKey string
			var maxLen sql.NullInt64
			if err := rows.Scan(&colName, &dataType, &nullable, &columnKey, &maxLen); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan column of %q: %w", name, err)
			}
			col := models.ColumnSchema{
				Name:         colName,
				DataType:     dataType,
				IsNullable:   nullable == "YES",
				IsPrimaryKey: columnKey == "PRI",
				MaxLength:    intPtrFromNull(maxLen),
			}
			if col.IsPrimaryKey {
				table.PrimaryKeys = append(table.PrimaryKeys, colName)
			}
			table.Columns = append(table.Columns, col)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read columns of %q: %w", name, err)
		}

		fkRows, err := conn.db.QueryContext(ctx,
			`SELECT column_name, referenced_table_name, referenced_column_name
			 FROM information_schema.key_column_usage
			 WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read foreign keys of %q: %w", name, err)
		}
		for fkRows.Next() {
			var fk models.ForeignKeySchema
			if err := fkRows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
				fkRows.Close()
				return nil, fmt.Errorf("failed to scan foreign key of %q: %w", name, err)
			}
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}
		fkRows.Close()
		if err := fkRows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read foreign keys of %q: %w", name, err)
		}

		markForeignKeyColumns(&table)
		tables = append(tables, table)
	}
	return tables, nil
}

func introspectPostgres(ctx context.Context, conn *catalogConnection) ([]models.TableSchema, error) {
	names, err := queryStrings(ctx, conn.db,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]models.TableSchema, 0, len(names))
	for _, name := range names {
		table := models.TableSchema{Name: name}

		pkCols, err := queryStrings(ctx, conn.db,
			`SELECT kcu.column_name
			 FROM information_schema.table_constraints tc
			 JOIN information_schema.key_column_usage kcu
			   ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			 WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public' AND tc.table_name = $1`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read primary key of %q: %w", name, err)
		}
		pkSet := make(map[string]struct{}, len(pkCols))
		for _, pk := range pkCols {
			pkSet[pk] = struct{}{}
		}
		table.PrimaryKeys = pkCols

		rows, err := conn.db.QueryContext(ctx,
			`SELECT column_name, data_type, is_nullable, character_maximum_length
			 FROM information_schema.columns
			 WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %q: %w", name, err)
		}
		for rows.Next() {
			var colName, dataType, nullable string
			var maxLen sql.NullInt64
			if err := rows.Scan(&colName, &dataType, &nullable, &maxLen); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan column of %q: %w", name, err)
			}
			_, isPK := pkSet[colName]
			table.Columns = append(table.Columns, models.ColumnSchema{
				Name:         colName,
				DataType:     dataType,
				IsNullable:   nullable == "YES",
				IsPrimaryKey: isPK,
				MaxLength:    intPtrFromNull(maxLen),
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read columns of %q: %w", name, err)
		}

		fkRows, err := conn.db.QueryContext(ctx,
			`SELECT kcu.column_name, ccu.table_name, ccu.column_name
			 FROM information_schema.table_constraints AS tc
			 JOIN information_schema.key_column_usage AS kcu
			   ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			 JOIN information_schema.constraint_column_usage AS ccu
			   ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
			 WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public' AND tc.table_name = $1`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read foreign keys of %q: %w", name, err)
		}
		for fkRows.Next() {
			var fk models.ForeignKeySchema
			if err := fkRows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
				fkRows.Close()
				return nil, fmt.Errorf("failed to scan foreign key of %q: %w", name, err)
			}
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}
		fkRows.Close()
		if err := fkRows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read foreign keys of %q: %w", name, err)
		}

		markForeignKeyColumns(&table)
		tables = append(tables, table)
	}
	return tables, nil
}

func introspectSqlServer(ctx context.Context, conn *catalogConnection) ([]models.TableSchema, error) {
	names, err := queryStrings(ctx, conn.db,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]models.TableSchema, 0, len(names))
	for _, name := range names {
		table := models.TableSchema{Name: name}

		pkCols, err := queryStrings(ctx, conn.db,
			`SELECT kcu.COLUMN_NAME
			 FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			 JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			   ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			 WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_NAME = @p1`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read primary key of %q: %w", name, err)
		}
		pkSet := make(map[string]struct{}, len(pkCols))
		for _, pk := range pkCols {
			pkSet[pk] = struct{}{}
		}
		table.PrimaryKeys = pkCols

		rows, err := conn.db.QueryContext(ctx,
			`SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, CHARACTER_MAXIMUM_LENGTH
			 FROM INFORMATION_SCHEMA.COLUMNS
			 WHERE TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %q: %w", name, err)
		}
		for rows.Next() {
			var colName, dataType, nullable string
			var maxLen sql.NullInt64
			if err := rows.Scan(&colName, &dataType, &nullable, &maxLen); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan column of %q: %w", name, err)
			}
			_, isPK := pkSet[colName]
			table.Columns = append(table.Columns, models.ColumnSchema{
				Name:         colName,
				DataType:     dataType,
				IsNullable:   nullable == "YES",
				IsPrimaryKey: isPK,
				MaxLength:    intPtrFromNull(maxLen),
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read columns of %q: %w", name, err)
		}

		fkRows, err := conn.db.QueryContext(ctx,
			`SELECT kcu.COLUMN_NAME, kcu2.TABLE_NAME, kcu2.COLUMN_NAME
			 FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
			 JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			   ON rc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			 JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu2
			   ON rc.UNIQUE_CONSTRAINT_NAME = kcu2.CONSTRAINT_NAME
			  AND kcu.ORDINAL_POSITION = kcu2.ORDINAL_POSITION
			 WHERE kcu.TABLE_NAME = @p1`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read foreign keys of %q: %w", name, err)
		}
		for fkRows.Next() {
			var fk models.ForeignKeySchema
			if err := fkRows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
				fkRows.Close()
				return nil, fmt.Errorf("failed to scan foreign key of %q: %w", name, err)
			}
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}
		fkRows.Close()
		if err := fkRows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read foreign keys of %q: %w", name, err)
		}

		markForeignKeyColumns(&table)
		tables = append(tables, table)
	}
	return tables, nil
}
