package database

import (
	"context"
	"fmt"
	"strings"
)

type Column struct {
	Name     string
	Type     string
	Nullable bool
}

type Table struct {
	Name    string
	Columns []Column
}

var columnQueries = map[string]string{
	DriverMySQL: `SELECT table_name, column_name, column_type, is_nullable
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`,
	DriverPostgres: `SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = current_schema()
ORDER BY table_name, ordinal_position`,
	DriverDuckDB: `SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = current_schema()
ORDER BY table_name, ordinal_position`,
	DriverSQLite: `SELECT m.name, p.name, p.type, CASE WHEN p."notnull" = 1 THEN 'NO' ELSE 'YES' END
FROM sqlite_master AS m
JOIN pragma_table_info(m.name) AS p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`,
}

// Tables lists the user tables of the connected database with their columns
// in declaration order.
func (d *DB) Tables(ctx context.Context) ([]Table, error) {
	statement, ok := columnQueries[d.driver]
	if !ok {
		return nil, fmt.Errorf("schema introspection not supported for driver %q", d.driver)
	}

	rows, err := d.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]Table, 0)
	for rows.Next() {
		var tableName, columnName, columnType, nullable string
		if err := rows.Scan(&tableName, &columnName, &columnType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if len(tables) == 0 || tables[len(tables)-1].Name != tableName {
			tables = append(tables, Table{Name: tableName})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, Column{
			Name:     columnName,
			Type:     strings.ToUpper(columnType),
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return tables, nil
}

// SchemaText describes every table as a CREATE TABLE statement followed by
// a comment block with up to the configured number of sample rows.
// It is read fresh on every call.
func (d *DB) SchemaText(ctx context.Context) (string, error) {
	tables, err := d.Tables(ctx)
	if err != nil {
		return "", err
	}

	blocks := make([]string, 0, len(tables))
	for _, table := range tables {
		block := createTableText(table)
		if d.sampleRows > 0 {
			sample, err := d.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", d.quoteIdent(table.Name), d.sampleRows))
			if err != nil {
				return "", fmt.Errorf("sample rows from %s: %w", table.Name, err)
			}
			block += "\n\n" + sampleText(table.Name, sample)
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func createTableText(table Table) string {
	lines := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		line := "\t" + column.Name + " " + column.Type
		if !column.Nullable {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}
	return "CREATE TABLE " + table.Name + " (\n" + strings.Join(lines, ",\n") + "\n)"
}

func sampleText(tableName string, sample Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "/*\n%d rows from %s table:\n", len(sample.Rows), tableName)
	b.WriteString(strings.Join(sample.Columns, "\t"))
	for _, row := range sample.Rows {
		b.WriteByte('\n')
		for i, value := range row {
			if i > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(formatValue(value))
		}
	}
	b.WriteString("\n*/")
	return b.String()
}

func (d *DB) quoteIdent(value string) string {
	if d.driver == DriverMySQL {
		return "`" + strings.ReplaceAll(value, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
