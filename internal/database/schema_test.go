package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSchemaTextFromSQLite(t *testing.T) {
	db := openMemorySQLite(t,
		`CREATE TABLE users (id INTEGER NOT NULL PRIMARY KEY, name TEXT NOT NULL, email TEXT)`,
		`CREATE TABLE orders (id INTEGER NOT NULL, user_id INTEGER NOT NULL, total REAL)`,
		`INSERT INTO users (id, name, email) VALUES (1, 'alice', 'alice@example.com'), (2, 'bob', NULL), (3, 'carol', 'c@example.com')`,
	)

	got, err := db.SchemaText(context.Background())
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	want := "CREATE TABLE orders (\n" +
		"\tid INTEGER NOT NULL,\n" +
		"\tuser_id INTEGER NOT NULL,\n" +
		"\ttotal REAL\n" +
		")\n\n" +
		"/*\n0 rows from orders table:\n" +
		"id\tuser_id\ttotal\n" +
		"*/\n\n" +
		"CREATE TABLE users (\n" +
		"\tid INTEGER NOT NULL,\n" +
		"\tname TEXT NOT NULL,\n" +
		"\temail TEXT\n" +
		")\n\n" +
		"/*\n2 rows from users table:\n" +
		"id\tname\temail\n" +
		"1\talice\talice@example.com\n" +
		"2\tbob\tNULL\n" +
		"*/"
	if got != want {
		t.Fatalf("SchemaText() =\n%s\nwant\n%s", got, want)
	}
}

func TestSchemaTextWithoutSamples(t *testing.T) {
	sqlDB, mock := newSQLMock(t)
	mock.ExpectQuery(`FROM information_schema\.columns\s+WHERE table_schema = DATABASE\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "column_type", "is_nullable"}).
			AddRow("users", "id", "int", "NO").
			AddRow("users", "name", "varchar(255)", "YES"))

	got, err := New(sqlDB, DriverMySQL, 0).SchemaText(context.Background())
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	want := "CREATE TABLE users (\n\tid INT NOT NULL,\n\tname VARCHAR(255)\n)"
	if got != want {
		t.Fatalf("SchemaText() = %q, want %q", got, want)
	}
	assertSQLMock(t, mock)
}

func TestSchemaTextQuotesMySQLSampleTable(t *testing.T) {
	sqlDB, mock := newSQLMock(t)
	mock.ExpectQuery(`information_schema\.columns`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "column_type", "is_nullable"}).
			AddRow("order", "id", "int", "NO"))
	mock.ExpectQuery("SELECT \\* FROM `order` LIMIT 3").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	got, err := New(sqlDB, DriverMySQL, 3).SchemaText(context.Background())
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	want := "CREATE TABLE order (\n\tid INT NOT NULL\n)\n\n/*\n1 rows from order table:\nid\n7\n*/"
	if got != want {
		t.Fatalf("SchemaText() = %q, want %q", got, want)
	}
	assertSQLMock(t, mock)
}

func TestSchemaTextUnsupportedDriver(t *testing.T) {
	sqlDB, _ := newSQLMock(t)
	if _, err := New(sqlDB, "oracle", 0).SchemaText(context.Background()); err == nil {
		t.Fatal("SchemaText() expected error")
	}
}
