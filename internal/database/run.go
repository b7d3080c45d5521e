package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Query runs statement once and collects every returned row.
func (d *DB) Query(ctx context.Context, statement string) (Result, error) {
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, statement)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return Result{Columns: columns, Rows: resultRows, Duration: time.Since(start)}, nil
}

// Run executes statement and renders the rows as text for a prompt.
// Statements that return no columns render as the empty string.
func (d *DB) Run(ctx context.Context, statement string) (string, error) {
	result, err := d.Query(ctx, statement)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

// Text renders a header line followed by one line per row, cells separated by " | ".
func (r Result) Text() string {
	if len(r.Columns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, " | "))
	if len(r.Rows) == 0 {
		b.WriteString("\n(0 rows)")
		return b.String()
	}
	for _, row := range r.Rows {
		b.WriteByte('\n')
		for i, value := range row {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(formatValue(value))
		}
	}
	return b.String()
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format(time.DateOnly)
		}
		return typed.Format(time.DateTime)
	default:
		return fmt.Sprint(typed)
	}
}
