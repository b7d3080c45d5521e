package audit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

type parquetRecord struct {
	ID               string `parquet:"id"`
	TraceID          string `parquet:"trace_id"`
	Query            string `parquet:"query"`
	Kind             string `parquet:"kind"`
	OK               bool   `parquet:"ok"`
	Outcome          string `parquet:"outcome"`
	DurationMs       int64  `parquet:"duration_ms"`
	ExecutedAtUnixMs int64  `parquet:"executed_at_unix_ms"`
}

func EncodeRecords(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("records are required")
	}

	rows := make([]parquetRecord, 0, len(records))
	for _, record := range records {
		rows = append(rows, parquetRecord{
			ID:               record.ID,
			TraceID:          record.TraceID,
			Query:            record.Query,
			Kind:             record.Kind,
			OK:               record.OK,
			Outcome:          record.Outcome,
			DurationMs:       record.DurationMs,
			ExecutedAtUnixMs: record.ExecutedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRecord](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeRecords(data []byte) ([]Record, error) {
	reader := parquet.NewGenericReader[parquetRecord](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	rows := make([]parquetRecord, reader.NumRows())
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}

	records := make([]Record, 0, count)
	for _, row := range rows[:count] {
		records = append(records, Record{
			ID:         row.ID,
			TraceID:    row.TraceID,
			Query:      row.Query,
			Kind:       row.Kind,
			OK:         row.OK,
			Outcome:    row.Outcome,
			DurationMs: row.DurationMs,
			ExecutedAt: time.UnixMilli(row.ExecutedAtUnixMs).UTC(),
		})
	}
	return records, nil
}
