package storage

import (
	"fmt"
	"path"
	"time"
)

const auditRoot = "audit"

// BuildAuditFilePath partitions audit files by UTC date and hour of the flush.
func BuildAuditFilePath(flushedAt time.Time, sequence int) (string, error) {
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	ts := flushedAt.UTC()
	return path.Join(
		auditRoot,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("audit-%d-%05d.parquet", ts.UnixMilli(), sequence),
	), nil
}
