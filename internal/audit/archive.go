package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dbchat/dbchat/internal/observability"
	"github.com/dbchat/dbchat/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

type ArchiveConfig struct {
	FlushInterval  time.Duration
	FlushThreshold int
	// MaxPending caps the buffer while the object store is failing. The
	// oldest records are dropped first.
	MaxPending int
}

// Archive buffers records in memory and writes each batch as one Parquet
// object. Write never uploads: reaching the threshold wakes Run, and a
// failed flush puts its records back in front of the buffer.
type Archive struct {
	Store  storage.ObjectStore
	Config ArchiveConfig
	Logger *slog.Logger
	Clock  func() time.Time

	flushMu sync.Mutex

	mu       sync.Mutex
	buffer   []Record
	sequence int
	kick     chan struct{}
}

func (a *Archive) Write(ctx context.Context, record Record) {
	a.mu.Lock()
	a.ensureDefaults()
	a.buffer = append(a.buffer, record)
	dropped := a.trimLocked()
	full := len(a.buffer) >= a.Config.FlushThreshold
	kick := a.kick
	a.mu.Unlock()

	if dropped > 0 {
		a.logDropped(ctx, dropped)
	}
	if full {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

// Flush writes everything buffered so far and returns the object key, or
// "" when there was nothing to write. Records written while the upload is
// in flight stay buffered for the next flush.
func (a *Archive) Flush(ctx context.Context) (string, error) {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	a.ensureDefaults()
	records := a.buffer
	a.buffer = nil
	sequence := a.sequence
	flushedAt := a.Clock()
	a.mu.Unlock()

	if len(records) == 0 {
		return "", nil
	}

	key, err := a.put(ctx, records, flushedAt, sequence)
	observability.ObserveAuditFlush(len(records), err)

	a.mu.Lock()
	if err != nil {
		a.buffer = append(records, a.buffer...)
		dropped := a.trimLocked()
		a.mu.Unlock()
		if dropped > 0 {
			a.logDropped(ctx, dropped)
		}
		return "", err
	}
	a.sequence++
	a.mu.Unlock()
	return key, nil
}

func (a *Archive) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// Run flushes on every tick and whenever Write reports a full buffer,
// until ctx is done. It then flushes once more with a short detached
// deadline, so ctx should outlive every writer.
func (a *Archive) Run(ctx context.Context) error {
	a.mu.Lock()
	a.ensureDefaults()
	interval := a.Config.FlushInterval
	kick := a.kick
	a.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if _, err := a.Flush(shutdownCtx); err != nil {
				return fmt.Errorf("final audit flush: %w", err)
			}
			return nil
		case <-ticker.C:
			if _, err := a.Flush(ctx); err != nil {
				a.logError(ctx, "audit archive flush failed", err)
			}
		case <-kick:
			if _, err := a.Flush(ctx); err != nil {
				a.logError(ctx, "audit archive threshold flush failed", err)
			}
		}
	}
}

// Load reads one archived audit file back.
func Load(ctx context.Context, store storage.ObjectStore, key string) ([]Record, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read audit object %q: %w", key, err)
	}
	return DecodeRecords(data)
}

func (a *Archive) put(ctx context.Context, records []Record, flushedAt time.Time, sequence int) (string, error) {
	data, err := EncodeRecords(records)
	if err != nil {
		return "", err
	}
	key, err := storage.BuildAuditFilePath(flushedAt, sequence)
	if err != nil {
		return "", err
	}
	if _, err := a.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: parquetContentType}); err != nil {
		return "", fmt.Errorf("upload audit file: %w", err)
	}
	if a.Logger != nil {
		a.Logger.InfoContext(ctx, "audit archive flushed", slog.String("object_key", key), slog.Int("records", len(records)))
	}
	return key, nil
}

// trimLocked drops the oldest records beyond MaxPending and returns how
// many were dropped. a.mu must be held.
func (a *Archive) trimLocked() int {
	overflow := len(a.buffer) - a.Config.MaxPending
	if overflow <= 0 {
		return 0
	}
	a.buffer = append([]Record(nil), a.buffer[overflow:]...)
	return overflow
}

func (a *Archive) ensureDefaults() {
	if a.Clock == nil {
		a.Clock = time.Now
	}
	if a.Config.FlushThreshold <= 0 {
		a.Config.FlushThreshold = 500
	}
	if a.Config.FlushInterval <= 0 {
		a.Config.FlushInterval = time.Minute
	}
	if a.Config.MaxPending < a.Config.FlushThreshold {
		a.Config.MaxPending = 20 * a.Config.FlushThreshold
	}
	if a.kick == nil {
		a.kick = make(chan struct{}, 1)
	}
}

func (a *Archive) logDropped(ctx context.Context, dropped int) {
	observability.ObserveAuditDropped(dropped)
	if a.Logger != nil {
		a.Logger.WarnContext(ctx, "audit archive buffer full, dropped oldest records", slog.Int("dropped", dropped))
	}
}

func (a *Archive) logError(ctx context.Context, msg string, err error) {
	if a.Logger != nil {
		a.Logger.ErrorContext(ctx, msg, slog.Any("error", err))
	}
}
