package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dbchat/dbchat/internal/audit"
	"github.com/dbchat/dbchat/internal/storage"
)

// drainingServer writes an audit record from inside Shutdown, like a chat
// request that finishes while the server drains.
type drainingServer struct {
	archive *audit.Archive
	err     error
}

func (s drainingServer) Shutdown(ctx context.Context) error {
	time.Sleep(10 * time.Millisecond)
	s.archive.Write(ctx, audit.Record{ID: "in-flight", Query: "SELECT 1"})
	return s.err
}

func TestDrainFlushesRecordsFromInFlightRequests(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}}
	archive := &audit.Archive{Store: store, Config: audit.ArchiveConfig{FlushInterval: time.Hour}}

	archiveCtx, stopArchive := context.WithCancel(context.Background())
	defer stopArchive()
	var archiveDone sync.WaitGroup
	archiveDone.Add(1)
	go func() {
		defer archiveDone.Done()
		if err := archive.Run(archiveCtx); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}()

	if err := drain(context.Background(), drainingServer{archive: archive}, stopArchive, &archiveDone); err != nil {
		t.Fatalf("drain() error = %v", err)
	}
	if archive.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", archive.Pending())
	}
	keys := store.keys()
	if len(keys) != 1 {
		t.Fatalf("objects = %v", keys)
	}
	records, err := audit.Load(context.Background(), store, keys[0])
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "in-flight" {
		t.Fatalf("records = %+v", records)
	}
}

func TestDrainStopsArchiveWhenShutdownFails(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}}
	archive := &audit.Archive{Store: store, Config: audit.ArchiveConfig{FlushInterval: time.Hour}}
	archiveCtx, stopArchive := context.WithCancel(context.Background())
	var archiveDone sync.WaitGroup
	archiveDone.Add(1)
	go func() {
		defer archiveDone.Done()
		_ = archive.Run(archiveCtx)
	}()

	shutdownErr := errors.New("deadline exceeded")
	err := drain(context.Background(), drainingServer{archive: archive, err: shutdownErr}, stopArchive, &archiveDone)
	if !errors.Is(err, shutdownErr) {
		t.Fatalf("drain() error = %v", err)
	}
	if archiveCtx.Err() == nil {
		t.Fatal("archive context should be cancelled")
	}
	if len(store.keys()) != 1 {
		t.Fatalf("objects = %v", store.keys())
	}
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	return keys
}
