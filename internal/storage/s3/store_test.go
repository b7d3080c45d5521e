package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/dbchat/dbchat/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := newStore("dbchat-audit", "prod/", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	info, err := store.Put(context.Background(), "/audit/date=2026-02-19/hour=09/audit-1-00000.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{ContentType: "application/vnd.apache.parquet"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "dbchat-audit" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "prod/audit/date=2026-02-19/hour=09/audit-1-00000.parquet" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
	if fake.lastContentType != "application/vnd.apache.parquet" {
		t.Fatalf("content type = %q", fake.lastContentType)
	}
	if info.Key != fake.lastPutKey || info.ETag != "etag-1" || info.Size != 3 {
		t.Fatalf("info = %+v", info)
	}
}

func TestPutRejectsInvalidKeys(t *testing.T) {
	store, err := newStore("dbchat-audit", "", &fakeClient{})
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	for _, key := range []string{"../secrets.txt", "audit/../../x", "  ", "/"} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected validation error", key)
		}
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	store, err := newStore("dbchat-audit", "", &fakeClient{getErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "audit/missing.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{exists: false}
	store, err := newStore("dbchat-audit", "", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected makeBucket to be called")
	}

	existing := &fakeClient{exists: true}
	store, _ = newStore("dbchat-audit", "", existing)
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if existing.createBucketCalled {
		t.Fatal("makeBucket should not be called for an existing bucket")
	}
}

func TestHealthCheckRequiresExistingBucket(t *testing.T) {
	missing, _ := newStore("dbchat-audit", "", &fakeClient{exists: false})
	if err := missing.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck() expected error for missing bucket")
	}
	present, _ := newStore("dbchat-audit", "", &fakeClient{exists: true})
	if err := present.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestNewStoreValidates(t *testing.T) {
	if _, err := newStore("bucket", "", nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := newStore(" ", "", &fakeClient{}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestEndpointHost(t *testing.T) {
	tests := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{raw: "https://minio.example.com", useSSL: false, wantHost: "minio.example.com", wantSecure: true},
		{raw: "http://localhost:9000", useSSL: false, wantHost: "localhost:9000", wantSecure: false},
		{raw: "localhost:9000", useSSL: true, wantHost: "localhost:9000", wantSecure: true},
	}
	for _, tc := range tests {
		endpoint, secure, err := endpointHost(tc.raw, tc.useSSL)
		if err != nil {
			t.Fatalf("endpointHost(%q) error = %v", tc.raw, err)
		}
		if endpoint != tc.wantHost || secure != tc.wantSecure {
			t.Fatalf("endpointHost(%q) = %q/%v", tc.raw, endpoint, secure)
		}
	}
	for _, raw := range []string{"", "  ", "http://"} {
		if _, _, err := endpointHost(raw, false); err == nil {
			t.Fatalf("endpointHost(%q) expected error", raw)
		}
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	lastContentType    string
	exists             bool
	createBucketCalled bool
	getErr             error
}

func (f *fakeClient) upload(_ context.Context, bucket, key string, body io.Reader, size int64, contentType string) (minio.UploadInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	f.lastContentType = contentType
	_, _ = io.Copy(io.Discard, body)
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) download(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) bucketExists(_ context.Context, _ string) (bool, error) {
	return f.exists, nil
}

func (f *fakeClient) makeBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
