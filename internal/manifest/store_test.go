package manifest

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/vertextoedge/bybit-data-downloader/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func outcome(path string, status domain.FetchStatus, bytes int64, attempts int, err error) domain.FetchOutcome {
	return domain.FetchOutcome{
		Descriptor: domain.FileDescriptor{
			RemoteURL:    "https://cdn.example.com/" + path,
			RelativePath: path,
			ExpectedSize: bytes,
		},
		Status:       status,
		BytesWritten: bytes,
		Attempts:     attempts,
		Err:          err,
	}
}

func TestStore_RecordAndSummary(t *testing.T) {
	store := openTestStore(t)

	outcomes := []domain.FetchOutcome{
		outcome("a.zip", domain.StatusDownloaded, 100, 1, nil),
		outcome("b.zip", domain.StatusDownloaded, 250, 2, nil),
		outcome("c.zip", domain.StatusSkipped, 0, 0, nil),
		outcome("d.zip", domain.StatusFailed, 0, 3, errors.New("unexpected status 404")),
	}
	for _, o := range outcomes {
		if err := store.Record(o); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	summary, err := store.GetSummary()
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}

	if summary.Total != 4 {
		t.Errorf("Total = %d, want 4", summary.Total)
	}
	if summary.Downloaded != 2 {
		t.Errorf("Downloaded = %d, want 2", summary.Downloaded)
	}
	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", summary.Skipped)
	}
	if summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", summary.Failed)
	}
	if summary.TotalBytes != 350 {
		t.Errorf("TotalBytes = %d, want 350", summary.TotalBytes)
	}
}

func TestStore_RecentFailures(t *testing.T) {
	store := openTestStore(t)

	if err := store.Record(outcome("ok.zip", domain.StatusDownloaded, 10, 1, nil)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(outcome("first.zip", domain.StatusFailed, 0, 3, errors.New("timeout"))); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(outcome("second.zip", domain.StatusFailed, 0, 1, errors.New("unexpected status 404"))); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	failures, err := store.RecentFailures(10)
	if err != nil {
		t.Fatalf("RecentFailures() error = %v", err)
	}

	if len(failures) != 2 {
		t.Fatalf("len(failures) = %d, want 2", len(failures))
	}
	// Newest first.
	if failures[0].RelativePath != "second.zip" {
		t.Errorf("failures[0] = %s, want second.zip", failures[0].RelativePath)
	}
	if failures[0].LastError != "unexpected status 404" {
		t.Errorf("LastError = %s, want 'unexpected status 404'", failures[0].LastError)
	}
	if failures[1].Attempts != 3 {
		t.Errorf("failures[1].Attempts = %d, want 3", failures[1].Attempts)
	}
}

func TestStore_EmptySummary(t *testing.T) {
	store := openTestStore(t)

	summary, err := store.GetSummary()
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.Total != 0 || summary.TotalBytes != 0 {
		t.Errorf("summary = %+v, want zero values", summary)
	}
}

func TestStore_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Record(outcome("a.zip", domain.StatusDownloaded, 42, 1, nil)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	summary, err := reopened.GetSummary()
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.Total != 1 || summary.TotalBytes != 42 {
		t.Errorf("summary after reopen = %+v, want 1 entry, 42 bytes", summary)
	}
}
