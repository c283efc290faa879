package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vertextoedge/bybit-data-downloader/internal/domain"
	"github.com/vertextoedge/bybit-data-downloader/internal/storage"
	"go.uber.org/zap"
)

func newTestFetcher(t *testing.T) (*Fetcher, *storage.Manager) {
	t.Helper()
	fs, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	cfg := &Config{
		MaxRetries:     3,
		BaseBackoff:    time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
	return New(cfg, nil, fs, zap.NewNop()), fs
}

func TestFetcher_Fetch_Success(t *testing.T) {
	content := "trade data archive"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, content)
	}))
	defer server.Close()

	f, fs := newTestFetcher(t)

	desc := domain.FileDescriptor{
		RemoteURL:    server.URL + "/f.zip",
		RelativePath: "spot/trade/BTCUSDT/f.zip",
		ExpectedSize: int64(len(content)),
	}

	outcome := f.Fetch(context.Background(), desc)
	if outcome.Status != domain.StatusDownloaded {
		t.Fatalf("Status = %v, want downloaded (err=%v)", outcome.Status, outcome.Err)
	}
	if outcome.BytesWritten != int64(len(content)) {
		t.Errorf("BytesWritten = %d, want %d", outcome.BytesWritten, len(content))
	}
	if outcome.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", outcome.Attempts)
	}

	data, err := os.ReadFile(fs.TargetPath(desc.RelativePath))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != content {
		t.Errorf("content = %q, want %q", data, content)
	}
}

func TestFetcher_Fetch_SkipsCompleteFile(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, "abcde")
	}))
	defer server.Close()

	f, _ := newTestFetcher(t)

	desc := domain.FileDescriptor{
		RemoteURL:    server.URL + "/f.zip",
		RelativePath: "f.zip",
		ExpectedSize: 5,
	}

	first := f.Fetch(context.Background(), desc)
	if first.Status != domain.StatusDownloaded {
		t.Fatalf("first fetch: Status = %v, want downloaded", first.Status)
	}

	// Second run with nothing changed: zero network attempts.
	second := f.Fetch(context.Background(), desc)
	if second.Status != domain.StatusSkipped {
		t.Fatalf("second fetch: Status = %v, want skipped", second.Status)
	}
	if second.Attempts != 0 {
		t.Errorf("second fetch: Attempts = %d, want 0", second.Attempts)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestFetcher_Fetch_RetriesThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok data")
	}))
	defer server.Close()

	f, _ := newTestFetcher(t)

	desc := domain.FileDescriptor{
		RemoteURL:    server.URL + "/f.zip",
		RelativePath: "f.zip",
		ExpectedSize: 7,
	}

	outcome := f.Fetch(context.Background(), desc)
	if outcome.Status != domain.StatusDownloaded {
		t.Fatalf("Status = %v, want downloaded (err=%v)", outcome.Status, outcome.Err)
	}
	if outcome.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", outcome.Attempts)
	}
}

func TestFetcher_Fetch_ExhaustsRetries(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f, fs := newTestFetcher(t)

	desc := domain.FileDescriptor{
		RemoteURL:    server.URL + "/f.zip",
		RelativePath: "f.zip",
		ExpectedSize: 10,
	}

	outcome := f.Fetch(context.Background(), desc)
	if outcome.Status != domain.StatusFailed {
		t.Fatalf("Status = %v, want failed", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", outcome.Attempts)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}

	var statusErr *domain.HTTPStatusError
	if !errors.As(outcome.Err, &statusErr) {
		t.Errorf("Err = %v, want HTTPStatusError", outcome.Err)
	}

	// No file of any kind left behind.
	if _, err := os.Stat(fs.TargetPath("f.zip")); !os.IsNotExist(err) {
		t.Error("target file present after failed download")
	}
}

func TestFetcher_Fetch_ClientErrorDoesNotRetry(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t)

	outcome := f.Fetch(context.Background(), domain.FileDescriptor{
		RemoteURL:    server.URL + "/missing.zip",
		RelativePath: "missing.zip",
		ExpectedSize: 10,
	})

	if outcome.Status != domain.StatusFailed {
		t.Fatalf("Status = %v, want failed", outcome.Status)
	}
	if outcome.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 (404 is not retryable)", outcome.Attempts)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestFetcher_Fetch_SizeMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "short") // 5 bytes, 100 expected
	}))
	defer server.Close()

	f, fs := newTestFetcher(t)

	desc := domain.FileDescriptor{
		RemoteURL:    server.URL + "/f.zip",
		RelativePath: "f.zip",
		ExpectedSize: 100,
	}

	outcome := f.Fetch(context.Background(), desc)
	if outcome.Status != domain.StatusFailed {
		t.Fatalf("Status = %v, want failed", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3 (size mismatch retries)", outcome.Attempts)
	}
	if !errors.Is(outcome.Err, domain.ErrSizeMismatch) {
		t.Errorf("Err = %v, want ErrSizeMismatch", outcome.Err)
	}

	// Neither a truncated final file nor a temp file may survive.
	if _, err := os.Stat(fs.TargetPath("f.zip")); !os.IsNotExist(err) {
		t.Error("truncated file left at final path")
	}
	if _, err := os.Stat(fs.TargetPath("f.zip") + ".part"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestFetcher_Fetch_UnknownSizeAcceptedAsIs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "whatever length")
	}))
	defer server.Close()

	f, _ := newTestFetcher(t)

	outcome := f.Fetch(context.Background(), domain.FileDescriptor{
		RemoteURL:    server.URL + "/f.zip",
		RelativePath: "f.zip",
		// ExpectedSize zero: verification skipped.
	})

	if outcome.Status != domain.StatusDownloaded {
		t.Fatalf("Status = %v, want downloaded (err=%v)", outcome.Status, outcome.Err)
	}
	if outcome.BytesWritten != int64(len("whatever length")) {
		t.Errorf("BytesWritten = %d, want %d", outcome.BytesWritten, len("whatever length"))
	}
}

func TestFetcher_Fetch_InvalidDescriptor(t *testing.T) {
	f, _ := newTestFetcher(t)

	outcome := f.Fetch(context.Background(), domain.FileDescriptor{RelativePath: "f.zip"})
	if outcome.Status != domain.StatusFailed {
		t.Fatalf("Status = %v, want failed", outcome.Status)
	}
	if outcome.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 (validation consumes no network attempt)", outcome.Attempts)
	}
	if !errors.Is(outcome.Err, domain.ErrInvalidDescriptor) {
		t.Errorf("Err = %v, want ErrInvalidDescriptor", outcome.Err)
	}
}

func TestFetcher_Fetch_TransportError(t *testing.T) {
	f, _ := newTestFetcher(t)

	// A port nothing listens on.
	outcome := f.Fetch(context.Background(), domain.FileDescriptor{
		RemoteURL:    "http://127.0.0.1:1/f.zip",
		RelativePath: "f.zip",
		ExpectedSize: 10,
	})

	if outcome.Status != domain.StatusFailed {
		t.Fatalf("Status = %v, want failed", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3 (transport errors retry)", outcome.Attempts)
	}
	var transportErr *domain.TransportError
	if !errors.As(outcome.Err, &transportErr) {
		t.Errorf("Err = %v, want TransportError", outcome.Err)
	}
}

func TestFetcher_Fetch_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fs, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	f := New(&Config{
		MaxRetries:     3,
		BaseBackoff:    time.Minute, // long enough that cancellation wins
		RequestTimeout: 5 * time.Second,
	}, nil, fs, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome := f.Fetch(ctx, domain.FileDescriptor{
		RemoteURL:    server.URL + "/f.zip",
		RelativePath: "f.zip",
		ExpectedSize: 10,
	})

	if outcome.Status != domain.StatusFailed {
		t.Fatalf("Status = %v, want failed", outcome.Status)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("fetch took %v, cancellation should cut the backoff short", elapsed)
	}
	if !errors.Is(outcome.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", outcome.Err)
	}
}

func TestFetcher_Fetch_RedownloadsWrongSizeFile(t *testing.T) {
	content := "full archive bytes"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, content)
	}))
	defer server.Close()

	f, fs := newTestFetcher(t)

	// Seed a file with the wrong size at the target path.
	tempPath, _, err := fs.WriteFile("f.zip", strings.NewReader("stale"))
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := fs.Promote(tempPath); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}

	outcome := f.Fetch(context.Background(), domain.FileDescriptor{
		RemoteURL:    server.URL + "/f.zip",
		RelativePath: "f.zip",
		ExpectedSize: int64(len(content)),
	})

	if outcome.Status != domain.StatusDownloaded {
		t.Fatalf("Status = %v, want downloaded (err=%v)", outcome.Status, outcome.Err)
	}

	data, err := os.ReadFile(fs.TargetPath("f.zip"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != content {
		t.Errorf("content = %q, want %q", data, content)
	}
}
