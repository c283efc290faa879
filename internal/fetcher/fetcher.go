package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vertextoedge/bybit-data-downloader/internal/domain"
	"github.com/vertextoedge/bybit-data-downloader/internal/storage"
	"go.uber.org/zap"
)

// Config contains fetcher configuration
type Config struct {
	// MaxRetries is the number of attempts per file.
	MaxRetries int

	// BaseBackoff is the delay before the second attempt; it doubles on
	// every further attempt.
	BaseBackoff time.Duration

	// RequestTimeout bounds one whole download request.
	RequestTimeout time.Duration
}

// DefaultConfig returns default fetcher configuration
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     3,
		BaseBackoff:    time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

// Fetcher downloads single files to local storage with retry and
// size verification.
type Fetcher struct {
	config *Config
	client *http.Client
	fs     *storage.Manager
	logger *zap.Logger
}

// New creates a new Fetcher. A nil client gets its own http.Client with
// the configured request timeout; a stalled download then cannot hold
// up a sibling beyond its own timeout.
func New(cfg *Config, client *http.Client, fs *storage.Manager, logger *zap.Logger) *Fetcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Fetcher{
		config: cfg,
		client: client,
		fs:     fs,
		logger: logger,
	}
}

// Fetch downloads one descriptor to disk. All failures are folded into
// the returned outcome; Fetch never panics and never returns an error
// out of band.
func (f *Fetcher) Fetch(ctx context.Context, desc domain.FileDescriptor) domain.FetchOutcome {
	outcome := domain.FetchOutcome{Descriptor: desc}

	if err := desc.Validate(); err != nil {
		outcome.Status = domain.StatusFailed
		outcome.Err = err
		return outcome
	}

	targetPath := f.fs.TargetPath(desc.RelativePath)

	// Skip files already downloaded in full. Makes re-running a range
	// idempotent and cheap.
	if desc.ExpectedSize > 0 {
		if size, err := f.fs.FileSize(targetPath); err == nil && size == desc.ExpectedSize {
			f.logger.Debug("file already complete, skipping",
				zap.String("path", desc.RelativePath),
				zap.Int64("size", size))
			outcome.Status = domain.StatusSkipped
			return outcome
		}
	}

	if err := f.fs.EnsureDir(targetPath); err != nil {
		outcome.Status = domain.StatusFailed
		outcome.Err = &domain.FilesystemError{Op: "mkdir", Path: targetPath, Err: err}
		return outcome
	}

	var lastErr error
	for attempt := 0; attempt < f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.config.BaseBackoff << (attempt - 1)
			f.logger.Debug("retrying download",
				zap.String("path", desc.RelativePath),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				outcome.Status = domain.StatusFailed
				outcome.Attempts = attempt
				outcome.Err = ctx.Err()
				return outcome
			}
		}

		written, err := f.attempt(ctx, desc)
		outcome.Attempts = attempt + 1
		if err == nil {
			f.logger.Info("downloaded",
				zap.String("path", desc.RelativePath),
				zap.Int64("bytes", written),
				zap.Int("attempts", outcome.Attempts))
			outcome.Status = domain.StatusDownloaded
			outcome.BytesWritten = written
			return outcome
		}

		lastErr = err
		f.logger.Warn("download attempt failed",
			zap.String("path", desc.RelativePath),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if !domain.IsRetryable(err) {
			break
		}
	}

	outcome.Status = domain.StatusFailed
	outcome.Err = lastErr
	return outcome
}

// attempt performs one download attempt. On any failure the partial file
// is already gone when attempt returns.
func (f *Fetcher) attempt(ctx context.Context, desc domain.FileDescriptor) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.RemoteURL, nil)
	if err != nil {
		return 0, &domain.TransportError{Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &domain.HTTPStatusError{StatusCode: resp.StatusCode, URL: desc.RemoteURL}
	}

	tempPath, written, err := f.fs.WriteFile(desc.RelativePath, resp.Body)
	if err != nil {
		// WriteFile has already cleaned up its temp file. Filesystem
		// errors keep their type; a broken response stream retries as a
		// transport error.
		var fsErr *domain.FilesystemError
		if errors.As(err, &fsErr) {
			return 0, err
		}
		return 0, &domain.TransportError{Err: err}
	}

	if desc.ExpectedSize > 0 && written != desc.ExpectedSize {
		f.fs.DeleteTempFile(tempPath)
		return 0, fmt.Errorf("%w: expected %d bytes, got %d", domain.ErrSizeMismatch, desc.ExpectedSize, written)
	}

	if _, err := f.fs.Promote(tempPath); err != nil {
		f.fs.DeleteTempFile(tempPath)
		return 0, err
	}

	return written, nil
}
