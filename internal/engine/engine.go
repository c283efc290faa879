package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/vertextoedge/bybit-data-downloader/internal/domain"
	"go.uber.org/zap"
)

// Config contains engine configuration
type Config struct {
	// Concurrency is the maximum number of downloads in flight at once.
	Concurrency int
}

// DefaultConfig returns default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Concurrency: 5,
	}
}

// FileFetcher downloads a single descriptor to disk.
type FileFetcher interface {
	Fetch(ctx context.Context, desc domain.FileDescriptor) domain.FetchOutcome
}

// Recorder persists per-file outcomes. Implementations must tolerate
// being called from the engine's collector goroutine only.
type Recorder interface {
	Record(outcome domain.FetchOutcome) error
}

// Engine fans descriptors out to a bounded pool of fetch workers and
// folds their outcomes into a single report.
type Engine struct {
	config   *Config
	fetcher  FileFetcher
	recorder Recorder
	logger   *zap.Logger
}

// New creates a new Engine. The recorder is optional.
func New(cfg *Config, fetcher FileFetcher, recorder Recorder, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}

	return &Engine{
		config:   cfg,
		fetcher:  fetcher,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Run downloads every descriptor and blocks until all outcomes are in.
// Per-descriptor failures never abort the batch; the caller inspects the
// report to find out what failed. Run returns an error only when the
// context is cancelled before the batch completes.
func (e *Engine) Run(ctx context.Context, descriptors []domain.FileDescriptor) (*domain.DownloadReport, error) {
	report := &domain.DownloadReport{}
	if len(descriptors) == 0 {
		return report, nil
	}

	workers := e.config.Concurrency
	if workers > len(descriptors) {
		workers = len(descriptors)
	}

	e.logger.Info("starting batch download",
		zap.Int("files", len(descriptors)),
		zap.Int("workers", workers))

	jobs := make(chan domain.FileDescriptor)
	results := make(chan domain.FetchOutcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for desc := range jobs {
				results <- e.fetcher.Fetch(ctx, desc)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, desc := range descriptors {
			select {
			case jobs <- desc:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single collector: the report and the recorder see outcomes from
	// this goroutine only, so no locking is needed on either.
	for outcome := range results {
		report.Add(outcome)

		if outcome.Status == domain.StatusFailed {
			e.logger.Error("download failed",
				zap.String("path", outcome.Descriptor.RelativePath),
				zap.Int("attempts", outcome.Attempts),
				zap.Error(outcome.Err))
		}

		if e.recorder != nil {
			if err := e.recorder.Record(outcome); err != nil {
				e.logger.Warn("failed to record outcome",
					zap.String("path", outcome.Descriptor.RelativePath),
					zap.Error(err))
			}
		}
	}

	e.logger.Info("batch download finished",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))

	if err := ctx.Err(); err != nil && report.Total < len(descriptors) {
		return report, err
	}
	return report, nil
}
