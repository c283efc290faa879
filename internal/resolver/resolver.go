package resolver

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/vertextoedge/bybit-data-downloader/internal/bybit"
	"github.com/vertextoedge/bybit-data-downloader/internal/domain"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// maxWindowDays is the widest date range the list-files endpoint accepts.
const maxWindowDays = 7

// Request describes one resolve operation: which symbol's archives to
// enumerate over which date range.
type Request struct {
	Symbol    string
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Market    string // spot or contract
	Product   string // trade or orderbook
}

// Validate checks the request parameters.
func (r Request) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !bybit.ValidMarket(r.Market) {
		return fmt.Errorf("market must be %q or %q, got %q", bybit.MarketSpot, bybit.MarketContract, r.Market)
	}
	if !bybit.ValidProduct(r.Product) {
		return fmt.Errorf("product must be %q or %q, got %q", bybit.ProductTrade, bybit.ProductOrderbook, r.Product)
	}

	start, err := time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start date %q: use YYYY-MM-DD", r.StartDate)
	}
	end, err := time.Parse(dateLayout, r.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end date %q: use YYYY-MM-DD", r.EndDate)
	}
	if start.After(end) {
		return fmt.Errorf("start date %s is after end date %s", r.StartDate, r.EndDate)
	}
	return nil
}

// FileLister enumerates remote archives, one date window at a time.
type FileLister interface {
	ListFiles(ctx context.Context, p bybit.ListFilesParams) ([]bybit.RemoteFile, error)
}

// Resolver turns a symbol/date-range request into the flat descriptor
// list the download engine consumes.
type Resolver struct {
	api    FileLister
	logger *zap.Logger
}

// New creates a new Resolver.
func New(api FileLister, logger *zap.Logger) *Resolver {
	return &Resolver{api: api, logger: logger}
}

// Resolve enumerates every archive for the request. The date range is
// split into API-sized windows; a window that fails to list is logged
// and skipped so one bad week does not sink the whole range.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]domain.FileDescriptor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	windows := splitDateRange(req.StartDate, req.EndDate)
	r.logger.Debug("resolving file list",
		zap.String("symbol", req.Symbol),
		zap.String("market", req.Market),
		zap.String("product", req.Product),
		zap.Int("windows", len(windows)))

	prefix := path.Join(req.Market, req.Product, req.Symbol)

	var descriptors []domain.FileDescriptor
	for _, w := range windows {
		files, err := r.api.ListFiles(ctx, bybit.ListFilesParams{
			Market:   req.Market,
			Product:  req.Product,
			Symbol:   req.Symbol,
			StartDay: w.start,
			EndDay:   w.end,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Error("failed to list files for window",
				zap.String("start", w.start),
				zap.String("end", w.end),
				zap.Error(err))
			continue
		}

		r.logger.Info("found files",
			zap.String("start", w.start),
			zap.String("end", w.end),
			zap.Int("count", len(files)))

		for _, f := range files {
			descriptors = append(descriptors, domain.FileDescriptor{
				RemoteURL:    f.URL,
				RelativePath: path.Join(prefix, f.Filename),
				ExpectedSize: f.Size,
			})
		}
	}

	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: %s %s/%s %s..%s", domain.ErrNoFiles,
			req.Symbol, req.Market, req.Product, req.StartDate, req.EndDate)
	}

	return descriptors, nil
}

// dateWindow is one inclusive start..end slice of the requested range.
type dateWindow struct {
	start string
	end   string
}

// splitDateRange cuts an inclusive date range into windows no wider than
// the API allows. Both dates must already be validated.
func splitDateRange(startDate, endDate string) []dateWindow {
	start, _ := time.Parse(dateLayout, startDate)
	end, _ := time.Parse(dateLayout, endDate)

	var windows []dateWindow
	for cur := start; !cur.After(end); {
		windowEnd := cur.AddDate(0, 0, maxWindowDays-1)
		if windowEnd.After(end) {
			windowEnd = end
		}
		windows = append(windows, dateWindow{
			start: cur.Format(dateLayout),
			end:   windowEnd.Format(dateLayout),
		})
		cur = windowEnd.AddDate(0, 0, 1)
	}

	return windows
}
