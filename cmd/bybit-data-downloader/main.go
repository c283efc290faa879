package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"github.com/vertextoedge/bybit-data-downloader/internal/bybit"
	"github.com/vertextoedge/bybit-data-downloader/internal/config"
	"github.com/vertextoedge/bybit-data-downloader/internal/engine"
	"github.com/vertextoedge/bybit-data-downloader/internal/fetcher"
	"github.com/vertextoedge/bybit-data-downloader/internal/logger"
	"github.com/vertextoedge/bybit-data-downloader/internal/manifest"
	"github.com/vertextoedge/bybit-data-downloader/internal/resolver"
	"github.com/vertextoedge/bybit-data-downloader/internal/storage"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "bybit-data-downloader",
		Usage:   "download Bybit historical trade and orderbook archives",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to YAML configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "symbols",
				Usage: "list symbols available for a market/product pair",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "market", Value: bybit.MarketSpot, Usage: "spot or contract"},
					&cli.StringFlag{Name: "product", Value: bybit.ProductTrade, Usage: "trade or orderbook"},
				},
				Action: symbolsAction,
			},
			{
				Name:  "download",
				Usage: "download archives for a symbol over a date range",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbol", Required: true, Usage: "trading pair, e.g. BTCUSDT"},
					&cli.StringFlag{Name: "start", Required: true, Usage: "start date, YYYY-MM-DD"},
					&cli.StringFlag{Name: "end", Required: true, Usage: "end date, YYYY-MM-DD"},
					&cli.StringFlag{Name: "market", Value: bybit.MarketSpot, Usage: "spot or contract"},
					&cli.StringFlag{Name: "product", Value: bybit.ProductTrade, Usage: "trade or orderbook"},
					&cli.StringFlag{Name: "output", Usage: "output directory (overrides config)"},
					&cli.IntFlag{Name: "parallel", Usage: "concurrent downloads (overrides config)"},
				},
				Action: downloadAction,
			},
			{
				Name:   "history",
				Usage:  "summarise the download manifest",
				Action: historyAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config and initializes logging for a command.
func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, logger.GetZapLogger(), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func symbolsAction(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	market := c.String("market")
	product := c.String("product")
	if !bybit.ValidMarket(market) {
		return fmt.Errorf("market must be %q or %q", bybit.MarketSpot, bybit.MarketContract)
	}
	if !bybit.ValidProduct(product) {
		return fmt.Errorf("product must be %q or %q", bybit.ProductTrade, bybit.ProductOrderbook)
	}

	client := bybit.NewClient(cfg.API.BaseURL, cfg.API.GetTimeout())
	client.SetUserAgent(cfg.API.UserAgent)

	symbols, err := client.ListSymbols(ctx, market, product)
	if err != nil {
		return err
	}

	for _, s := range symbols {
		fmt.Println(s)
	}
	return nil
}

func downloadAction(c *cli.Context) error {
	cfg, zapLogger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if out := c.String("output"); out != "" {
		cfg.Downloader.OutputDir = out
	}
	if p := c.Int("parallel"); p > 0 {
		cfg.Downloader.ConcurrentDownloads = p
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	zapLogger.Info("starting bybit-data-downloader",
		zap.String("version", version),
		zap.String("symbol", c.String("symbol")),
		zap.String("output", cfg.Downloader.OutputDir))

	client := bybit.NewClient(cfg.API.BaseURL, cfg.API.GetTimeout())
	client.SetUserAgent(cfg.API.UserAgent)

	fsManager, err := storage.NewManagerWithBufferSize(cfg.Downloader.OutputDir, cfg.Downloader.GetBufferSize())
	if err != nil {
		return err
	}

	var recorder engine.Recorder
	if cfg.Database.Path != "" {
		store, err := manifest.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open manifest: %w", err)
		}
		defer store.Close()
		recorder = store
	}

	fileFetcher := fetcher.New(&fetcher.Config{
		MaxRetries:     cfg.Downloader.MaxRetries,
		BaseBackoff:    cfg.Downloader.GetBaseBackoff(),
		RequestTimeout: cfg.Downloader.GetRequestTimeout(),
	}, nil, fsManager, zapLogger)

	eng, err := engine.New(&engine.Config{
		Concurrency: cfg.Downloader.ConcurrentDownloads,
	}, fileFetcher, recorder, zapLogger)
	if err != nil {
		return err
	}

	res := resolver.New(client, zapLogger)
	descriptors, err := res.Resolve(ctx, resolver.Request{
		Symbol:    c.String("symbol"),
		StartDate: c.String("start"),
		EndDate:   c.String("end"),
		Market:    c.String("market"),
		Product:   c.String("product"),
	})
	if err != nil {
		return err
	}

	report, err := eng.Run(ctx, descriptors)
	if err != nil {
		return err
	}

	fmt.Printf("Downloaded %d/%d files (%d skipped, %d failed)\n",
		report.Succeeded, report.Total, report.Skipped, report.Failed)
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "  failed: %s: %v\n", f.Descriptor.RelativePath, f.Err)
	}

	if report.Failed > 0 {
		return cli.Exit("some downloads failed", 1)
	}
	return nil
}

func historyAction(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Database.Path == "" {
		return fmt.Errorf("no manifest configured: set database.path in the config file")
	}

	store, err := manifest.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer store.Close()

	summary, err := store.GetSummary()
	if err != nil {
		return err
	}

	fmt.Printf("Recorded outcomes: %d (downloaded %d, skipped %d, failed %d, %d bytes)\n",
		summary.Total, summary.Downloaded, summary.Skipped, summary.Failed, summary.TotalBytes)

	failures, err := store.RecentFailures(10)
	if err != nil {
		return err
	}
	for _, f := range failures {
		fmt.Printf("  %s (attempts %d): %s\n", f.RelativePath, f.Attempts, f.LastError)
	}
	return nil
}
