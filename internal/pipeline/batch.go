package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/phishguard/internal/model"
)

// Scanner classifies one request. The coordinator and the remote server
// client implement it.
type Scanner interface {
	Classify(ctx context.Context, req model.ScanRequest) (model.ScanResult, error)
}

// BatchProcessor handles concurrent scanning of multiple URLs.
// Every URL is scanned on its own tab so the per-tab in-flight rule never
// makes two batch entries supersede each other.
type BatchProcessor struct {
	// scanner performs each classification.
	scanner Scanner

	// concurrency is the maximum number of concurrent scans.
	concurrency int

	// firstTab is the tab identifier assigned to the first URL.
	firstTab model.TabID

	// origin is recorded on every request.
	origin model.Origin

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent scans.
// Default is 4 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithFirstTab sets the tab identifier of the first URL; later URLs get
// consecutive identifiers. Default is 1.
func WithFirstTab(tab model.TabID) BatchOption {
	return func(b *BatchProcessor) {
		if tab.Valid() {
			b.firstTab = tab
		}
	}
}

// WithOrigin sets the origin recorded on every request.
// Default is model.OriginUserClick.
func WithOrigin(origin model.Origin) BatchOption {
	return func(b *BatchProcessor) {
		b.origin = origin
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(scanner Scanner, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		scanner:     scanner,
		concurrency: 4,
		firstTab:    1,
		origin:      model.OriginUserClick,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// TabFor returns the tab identifier assigned to the URL at index.
func (bp *BatchProcessor) TabFor(index int) model.TabID {
	return bp.firstTab + model.TabID(index)
}

// scanOne classifies one URL and folds any error into the result.
func (bp *BatchProcessor) scanOne(ctx context.Context, index int, rawURL string) model.ScanResult {
	req := model.NewScanRequest(bp.TabFor(index), rawURL, bp.origin)

	result, err := bp.scanner.Classify(ctx, req)
	if err != nil {
		bp.logger.Warn("scan failed",
			"url", rawURL,
			"tab", req.TabID,
			"error", err,
		)
		if !result.Failed() {
			result = model.NewFailedResult(req, err)
		}
		return result
	}

	bp.logger.Info("scan completed",
		"url", rawURL,
		"tab", req.TabID,
		"phishing", result.IsPhishing,
	)
	return result
}

// ProcessBatch scans multiple URLs concurrently.
// It respects the configured concurrency limit and context cancellation.
//
// Returns one result per URL in input order, including failed scans.
// The error return is only set when the batch was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, urls []string) ([]model.ScanResult, error) {
	bp.logger.Info("starting batch processing",
		"total_urls", len(urls),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Each goroutine writes only its own index.
	results := make([]model.ScanResult, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, rawURL := range urls {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			results[i] = bp.scanOne(ctx, i, rawURL)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_urls", len(urls),
		"elapsed", time.Since(startTime),
	)

	return results, err
}

// ProcessBatchWithCallback scans multiple URLs and calls a callback
// for each completed scan. This is useful for streaming results.
//
// The callback receives the result and the index of the URL in the
// original slice. It is called from the goroutine that completed the scan,
// so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	urls []string,
	callback func(result model.ScanResult, index int),
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, rawURL := range urls {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			callback(bp.scanOne(ctx, i, rawURL), i)
			return nil
		})
	}

	return g.Wait()
}
