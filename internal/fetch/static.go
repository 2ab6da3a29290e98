package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/pagelift/internal/protection"
)

// StaticFetcher retrieves pages with a plain HTTP client (no JS execution)
// and runs every response through the protection detector. A detected,
// render-bypassable signal comes back as a ProtectionError so the caller
// can escalate to the browser fetcher.
type StaticFetcher struct {
	detector *protection.Detector
	timeout  time.Duration
	logger   *slog.Logger
}

// NewStaticFetcher creates a StaticFetcher.
func NewStaticFetcher(timeout time.Duration, logger *slog.Logger) *StaticFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StaticFetcher{
		detector: protection.NewDetector(),
		timeout:  timeout,
		logger:   logger,
	}
}

// Fetch retrieves the page. The policy's settle delay does not apply to
// static fetches; there is nothing to settle without a JS runtime.
func (f *StaticFetcher) Fetch(ctx context.Context, url string, _ Policy) (*Page, error) {
	var page *Page

	c := colly.NewCollector(
		colly.UserAgent(defaultUserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(f.timeout)
	c.Context = ctx

	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:         r.Request.URL.String(),
			HTML:        string(r.Body),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			FetchedAt:   time.Now(),
			Fetcher:     "static",
		}
	})

	if err := c.Visit(url); err != nil {
		return nil, err
	}
	if page == nil {
		return nil, &ProtectionError{
			Signal:  protection.SignalEmptyContent,
			Message: "no response received",
		}
	}

	detection := f.detector.Detect(page.StatusCode, nil, []byte(page.HTML))
	page.Protection = detection
	if detection.ShouldEscalate() {
		f.logger.InfoContext(ctx, "bot protection detected on static fetch",
			"url", url,
			"signal", detection.Signal,
			"confidence", detection.Confidence,
		)
		return page, &ProtectionError{
			Signal:  detection.Signal,
			Message: detection.Description,
			Page:    page,
		}
	}

	return page, nil
}

// Close releases resources. For StaticFetcher this is a no-op.
func (f *StaticFetcher) Close() error { return nil }
