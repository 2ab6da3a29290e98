// Package extract runs the resilient extraction loop: fetch the page under
// its policy, run the primary strategy, fall back to alternative page
// sources on empty output, and retry transport failures with backoff.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jmylchreest/pagelift/internal/fetch"
	"github.com/jmylchreest/pagelift/internal/router"
	"github.com/jmylchreest/pagelift/internal/schema"
)

// Strategy is one extraction pass over a fetched page, producing a
// container-shaped candidate for validation.
type Strategy interface {
	Extract(ctx context.Context, page *fetch.Page, s *schema.Schema, query string) (map[string]any, error)
}

// FallbackResolver mines a fetched page's alternative data sources
// (JSON-LD, meta tags, data attributes) when the primary strategy comes up
// empty. An empty candidate means nothing was found.
type FallbackResolver interface {
	Resolve(ctx context.Context, page *fetch.Page, s *schema.Schema, query string) (map[string]any, error)
}

// Result is a successful extraction.
type Result struct {
	Data         map[string]any  `json:"data"`
	Strategy     router.Strategy `json:"strategy"`
	Attempts     int             `json:"attempts"`
	UsedFallback bool            `json:"used_fallback"`
	Policy       string          `json:"fetch_policy"`
	Fetcher      string          `json:"fetcher"`
}

// Config wires an Extractor.
type Config struct {
	Static   fetch.Fetcher
	Browser  fetch.Fetcher
	Policies *fetch.PolicyTable
	Gate     *fetch.DomainGate
	Fallback FallbackResolver

	MaxAttempts int           // default 3
	BackoffBase time.Duration // default 1s
	Budget      time.Duration // whole attempt loop; default 3m
	Logger      *slog.Logger
}

// Extractor runs the attempt state machine for one URL.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 3 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Extractor{cfg: cfg, logger: cfg.Logger}
}

// Extract fetches the URL and runs the primary strategy, retrying
// transport failures with exponential backoff and jitter. A fetched page
// whose primary extraction is empty gets one fallback pass over the same
// page, never a refetch. Only the final failure surfaces, tagged with the
// attempt count and last error kind.
func (e *Extractor) Extract(ctx context.Context, url string, s *schema.Schema, query string, primary Strategy) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Budget)
	defer cancel()

	policy := e.cfg.Policies.ResolveURL(url)
	domain := fetch.Domain(url)

	var lastErr error
	lastKind := KindTransport
	fallbackSpent := false
	attempts := 0

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		attempts = attempt + 1

		if attempt > 0 {
			delay := e.backoff(attempt)
			e.logger.DebugContext(ctx, "backing off before retry",
				"attempt", attempts, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &Error{Kind: lastKind, Attempts: attempts, Err: ctx.Err()}
			}
		}

		page, err := e.fetchPage(ctx, url, domain, policy)
		if err != nil {
			lastErr = err
			lastKind = KindTransport
			if fetch.IsProtectionError(err) {
				// Next attempt goes through the browser with stealth.
				policy = policy.Escalate()
			}
			e.logger.WarnContext(ctx, "fetch attempt failed",
				"url", url, "attempt", attempts, "error", err)
			continue
		}

		candidate, err := primary.Extract(ctx, page, s, query)
		if err != nil {
			lastErr = err
			lastKind = KindTransport
			e.logger.WarnContext(ctx, "primary extraction attempt failed",
				"url", url, "attempt", attempts, "error", err)
			continue
		}

		if !IsEmptyContainer(candidate, s) {
			return &Result{
				Data:     candidate,
				Attempts: attempts,
				Policy:   policy.Name,
				Fetcher:  page.Fetcher,
			}, nil
		}

		// The page fetched fine but the primary strategy found nothing.
		// One fallback pass over the same page; re-fetching would only
		// reproduce the same content.
		if !fallbackSpent && e.cfg.Fallback != nil {
			fallbackSpent = true
			e.logger.InfoContext(ctx, "primary extraction empty, trying alternative sources", "url", url)
			rec, ferr := e.cfg.Fallback.Resolve(ctx, page, s, query)
			if ferr != nil {
				e.logger.WarnContext(ctx, "alternative source resolution failed", "url", url, "error", ferr)
			} else if !IsEmptyContainer(rec, s) {
				return &Result{
					Data:         rec,
					Attempts:     attempts,
					UsedFallback: true,
					Policy:       policy.Name,
					Fetcher:      page.Fetcher,
				}, nil
			}
		}

		lastErr = fmt.Errorf("no items extracted from %s", url)
		lastKind = KindEmpty
		break
	}

	return nil, &Error{Kind: lastKind, Attempts: attempts, Err: lastErr}
}

// fetchPage fetches under the per-domain gate, picking the fetcher the
// policy asks for.
func (e *Extractor) fetchPage(ctx context.Context, url, domain string, policy fetch.Policy) (*fetch.Page, error) {
	release, err := e.cfg.Gate.Acquire(ctx, domain)
	if err != nil {
		return nil, err
	}
	defer release()

	fetcher := e.cfg.Static
	if policy.Render {
		fetcher = e.cfg.Browser
	}
	return fetcher.Fetch(ctx, url, policy)
}

// backoff computes the delay before retry number attempt (1-based), with
// jitter in [0.5, 1.5) of the exponential value.
func (e *Extractor) backoff(attempt int) time.Duration {
	base := e.cfg.BackoffBase * time.Duration(1<<(attempt-1))
	return time.Duration(float64(base) * (0.5 + rand.Float64()))
}
