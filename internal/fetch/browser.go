package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pagelift/internal/protection"
)

// ErrPoolClosed is returned when fetching through a closed BrowserFetcher.
var ErrPoolClosed = errors.New("browser pool is closed")

// BrowserConfig configures the BrowserFetcher.
type BrowserConfig struct {
	ChromePath string        // optional custom binary
	PoolSize   int           // max concurrent browser instances
	MaxAge     time.Duration // recycle browsers older than this
	Logger     *slog.Logger
}

// BrowserFetcher renders pages in headless Chromium, reusing a small pool
// of browser instances across requests.
type BrowserFetcher struct {
	mu       sync.Mutex
	browsers []*managedBrowser
	waiting  []chan *managedBrowser
	closed   bool

	detector *protection.Detector
	cfg      BrowserConfig
	logger   *slog.Logger
}

type managedBrowser struct {
	id        string
	browser   *rod.Browser
	inUse     bool
	createdAt time.Time
}

// NewBrowserFetcher creates a BrowserFetcher. Browsers launch lazily on
// first use.
func NewBrowserFetcher(cfg BrowserConfig) *BrowserFetcher {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 3
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &BrowserFetcher{
		detector: protection.NewDetector(),
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

// Fetch renders the page per the policy: stealth profile when asked,
// network-idle or load wait, then the settle delay, then a snapshot of the
// rendered HTML. The page is always closed before returning.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string, policy Policy) (*Page, error) {
	mb, err := f.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer f.release(mb)

	page, err := f.newPage(mb.browser, policy)
	if err != nil {
		return nil, err
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx)

	var statusCode int
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type == proto.NetworkResourceTypeDocument {
			statusCode = e.Response.Status
			return true
		}
		return false
	})
	if err := page.Navigate(url); err != nil {
		return nil, err
	}
	wait()

	if err := page.WaitLoad(); err != nil {
		return nil, err
	}
	if policy.Wait == WaitNetworkIdle {
		if err := page.WaitIdle(10 * time.Second); err != nil {
			return nil, err
		}
	}
	if policy.SettleDelay > 0 {
		select {
		case <-time.After(policy.SettleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, err
	}
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	result := &Page{
		URL:         url,
		HTML:        html,
		StatusCode:  statusCode,
		ContentType: "text/html",
		FetchedAt:   time.Now(),
		Fetcher:     "browser",
	}
	result.Protection = f.detector.Detect(statusCode, nil, []byte(html))

	f.logger.DebugContext(ctx, "browser fetch complete",
		"url", url,
		"status", statusCode,
		"html_length", len(html),
		"stealth", policy.Stealth,
	)
	return result, nil
}

func (f *BrowserFetcher) newPage(browser *rod.Browser, policy Policy) (*rod.Page, error) {
	if policy.Stealth {
		return stealth.Page(browser)
	}
	return browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

func (f *BrowserFetcher) acquire(ctx context.Context) (*managedBrowser, error) {
	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()
		return nil, ErrPoolClosed
	}

	for _, b := range f.browsers {
		if !b.inUse && f.healthy(b) {
			b.inUse = true
			f.mu.Unlock()
			return b, nil
		}
	}

	if len(f.browsers) < f.cfg.PoolSize {
		mb, err := f.launch()
		if err != nil {
			f.mu.Unlock()
			return nil, err
		}
		f.browsers = append(f.browsers, mb)
		f.mu.Unlock()
		return mb, nil
	}

	waitChan := make(chan *managedBrowser, 1)
	f.waiting = append(f.waiting, waitChan)
	f.mu.Unlock()

	select {
	case mb, ok := <-waitChan:
		if !ok {
			return nil, ErrPoolClosed
		}
		return mb, nil
	case <-ctx.Done():
		f.mu.Lock()
		for i, ch := range f.waiting {
			if ch == waitChan {
				f.waiting = append(f.waiting[:i], f.waiting[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (f *BrowserFetcher) release(mb *managedBrowser) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.close(mb)
		return
	}

	mb.inUse = false

	if time.Since(mb.createdAt) > f.cfg.MaxAge {
		f.close(mb)
		f.remove(mb)
		return
	}

	if len(f.waiting) > 0 {
		waitChan := f.waiting[0]
		f.waiting = f.waiting[1:]
		mb.inUse = true
		waitChan <- mb
	}
}

// Close shuts down every browser and rejects further fetches.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	for _, mb := range f.browsers {
		f.close(mb)
	}
	f.browsers = nil

	for _, ch := range f.waiting {
		close(ch)
	}
	f.waiting = nil
	return nil
}

func (f *BrowserFetcher) launch() (*managedBrowser, error) {
	l := launcher.New()
	if f.cfg.ChromePath != "" {
		l = l.Bin(f.cfg.ChromePath)
	}
	l = l.
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-infobars").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en")

	u, err := l.Launch()
	if err != nil {
		return nil, err
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, err
	}

	id := ulid.Make().String()
	f.logger.Info("browser launched", "id", id)
	return &managedBrowser{
		id:        id,
		browser:   browser,
		inUse:     true,
		createdAt: time.Now(),
	}, nil
}

func (f *BrowserFetcher) healthy(b *managedBrowser) bool {
	if time.Since(b.createdAt) > f.cfg.MaxAge {
		return false
	}
	defer func() { _ = recover() }()
	_, err := b.browser.Pages()
	return err == nil
}

func (f *BrowserFetcher) close(b *managedBrowser) {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			f.logger.Warn("error closing browser", "id", b.id, "error", err)
		}
	}
}

func (f *BrowserFetcher) remove(b *managedBrowser) {
	for i, mb := range f.browsers {
		if mb == b {
			f.browsers = append(f.browsers[:i], f.browsers[i+1:]...)
			return
		}
	}
}
