package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/pagelift/internal/protection"
)

// Page is a fetched page plus fetch metadata.
type Page struct {
	URL         string
	HTML        string
	StatusCode  int
	ContentType string
	FetchedAt   time.Time

	// Fetcher names which fetcher produced the page ("static" or "browser").
	Fetcher string

	// Protection carries the detector verdict for the response.
	Protection protection.Result
}

// Fetcher retrieves one page under a policy.
type Fetcher interface {
	Fetch(ctx context.Context, url string, policy Policy) (*Page, error)
	Close() error
}

// ProtectionError is returned when a fetch got a response but the detector
// classified it as a challenge or block page. The partial page is still
// attached so callers can inspect it.
type ProtectionError struct {
	Signal  protection.Signal
	Message string
	Page    *Page
}

func (e *ProtectionError) Error() string {
	return fmt.Sprintf("bot protection detected (%s): %s", e.Signal, e.Message)
}

// IsProtectionError returns true if the error is a protection detection.
func IsProtectionError(err error) bool {
	var perr *ProtectionError
	return errors.As(err, &perr)
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
