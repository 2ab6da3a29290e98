// Package protection classifies fetched responses for bot-protection and
// JS-required signals, so the extractor can escalate a fast static fetch to
// the browser rendering profile.
package protection

import (
	"net/http"
	"regexp"
	"strings"
)

// Signal identifies the kind of protection detected.
type Signal string

const (
	SignalNone         Signal = ""
	SignalCloudflare   Signal = "cloudflare"
	SignalCaptcha      Signal = "captcha"
	SignalAccessDenied Signal = "access_denied"
	SignalRateLimited  Signal = "rate_limited"
	SignalEmptyContent Signal = "empty_content"
	SignalJSRequired   Signal = "javascript_required"
)

// Result is a detection outcome.
type Result struct {
	Detected    bool
	Signal      Signal
	Confidence  int // 0-100
	Description string

	// SuggestRender is true when browser rendering would likely get past
	// the signal. Rate limiting, notably, would not.
	SuggestRender bool
}

// ShouldEscalate reports whether the extractor should retry with the
// rendering profile.
func (r Result) ShouldEscalate() bool {
	return r.Detected && r.SuggestRender
}

// Detector analyzes HTTP responses for protection signals.
type Detector struct {
	// MinContentLength is the smallest body a real content page plausibly
	// has; shorter responses without content markup are flagged.
	MinContentLength int
}

// NewDetector creates a Detector with default settings.
func NewDetector() *Detector {
	return &Detector{MinContentLength: 500}
}

// Detect analyzes a response for protection signals. headers may be nil.
func (d *Detector) Detect(statusCode int, headers http.Header, body []byte) Result {
	if r := checkStatus(statusCode); r.Detected {
		return r
	}
	if r := checkHeaders(headers); r.Detected {
		return r
	}
	return d.checkBody(body)
}

func checkStatus(statusCode int) Result {
	switch statusCode {
	case http.StatusForbidden:
		return Result{
			Detected:      true,
			Signal:        SignalAccessDenied,
			Confidence:    90,
			Description:   "access denied (HTTP 403)",
			SuggestRender: true,
		}
	case http.StatusServiceUnavailable:
		return Result{
			Detected:      true,
			Signal:        SignalCloudflare,
			Confidence:    70,
			Description:   "service unavailable (HTTP 503), possible challenge page",
			SuggestRender: true,
		}
	case http.StatusTooManyRequests:
		return Result{
			Detected:      true,
			Signal:        SignalRateLimited,
			Confidence:    95,
			Description:   "rate limited (HTTP 429)",
			SuggestRender: false,
		}
	}
	return Result{}
}

func checkHeaders(headers http.Header) Result {
	if headers == nil {
		return Result{}
	}
	// The cf-ray header alone only means Cloudflare fronts the site; an
	// actual challenge carries cf-mitigated.
	if headers.Get("cf-ray") != "" && headers.Get("cf-mitigated") == "challenge" {
		return Result{
			Detected:      true,
			Signal:        SignalCloudflare,
			Confidence:    95,
			Description:   "Cloudflare challenge header",
			SuggestRender: true,
		}
	}
	return Result{}
}

var (
	cloudflarePatterns = []string{
		"cf-browser-verification",
		"challenge-platform",
		"cf_chl_opt",
		"_cf_chl",
		"checking your browser",
		"just a moment...",
		"attention required! | cloudflare",
	}

	captchaPatterns = []string{
		"g-recaptcha",
		"grecaptcha",
		"h-captcha",
		"hcaptcha",
		"data-sitekey",
		"captcha-container",
		"cf-turnstile",
	}

	accessDeniedPatterns = []string{
		"access denied",
		"access to this page has been denied",
		"you don't have permission",
		"request blocked",
		"bot detected",
		"automated access",
		"please verify you are human",
		"are you a robot",
	}

	jsRequiredPatterns = []string{
		"enable javascript",
		"javascript is required",
		"requires javascript",
	}

	contentIndicatorRegex = regexp.MustCompile(`<(article|main|section|div[^>]*class[^>]*content)[^>]*>`)

	// Empty SPA root elements mean the real content arrives via JS.
	spaRootPatterns = []*regexp.Regexp{
		regexp.MustCompile(`<div\s+id=["'](?:root|app|__next|__nuxt)["'][^>]*>\s*</div>`),
		regexp.MustCompile(`<app-root[^>]*>\s*</app-root>`),
	}

	scriptRegex     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRegex      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptRegex   = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	htmlTagRegex    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

func (d *Detector) checkBody(body []byte) Result {
	if len(body) == 0 {
		return Result{
			Detected:      true,
			Signal:        SignalEmptyContent,
			Confidence:    80,
			Description:   "empty response body",
			SuggestRender: true,
		}
	}

	content := string(body)
	lower := strings.ToLower(content)

	if match(lower, cloudflarePatterns) {
		return Result{
			Detected:      true,
			Signal:        SignalCloudflare,
			Confidence:    90,
			Description:   "Cloudflare challenge page",
			SuggestRender: true,
		}
	}
	if match(lower, captchaPatterns) {
		return Result{
			Detected:      true,
			Signal:        SignalCaptcha,
			Confidence:    95,
			Description:   "captcha challenge",
			SuggestRender: true,
		}
	}
	if match(lower, accessDeniedPatterns) {
		return Result{
			Detected:      true,
			Signal:        SignalAccessDenied,
			Confidence:    85,
			Description:   "access denied message",
			SuggestRender: true,
		}
	}
	if match(lower, jsRequiredPatterns) {
		return Result{
			Detected:      true,
			Signal:        SignalJSRequired,
			Confidence:    80,
			Description:   "page says it requires JavaScript",
			SuggestRender: true,
		}
	}
	for _, p := range spaRootPatterns {
		if p.MatchString(content) {
			return Result{
				Detected:      true,
				Signal:        SignalJSRequired,
				Confidence:    90,
				Description:   "empty SPA root element, content is JS-rendered",
				SuggestRender: true,
			}
		}
	}

	if r := checkTextRatio(content); r.Detected {
		return r
	}

	if len(body) < d.MinContentLength && !contentIndicatorRegex.MatchString(content) {
		return Result{
			Detected:      true,
			Signal:        SignalEmptyContent,
			Confidence:    60,
			Description:   "response too small to be a content page",
			SuggestRender: true,
		}
	}

	return Result{}
}

// checkTextRatio flags pages whose markup is large but whose visible text
// is tiny, the signature of a JS-rendered shell.
func checkTextRatio(content string) Result {
	cleaned := scriptRegex.ReplaceAllString(content, "")
	cleaned = styleRegex.ReplaceAllString(cleaned, "")
	cleaned = noscriptRegex.ReplaceAllString(cleaned, "")
	visible := htmlTagRegex.ReplaceAllString(cleaned, " ")
	visible = strings.TrimSpace(whitespaceRegex.ReplaceAllString(visible, " "))

	textLen := len(visible)
	htmlLen := len(content)

	if htmlLen > 1000 && float64(textLen)/float64(htmlLen) < 0.02 {
		return Result{
			Detected:      true,
			Signal:        SignalJSRequired,
			Confidence:    70,
			Description:   "very low text-to-markup ratio",
			SuggestRender: true,
		}
	}
	return Result{}
}

func match(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
