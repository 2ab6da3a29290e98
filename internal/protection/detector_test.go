package protection

import (
	"net/http"
	"strings"
	"testing"
)

// realPage pads a body out past the small-response threshold.
func realPage(body string) []byte {
	return []byte("<html><body><article>" + body + strings.Repeat("real content here. ", 40) + "</article></body></html>")
}

func TestDetectStatusCodes(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name       string
		status     int
		wantSignal Signal
		wantRender bool
	}{
		{"forbidden", http.StatusForbidden, SignalAccessDenied, true},
		{"service unavailable", http.StatusServiceUnavailable, SignalCloudflare, true},
		{"rate limited", http.StatusTooManyRequests, SignalRateLimited, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := d.Detect(tt.status, nil, realPage(""))
			if !r.Detected {
				t.Fatal("expected detection")
			}
			if r.Signal != tt.wantSignal {
				t.Errorf("Signal = %q, want %q", r.Signal, tt.wantSignal)
			}
			if r.ShouldEscalate() != tt.wantRender {
				t.Errorf("ShouldEscalate = %v, want %v", r.ShouldEscalate(), tt.wantRender)
			}
		})
	}
}

func TestDetectCloudflareChallengeHeader(t *testing.T) {
	d := NewDetector()

	h := http.Header{}
	h.Set("cf-ray", "8abc123")
	h.Set("cf-mitigated", "challenge")
	r := d.Detect(http.StatusOK, h, realPage(""))
	if !r.Detected || r.Signal != SignalCloudflare {
		t.Errorf("challenge header: got %+v, want cloudflare detection", r)
	}

	// cf-ray alone means the site is fronted by Cloudflare, not blocked.
	h2 := http.Header{}
	h2.Set("cf-ray", "8abc123")
	if r := d.Detect(http.StatusOK, h2, realPage("")); r.Detected {
		t.Errorf("cf-ray without mitigation: got %+v, want no detection", r)
	}
}

func TestDetectBodyPatterns(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name       string
		body       string
		wantSignal Signal
	}{
		{"cloudflare challenge", string(realPage("Just a moment...")), SignalCloudflare},
		{"recaptcha", string(realPage(`<div class="g-recaptcha" data-sitekey="x"></div>`)), SignalCaptcha},
		{"turnstile", string(realPage(`<div class="cf-turnstile"></div>`)), SignalCaptcha},
		{"access denied", string(realPage("Access Denied: please verify you are human")), SignalAccessDenied},
		{"js required", string(realPage("Please enable JavaScript to view this site")), SignalJSRequired},
		{"empty react root", `<html><body><div id="root"></div>` + strings.Repeat("<script>x</script>", 60) + `</body></html>`, SignalJSRequired},
		{"empty body", "", SignalEmptyContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := d.Detect(http.StatusOK, nil, []byte(tt.body))
			if !r.Detected {
				t.Fatal("expected detection")
			}
			if r.Signal != tt.wantSignal {
				t.Errorf("Signal = %q, want %q", r.Signal, tt.wantSignal)
			}
			if !r.SuggestRender {
				t.Error("body-signal detections should suggest rendering")
			}
		})
	}
}

func TestDetectCleanPage(t *testing.T) {
	d := NewDetector()
	if r := d.Detect(http.StatusOK, nil, realPage("Welcome to a perfectly ordinary blog post.")); r.Detected {
		t.Errorf("clean page: got %+v, want no detection", r)
	}
}

func TestDetectLowTextRatio(t *testing.T) {
	d := NewDetector()
	// Lots of markup, almost no visible text.
	body := "<html><body>" + strings.Repeat(`<div class="x"><span></span></div>`, 100) + "hi</body></html>"
	r := d.Detect(http.StatusOK, nil, []byte(body))
	if !r.Detected || r.Signal != SignalJSRequired {
		t.Errorf("low text ratio: got %+v, want javascript_required", r)
	}
}

func TestDetectTinyResponse(t *testing.T) {
	d := NewDetector()
	r := d.Detect(http.StatusOK, nil, []byte("<html><body>tiny</body></html>"))
	if !r.Detected || r.Signal != SignalEmptyContent {
		t.Errorf("tiny response: got %+v, want empty_content", r)
	}
}
