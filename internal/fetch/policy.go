// Package fetch retrieves pages for extraction. It carries two fetchers, a
// fast static one (plain HTTP) and a full-settle browser one (rendered,
// stealth profile), plus the policy table deciding which a domain gets.
package fetch

import (
	"net/url"
	"strings"
	"time"
)

// WaitMode says how long a fetch waits before reading the page.
type WaitMode string

const (
	// WaitDOMReady reads the page once the DOM is parsed.
	WaitDOMReady WaitMode = "domready"
	// WaitNetworkIdle reads the page once network activity settles.
	WaitNetworkIdle WaitMode = "networkidle"
)

// Policy describes how to fetch pages from one domain.
type Policy struct {
	Name        string
	Wait        WaitMode
	SettleDelay time.Duration // extra delay after the wait condition
	Stealth     bool          // anti-detection rendering profile
	Render      bool          // use the browser fetcher instead of static
}

// FastPolicy is the default for unknown domains: static fetch, DOM-ready
// wait, short settle.
func FastPolicy() Policy {
	return Policy{
		Name:        "fast",
		Wait:        WaitDOMReady,
		SettleDelay: 500 * time.Millisecond,
	}
}

// FullSettlePolicy is for JS-heavy domains: rendered fetch, network-idle
// wait, long settle, stealth on.
func FullSettlePolicy() Policy {
	return Policy{
		Name:        "full-settle",
		Wait:        WaitNetworkIdle,
		SettleDelay: 1500 * time.Millisecond,
		Stealth:     true,
		Render:      true,
	}
}

// Escalate upgrades a policy to the rendering profile after a protection
// signal. Already-rendered policies are returned unchanged.
func (p Policy) Escalate() Policy {
	if p.Render {
		return p
	}
	return FullSettlePolicy()
}

// jsHeavyDomains lists sites known to render their content client-side:
// e-commerce storefronts with dynamic pricing and lazy-loaded listings, and
// feed-driven social sites.
var jsHeavyDomains = []string{
	"nike.com", "adidas.com", "abercrombie.com", "zara.com", "hm.com",
	"amazon.com", "urbanoutfitters.com", "wayfair.com", "etsy.com",
	"target.com", "walmart.com", "bestbuy.com", "macys.com",
	"twitter.com", "x.com", "facebook.com", "instagram.com", "linkedin.com",
}

// PolicyTable resolves a domain to its fetch policy. The table is built
// once and read-only afterwards.
type PolicyTable struct {
	jsHeavy []string
}

// NewPolicyTable builds a table from the built-in JS-heavy list plus any
// extra domains from configuration.
func NewPolicyTable(extra []string) *PolicyTable {
	t := &PolicyTable{jsHeavy: make([]string, 0, len(jsHeavyDomains)+len(extra))}
	t.jsHeavy = append(t.jsHeavy, jsHeavyDomains...)
	for _, d := range extra {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			t.jsHeavy = append(t.jsHeavy, d)
		}
	}
	return t
}

// Resolve returns the policy for a domain. Unknown domains get the fast
// policy.
func (t *PolicyTable) Resolve(domain string) Policy {
	d := strings.ToLower(domain)
	d = strings.TrimPrefix(d, "www.")
	for _, heavy := range t.jsHeavy {
		if d == heavy || strings.HasSuffix(d, "."+heavy) {
			return FullSettlePolicy()
		}
	}
	return FastPolicy()
}

// ResolveURL resolves the policy for a full URL.
func (t *PolicyTable) ResolveURL(rawURL string) Policy {
	u, err := url.Parse(rawURL)
	if err != nil {
		return FastPolicy()
	}
	return t.Resolve(u.Hostname())
}

// Domain extracts the hostname from a URL, empty on parse failure.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
