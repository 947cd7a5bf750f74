// Package render runs the placement passes over whole documents: prefill
// for ordinary pages, AMP, the generic ads pass, instant articles, AMP
// affiliate cards and the in-content video player. It also exposes those
// passes over HTTP and MCP.
//
// Every pass evaluates the blocking rules first, skips placements that are
// blocked or disabled and never aborts the page because one placement
// failed: the outcome of each placement is recorded in a Report.
package render

import (
	"bytes"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/hazyhaar/adinject/idgen"
	"github.com/hazyhaar/adinject/inject"
	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/rules"
	"github.com/hazyhaar/adinject/targeting"
)

// Skip explains why a placement did not run.
type Skip string

const (
	SkipBlocked         Skip = "blocked"
	SkipNotConfigured   Skip = "not_configured"
	SkipDisabled        Skip = "disabled"
	SkipPrefillDisabled Skip = "prefill_disabled"
	SkipNoHTML          Skip = "no_html"
	SkipNoAnchor        Skip = "no_anchor"
)

// Report is the outcome of one pass.
type Report struct {
	Mode       string            `json:"mode"`
	AllBlocked bool              `json:"all_blocked,omitempty"`
	Blocked    []string          `json:"blocked,omitempty"`
	Placements []inject.Result   `json:"placements,omitempty"`
	Skipped    map[string]Skip   `json:"skipped,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
	StyleBytes int               `json:"style_bytes,omitempty"`
}

func newReport(mode string) Report {
	return Report{Mode: mode}
}

func (r *Report) setBlocked(s rules.Set) {
	r.Blocked = s.Keys()
	r.AllBlocked = s.All()
}

func (r *Report) skip(key string, why Skip) {
	if r.Skipped == nil {
		r.Skipped = make(map[string]Skip)
	}
	r.Skipped[key] = why
}

func (r *Report) add(res inject.Result) {
	r.Placements = append(r.Placements, res)
	if res.Err != nil {
		if r.Errors == nil {
			r.Errors = make(map[string]string)
		}
		r.Errors[res.Key] = res.Err.Error()
	}
}

// Inserted returns the total number of insertions of the pass.
func (r Report) Inserted() int {
	n := 0
	for _, p := range r.Placements {
		n += p.Inserted
	}
	return n
}

// Result returns the outcome of placement key.
func (r Report) Result(key string) (inject.Result, bool) {
	for _, p := range r.Placements {
		if p.Key == key {
			return p, true
		}
	}
	return inject.Result{}, false
}

// Engine runs render passes. It holds no per-request state and is safe for
// concurrent use; each pass works on its own document.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	amp    inject.FragmentBuilder
	newID  idgen.Generator
}

// NewEngine returns an Engine. A nil cfg uses defaults, a nil logger
// slog.Default().
func NewEngine(cfg *Config, logger *slog.Logger) *Engine {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    c,
		logger: logger,
		amp:    inject.AMPFragment,
		newID:  idgen.Prefixed("adi-", idgen.NanoID(12)),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) targeting(c targeting.Context) targeting.Context {
	if c.SiteDomain == "" {
		c.SiteDomain = e.cfg.SiteDomain
	}
	return c
}

// run executes one placement. A panic inside it is logged and turned into
// the placement's error so the pass continues.
func (e *Engine) run(key string, fn func() inject.Result) (res inject.Result) {
	defer func() {
		if v := recover(); v != nil {
			e.logger.Error("render: placement panic", "key", key, "panic", v)
			res = inject.Result{Key: key, Err: fmt.Errorf("render: placement %s: panic: %v", key, v)}
		}
	}()
	res = fn()
	res.Key = key
	if res.Err != nil {
		e.logger.Warn("render: placement failed", "key", key, "error", res.Err)
	}
	return res
}

// eligible returns the ads config entry of key when the placement may run,
// and records the reason in r otherwise.
func eligible(ads *placement.AdsConfig, blocked rules.Set, key string, r *Report) (placement.Placement, bool) {
	if blocked.Blocks(key) {
		r.skip(key, SkipBlocked)
		return placement.Placement{}, false
	}
	p, ok := ads.Get(key)
	if !ok {
		r.skip(key, SkipNotConfigured)
		return placement.Placement{}, false
	}
	if !p.Enabled {
		r.skip(key, SkipDisabled)
		return placement.Placement{}, false
	}
	return p, true
}

// Substitution rewrites the targeting token of a fragment.
type Substitution func(adType placement.AdType, fragment string, c targeting.Context) string

// FbiaSubstitute fills the instant-articles targeting literal whatever the
// ad type.
func FbiaSubstitute(_ placement.AdType, fragment string, c targeting.Context) string {
	return targeting.ApplyFbiaTargeting(fragment, c)
}

// Substitute applies the targeting substitution matching adType. Unknown
// types return fragment unchanged.
func Substitute(adType placement.AdType, fragment string, c targeting.Context) string {
	switch adType {
	case placement.AdTypeOutstreamVideo:
		return targeting.ApplyConnatixParams(fragment, c)
	case placement.AdTypeDefault:
		return targeting.ApplyAdTargeting(fragment, c)
	}
	return fragment
}

func orEmptyAds(c *placement.AdsConfig) *placement.AdsConfig {
	if c == nil {
		return placement.ParseAdsConfig(nil, nil)
	}
	return c
}

func ensureDoctype(root *html.Node) {
	if root.FirstChild != nil && root.FirstChild.Type == html.DoctypeNode {
		return
	}
	root.InsertBefore(&html.Node{Type: html.DoctypeNode, Data: "html"}, root.FirstChild)
}

func renderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("render: serialize: %w", err)
	}
	return buf.String(), nil
}

func renderChildren(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render: serialize: %w", err)
		}
	}
	return buf.String(), nil
}
