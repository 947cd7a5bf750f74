package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/adinject/audit"
	"github.com/hazyhaar/adinject/configstore"
	"github.com/hazyhaar/adinject/kit"
	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/rules"
	"github.com/hazyhaar/adinject/targeting"
)

// ErrUnknownFamily is returned by the generic ads endpoint for a fragment
// family it cannot inject.
var ErrUnknownFamily = errors.New("render: unknown fragment family")

// PageRequest is the input of every document pass.
type PageRequest struct {
	HTML      string            `json:"html"`
	Targeting targeting.Context `json:"targeting"`
	// Family selects the fragment family of the generic ads pass:
	// "prefill" (default), "amp" or "fbia".
	Family string `json:"family,omitempty"`
}

// AuditSummary keeps the document body out of the audit trail.
func (r *PageRequest) AuditSummary() any {
	return map[string]any{"url": r.Targeting.URL, "family": r.Family, "html_bytes": len(r.HTML)}
}

// PageResponse carries the mutated document and what happened to it.
type PageResponse struct {
	HTML       string `json:"html"`
	Changed    bool   `json:"changed"`
	Generation string `json:"generation,omitempty"`
	Report     Report `json:"report"`
}

// AuditSummary keeps the document body out of the audit trail.
func (r *PageResponse) AuditSummary() any {
	return map[string]any{
		"changed":     r.Changed,
		"generation":  r.Generation,
		"inserted":    r.Report.Inserted(),
		"all_blocked": r.Report.AllBlocked,
		"errors":      len(r.Report.Errors),
	}
}

// BlockedRequest asks which placements the rules block for a page.
type BlockedRequest struct {
	Targeting targeting.Context `json:"targeting"`
}

// BlockedResponse lists the blocked keys. All is true when the ALL
// sentinel was produced.
type BlockedResponse struct {
	Keys       []string `json:"keys"`
	All        bool     `json:"all"`
	Generation string   `json:"generation,omitempty"`
}

// Service binds the Engine to the live configuration snapshot and exposes
// the passes as transport-neutral endpoints.
type Service struct {
	engine *Engine
	holder *configstore.Holder
	logger *slog.Logger
	audit  *audit.SQLiteLogger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAudit records every endpoint call and config write in l.
func WithAudit(l *audit.SQLiteLogger) ServiceOption {
	return func(s *Service) { s.audit = l }
}

// NewService returns a Service reading configs from holder.
func NewService(engine *Engine, holder *configstore.Holder, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{engine: engine, holder: holder, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine { return s.engine }

// logged records the duration and outcome of an endpoint call.
func (s *Service) logged(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", kit.GetTransport(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id := kit.GetTraceID(ctx); id != "" {
				attrs = append(attrs, "trace_id", id)
			}
			if err != nil {
				s.logger.Warn("render: endpoint failed", append(attrs, "error", err)...)
			} else {
				s.logger.Debug("render: endpoint", attrs...)
			}
			return resp, err
		}
	}
}

func (s *Service) endpoint(name string, ep kit.Endpoint) kit.Endpoint {
	mws := []kit.Middleware{s.logged(name)}
	if s.audit != nil {
		mws = append(mws, audit.Middleware(s.audit, name))
	}
	return kit.Chain(mws...)(ep)
}

// PrefillEndpoint runs Prefill. Request: *PageRequest.
func (s *Service) PrefillEndpoint() kit.Endpoint {
	return s.endpoint("prefill", func(ctx context.Context, req any) (any, error) {
		r := req.(*PageRequest)
		snap := s.holder.Current()
		out, rep, err := s.engine.Prefill(r.HTML, snap.Ads, snap.Prefill, r.Targeting)
		if err != nil {
			return nil, err
		}
		return &PageResponse{HTML: out, Changed: rep.Inserted() > 0, Generation: snap.Generation, Report: rep}, nil
	})
}

// AMPEndpoint parses an AMP page, runs AMP then AffiliateCards over it.
// Request: *PageRequest.
func (s *Service) AMPEndpoint() kit.Endpoint {
	return s.endpoint("amp", func(ctx context.Context, req any) (any, error) {
		r := req.(*PageRequest)
		snap := s.holder.Current()
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(r.HTML))
		if err != nil {
			return nil, fmt.Errorf("render: parse page: %w", err)
		}
		root := doc.Nodes[0]
		rep := s.engine.AMP(root, snap.Ads, snap.AMP, snap.Connatix, r.Targeting)
		cards := s.engine.AffiliateCards(root, s.engine.cfg.AffiliateDomain)
		out, err := renderNode(root)
		if err != nil {
			return nil, err
		}
		return &PageResponse{HTML: out, Changed: rep.Inserted()+cards > 0, Generation: snap.Generation, Report: rep}, nil
	})
}

// AdsEndpoint runs the generic pass with the fragment family named in the
// request. Request: *PageRequest.
func (s *Service) AdsEndpoint() kit.Endpoint {
	return s.endpoint("ads", func(ctx context.Context, req any) (any, error) {
		r := req.(*PageRequest)
		snap := s.holder.Current()
		var fragments placement.Keyed
		sub := Substitute
		switch r.Family {
		case "", string(configstore.FamilyPrefill):
			fragments = snap.Prefill.Keyed
		case string(configstore.FamilyAMP):
			fragments = snap.AMP.Keyed
		case string(configstore.FamilyFbia):
			fragments = snap.Fbia.Keyed
			sub = FbiaSubstitute
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, r.Family)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(r.HTML))
		if err != nil {
			return nil, fmt.Errorf("render: parse page: %w", err)
		}
		root := doc.Nodes[0]
		rep := s.engine.Ads(root, snap.Ads, fragments, r.Targeting, sub)
		out, err := renderNode(root)
		if err != nil {
			return nil, err
		}
		return &PageResponse{HTML: out, Changed: rep.Inserted() > 0, Generation: snap.Generation, Report: rep}, nil
	})
}

// FbiaEndpoint runs Fbia. An empty HTML in the response means the article
// must be served without ads. Request: *PageRequest.
func (s *Service) FbiaEndpoint() kit.Endpoint {
	return s.endpoint("fbia", func(ctx context.Context, req any) (any, error) {
		r := req.(*PageRequest)
		snap := s.holder.Current()
		out, rep, err := s.engine.Fbia(r.HTML, snap.Ads, snap.Fbia, r.Targeting)
		if err != nil {
			return nil, err
		}
		return &PageResponse{HTML: out, Changed: out != "", Generation: snap.Generation, Report: rep}, nil
	})
}

// BlockedEndpoint evaluates the blocking rules. Request: *BlockedRequest.
func (s *Service) BlockedEndpoint() kit.Endpoint {
	return s.endpoint("blocked", func(ctx context.Context, req any) (any, error) {
		r := req.(*BlockedRequest)
		snap := s.holder.Current()
		set := rules.BlockedKeys(snap.Ads.AdRules, s.engine.targeting(r.Targeting))
		return &BlockedResponse{Keys: set.Keys(), All: set.All(), Generation: snap.Generation}, nil
	})
}

// ClientSettings is what the page-side ad SDK needs besides the fragments.
type ClientSettings struct {
	PrebidBuildURL  string                   `json:"prebidBuildUrl,omitempty"`
	PrebidModuleURL string                   `json:"prebidModuleUrl,omitempty"`
	RefreshRates    json.RawMessage          `json:"refreshRates,omitempty"`
	Connatix        placement.ConnatixConfig `json:"connatix"`
	Generation      string                   `json:"generation,omitempty"`
}

// ClientSettingsEndpoint reports the prebid build, the refresh rates and
// the video player setting of the live snapshot. The request is ignored.
func (s *Service) ClientSettingsEndpoint() kit.Endpoint {
	return s.endpoint("client_settings", func(ctx context.Context, _ any) (any, error) {
		snap := s.holder.Current()
		fallback := s.engine.cfg.PrebidFallbackURL
		cs := &ClientSettings{
			PrebidBuildURL:  snap.Ads.PrebidBuildURL(fallback),
			PrebidModuleURL: snap.Ads.PrebidModuleURL(fallback),
			Connatix:        snap.Connatix,
			Generation:      snap.Generation,
		}
		if snap.Ads.RefreshRates.Exists() {
			cs.RefreshRates = json.RawMessage(snap.Ads.RefreshRates.Raw)
		}
		return cs, nil
	})
}
