package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/adinject/audit"
	"github.com/hazyhaar/adinject/configstore"
	"github.com/hazyhaar/adinject/kit"
	"github.com/hazyhaar/adinject/shield"
)

// Routes returns the HTTP API:
//
//	GET  /health
//	POST /render/prefill, /render/amp, /render/ads, /render/fbia
//	POST /rules/blocked
//	GET  /settings/client
//	GET  /config/{family}
//	PUT  /config/{family}
//	GET  /audit?action=&limit=   (when auditing is enabled)
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.engine.cfg.MaxBodyBytes) {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Route("/render", func(r chi.Router) {
		r.Post("/prefill", s.serve(s.PrefillEndpoint(), decodeBody[PageRequest]))
		r.Post("/amp", s.serve(s.AMPEndpoint(), decodeBody[PageRequest]))
		r.Post("/ads", s.serve(s.AdsEndpoint(), decodeBody[PageRequest]))
		r.Post("/fbia", s.serve(s.FbiaEndpoint(), decodeBody[PageRequest]))
	})
	r.Post("/rules/blocked", s.serve(s.BlockedEndpoint(), decodeBody[BlockedRequest]))
	r.Get("/settings/client", s.serve(s.ClientSettingsEndpoint(), noBody))
	r.Get("/config/{family}", s.handleGetConfig)
	r.Put("/config/{family}", s.handlePutConfig)
	if s.audit != nil {
		r.Get("/audit", s.handleAudit)
	}
	return r
}

func decodeBody[T any](r *http.Request) (any, error) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func noBody(*http.Request) (any, error) { return nil, nil }

func (s *Service) serve(ep kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, bodyStatus(err), fmt.Errorf("decode: %w", err))
			return
		}
		ctx := kit.WithTransport(r.Context(), "http")
		resp, err := ep(ctx, req)
		if err != nil {
			shield.GetLogger(ctx).Warn("render: request failed", "error", err)
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.holder.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": snap.Generation,
		"loaded_at":  snap.LoadedAt,
	})
}

func (s *Service) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	family := configstore.Family(chi.URLParam(r, "family"))
	b, err := s.holder.Get(r.Context(), family)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Config-Generation", b.Generation)
	w.WriteHeader(http.StatusOK)
	w.Write(b.Raw)
}

func (s *Service) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	family := configstore.Family(chi.URLParam(r, "family"))
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, bodyStatus(err), err)
		return
	}
	start := time.Now()
	b, err := s.holder.Put(r.Context(), family, raw)
	if s.audit != nil {
		e := &audit.Entry{
			Action:     "config_put",
			TraceID:    kit.GetTraceID(r.Context()),
			Parameters: fmt.Sprintf(`{"family":%q,"bytes":%d}`, family, len(raw)),
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			e.Error = err.Error()
		} else {
			e.Result = fmt.Sprintf(`{"generation":%q}`, b.Generation)
		}
		s.audit.LogAsync(e)
	}
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	shield.GetLogger(r.Context()).Info("render: config stored", "family", family, "generation", b.Generation)
	writeJSON(w, http.StatusOK, b)
}

func (s *Service) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.audit.Recent(r.Context(), r.URL.Query().Get("action"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, configstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, configstore.ErrUnknownFamily),
		errors.Is(err, configstore.ErrInvalidJSON),
		errors.Is(err, ErrUnknownFamily):
		return http.StatusBadRequest
	case errors.Is(err, ErrFbiaDisabled):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
