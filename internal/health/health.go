// Package health serves the liveness and readiness endpoints next to /metrics.
//
//   - /healthz always returns 200 while the process can serve HTTP.
//   - /readyz returns 200 only when every registered [Checker] passes.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map holding the outcome of each named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction, so it is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers concurrently, each under a [checkTimeout]
// deadline, and reports 503 if any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var mu sync.Mutex
	checks := make(map[string]string, len(h.checkers))
	failed := false

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failed = true
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if failed {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// ── Checkers ─────────────────────────────────────────────────────────────────

// ProvidersConfigured fails when any of the named provider slots is nil.
func ProvidersConfigured(providers map[string]any) Checker {
	return Checker{
		Name: "providers",
		Check: func(context.Context) error {
			var errs []error
			for name, p := range providers {
				if p == nil {
					errs = append(errs, fmt.Errorf("%s provider not configured", name))
				}
			}
			return errors.Join(errs...)
		},
	}
}

// KeySource reports whether an API key has been selected.
type KeySource interface {
	HasSelectedKey(ctx context.Context) (bool, error)
}

// KeySelected fails until an API key is available.
func KeySelected(src KeySource) Checker {
	return Checker{
		Name: "api_key",
		Check: func(ctx context.Context) error {
			ok, err := src.HasSelectedKey(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no API key selected")
			}
			return nil
		},
	}
}

// SessionReporter exposes the last error of a live session.
type SessionReporter interface {
	LastError() error
}

// LiveSession fails while the most recent live session ended with an error.
// A clean stop or a fresh start clears it.
func LiveSession(s SessionReporter) Checker {
	return Checker{
		Name: "live_session",
		Check: func(context.Context) error {
			if err := s.LastError(); err != nil {
				return fmt.Errorf("last session failed: %w", err)
			}
			return nil
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
