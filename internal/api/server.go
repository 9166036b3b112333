// Package api exposes the gate engine over HTTP to the mobile client: gate
// status, verification attempts, emergency bypasses, usage reporting, the
// recitation catalog, and a WebSocket stream for live repetition progress.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zikrgate/zikrgate/internal/dhikr"
	"github.com/zikrgate/zikrgate/internal/gate"
	"github.com/zikrgate/zikrgate/internal/health"
	"github.com/zikrgate/zikrgate/internal/match"
	"github.com/zikrgate/zikrgate/internal/observe"
	"github.com/zikrgate/zikrgate/internal/verify"
)

// Server is the ZikrGate HTTP API server.
type Server struct {
	gatekeeper *gate.Gatekeeper
	identifier *match.Identifier
	metrics    *observe.Metrics
	health     *health.Handler
}

// NewServer creates an API server over the given gatekeeper. identifier
// may be nil to disable the /v1/identify endpoint. checkers feed the
// /readyz readiness probe.
func NewServer(gk *gate.Gatekeeper, identifier *match.Identifier, metrics *observe.Metrics, checkers ...health.Checker) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		gatekeeper: gk,
		identifier: identifier,
		metrics:    metrics,
		health:     health.New(checkers...),
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(observe.Middleware(s.metrics))

	r.Get("/healthz", s.health.Healthz)
	r.Get("/readyz", s.health.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Post("/identify", s.handleIdentify)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/gate", s.handleGateStatus)
			r.Post("/verify", s.handleVerify)
			r.Post("/bypass", s.handleBypass)
			r.Post("/usage", s.handleUsage)
			r.Get("/verify/stream", s.handleVerifyStream)
		})
	})

	return r
}

// requirementJSON is the wire form of a catalog requirement.
type requirementJSON struct {
	ID                  string  `json:"id"`
	DisplayName         string  `json:"display_name"`
	ScriptText          string  `json:"script_text"`
	Transliteration     string  `json:"transliteration"`
	Repetitions         int     `json:"repetitions"`
	AcceptanceThreshold float64 `json:"acceptance_threshold"`
	Category            string  `json:"category"`
}

func toRequirementJSON(req dhikr.Requirement) requirementJSON {
	return requirementJSON{
		ID:                  req.ID,
		DisplayName:         req.DisplayName,
		ScriptText:          req.ScriptText,
		Transliteration:     req.Transliteration,
		Repetitions:         req.Repetitions,
		AcceptanceThreshold: req.AcceptanceThreshold,
		Category:            string(req.Category),
	}
}

// statusJSON is the wire form of a gate status snapshot.
type statusJSON struct {
	UserID                     string          `json:"user_id"`
	CanUnlock                  bool            `json:"can_unlock"`
	MinutesUsedToday           int             `json:"minutes_used_today"`
	DailyLimitMinutes          int             `json:"daily_limit_minutes"`
	UnlocksUsedToday           int             `json:"unlocks_used_today"`
	FreeUnlockLimit            int             `json:"free_unlock_limit"`
	IsPremiumUnlimited         bool            `json:"is_premium_unlimited"`
	EmergencyBypassesRemaining int             `json:"emergency_bypasses_remaining"`
	DhikrDebt                  int             `json:"dhikr_debt"`
	Required                   requirementJSON `json:"required"`
	AppUsage                   map[string]int  `json:"app_usage,omitempty"`
}

func toStatusJSON(st gate.Status) statusJSON {
	return statusJSON{
		UserID:                     st.UserID,
		CanUnlock:                  st.CanUnlock,
		MinutesUsedToday:           st.MinutesUsedToday,
		DailyLimitMinutes:          st.DailyLimitMinutes,
		UnlocksUsedToday:           st.UnlocksUsedToday,
		FreeUnlockLimit:            st.FreeUnlockLimit,
		IsPremiumUnlimited:         st.IsPremiumUnlimited,
		EmergencyBypassesRemaining: st.EmergencyBypassesRemaining,
		DhikrDebt:                  st.DhikrDebt,
		Required:                   toRequirementJSON(st.Required),
		AppUsage:                   st.AppUsage,
	}
}

// verdictJSON is the wire form of a verification verdict.
type verdictJSON struct {
	Outcome  string `json:"outcome"`
	Detected int    `json:"detected,omitempty"`
	Required int    `json:"required,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func toVerdictJSON(v verify.Verdict) verdictJSON {
	return verdictJSON{
		Outcome:  string(v.Outcome),
		Detected: v.Detected,
		Required: v.Required,
		Reason:   string(v.Reason),
	}
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	entries := dhikr.All()
	out := make([]requirementJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toRequirementJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if s.identifier == nil {
		writeError(w, http.StatusNotImplemented, "identification is not enabled")
		return
	}

	var body struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entry, confidence, ok := s.identifier.Identify(body.Transcript)
	if !ok {
		writeError(w, http.StatusNotFound, "no catalog entry matches the transcript")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requirement": toRequirementJSON(entry),
		"confidence":  confidence,
	})
}

func (s *Server) handleGateStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	st, err := s.gatekeeper.Status(r.Context(), userID)
	if err != nil {
		s.writeGateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusJSON(st))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var body struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.gatekeeper.Verify(r.Context(), userID, body.Transcript)
	if err != nil {
		s.writeGateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"verdict": toVerdictJSON(res.Verdict),
		"granted": res.Granted,
		"status":  toStatusJSON(res.Status),
	})
}

func (s *Server) handleBypass(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	granted, st, err := s.gatekeeper.Bypass(r.Context(), userID)
	if err != nil {
		s.writeGateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"granted": granted,
		"status":  toStatusJSON(st),
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var body struct {
		AppID   string `json:"app_id"`
		Minutes int    `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.AppID == "" {
		writeError(w, http.StatusBadRequest, "app_id is required")
		return
	}
	if body.Minutes < 0 {
		writeError(w, http.StatusBadRequest, "minutes must be >= 0")
		return
	}

	st, err := s.gatekeeper.RecordUsage(r.Context(), userID, body.AppID, body.Minutes)
	if err != nil {
		s.writeGateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusJSON(st))
}

// writeGateError maps gate-layer errors onto HTTP responses.
func (s *Server) writeGateError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("gate request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"err", err,
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Warn("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
