// Package api exposes a decision session over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/decision"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/normalize"
	"github.com/sells-group/tariff-cli/internal/policy"
	"github.com/sells-group/tariff-cli/internal/refdata"
)

// EventSource is recorded on structured events posted without a source.
const EventSource = "api"

const maxBodyBytes = 1 << 20

// Options are the per-run defaults a request may override.
type Options struct {
	BaseRoute          string
	PriceUSD           float64
	Destination        string
	ApprovalConfidence float64
	AuditTail          int
	AllowedOrigins     []string
}

// Server serialises access to one decision session.
type Server struct {
	store refdata.Store
	norm  *normalize.Normalizer
	opts  Options

	mu      sync.Mutex
	session *decision.Session
}

// New creates a Server around session.
func New(session *decision.Session, store refdata.Store, norm *normalize.Normalizer, opts Options) *Server {
	if opts.ApprovalConfidence == 0 {
		opts.ApprovalConfidence = decision.DefaultApprovalConfidence
	}
	if opts.Destination == "" {
		opts.Destination = "US"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{session: session, store: store, norm: norm, opts: opts}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Post("/events", s.postEvent)
	r.Post("/events/text", s.postText)
	r.Post("/scenarios/{id}/run", s.runScenario)
	r.Get("/audit", s.audit)
	r.Get("/review", s.review)
	r.Post("/review/{sku}/approve", s.approve)
	return r
}

// SetPolicy swaps the ranker and gate used for later events.
func (s *Server) SetPolicy(ranker decision.Ranker, gate *policy.Gate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.SetPolicy(ranker, gate)
}

// RunResponse is returned by every endpoint that handles an event.
type RunResponse struct {
	Event       model.TariffChangeEvent `json:"event"`
	Confidence  *float64                `json:"confidence,omitempty"`
	Records     []model.DecisionRecord  `json:"records"`
	ReviewQueue []model.Classification  `json:"review_queue"`
	Errors      []string                `json:"errors,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	audit, queue := len(s.session.AuditTrail()), len(s.session.ReviewQueue())
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"audit":        audit,
		"review_queue": queue,
	})
}

func (s *Server) postEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.TariffChangeEvent
	if err := decodeBody(r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev.Source == "" {
		ev.Source = EventSource
	}
	if ev.EffectiveDate == "" {
		ev.EffectiveDate = model.UnknownEffectiveDate
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.run(w, r, ev, nil)
}

type textRequest struct {
	Text   string `json:"text"`
	HSHint string `json:"hs_hint"`
}

type rejectedText struct {
	Error      string         `json:"error"`
	Confidence float64        `json:"confidence"`
	Meta       normalize.Meta `json:"meta"`
}

func (s *Server) postText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	ev, conf, meta := s.norm.Normalize(req.Text, req.HSHint, s.opts.Destination)
	if ev == nil {
		writeJSON(w, http.StatusUnprocessableEntity, rejectedText{
			Error:      "no event could be extracted from text",
			Confidence: conf,
			Meta:       meta,
		})
		return
	}
	s.run(w, r, *ev, &conf)
}

func (s *Server) runScenario(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "scenario id must be an integer")
		return
	}
	ev, err := refdata.ScenarioEvent(s.store, id, s.opts.Destination)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.run(w, r, ev, nil)
}

// run handles ev with the base route and price from the query string, falling
// back to the server defaults.
func (s *Server) run(w http.ResponseWriter, r *http.Request, ev model.TariffChangeEvent, conf *float64) {
	baseRoute := s.opts.BaseRoute
	if v := r.URL.Query().Get("base_route"); v != "" {
		baseRoute = v
	}
	price := s.opts.PriceUSD
	if v := r.URL.Query().Get("price_usd"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || !(p > 0) || math.IsInf(p, 1) {
			writeError(w, http.StatusBadRequest, "price_usd must be a number > 0")
			return
		}
		price = p
	}

	s.mu.Lock()
	records, err := s.session.HandleEvent(r.Context(), ev, baseRoute, price)
	queue := s.session.ReviewQueue()
	s.mu.Unlock()

	if err != nil && r.Context().Err() != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := RunResponse{
		Event:       ev,
		Confidence:  conf,
		Records:     records,
		ReviewQueue: queue,
	}
	if resp.Records == nil {
		resp.Records = []model.DecisionRecord{}
	}
	for _, e := range multierr.Errors(err) {
		resp.Errors = append(resp.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	tail := s.opts.AuditTail
	all := false
	switch v := r.URL.Query().Get("tail"); v {
	case "":
	case "all":
		all = true
	default:
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "tail must be a non-negative integer or \"all\"")
			return
		}
		tail = n
	}

	s.mu.Lock()
	var records []model.DecisionRecord
	if all {
		records = s.session.AuditTrail()
	} else {
		records = s.session.AuditTail(tail)
	}
	s.mu.Unlock()

	if records == nil {
		records = []model.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) review(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	queue := s.session.ReviewQueue()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, queue)
}

type approveRequest struct {
	Confidence *float64 `json:"confidence"`
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	var req approveRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conf := s.opts.ApprovalConfidence
	if req.Confidence != nil {
		conf = *req.Confidence
	}

	s.mu.Lock()
	err := s.session.Approve(sku, conf)
	queue := s.session.ReviewQueue()
	s.mu.Unlock()

	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sku":          sku,
		"confidence":   conf,
		"review_queue": queue,
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
