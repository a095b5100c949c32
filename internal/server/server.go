package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/viharnani/smart-home-monitoring/internal/stream"
	"github.com/viharnani/smart-home-monitoring/pkg/forecast"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
	"github.com/viharnani/smart-home-monitoring/pkg/monitor"
)

const requestTimeout = 10 * time.Second

// Options configure optional parts of the server.
type Options struct {
	// Hub serves the live stream on /ws when set.
	Hub *stream.Hub

	// RateLimit is requests per second allowed per client IP. Zero disables
	// limiting.
	RateLimit float64
	Burst     int

	// Now overrides the clock used for usage windows.
	Now func() time.Time
}

// Server exposes the monitor, limits and forecasts over HTTP.
type Server struct {
	monitor *monitor.Monitor
	engine  *forecast.Engine
	hub     *stream.Hub
	limiter *RateLimiter
	now     func() time.Time
	mux     *http.ServeMux
	logger  *slog.Logger
}

// NewServer creates an API server.
func NewServer(m *monitor.Monitor, engine *forecast.Engine, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		monitor: m,
		engine:  engine,
		hub:     opts.Hub,
		now:     opts.Now,
		mux:     http.NewServeMux(),
		logger:  logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.RateLimit > 0 {
		s.limiter = NewRateLimiter(opts.RateLimit, opts.Burst)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("POST /api/v1/readings", s.handleAddReading)
	s.mux.HandleFunc("GET /api/v1/users/{userID}/readings", s.handleReadings)
	s.mux.HandleFunc("GET /api/v1/users/{userID}/readings/aggregate", s.handleAggregate)
	s.mux.HandleFunc("GET /api/v1/users/{userID}/usage/{deviceID}", s.handleUsage)

	s.mux.HandleFunc("GET /api/v1/users/{userID}/alerts", s.handleAlerts)
	s.mux.HandleFunc("POST /api/v1/alerts/{alertID}/read", s.handleMarkRead)

	s.mux.HandleFunc("GET /api/v1/users/{userID}/budget", s.handleGetBudget)
	s.mux.HandleFunc("PUT /api/v1/users/{userID}/budget", s.handleSetBudget)
	s.mux.HandleFunc("GET /api/v1/users/{userID}/thresholds", s.handleThresholds)
	s.mux.HandleFunc("PUT /api/v1/users/{userID}/thresholds/{deviceID}", s.handleSetThreshold)

	if s.engine != nil {
		s.mux.HandleFunc("GET /api/v1/users/{userID}/forecasts", s.handleForecasts)
		s.mux.HandleFunc("POST /api/v1/users/{userID}/forecasts/{deviceID}", s.handleGenerateForecast)
	}
	if s.hub != nil {
		s.mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	return instrument(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readingRequest struct {
	UserID         string     `json:"user_id"`
	DeviceID       string     `json:"device_id"`
	ConsumptionKWh *float64   `json:"consumption_kwh"`
	Voltage        float64    `json:"voltage"`
	Current        float64    `json:"current"`
	Timestamp      *time.Time `json:"timestamp"`
}

type readingResponse struct {
	Reading model.Reading `json:"reading"`
	Alerts  []model.Alert `json:"alerts"`
}

func (s *Server) handleAddReading(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req readingRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ConsumptionKWh == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "consumption_kwh is required"})
		return
	}

	reading := model.Reading{
		UserID:         req.UserID,
		DeviceID:       req.DeviceID,
		ConsumptionKWh: *req.ConsumptionKWh,
		Voltage:        req.Voltage,
		Current:        req.Current,
	}
	if req.Timestamp != nil {
		reading.Timestamp = req.Timestamp.UTC()
	}

	raised, err := s.monitor.Ingest(ctx, &reading)
	if err != nil {
		s.writeError(w, "ingest reading", err)
		return
	}
	if raised == nil {
		raised = []model.Alert{}
	}
	writeJSON(w, http.StatusCreated, readingResponse{Reading: reading, Alerts: raised})
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	start, ok := queryTime(w, r, "start")
	if !ok {
		return
	}
	end, ok := queryTime(w, r, "end")
	if !ok {
		return
	}

	userID, deviceID := r.PathValue("userID"), r.URL.Query().Get("device")
	var readings []model.Reading
	var err error
	if start.IsZero() && end.IsZero() {
		readings, err = s.monitor.Readings(ctx, userID, deviceID, limit)
	} else {
		readings, err = s.monitor.ReadingsBetween(ctx, userID, deviceID, start, end, limit)
	}
	if err != nil {
		s.writeError(w, "list readings", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(readings))
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	interval, err := model.ParseInterval(r.URL.Query().Get("interval"))
	if err != nil {
		s.writeError(w, "aggregate readings", err)
		return
	}

	buckets, err := s.monitor.Aggregate(ctx, r.PathValue("userID"), r.URL.Query().Get("device"), interval, limit)
	if err != nil {
		s.writeError(w, "aggregate readings", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(buckets))
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	usage, err := s.monitor.Usage(ctx, r.PathValue("userID"), r.PathValue("deviceID"), s.now())
	if err != nil {
		s.writeError(w, "compute usage", err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	list, err := s.monitor.Alerts(ctx, r.PathValue("userID"), limit)
	if err != nil {
		s.writeError(w, "list alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.monitor.MarkRead(ctx, r.PathValue("alertID")); err != nil {
		s.writeError(w, "mark alert read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type budgetBody struct {
	UserID    string   `json:"user_id"`
	BudgetKWh *float64 `json:"budget_kwh"`
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID := r.PathValue("userID")
	budget, err := s.monitor.Registry().Budget(ctx, userID)
	if err != nil {
		s.writeError(w, "get budget", err)
		return
	}
	writeJSON(w, http.StatusOK, budgetBody{UserID: userID, BudgetKWh: &budget})
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req budgetBody
	if !s.decode(w, r, &req) {
		return
	}
	if req.BudgetKWh == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "budget_kwh is required"})
		return
	}

	userID := r.PathValue("userID")
	if err := s.monitor.Registry().SetBudget(ctx, userID, *req.BudgetKWh); err != nil {
		s.writeError(w, "set budget", err)
		return
	}
	writeJSON(w, http.StatusOK, budgetBody{UserID: userID, BudgetKWh: req.BudgetKWh})
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	list, err := s.monitor.Registry().Thresholds(ctx, r.PathValue("userID"))
	if err != nil {
		s.writeError(w, "list thresholds", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

type thresholdRequest struct {
	DailyLimit   float64  `json:"daily_limit"`
	WeeklyLimit  *float64 `json:"weekly_limit"`
	MonthlyLimit *float64 `json:"monthly_limit"`
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req thresholdRequest
	if !s.decode(w, r, &req) {
		return
	}

	th := &model.Threshold{
		UserID:       r.PathValue("userID"),
		DeviceID:     r.PathValue("deviceID"),
		DailyLimit:   req.DailyLimit,
		WeeklyLimit:  req.WeeklyLimit,
		MonthlyLimit: req.MonthlyLimit,
	}
	if err := s.monitor.Registry().SetThreshold(ctx, th); err != nil {
		s.writeError(w, "set threshold", err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (s *Server) handleForecasts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	list, err := s.engine.Latest(ctx, r.PathValue("userID"), r.URL.Query().Get("device"), limit)
	if err != nil {
		s.writeError(w, "list forecasts", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleGenerateForecast(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := s.engine.Generate(ctx, r.PathValue("userID"), r.PathValue("deviceID"))
	if err != nil {
		s.writeError(w, "generate forecast", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

// writeError maps domain errors onto status codes. Only validation errors
// echo their message back to the client.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidValue):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	default:
		s.logger.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: name + " must be an RFC 3339 time"})
		return time.Time{}, false
	}
	return t.UTC(), true
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
