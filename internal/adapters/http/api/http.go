// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	service "github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/app"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ranking"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/types"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
)

// Identity headers set by the upstream identity provider.
const (
	HeaderUserID      = "X-User-ID"
	HeaderUsername    = "X-Username"
	HeaderCountryCode = "X-Country-Code"
)

const maxBodyBytes = 64 << 10

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CompleteStage(ctx context.Context, in service.StageCompletion) (service.StageResult, error)
	MyStats(ctx context.Context, userID int64) (service.CareerSummary, error)
	CareerLeaderboard(ctx context.Context, limit, offset int) ([]types.CareerEntry, error)

	SubmitScore(ctx context.Context, in service.ScoreSubmission) (service.ScoreResult, error)
	Scores(ctx context.Context, q ranking.Query, userID int64, limit, offset int) ([]types.ScoreEntry, error)
	Position(ctx context.Context, q ranking.Query, userID int64) (types.Position, error)
	Summary(ctx context.Context, userID int64, top int) (ranking.Summary, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps   Dependencies
	stats  StatsProvider
	logger logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, stats StatsProvider, opts ...Option) *Server {
	s := &Server{deps: deps, stats: stats}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", metricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.HandleStats, "stats"))

	mux.HandleFunc("POST /career/stages/{stage_id}/complete", MetricsMiddleware(s.HandleCompleteStage, "career_complete"))
	mux.HandleFunc("GET /career/me/stats", MetricsMiddleware(s.HandleMyStats, "career_me_stats"))
	mux.HandleFunc("GET /career/leaderboard", MetricsMiddleware(s.HandleCareerLeaderboard, "career_leaderboard"))

	mux.HandleFunc("POST /scores", MetricsMiddleware(s.HandleSubmitScore, "scores_submit"))
	mux.HandleFunc("GET /scores", MetricsMiddleware(s.HandleScores, "scores_list"))
	mux.HandleFunc("GET /scores/me/position", MetricsMiddleware(s.HandlePosition, "scores_position"))
	mux.HandleFunc("GET /scores/summary", MetricsMiddleware(s.HandleSummary, "scores_summary"))
}

// Handler returns mux wrapped in the server-wide middleware.
func Handler(mux *http.ServeMux) http.Handler {
	return RequestIDMiddleware(mux)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps an engine error to a response. Server-side failures are
// logged with their cause, which the client never sees.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("request_id", r.Header.Get(HeaderRequestID)),
			logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// identity reads the caller from the upstream identity headers.
func identity(r *http.Request) (model.Player, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return model.Player{}, ErrUnauthorized
	}
	return model.Player{
		ID:          id,
		Username:    strings.TrimSpace(r.Header.Get(HeaderUsername)),
		CountryCode: strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderCountryCode))),
	}, nil
}

// intParam reads an optional integer query parameter; absent means 0.
func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, name)
	}
	return n, nil
}

func page(r *http.Request) (int, int, error) {
	limit, err := intParam(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// decode reads a JSON body into v and validates it.
func decode(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", ErrBadRequest)
	}
	return validateRequest(v)
}
