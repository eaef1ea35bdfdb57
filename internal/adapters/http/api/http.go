// Package api declares the HTTP routes of vsrank.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/vsrank/internal/adapters/repository"
	"github.com/okian/vsrank/internal/adapters/scoresource"
	service "github.com/okian/vsrank/internal/app"
	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/internal/domain/rating"
	"github.com/okian/vsrank/internal/domain/types"
)

// Entry mirrors the read shape returned by rating queries.
type Entry = types.Entry

// Dependencies required by HTTP handlers.
type Dependencies interface {
	MatchDependencies
	RatingDependencies
	LeaderboardDependencies
	SimulateDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	matchHandler       *MatchHandler
	ratingHandler      *RatingHandler
	leaderboardHandler *LeaderboardHandler
	simulateHandler    *SimulateHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		matchHandler:       NewMatchHandler(deps),
		ratingHandler:      NewRatingHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		simulateHandler:    NewSimulateHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /matches", MetricsMiddleware(s.matchHandler.HandlePostMatch, "matches"))
	mux.HandleFunc("GET /matches/{id}", MetricsMiddleware(s.matchHandler.HandleGetMatch, "match"))

	mux.HandleFunc("GET /ratings/{mode}/{id}", MetricsMiddleware(s.ratingHandler.HandleGetRating, "rating"))
	mux.HandleFunc("PUT /ratings/{mode}/{id}", MetricsMiddleware(s.ratingHandler.HandleLink, "rating"))
	mux.HandleFunc("DELETE /ratings/{mode}/{id}", MetricsMiddleware(s.ratingHandler.HandleUnlink, "rating"))
	mux.HandleFunc("GET /participants/{id}", MetricsMiddleware(s.ratingHandler.HandleExists, "participant"))

	mux.HandleFunc("GET /leaderboard/{mode}", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))

	mux.HandleFunc("POST /simulate", MetricsMiddleware(s.simulateHandler.HandleSimulate, "simulate"))
	mux.HandleFunc("POST /predict", MetricsMiddleware(s.simulateHandler.HandlePredict, "predict"))
	mux.HandleFunc("POST /scores", MetricsMiddleware(s.simulateHandler.HandleSubmitScore, "scores"))
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

// writeFailure maps err onto a status code and error code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrDuplicateSettlement):
		return http.StatusConflict, "duplicate_settlement"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, service.ErrNoSimulator):
		return http.StatusNotImplemented, "not_simulated"
	case errors.Is(err, service.ErrMatchNotFound),
		errors.Is(err, rating.ErrRatingNotFound),
		errors.Is(err, scoresource.ErrBeatmapNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, rating.ErrShapeMismatch),
		errors.Is(err, rating.ErrTooFewTeams),
		errors.Is(err, model.ErrUnknownMode),
		errors.Is(err, model.ErrNoTeams),
		errors.Is(err, model.ErrEmptyTeam),
		errors.Is(err, model.ErrDuplicateParticipant),
		errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
