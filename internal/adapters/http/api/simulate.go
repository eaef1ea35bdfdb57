package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/vsrank/internal/app"
	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/internal/domain/rating"
)

// SimulateDependencies defines the direct rating and score operations.
type SimulateDependencies interface {
	Simulate(ctx context.Context, req service.SimulateRequest) ([][]rating.Rating, error)
	Predict(ctx context.Context, mode model.Mode, teams []model.Team) (service.Prediction, error)
	SubmitScore(ctx context.Context, p model.ParticipantID, mode model.Mode, taskID int64, value float64) error
}

// SimulateHandler handles simulation, prediction and simulated score
// requests.
type SimulateHandler struct {
	deps SimulateDependencies
}

// NewSimulateHandler creates a new simulate handler.
func NewSimulateHandler(deps SimulateDependencies) *SimulateHandler {
	return &SimulateHandler{deps: deps}
}

type simulateRequest struct {
	Mode   string            `json:"mode"`
	Teams  []model.Team      `json:"teams"`
	Scores model.ScoreMatrix `json:"scores,omitempty"`
	DryRun bool              `json:"dry_run"`
}

type simulateResponse struct {
	Mode    model.Mode        `json:"mode"`
	DryRun  bool              `json:"dry_run"`
	Ratings [][]rating.Rating `json:"ratings"`
}

// HandleSimulate handles POST /simulate.
func (h *SimulateHandler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	const op = "api.simulate"
	var req simulateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	out, err := h.deps.Simulate(r.Context(), service.SimulateRequest{
		Mode:   mode,
		Teams:  req.Teams,
		Scores: req.Scores,
		DryRun: req.DryRun,
	})
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, simulateResponse{Mode: mode, DryRun: req.DryRun, Ratings: out})
}

type predictRequest struct {
	Mode  string       `json:"mode"`
	Teams []model.Team `json:"teams"`
}

// HandlePredict handles POST /predict.
func (h *SimulateHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	var req predictRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	p, err := h.deps.Predict(r.Context(), mode, req.Teams)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type scoreRequest struct {
	ParticipantID model.ParticipantID `json:"participant_id"`
	Mode          string              `json:"mode"`
	TaskID        int64               `json:"task_id"`
	Score         float64             `json:"score"`
}

// HandleSubmitScore handles POST /scores, which records a play on the
// simulated score source.
func (h *SimulateHandler) HandleSubmitScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_score"
	var req scoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if req.ParticipantID <= 0 || req.TaskID <= 0 || req.Score < 0 {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("participant_id and task_id must be positive, score non-negative")))
		return
	}
	if err := h.deps.SubmitScore(r.Context(), req.ParticipantID, mode, req.TaskID, req.Score); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
