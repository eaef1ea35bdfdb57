package api

import (
	"context"
	"net/http"
	"time"

	service "github.com/okian/vsrank/internal/app"
	"github.com/okian/vsrank/internal/domain/model"
)

// MatchDependencies defines the match operations the handlers need.
type MatchDependencies interface {
	SubmitMatch(ctx context.Context, req service.MatchRequest) (string, error)
	Match(ctx context.Context, id string) (service.Match, error)
}

// MatchHandler handles match requests.
type MatchHandler struct {
	deps MatchDependencies
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(deps MatchDependencies) *MatchHandler {
	return &MatchHandler{deps: deps}
}

type matchRequest struct {
	Mode     string       `json:"mode"`
	TaskID   int64        `json:"task_id"`
	LengthMS int64        `json:"length_ms"`
	Teams    []model.Team `json:"teams"`
}

type matchAccepted struct {
	MatchID string `json:"match_id"`
}

type matchResponse struct {
	service.Match
	LengthMS   int64 `json:"length_ms"`
	DeadlineMS int64 `json:"deadline_ms"`
}

// HandlePostMatch handles POST /matches. A missing length_ms is looked up
// from the beatmap.
func (h *MatchHandler) HandlePostMatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_match"
	var req matchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if req.TaskID <= 0 {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}

	id, err := h.deps.SubmitMatch(r.Context(), service.MatchRequest{
		Mode:   mode,
		TaskID: req.TaskID,
		Length: time.Duration(req.LengthMS) * time.Millisecond,
		Teams:  req.Teams,
	})
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, matchAccepted{MatchID: id})
}

// HandleGetMatch handles GET /matches/{id}.
func (h *MatchHandler) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.Match(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchResponse{
		Match:      m,
		LengthMS:   m.Length.Milliseconds(),
		DeadlineMS: m.Deadline.Milliseconds(),
	})
}
