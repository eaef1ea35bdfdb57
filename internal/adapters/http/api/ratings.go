package api

import (
	"context"
	"net/http"

	"github.com/okian/vsrank/internal/domain/model"
)

// RatingDependencies defines the per-participant rating operations.
type RatingDependencies interface {
	Rating(ctx context.Context, mode model.Mode, p model.ParticipantID) (Entry, error)
	Link(ctx context.Context, mode model.Mode, p model.ParticipantID) (Entry, error)
	Unlink(ctx context.Context, mode model.Mode, p model.ParticipantID) error
	Exists(p model.ParticipantID) bool
}

// RatingHandler handles rating requests.
type RatingHandler struct {
	deps RatingDependencies
}

// NewRatingHandler creates a new rating handler.
func NewRatingHandler(deps RatingDependencies) *RatingHandler {
	return &RatingHandler{deps: deps}
}

type ratingResponse struct {
	Mode model.Mode `json:"mode"`
	Entry
}

func (h *RatingHandler) target(w http.ResponseWriter, r *http.Request) (model.Mode, model.ParticipantID, bool) {
	mode, err := pathMode(r)
	if err != nil {
		writeFailure(w, err)
		return "", 0, false
	}
	p, err := pathParticipant(r)
	if err != nil {
		writeFailure(w, err)
		return "", 0, false
	}
	return mode, p, true
}

// HandleGetRating handles GET /ratings/{mode}/{id}.
func (h *RatingHandler) HandleGetRating(w http.ResponseWriter, r *http.Request) {
	mode, p, ok := h.target(w, r)
	if !ok {
		return
	}
	e, err := h.deps.Rating(r.Context(), mode, p)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingResponse{Mode: mode, Entry: e})
}

// HandleLink handles PUT /ratings/{mode}/{id}. Linking a rated participant
// returns the existing rating.
func (h *RatingHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	mode, p, ok := h.target(w, r)
	if !ok {
		return
	}
	e, err := h.deps.Link(r.Context(), mode, p)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingResponse{Mode: mode, Entry: e})
}

// HandleUnlink handles DELETE /ratings/{mode}/{id}.
func (h *RatingHandler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	mode, p, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.deps.Unlink(r.Context(), mode, p); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type existsResponse struct {
	ParticipantID model.ParticipantID `json:"participant_id"`
	Exists        bool                `json:"exists"`
}

// HandleExists handles GET /participants/{id}.
func (h *RatingHandler) HandleExists(w http.ResponseWriter, r *http.Request) {
	p, err := pathParticipant(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{ParticipantID: p, Exists: h.deps.Exists(p)})
}
