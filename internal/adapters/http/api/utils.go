package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/vsrank/internal/domain/model"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func pathMode(r *http.Request) (model.Mode, error) {
	mode, err := model.ParseMode(r.PathValue("mode"))
	if err != nil {
		return "", err
	}
	return mode, nil
}

func pathParticipant(r *http.Request) (model.ParticipantID, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: participant id must be a positive integer", ErrBadRequest)
	}
	return model.ParticipantID(id), nil
}
