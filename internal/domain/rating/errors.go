package rating

import (
	"errors"

	"github.com/okian/vsrank/internal/domain/model"
)

var (
	ErrRatingNotFound = errors.New("rating not found")
	ErrShapeMismatch  = errors.New("scores do not match teams")
	ErrTooFewTeams    = errors.New("a rated match needs at least two teams")
	ErrPersistence    = errors.New("rating persistence failed")
	ErrUnknownMode    = model.ErrUnknownMode
)
