package model

import "errors"

var (
	ErrUnknownMode          = errors.New("unknown mode")
	ErrNoTeams              = errors.New("match has no teams")
	ErrEmptyTeam            = errors.New("team is empty")
	ErrDuplicateParticipant = errors.New("participant appears more than once")
)
