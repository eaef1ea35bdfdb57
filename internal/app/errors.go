package service

import "errors"

var (
	ErrNotStarted          = errors.New("service not started")
	ErrInvalidRequest      = errors.New("invalid match request")
	ErrDuplicateSettlement = errors.New("participant already settled this task")
	ErrBackpressure        = errors.New("settlement queue is full")
	ErrMatchNotFound       = errors.New("match not found")
	ErrNoSimulator         = errors.New("score source is not simulated")
)
