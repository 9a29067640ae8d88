package contracts

import "errors"

// Repository sentinel errors. Services translate them into apperr codes.
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("duplicate")
	ErrUnfinishedSessions = errors.New("unfinished sessions exist")
	ErrOpenSessionExists  = errors.New("another session is open")
	ErrWeightsAlreadySet  = errors.New("ensemble weights already set")
)
