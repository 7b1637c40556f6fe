package session

import "errors"

var (
	ErrSessionAborted  = errors.New("session aborted")
	ErrSessionFinished = errors.New("session finished")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrWrongPhase      = errors.New("operation not allowed in current phase")
	ErrInvalidRounds   = errors.New("invalid round definitions")
	ErrUnknownStimulus = errors.New("unknown stimulus")
)
