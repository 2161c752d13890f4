package domain

import "errors"

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrValidation      = errors.New("validation failed")
	ErrInvalidHash     = errors.New("invalid hash")
	ErrMissingField    = errors.New("missing required field")
	ErrPolicyDenied    = errors.New("admission policy denied")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyRecorded = errors.New("hash already recorded")
	ErrIntegrity       = errors.New("chain integrity failure")
	ErrMiningTimeout   = errors.New("mining timed out")
)
