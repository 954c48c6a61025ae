package services

import "errors"

var (
	ErrInsufficientFunds  = errors.New("insufficient credits")
	ErrContentUnavailable = errors.New("no published content for exam type")
	ErrInvalidExamType    = errors.New("invalid exam type")
	ErrSessionNotFound    = errors.New("exam session not found")
	ErrEntryNotFound      = errors.New("ledger entry not found")
	ErrForbidden          = errors.New("session belongs to another user")
	ErrAlreadySubmitted   = errors.New("exam already submitted")
	ErrInvalidState       = errors.New("invalid state for operation")
	ErrAlreadyRefunded    = errors.New("transaction already refunded")
	ErrUnknownPack        = errors.New("unknown credit pack")
	ErrMalformedEvent     = errors.New("malformed payment event")
	ErrExternalService    = errors.New("payment provider unavailable")
)
