package model

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrFormat            = errors.New("format error")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrUserRejected marks a write the identity holder declined to sign.
	// It is always reported together with ErrLedgerUnavailable.
	ErrUserRejected = errors.New("user rejected transaction")
)

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsUserRejected(err error) bool { return errors.Is(err, ErrUserRejected) }
