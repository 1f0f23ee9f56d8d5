package model

import "errors"

// Errors returned by engine operations. Callers match them with errors.Is.
var (
	ErrZeroInput                     = errors.New("zero input")
	ErrInvalidOracleData             = errors.New("invalid oracle data")
	ErrStalePrice                    = errors.New("stale oracle price")
	ErrInsufficientBalance           = errors.New("insufficient balance")
	ErrArithmeticOverflow            = errors.New("arithmetic overflow")
	ErrTransferFailed                = errors.New("transfer failed")
	ErrEmptyPot                      = errors.New("empty pot")
	ErrRandomnessProviderUnavailable = errors.New("randomness provider unavailable")
	ErrRequestAlreadyPending         = errors.New("randomness request already pending")
	ErrUnknownRequest                = errors.New("unknown randomness request")
	ErrInvalidRandomness             = errors.New("invalid randomness")
	ErrNothingToWithdraw             = errors.New("nothing to withdraw")
	ErrUnauthorized                  = errors.New("unauthorized")
)
