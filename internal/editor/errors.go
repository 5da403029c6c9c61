package editor

import "errors"

var (
	ErrNotLoaded       = errors.New("editor is not loaded")
	ErrBusy            = errors.New("another operation is in progress")
	ErrIndexOutOfRange = errors.New("asset index out of range")

	ErrCapacity         = errors.New("asset capacity reached")
	ErrLastAsset        = errors.New("cannot remove the last asset")
	ErrDuplicateSymbol  = errors.New("duplicate symbol")
	ErrEmptySymbol      = errors.New("empty symbol")
	ErrTooManyAssets    = errors.New("too many assets")
	ErrNoAssets         = errors.New("no assets")
	ErrNoActiveAssets   = errors.New("no active assets")
	ErrUnknownTimeframe = errors.New("unknown timeframe")

	ErrOutOfRange   = errors.New("value out of range")
	ErrInvalidValue = errors.New("invalid value")
	ErrUnknownField = errors.New("unknown config field")
)

// ValidationError - локальный отказ до обращения к бэкенду.
// Message готов для показа пользователю, Kind - один из Err* выше.
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func invalid(kind error, message string) *ValidationError {
	return &ValidationError{Kind: kind, Message: message}
}
