package dashboard

import (
	"context"
	"errors"
	"fmt"

	"mt5_dashboard/internal/editor"
	"mt5_dashboard/pkg/services/backend"
)

var (
	ErrBotRunning      = errors.New("bot is already running")
	ErrBotNotRunning   = errors.New("bot is not running")
	ErrMT5Disconnected = errors.New("MT5 is not connected")
	ErrActionBusy      = errors.New("another control action is in progress")
)

const genericTransportMessage = "Connection error: the trading bot server is unreachable"

// Describe подбирает для ошибки самое конкретное сообщение для пользователя
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var (
		validation *editor.ValidationError
		rejected   *backend.RejectedError
		httpErr    *backend.HTTPError
	)

	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &rejected):
		if rejected.Message != "" {
			return rejected.Message
		}

		return "The server rejected the operation"
	case errors.As(err, &httpErr):
		if httpErr.Detail != "" {
			return httpErr.Detail
		}

		return fmt.Sprintf("Server responded with HTTP %d", httpErr.StatusCode)
	case errors.Is(err, ErrBotRunning),
		errors.Is(err, ErrBotNotRunning),
		errors.Is(err, ErrMT5Disconnected),
		errors.Is(err, ErrActionBusy),
		errors.Is(err, editor.ErrNotLoaded),
		errors.Is(err, editor.ErrBusy),
		errors.Is(err, editor.ErrIndexOutOfRange):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "The trading bot server did not respond in time"
	default:
		return genericTransportMessage
	}
}
