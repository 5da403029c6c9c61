package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected - бэкенд ответил success=false
	ErrRejected = errors.New("rejected by backend")
	// ErrHTTPStatus - бэкенд ответил кодом вне 2xx
	ErrHTTPStatus = errors.New("unexpected http status")
)

// RejectedError - бизнес-отказ бэкенда с его сообщением
type RejectedError struct {
	Op      string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: rejected by backend", e.Op)
	}

	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// HTTPError - ответ с кодом вне 2xx.
// Detail берется из поля detail (формат FastAPI) или из тела ответа.
type HTTPError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}

	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Detail)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrHTTPStatus
}
