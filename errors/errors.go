package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrInvalidParticipant  = fmt.Errorf("invalid participant")
	ErrInvalidMessage      = fmt.Errorf("invalid message")
	ErrPersistence         = fmt.Errorf("persistence error")
	ErrNotFound            = fmt.Errorf("not found")
	ErrDeliveryBestEffort  = fmt.Errorf("best effort delivery failed")
	ErrNotificationFailure = fmt.Errorf("notification failure")

	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSlowConsumer     = fmt.Errorf("slow consumer")
	ErrUnauthenticated  = fmt.Errorf("unauthenticated")
	ErrForbidden        = fmt.Errorf("forbidden")
	ErrRateLimited      = fmt.Errorf("rate limited")
	ErrUnknownEvent     = fmt.Errorf("unknown event")
	ErrInvalidRequest   = fmt.Errorf("invalid request")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
)

// Code maps an error to the stable code sent to websocket clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case stderrors.Is(err, ErrInvalidParticipant):
		return "invalid_participant"
	case stderrors.Is(err, ErrPersistence):
		return "persistence_error"
	case stderrors.Is(err, ErrNotFound):
		return "not_found"
	case stderrors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case stderrors.Is(err, ErrForbidden):
		return "forbidden"
	case stderrors.Is(err, ErrRateLimited):
		return "rate_limited"
	case stderrors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case stderrors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}

// HTTPStatus is the HTTP counterpart of Code, used by the REST handlers.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case "invalid_participant", "invalid_message", "unknown_event", "invalid_request":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "unauthenticated":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "rate_limited":
		return http.StatusTooManyRequests
	case "persistence_error":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
