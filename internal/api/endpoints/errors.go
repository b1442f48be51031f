package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"chatdesk-backend/internal/service/conversation"
	"chatdesk-backend/internal/service/session"
	"chatdesk-backend/internal/service/typing"
)

// serviceError maps service failures onto HTTP answers.
func serviceError(err error) error {
	if err == nil {
		return nil
	}

	var convErr *conversation.Error
	if errors.As(err, &convErr) {
		httpErr := codeError(string(convErr.Code), convErr.Message, convErr.Err)
		httpErr.MissingFieldIDs = convErr.MissingFieldIDs
		return httpErr
	}

	var sessErr *session.Error
	if errors.As(err, &sessErr) {
		return codeError(string(sessErr.Code), sessErr.Message, sessErr.Err)
	}

	if errors.Is(err, typing.ErrInvalidActor) {
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid typing actor", ErrorLog: err}
	}

	return &HTTPError{
		StatusCode: http.StatusInternalServerError,
		Message:    "Internal server error",
		ErrorLog:   err,
	}
}

func codeError(code, message string, cause error) *HTTPError {
	logErr := errors.New(message)
	if cause != nil {
		logErr = fmt.Errorf("%s: %w", message, cause)
	}

	status := http.StatusInternalServerError
	switch code {
	case "validation_error":
		status = http.StatusBadRequest
	case "unauthorized":
		status = http.StatusUnauthorized
	case "forbidden":
		status = http.StatusForbidden
	case "not_found":
		status = http.StatusNotFound
	case "conflict":
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	return &HTTPError{StatusCode: status, Message: message, ErrorLog: logErr}
}
