package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatdesk-backend/internal/api/middleware"
	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/queue"

	"github.com/rs/zerolog/log"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError renders err as the JSON error body.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", ErrorLog: err}
	}

	event := log.Warn()
	if httpErr.StatusCode >= http.StatusInternalServerError {
		event = log.Error()
	}
	logErr := httpErr.ErrorLog
	if logErr == nil {
		logErr = httpErr
	}
	event.Err(logErr).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", httpErr.StatusCode).
		Msg("request failed")

	_ = WriteJSON(w, httpErr.StatusCode, dto.ErrorResponse{
		Message:         httpErr.Message,
		MissingFieldIDs: httpErr.MissingFieldIDs,
	})
}

// MakeHTTPHandleFunc runs f on the request queue behind CORS and request
// logging. authMiddleware runs before the job is queued.
func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, authMiddleware ...middleware.Middleware) http.HandlerFunc {
	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		errc := make(chan error, 1)

		job := queue.Job{
			Fn: func() error {
				return f(w, r)
			},
			Errc: errc,
		}

		if s.requestQueueManager == nil {
			errc <- queue.Run(job)
		} else {
			s.requestQueueManager.EnqueueJob(job)
		}

		if err := <-errc; err != nil {
			WriteError(w, r, err)
		}
	}

	middlewares := []middleware.Middleware{
		middleware.CORS(s.cors),
		middleware.Logging(),
	}

	finalHandler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		middleware.Chain(baseHandler, authMiddleware...)(w, r)
	}

	return middleware.Chain(finalHandler, middlewares...)
}
