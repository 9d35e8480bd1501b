package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/omnichat/webchat/internal/api/middleware"
	"github.com/omnichat/webchat/internal/queue"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// MakeHTTPHandleFunc runs f on the request queue and renders its error.
func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, extra ...middleware.Middleware) http.HandlerFunc {
	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		var err error
		if s.requestQueueManager != nil {
			errc := make(chan error, 1)
			s.requestQueueManager.EnqueueJob(queue.Job{
				Fn: func() error {
					return f(w, r)
				},
				Errc: errc,
			})
			err = <-errc
		} else {
			err = f(w, r)
		}

		if err != nil {
			s.writeError(w, r, err)
		}
	}

	middlewares := []middleware.Middleware{
		middleware.CORS(middleware.WidgetCORS(s.allowedOrigins)),
		middleware.Logging(s.log),
	}
	middlewares = append(middlewares, extra...)

	return middleware.Chain(baseHandler, middlewares...)
}

// MakeStreamHandleFunc serves long-lived connections outside the queue so
// they never pin a worker.
func (s *APIServer) MakeStreamHandleFunc(f http.HandlerFunc) http.HandlerFunc {
	return middleware.Chain(f, middleware.Logging(s.log))
}

func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.ErrorLog != nil {
			s.log.Warn().Err(httpErr.ErrorLog).Str("path", r.URL.Path).Int("status", httpErr.StatusCode).Msg("request failed")
		}
		WriteJSON(w, httpErr.StatusCode, ApiError{Error: httpErr.Message})
		return
	}

	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
	WriteJSON(w, http.StatusInternalServerError, ApiError{Error: "Internal server error"})
}
