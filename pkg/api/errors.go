package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/observability"
)

// status maps an error to the HTTP status returned to the client.
func status(err error) int {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case stderrors.Is(err, context.Canceled):
		// The client went away; the status is only seen by the access log.
		return 499
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidParams,
		errors.ErrCodeInvalidFormat, errors.ErrCodePageTooSmall:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case errors.ErrCodeNotFound, errors.ErrCodeFontNotFound:
		return http.StatusNotFound
	case errors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// code returns the machine-readable code for err, filling in the codes of
// plain context errors.
func code(err error) errors.Code {
	if c := errors.GetCode(err); c != "" {
		return c
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrCodeUnavailable
	default:
		return errors.ErrCodeInternal
	}
}

// writeError writes err as {"detail", "code"} and logs server-side failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	st := status(err)
	if st >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
		observability.HTTP().OnError(r.Context(), r.Method, routePattern(r), err)
	}
	writeJSON(w, st, errorResponse{
		Detail: errors.UserMessage(err),
		Code:   code(err),
	})
}
