package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/handwrite/pkg/observability"
)

// observe writes the access log and reports requests to the HTTP hooks.
// Requests are labeled with the matched route pattern, which is only known
// once the router has run.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		defer func() {
			route := routePattern(r)
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			d := time.Since(start)

			hooks.OnResponse(r.Context(), r.Method, route, code, d)

			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", code,
				"bytes", ww.BytesWritten(),
				"duration", d.Round(time.Millisecond),
				"request_id", middleware.GetReqID(r.Context()),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// timeout bounds the request context. Handlers report an expired deadline
// through writeError, so the client still gets a JSON body.
func (s *Server) timeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
