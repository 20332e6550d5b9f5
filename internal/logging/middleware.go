package logging

import "net/http"

// RequestID is chi-style middleware that tags every request with an ID,
// echoed in the X-Request-Id header and carried in the context so the
// async event pipeline can correlate its log lines with the delivery
// that spawned them.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = GenerateRequestID()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
