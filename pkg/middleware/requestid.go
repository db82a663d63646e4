package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/commpulse/community-pulse/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID returns middleware that assigns each request a random ID (or
// propagates an incoming X-Request-ID), stores it in the request context for
// logging, and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRequestID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf[:])
}
