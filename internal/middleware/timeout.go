package middleware

import (
	"net/http"
	"time"
)

// Timeout wraps handlers with an http.TimeoutHandler, bounding how long a
// slow client or a stalled pipeline can hold a connection open.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"code":"timeout","message":"request timeout"}`)
	}
}
