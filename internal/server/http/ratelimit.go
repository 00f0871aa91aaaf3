package httpserver

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/walkiger/storyforge/internal/limiter"
)

// Resource-class labels for the metered endpoints. Classification from the
// route is a policy of this layer; the limiter only sees the label.
const (
	classChat  = "chat"
	classImage = "image"
)

// chatCost estimates the downstream token cost of a chat request from the
// request size, roughly 4 bytes per token.
func chatCost(r *http.Request) int {
	if r.ContentLength <= 0 {
		return 1
	}
	return int(r.ContentLength/4) + 1
}

// imageCost is zero: image generation is metered by request count only, so
// image-only clients never touch token accounting.
func imageCost(*http.Request) int { return 0 }

// meter gates a route through the rate limiter and emits rate-limit headers
// on every response, admitted or denied.
func (s *Server) meter(class string, cost func(*http.Request) int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := s.lim.Check(clientID(r), class, cost(r))
			setRateHeaders(w, d)
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(resetSeconds(d.ResetIn)))
				writeJSON(w, http.StatusTooManyRequests, struct {
					Error      string `json:"error"`
					RetryAfter int    `json:"retry_after"`
				}{Error: "rate_limit_exceeded", RetryAfter: resetSeconds(d.ResetIn)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientID keys limiter windows by authenticated user when available, else by
// remote IP.
func clientID(r *http.Request) string {
	if u, ok := UserFromCtx(r.Context()); ok {
		return u.ID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setRateHeaders(w http.ResponseWriter, d limiter.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit-Requests", strconv.Itoa(d.LimitRequests))
	h.Set("X-RateLimit-Remaining-Requests", strconv.Itoa(max(d.RemainingRequests, 0)))
	h.Set("X-RateLimit-Limit-Tokens", strconv.Itoa(d.LimitTokens))
	h.Set("X-RateLimit-Remaining-Tokens", strconv.Itoa(max(d.RemainingTokens, 0)))
	h.Set("X-RateLimit-Reset", strconv.Itoa(resetSeconds(d.ResetIn)))
}

// resetSeconds rounds up so a client sleeping the advertised value always
// lands outside the window.
func resetSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
