// Package requestmeta populates the request context with the per-request
// metadata the domain layers consume: request id, request-scoped time, and
// the calling client's identity and device description.
package requestmeta

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"veriprint/pkg/requestcontext"
)

// HeaderRequestID is honored when the caller supplies its own request id.
const HeaderRequestID = "X-Request-ID"

// HeaderClientID identifies the scanner or kiosk making the call.
const HeaderClientID = "X-Client-ID"

// RequestID assigns every request an id, echoing it back in the response so
// callers can correlate logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestTime captures one timestamp at the start of the request so every
// domain operation inside it agrees on "now".
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientInfo records the calling client id, its network address, and a
// compact device description parsed from the user agent.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if clientID := r.Header.Get(HeaderClientID); clientID != "" {
			ctx = requestcontext.WithClientID(ctx, clientID)
		}
		ctx = requestcontext.WithClientIP(ctx, clientIP(r))
		if info := deviceInfo(r.UserAgent()); info != "" {
			ctx = requestcontext.WithDeviceInfo(ctx, info)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func deviceInfo(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	name, version := ua.Browser()

	parts := make([]string, 0, 3)
	if os := ua.OS(); os != "" {
		parts = append(parts, os)
	}
	if name != "" {
		if version != "" {
			name += "/" + version
		}
		parts = append(parts, name)
	}
	if ua.Mobile() {
		parts = append(parts, "mobile")
	}
	return strings.Join(parts, " ")
}
