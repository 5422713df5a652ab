package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	fleetAuth "github.com/MrEthical07/fleetAuth"
)

type validationContextKey struct{}

// ValidationFromContext returns the result stored by Guard.
func ValidationFromContext(ctx context.Context) (fleetAuth.ValidationResult, bool) {
	res, ok := ctx.Value(validationContextKey{}).(fleetAuth.ValidationResult)
	return res, ok
}

// Guard rejects requests without a valid bearer access token and stores the
// validation result in the request context.
func Guard(engine *fleetAuth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := RequestContext(r)
			res, err := engine.ValidateAccessToken(ctx, token)
			if err != nil {
				if errors.Is(err, fleetAuth.ErrStoreUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				if res.Expired {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="expired"`)
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, validationContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestContext returns r's context carrying the client IP and User-Agent
// for audit records.
func RequestContext(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx := fleetAuth.WithClientIP(r.Context(), host)
	return fleetAuth.WithUserAgent(ctx, r.UserAgent())
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	return bearerToken(value)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
