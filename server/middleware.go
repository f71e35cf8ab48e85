package server

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/llm-sentinel/sentinel/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// CorrelationIDMiddleware adds a correlation ID to the request context and response headers.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		w.Header().Set("X-Correlation-ID", correlationID)

		log := hlog.FromRequest(r)
		log.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("correlation_id", correlationID)
		})

		next.ServeHTTP(w, r)
	})
}

// TokenAuthMiddleware provides simple token-based authentication for command endpoints.
// It checks for token in GET parameter "token" or in "X-Auth-Token" header.
func TokenAuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// If no auth token is configured, allow access
			if cfg.AuthToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			var providedToken string

			// Check for token in query parameter first
			if tokenParam := r.URL.Query().Get("token"); tokenParam != "" {
				providedToken = tokenParam
			} else if authHeader := r.Header.Get("X-Auth-Token"); authHeader != "" {
				providedToken = authHeader
			}

			// If no token provided, return unauthorized
			if providedToken == "" {
				log := hlog.FromRequest(r)
				log.Warn().Msg("missing authentication token for protected endpoint")
				http.Error(w, "Unauthorized: token required", http.StatusUnauthorized)
				return
			}

			// Compare with the configured auth token
			if providedToken != cfg.AuthToken {
				log := hlog.FromRequest(r)
				log.Warn().Msg("invalid authentication token for protected endpoint")
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			// Authentication successful
			log := hlog.FromRequest(r)
			log.Info().Msg("successful token authentication for protected endpoint")
			next.ServeHTTP(w, r)
		})
	}
}

// adminClaims is the JWT payload shape the admin surface expects. Only
// role is consulted; it must be "admin".
type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthMiddleware verifies a bearer token against cfg.AuthToken treated
// as an HMAC secret, requiring role=="admin" (spec §6 ADD). Unlike the
// teacher's cmd/request, which only decoded a JWT for display with
// jwt.Parser.ParseUnverified, this verifies the signature — the admin
// surface can reconfigure live pipeline state, so an unverified token is
// not an acceptable gate.
func JWTAuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AuthToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized: bearer token required", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims := &adminClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(cfg.AuthToken), nil
			})
			if err != nil || !token.Valid {
				hlog.FromRequest(r).Warn().Err(err).Msg("invalid admin JWT")
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Role != "admin" {
				hlog.FromRequest(r).Warn().Str("role", claims.Role).Msg("admin JWT missing admin role")
				http.Error(w, "Forbidden: admin role required", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
