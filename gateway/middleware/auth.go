package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"tenure/observability/logging"
)

// AuthConfig drives the gateway's bearer-token checks. An empty Issuer or
// Audience skips that claim; ScopeClaim defaults to "scope".
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
}

type contextKey string

const (
	ContextKeyToken  contextKey = "gateway.token"
	ContextKeyScopes contextKey = "gateway.scopes"
)

// Authenticator validates HMAC-signed JWT bearer tokens and enforces the
// scopes a route group demands. Registered-claim checks (exp, iss, aud) run
// inside the parser with the configured clock skew as leeway.
type Authenticator struct {
	cfg       AuthConfig
	logger    *log.Logger
	secret    []byte
	parseOpts []jwt.ParserOption
}

func NewAuthenticator(cfg AuthConfig, logger *log.Logger) *Authenticator {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		cfg:       cfg,
		logger:    logger,
		secret:    []byte(strings.TrimSpace(cfg.HMACSecret)),
		parseOpts: opts,
	}
}

// Middleware wraps next with token verification and requires every listed
// scope to be granted before the request passes.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			raw := bearerToken(r)
			if raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := a.verify(raw)
			if err != nil {
				a.logger.Printf("auth: token rejected: %v token=%s", err, logging.MaskValue(raw))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			granted := a.grantedScopes(claims)
			if missing := missingScope(granted, requiredScopes); missing != "" {
				a.logger.Printf("auth: scope %q not granted", missing)
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyToken, raw)
			ctx = context.WithValue(ctx, ContextKeyScopes, granted)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) verify(raw string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, a.parseOpts...); err != nil {
		return nil, err
	}
	return claims, nil
}

// grantedScopes reads the configured scope claim, accepting either a
// space-separated string or a list of strings.
func (a *Authenticator) grantedScopes(claims jwt.MapClaims) []string {
	switch v := claims[a.cfg.ScopeClaim].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		var out []string
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// missingScope names the first required scope absent from granted, or "".
func missingScope(granted, required []string) string {
	for _, want := range required {
		if !slices.Contains(granted, want) {
			return want
		}
	}
	return ""
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
