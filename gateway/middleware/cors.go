package middleware

import (
	"net/http"
	"strings"
)

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// CORS answers preflight requests and stamps allow headers on every
// response. The zero config permits any origin with the common
// read/write methods.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy.apply(w.Header(), r.Header.Get("Origin"))
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type corsPolicy struct {
	origins     []string
	anyOrigin   bool
	methods     string
	headers     string
	credentials string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:     cfg.AllowedOrigins,
		methods:     strings.Join(cfg.AllowedMethods, ", "),
		headers:     strings.Join(cfg.AllowedHeaders, ", "),
		credentials: "false",
	}
	if len(p.origins) == 0 {
		p.anyOrigin = true
	}
	for _, origin := range p.origins {
		if origin == "*" {
			p.anyOrigin = true
			break
		}
	}
	if p.methods == "" {
		p.methods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	}
	if p.headers == "" {
		p.headers = "Content-Type, Authorization"
	}
	if cfg.AllowCredentials {
		p.credentials = "true"
	}
	return p
}

func (p *corsPolicy) apply(h http.Header, origin string) {
	if allowed := p.allowOrigin(origin); allowed != "" {
		h.Set("Access-Control-Allow-Origin", allowed)
	}
	h.Add("Vary", "Origin")
	h.Set("Access-Control-Allow-Methods", p.methods)
	h.Set("Access-Control-Allow-Headers", p.headers)
	h.Set("Access-Control-Allow-Credentials", p.credentials)
}

// allowOrigin echoes the request origin when it is on the allowlist so a
// multi-origin config works with credentialed requests.
func (p *corsPolicy) allowOrigin(origin string) string {
	if p.anyOrigin {
		return "*"
	}
	for _, candidate := range p.origins {
		if strings.EqualFold(candidate, origin) {
			return candidate
		}
	}
	return ""
}
