// Package core provides the core HTTP-serving functionality shared by the
// distributor and analyzer binaries.
package core

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig contains Cross-Origin Resource Sharing configuration for the
// distributor's HTTP surface. Origins support a bare "*", wildcard
// subdomains ("https://*.example.com"), and wildcard ports
// ("http://localhost:*").
type CORSConfig struct {
	Enabled          bool     `json:"enabled" env:"CORS_ENABLED" default:"false"`
	AllowedOrigins   []string `json:"allowed_origins" env:"CORS_ORIGINS"`
	AllowedMethods   []string `json:"allowed_methods" env:"CORS_METHODS" default:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `json:"allowed_headers" env:"CORS_HEADERS" default:"Content-Type"`
	AllowCredentials bool     `json:"allow_credentials" env:"CORS_CREDENTIALS" default:"false"`
	MaxAge           int      `json:"max_age" env:"CORS_MAX_AGE" default:"86400"`
}

// DefaultCORSConfig returns the secure default: disabled, no origins.
// Operators enable it explicitly when a browser-based dashboard needs to
// hit /health or /metrics directly.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:        false,
		AllowedOrigins: []string{},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}
}

// CORSMiddleware applies config to every request: it answers preflight
// OPTIONS requests itself and stamps allow headers on everything else.
// With config.Enabled false it is a pass-through.
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			if origin := r.Header.Get("Origin"); originAllowed(origin, config.AllowedOrigins) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				if config.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if len(config.AllowedMethods) > 0 {
					h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
				}
				if len(config.AllowedHeaders) > 0 {
					h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
				}
				if config.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed reports whether origin matches any allowed pattern. An
// empty origin (same-origin request) never matches: no CORS headers are
// needed for it.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, pattern := range allowed {
		if pattern == "*" || pattern == origin {
			return true
		}
		if prefix, suffix, found := strings.Cut(pattern, "*."); found {
			// Wildcard subdomain: the part the "*" stands in for must be a
			// complete, non-empty label sequence, so neither the bare root
			// nor a sibling domain that merely shares the suffix matches.
			if strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				if middle := strings.TrimSuffix(origin[len(prefix):], suffix); strings.HasSuffix(middle, ".") {
					return true
				}
			}
			continue
		}
		if base, ok := strings.CutSuffix(pattern, ":*"); ok {
			if strings.HasPrefix(origin, base+":") {
				return true
			}
		}
	}
	return false
}
