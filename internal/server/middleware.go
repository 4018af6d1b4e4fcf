package server

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/livecanvas/internal/config"
	"github.com/conneroisu/livecanvas/internal/logging"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	CSP                 *CSPConfig
	XFrameOptions       string
	XContentTypeNoSniff bool
	ReferrerPolicy      string
	// AllowedOrigins are host patterns, matched like the websocket origin
	// patterns, that may call the API cross-origin.
	AllowedOrigins []string
	HSTSMaxAge     int
}

// CSPConfig holds Content Security Policy configuration
type CSPConfig struct {
	DefaultSrc     []string
	ScriptSrc      []string
	StyleSrc       []string
	ImgSrc         []string
	ConnectSrc     []string
	ObjectSrc      []string
	FrameAncestors []string
	BaseURI        []string
}

// DefaultSecurityConfig returns the policy the preview page needs: its
// inline client script, websocket connections back to the server and an
// optional external stylesheet.
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		CSP: &CSPConfig{
			DefaultSrc:     []string{"'self'"},
			ScriptSrc:      []string{"'self'", "'unsafe-inline'"},
			StyleSrc:       []string{"'self'", "'unsafe-inline'"},
			ImgSrc:         []string{"'self'", "data:", "blob:"},
			ConnectSrc:     []string{"'self'", "ws:", "wss:"},
			ObjectSrc:      []string{"'none'"},
			FrameAncestors: []string{"'self'"},
			BaseURI:        []string{"'self'"},
		},
		XFrameOptions:       "SAMEORIGIN",
		XContentTypeNoSniff: true,
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		AllowedOrigins:      []string{"localhost:*", "127.0.0.1:*"},
	}
}

// SecurityConfigFromAppConfig creates security config from application config
func SecurityConfigFromAppConfig(cfg *config.Config) *SecurityConfig {
	sc := DefaultSecurityConfig()
	sc.AllowedOrigins = cfg.Server.AllowedOrigins

	if origin := stylesheetOrigin(cfg.Preview.StylesheetURL); origin != "" {
		sc.CSP.StyleSrc = append(sc.CSP.StyleSrc, origin)
	}
	if cfg.Server.Environment == "production" {
		sc.HSTSMaxAge = 31536000
	}

	return sc
}

func stylesheetOrigin(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// SecurityMiddleware applies security headers, answers CORS preflights and
// rejects state-changing requests from origins that are not allowed.
func SecurityMiddleware(sc *SecurityConfig, logger logging.Logger) func(http.Handler) http.Handler {
	if sc == nil {
		sc = DefaultSecurityConfig()
	}
	csp := ""
	if sc.CSP != nil {
		csp = buildCSPHeader(sc.CSP)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if csp != "" {
				h.Set("Content-Security-Policy", csp)
			}
			if sc.XFrameOptions != "" {
				h.Set("X-Frame-Options", sc.XFrameOptions)
			}
			if sc.XContentTypeNoSniff {
				h.Set("X-Content-Type-Options", "nosniff")
			}
			if sc.ReferrerPolicy != "" {
				h.Set("Referrer-Policy", sc.ReferrerPolicy)
			}
			if sc.HSTSMaxAge > 0 && r.TLS != nil {
				h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", sc.HSTSMaxAge))
			}

			origin := r.Header.Get("Origin")
			crossOrigin := origin != "" && !sameOrigin(r, origin)
			allowed := !crossOrigin || isAllowedOrigin(origin, sc.AllowedOrigins)

			if crossOrigin && allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				if !allowed {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if !allowed && r.Method != http.MethodGet && r.Method != http.MethodHead {
				logger.Info(r.Context(), "Security: rejected cross-origin request",
					"origin", origin,
					"method", r.Method,
					"path", r.URL.Path,
					"client_ip", clientIP(r))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// buildCSPHeader constructs the Content-Security-Policy header value
func buildCSPHeader(csp *CSPConfig) string {
	var directives []string
	add := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, name+" "+strings.Join(values, " "))
		}
	}

	add("default-src", csp.DefaultSrc)
	add("script-src", csp.ScriptSrc)
	add("style-src", csp.StyleSrc)
	add("img-src", csp.ImgSrc)
	add("connect-src", csp.ConnectSrc)
	add("object-src", csp.ObjectSrc)
	add("frame-ancestors", csp.FrameAncestors)
	add("base-uri", csp.BaseURI)

	return strings.Join(directives, "; ")
}

func sameOrigin(r *http.Request, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// isAllowedOrigin matches the origin's host against path.Match patterns.
func isAllowedOrigin(origin string, patterns []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)

	for _, pattern := range patterns {
		if ok, err := path.Match(strings.ToLower(pattern), host); err == nil && ok {
			return true
		}
	}
	return false
}

// clientIP extracts the client IP address from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RequestLogger logs one line per request with its status, size and latency.
func RequestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if r.URL.Path == "/health" {
				logger.Debug(r.Context(), "HTTP request", fields...)
				return
			}
			logger.Info(r.Context(), "HTTP request", fields...)
		})
	}
}
