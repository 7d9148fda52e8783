package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int // seconds, preflight cache
}

// OriginPolicy decides which browser origins may call the API. An empty list
// or "*" allows any origin.
type OriginPolicy struct {
	allowAll bool
	origins  map[string]struct{}
}

func NewOriginPolicy(allowed []string) OriginPolicy {
	p := OriginPolicy{allowAll: len(allowed) == 0, origins: make(map[string]struct{}, len(allowed))}
	for _, o := range allowed {
		if o == "*" {
			p.allowAll = true
		}
		p.origins[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return p
}

// AllowAll reports whether every origin is accepted.
func (p OriginPolicy) AllowAll() bool { return p.allowAll }

// Allows reports whether origin is accepted.
func (p OriginPolicy) Allows(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.origins[strings.ToLower(strings.TrimRight(origin, "/"))]
	return ok
}

// CORS returns CORS middleware. An empty AllowOrigins or "*" allows any origin.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	policy := NewOriginPolicy(cfg.AllowOrigins)
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			if origin == "" {
				if policy.AllowAll() {
					h.Set(echo.HeaderAccessControlAllowOrigin, "*")
				}
				return next(c)
			}
			if !policy.Allows(origin) {
				return next(c)
			}

			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			if methods != "" {
				h.Set(echo.HeaderAccessControlAllowMethods, methods)
			}
			if headers != "" {
				h.Set(echo.HeaderAccessControlAllowHeaders, headers)
			}

			if c.Request().Method == http.MethodOptions {
				if cfg.MaxAge > 0 {
					h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(cfg.MaxAge))
				}
				return c.NoContent(http.StatusNoContent)
			}

			return next(c)
		}
	}
}
