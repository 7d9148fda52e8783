package api

import (
	"crypto/subtle"
	"errors"
	"strings"

	"SignalHub/internal/access"
	xhttp "SignalHub/pkg/http"
	"SignalHub/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	ctxIdentity = "identity"

	headerWebhookSecret = "X-Webhook-Secret"
)

var errInvalidToken = errors.New("invalid token")

// Identity is the caller as resolved from its bearer token.
type Identity struct {
	Subject string
	Tier    access.Tier
	Role    string
}

// Claims carried by access tokens.
type Claims struct {
	Tier string `json:"tier"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth resolves caller tiers from HS256 tokens and guards privileged routes.
type Auth struct {
	secret        []byte
	webhookSecret string
	adminRole     string
	log           *logger.Logger
}

func NewAuth(jwtSecret, webhookSecret, adminRole string, log *logger.Logger) *Auth {
	if jwtSecret == "" {
		log.Warn("auth.jwt_secret is empty; every caller is treated as free tier")
	}
	if adminRole == "" {
		adminRole = "admin"
	}
	return &Auth{
		secret:        []byte(jwtSecret),
		webhookSecret: webhookSecret,
		adminRole:     adminRole,
		log:           log,
	}
}

// Resolve parses a token. An empty token, or any token while no secret is
// configured, resolves to an anonymous free caller.
func (a *Auth) Resolve(token string) (Identity, error) {
	if token == "" || len(a.secret) == 0 {
		return Identity{Tier: access.Free}, nil
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, errInvalidToken
	}
	return Identity{
		Subject: claims.Subject,
		Tier:    access.ParseTier(claims.Tier),
		Role:    claims.Role,
	}, nil
}

// Sign issues a token; used by tests and tooling.
func (a *Auth) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ResolveTier stores the caller identity on the context. Browsers cannot set
// headers on websocket upgrades, so the token query parameter is accepted too.
func (a *Auth) ResolveTier() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				token = c.QueryParam("token")
			}
			id, err := a.Resolve(token)
			if err != nil {
				return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid or expired token"))
			}
			c.Set(ctxIdentity, id)
			return next(c)
		}
	}
}

// IdentityFrom returns the resolved caller, free when unresolved.
func IdentityFrom(c echo.Context) Identity {
	if id, ok := c.Get(ctxIdentity).(Identity); ok {
		return id
	}
	return Identity{Tier: access.Free}
}

// RequireTier rejects callers below the tier the feature requires.
func RequireTier(feature string) echo.MiddlewareFunc {
	required := access.Requirement(feature)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !access.Authorize(IdentityFrom(c).Tier, required) {
				return xhttp.AppErrorResponse(c, xhttp.AccessDeniedError(required.String()))
			}
			return next(c)
		}
	}
}

// RequireAdmin rejects callers without the admin role.
func (a *Auth) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFrom(c)
			if id.Role != a.adminRole {
				if id.Subject == "" {
					return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("authentication required"))
				}
				return xhttp.AppErrorResponse(c, xhttp.ForbiddenError("admin role required"))
			}
			return next(c)
		}
	}
}

// RequireWebhookSecret checks the shared webhook secret from the header or
// the secret query parameter.
func (a *Auth) RequireWebhookSecret() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(headerWebhookSecret)
			if got == "" {
				got = c.QueryParam("secret")
			}
			if a.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.webhookSecret)) != 1 {
				a.log.Warn("webhook rejected", logger.String("remote", c.RealIP()))
				return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid webhook secret"))
			}
			return next(c)
		}
	}
}

func bearer(h string) string {
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
