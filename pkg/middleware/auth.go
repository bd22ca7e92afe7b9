package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Context keys set by AdminAuth
const (
	ClaimsKey  = "auth_claims"
	SubjectKey = "auth_subject"
)

// Token errors
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("admin access required")
)

// Claims are the fields read from tokens issued by the hosted auth provider
type Claims struct {
	jwt.RegisteredClaims
	Email       string                 `json:"email,omitempty"`
	Role        string                 `json:"role,omitempty"`
	AppMetadata map[string]interface{} `json:"app_metadata,omitempty"`
}

// Roles returns every role named in the token
func (c *Claims) Roles() []string {
	var roles []string
	if c.Role != "" {
		roles = append(roles, c.Role)
	}
	if r, ok := c.AppMetadata["role"].(string); ok && r != "" {
		roles = append(roles, r)
	}
	if list, ok := c.AppMetadata["roles"].([]interface{}); ok {
		for _, r := range list {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	return roles
}

// TokenVerifier checks HS256 bearer tokens and decides admin access
type TokenVerifier struct {
	secret      []byte
	issuer      string
	adminRole   string
	adminEmails map[string]struct{}
}

// NewTokenVerifier builds a verifier from auth config
func NewTokenVerifier(cfg config.AuthConfig) *TokenVerifier {
	emails := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			emails[e] = struct{}{}
		}
	}
	role := cfg.AdminRole
	if role == "" {
		role = "admin"
	}
	return &TokenVerifier{
		secret:      []byte(cfg.JWTSecret),
		issuer:      cfg.Issuer,
		adminRole:   role,
		adminEmails: emails,
	}
}

// Verify parses and validates a token string
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	if len(v.secret) == 0 {
		return nil, errors.Wrap(ErrInvalidToken, "no signing secret configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyExpiresAt(time.Now(), true) {
		return nil, errors.Wrap(ErrInvalidToken, "token has no expiry")
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, errors.Wrap(ErrInvalidToken, "unexpected issuer")
	}
	return claims, nil
}

// IsAdmin reports whether the claims carry the admin role or an allow-listed email
func (v *TokenVerifier) IsAdmin(claims *Claims) bool {
	for _, r := range claims.Roles() {
		if r == v.adminRole {
			return true
		}
	}
	if claims.Email != "" {
		_, ok := v.adminEmails[strings.ToLower(claims.Email)]
		return ok
	}
	return false
}

// AdminAuth rejects requests without a valid admin bearer token
func AdminAuth(verifier *TokenVerifier, logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	logger = logger.WithPrefix("auth")

	return func(c *gin.Context) {
		claims, err := verifier.Verify(bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			logger.Debug("Rejected admin request", map[string]interface{}{
				"path":  c.FullPath(),
				"error": err.Error(),
			})
			c.Header("WWW-Authenticate", `Bearer realm="kankotri"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		if !verifier.IsAdmin(claims) {
			logger.Warn("Non-admin token on admin route", map[string]interface{}{
				"path":    c.FullPath(),
				"subject": claims.Subject,
			})
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": ErrForbidden.Error(),
			})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(SubjectKey, subjectOf(claims))
		c.Next()
	}
}

// Subject returns the authenticated admin identity stored by AdminAuth
func Subject(c *gin.Context) string {
	return c.GetString(SubjectKey)
}

// subjectOf prefers the stable sub claim and falls back to the email
func subjectOf(claims *Claims) string {
	if claims.Subject != "" {
		return claims.Subject
	}
	return claims.Email
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
