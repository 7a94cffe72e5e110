// Package auth verifies bearer tokens for the backoffice API and exposes
// the authenticated principal to downstream handlers. Tokens are HS256
// JWTs minted by the operator tooling; when no secret is configured the
// middleware falls back to trusting the X-User-ID header so local
// development does not need a token mint.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// PrincipalKey is the gin context key holding the authenticated principal ID.
const PrincipalKey = "principal_id"

// Claims is the JWT payload carried by backoffice tokens.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Mint signs a token for the given principal, valid for ttl.
func Mint(secret, principalID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Principal returns the authenticated principal ID from the request context.
func Principal(c *gin.Context) string {
	if v, ok := c.Get(PrincipalKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

type authError struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, authError{
		RequestID: c.GetString("request_id"),
		Code:      "unauthorized",
		Message:   msg,
	})
}

// Middleware validates the Authorization bearer token and stores the
// principal ID in the gin context. An empty secret disables token
// verification and reads the principal from X-User-ID instead.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			if uid := strings.TrimSpace(c.GetHeader("X-User-ID")); uid != "" {
				c.Set(PrincipalKey, uid)
			}
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if raw == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims := &Claims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || tok == nil || !tok.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}
		if claims.Subject == "" {
			abortUnauthorized(c, "missing subject")
			return
		}

		c.Set(PrincipalKey, claims.Subject)
		c.Next()
	}
}
