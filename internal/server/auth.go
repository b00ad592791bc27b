package server

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "trackscan"

// Claims identify the caller of an authenticated request.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates HS256 bearer tokens.
type Auth struct {
	secret []byte
}

// NewAuth returns a validator for secret. An empty secret admits everyone.
func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Authenticate is the fiber middleware guarding /api routes.
func (a *Auth) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(a.secret) == 0 {
			return c.Next()
		}
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return respondError(c, fiber.StatusUnauthorized, CodeUnauthorized, "Missing authorization header")
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return respondError(c, fiber.StatusUnauthorized, CodeUnauthorized, "Invalid authorization header format")
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		}, jwt.WithIssuer(issuer))
		if err != nil || !token.Valid {
			return respondError(c, fiber.StatusUnauthorized, CodeUnauthorized, "Invalid or expired token")
		}
		c.Locals("subject", claims.Subject)
		return c.Next()
	}
}

// GenerateToken issues a token for subject expiring after ttl. A zero ttl
// never expires.
func (a *Auth) GenerateToken(subject string, ttl time.Duration) (string, error) {
	claims := Claims{
		Scope: "analyze",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
