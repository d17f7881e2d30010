package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ahmetk3436/ppmchat/internal/capability"
)

// Claims are issued by the portal that embeds the chat widget. The proxy
// only verifies them.
type Claims struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionID is the conversation a verified caller owns: the token subject,
// or the username when the issuer leaves the subject empty.
func (c *Claims) SessionID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.Username
}

// JWTProtected verifies HS256 bearer tokens and binds the caller's session
// and role. An empty secret disables verification.
func JWTProtected(secret string, roles *capability.Roles) fiber.Handler {
	if secret == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			// Browsers cannot set headers on WebSocket upgrades.
			if t := c.Query("token"); t != "" {
				auth = "Bearer " + t
			}
		}
		if auth == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   true,
				"message": "Missing authorization header",
			})
		}

		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		if tokenStr == auth {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   true,
				"message": "Invalid authorization format",
			})
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid || claims.SessionID() == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   true,
				"message": "Invalid or expired token",
			})
		}

		sessionID := claims.SessionID()
		if roles != nil {
			roles.Assign(sessionID, claims.Role)
		}

		c.Locals("session_id", sessionID)
		c.Locals("username", claims.Username)
		c.Locals("display_name", claims.DisplayName)
		c.Locals("role", claims.Role)
		return c.Next()
	}
}
