package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/naulify/naulify/internal/auth"
)

// TokenVerifier validates access tokens, including their version.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Claims, error)
}

// JWTAuth returns a middleware that validates JWT access tokens and checks
// token version. The token's device wins over the X-Device-ID header, and a
// header naming a different device is rejected.
func JWTAuth(tokens TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if authz == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		if err := authenticate(c, tokens, authz); err != nil {
			return err
		}
		return c.Next()
	}
}

// OptionalJWT authenticates the caller when an Authorization header is sent
// and lets anonymous requests through. A bad token is still rejected.
func OptionalJWT(tokens TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if authz := c.Get(fiber.HeaderAuthorization); authz != "" {
			if err := authenticate(c, tokens, authz); err != nil {
				return err
			}
		}
		return c.Next()
	}
}

func authenticate(c *fiber.Ctx, tokens TokenVerifier, authz string) error {
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
	}
	claims, err := tokens.Verify(c.UserContext(), strings.TrimSpace(authz[len("Bearer "):]))
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}

	if claims.DeviceID != "" {
		if header := strings.TrimSpace(c.Get(DeviceIDHeader)); header != "" && header != claims.DeviceID {
			return fiber.NewError(http.StatusUnauthorized, "token was issued to another device")
		}
		c.Locals(localDeviceID, claims.DeviceID)
	}
	c.Locals(localUserID, claims.Subject)
	c.Locals(localTokenVersion, claims.Version)
	return nil
}
