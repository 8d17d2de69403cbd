package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CallbackSignatureHeader carries the hex HMAC-SHA256 of the raw callback
// body, keyed with the shared callback secret.
const CallbackSignatureHeader = "X-Callback-Signature"

// SignCallback returns the signature a payment gateway sends for body.
func SignCallback(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// CallbackSignature rejects payment callbacks whose body was not signed with
// secret. An empty secret rejects everything.
func CallbackSignature(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sent, err := hex.DecodeString(strings.TrimSpace(c.Get(CallbackSignatureHeader)))
		if secret == "" || err != nil || len(sent) == 0 {
			return fiber.NewError(http.StatusUnauthorized, "invalid callback signature")
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(c.Body())
		if !hmac.Equal(sent, mac.Sum(nil)) {
			return fiber.NewError(http.StatusUnauthorized, "invalid callback signature")
		}
		return c.Next()
	}
}
