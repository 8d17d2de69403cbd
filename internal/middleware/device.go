package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// DeviceIDHeader names the client device a request comes from.
const DeviceIDHeader = "X-Device-ID"

const maxDeviceIDLength = 128

const (
	localUserID       = "user_id"
	localDeviceID     = "device_id"
	localTokenVersion = "token_version"
)

// DeviceID stores the caller's X-Device-ID in the device_id local. Without
// the header the local stays unset: such requests cannot sign in on a device
// and get a throwaway session.
func DeviceID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(DeviceIDHeader))
		if len(id) > maxDeviceIDLength {
			return fiber.NewError(http.StatusBadRequest, "device id is too long")
		}
		if id != "" {
			c.Locals(localDeviceID, id)
		}
		return c.Next()
	}
}
