package qr

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naulify/naulify/internal/profile"
)

var sample = profile.Profile{UID: "3f0c1f7e-7d0a-4f7b-9a51-0c7c5a9d2b10", VehicleRegistration: "KDC 123A"}

func TestPayURLRoundTrip(t *testing.T) {
	link, err := PayURL("https://pay.example.com/", sample)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://pay.example.com/pay?data="))

	u, err := url.Parse(link)
	require.NoError(t, err)
	payload, err := DecodePayload(u.Query().Get("data"))
	require.NoError(t, err)
	assert.Equal(t, Payload{PSVID: sample.UID, Plate: "KDC 123A"}, payload)
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	for _, in := range []string{"not base64!", "e30=", "bnVsbA=="} {
		_, err := DecodePayload(in)
		assert.ErrorIs(t, err, ErrInvalidPayload, in)
	}
}

func TestPNG(t *testing.T) {
	data, err := PNG("https://pay.example.com/pay?data=abc", 0)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())
}

func TestPoster(t *testing.T) {
	page, err := Poster("https://pay.example.com", sample)
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "KDC 123A")
	assert.Contains(t, html, Instruction)
	assert.Contains(t, html, `src="data:image/png;base64,`)
}

type stubProfiles map[string]profile.Profile

func (s stubProfiles) Get(_ context.Context, uid string) (profile.Profile, error) {
	p, ok := s[uid]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	return p, nil
}

func TestHandler(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User"))
		return c.Next()
	})
	h := NewHandler(stubProfiles{sample.UID: sample}, "https://pay.example.com")
	app.Get("/qr", h.Link)
	app.Get("/qr.png", h.Image)
	app.Get("/qr/poster", h.PosterPage)

	get := func(path, user string) *http.Response {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	resp := get("/qr", sample.UID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"plate":"KDC 123A"`)

	resp = get("/qr.png?size=300", sample.UID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp = get("/qr.png?size=10", sample.UID)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get("/qr/poster", sample.UID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp = get("/qr", "someone-else")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
