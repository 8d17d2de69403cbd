package fares

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/naulify/naulify/internal/logging"
)

func newTestApp(svc *Service) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "owner-1")
		return c.Next()
	})
	h := NewHandler(svc, logging.Discard())
	app.Get("/routes", h.List)
	app.Get("/routes/stream", h.Stream)
	app.Post("/routes", h.Create)
	app.Put("/routes/:routeId", h.Update)
	app.Delete("/routes/:routeId", h.Delete)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(data)
}

func TestHandlerCRUD(t *testing.T) {
	svc := newTestService()
	app := newTestApp(svc)

	resp, body := do(t, app, http.MethodPost, "/routes", `{"description":"","fare":50}`)
	if resp.StatusCode != http.StatusBadRequest || body != "Route description cannot be empty." {
		t.Fatalf("expected description error, got %d %q", resp.StatusCode, body)
	}
	resp, body = do(t, app, http.MethodPost, "/routes", `{"description":"CBD - Rongai","fare":12.5}`)
	if resp.StatusCode != http.StatusBadRequest || body != "Please enter a valid, positive number for the fare." {
		t.Fatalf("expected fare error, got %d %q", resp.StatusCode, body)
	}

	resp, body = do(t, app, http.MethodPost, "/routes", `{"description":"CBD - Rongai","fare":150}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", resp.StatusCode, body)
	}
	var created Route
	if err := json.Unmarshal([]byte(body), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, body = do(t, app, http.MethodPut, "/routes/"+created.ID, `{"description":"CBD - Rongai","fare":170}`)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"fare":170`) {
		t.Fatalf("expected update, got %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, app, http.MethodGet, "/routes", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, created.ID) {
		t.Fatalf("expected route in list, got %d %s", resp.StatusCode, body)
	}

	resp, _ = do(t, app, http.MethodDelete, "/routes/"+created.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp, _ = do(t, app, http.MethodDelete, "/routes/"+created.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandlerStream(t *testing.T) {
	svc := newTestService()
	app := newTestApp(svc)
	if _, err := svc.Add(context.Background(), "owner-1", Input{Description: "CBD - Rongai", Fare: 150}); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Closing the service ends the stream so the response completes.
	timer := time.AfterFunc(200*time.Millisecond, svc.Close)
	defer timer.Stop()

	req := httptest.NewRequest(http.MethodGet, "/routes/stream", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var events []string
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	if len(events) != 1 || !strings.Contains(events[0], "CBD - Rongai") {
		t.Fatalf("expected one snapshot event, got %v", events)
	}
}
