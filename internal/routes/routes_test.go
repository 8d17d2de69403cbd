package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/naulify/naulify/internal/config"
	"github.com/naulify/naulify/internal/logging"
	"github.com/naulify/naulify/internal/middleware"
	"github.com/naulify/naulify/internal/notification"
	"github.com/naulify/naulify/internal/qr"
)

const defaultDevice = "phone-1"

const callbackSecret = "callback-secret"

type client struct {
	t      *testing.T
	app    *fiber.App
	rt     *Runtime
	device string
	token  string
}

// as returns a client on the same server for another device and token.
func (c *client) as(device, token string) *client {
	return &client{t: c.t, app: c.app, rt: c.rt, device: device, token: token}
}

func newClient(t *testing.T) (*client, *notification.Recorder) {
	t.Helper()
	cfg := config.Config{
		Env:                 "dev",
		JWTSecret:           "access",
		RefreshSecret:       "refresh",
		AccessTokenTTL:      time.Minute,
		RefreshTokenTTL:     time.Hour,
		ProfileFetchTimeout: time.Second,
		ResetTokenTTL:       time.Hour,
		PayBaseURL:          "https://pay.example.com",
		ReportTimezone:      "Africa/Nairobi",
		LoginRatePerMin:     10,
		IdempotencyTTL:      time.Minute,
		CallbackSecret:      callbackSecret,
	}
	rec := &notification.Recorder{}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	rt, err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard(), Notifier: rec})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Close(); err != nil {
			t.Errorf("close runtime: %v", err)
		}
	})
	return &client{t: t, app: app, rt: rt, device: defaultDevice}, rec
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	return c.send(method, path, body, nil, out)
}

// callback posts a gateway confirmation signed with secret.
func (c *client) callback(psvID, secret string, body any) int {
	c.t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		c.t.Fatalf("encode body: %v", err)
	}
	headers := map[string]string{middleware.CallbackSignatureHeader: middleware.SignCallback(secret, raw)}
	return c.send(fiber.MethodPost, "/api/v1/payments/callback/"+psvID, json.RawMessage(raw), headers, nil)
}

func (c *client) send(method, path string, body any, headers map[string]string, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.device != "" {
		req.Header.Set(middleware.DeviceIDHeader, c.device)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	resp, err := c.app.Test(req, 5000)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type sessionView struct {
	Decision string `json:"decision"`
	Target   string `json:"target"`
	Pending  *struct {
		Target string `json:"target"`
		Path   string `json:"path"`
	} `json:"pending"`
}

func TestOperatorJourney(t *testing.T) {
	c, rec := newClient(t)

	var view sessionView
	if status := c.do(fiber.MethodGet, "/api/v1/session", nil, &view); status != fiber.StatusOK {
		t.Fatalf("session: status %d", status)
	}
	if view.Decision != "UNAUTHENTICATED" || view.Target != "(auth)" {
		t.Fatalf("expected signed-out device to target auth, got %+v", view)
	}

	var signUp struct {
		AccessToken string       `json:"access_token"`
		Session     *sessionView `json:"session"`
	}
	creds := map[string]string{"email": "owner@example.com", "password": "secret1"}
	if status := c.do(fiber.MethodPost, "/api/v1/auth/sign-up", creds, &signUp); status != fiber.StatusCreated {
		t.Fatalf("sign up: status %d", status)
	}
	if signUp.Session == nil || signUp.Session.Decision != "NEEDS_ONBOARDING" {
		t.Fatalf("expected new account to need onboarding, got %+v", signUp.Session)
	}
	if _, ok := rec.Last(notification.KindEmailVerification); !ok {
		t.Fatalf("expected verification email")
	}
	c.token = signUp.AccessToken

	if status := c.do(fiber.MethodGet, "/api/v1/profile", nil, nil); status != fiber.StatusNotFound {
		t.Fatalf("expected no profile before onboarding, got %d", status)
	}
	if status := c.do(fiber.MethodGet, "/api/v1/qr", nil, nil); status != fiber.StatusNotFound {
		t.Fatalf("expected no QR before onboarding, got %d", status)
	}

	onboarding := map[string]string{
		"owner_name":           "John Doe",
		"vehicle_registration": "KDC 123A",
		"phone_number":         "0712345678",
		"mpesa_short_code":     "123456",
	}
	var prof struct {
		UID string `json:"uid"`
	}
	if status := c.do(fiber.MethodPost, "/api/v1/profile", onboarding, &prof); status != fiber.StatusCreated {
		t.Fatalf("create profile: status %d", status)
	}

	if status := c.do(fiber.MethodGet, "/api/v1/session", nil, &view); status != fiber.StatusOK {
		t.Fatalf("session: status %d", status)
	}
	if view.Decision != "ACTIVE" || view.Pending == nil || view.Pending.Path != "/(app)" {
		t.Fatalf("expected onboarding to land in the app, got %+v", view)
	}
	if status := c.do(fiber.MethodPost, "/api/v1/session/acknowledge", nil, &view); status != fiber.StatusOK || view.Pending != nil {
		t.Fatalf("acknowledge: status %d view %+v", status, view)
	}

	var route struct {
		ID   string `json:"id"`
		Fare int64  `json:"fare"`
	}
	if status := c.do(fiber.MethodPost, "/api/v1/routes", map[string]any{"description": "CBD - Westlands", "fare": 100}, &route); status != fiber.StatusCreated {
		t.Fatalf("create route: status %d", status)
	}
	var bad struct {
		Error string `json:"error"`
	}
	if status := c.do(fiber.MethodPost, "/api/v1/routes", map[string]any{"description": "x", "fare": -5}, &bad); status != fiber.StatusBadRequest {
		t.Fatalf("expected invalid fare to be rejected, got %d", status)
	}
	if !strings.Contains(bad.Error, "positive number") {
		t.Fatalf("unexpected error body %q", bad.Error)
	}

	var link struct {
		URL string `json:"url"`
	}
	if status := c.do(fiber.MethodGet, "/api/v1/qr", nil, &link); status != fiber.StatusOK {
		t.Fatalf("qr: status %d", status)
	}
	u, err := url.Parse(link.URL)
	if err != nil || u.Host != "pay.example.com" || u.Path != "/pay" {
		t.Fatalf("unexpected pay url %q", link.URL)
	}
	payload, err := qr.DecodePayload(u.Query().Get("data"))
	if err != nil || payload.PSVID != prof.UID || payload.Plate != "KDC 123A" {
		t.Fatalf("unexpected qr payload %+v, %v", payload, err)
	}

	payment := map[string]any{
		"mpesa_receipt_number":  "qwe123",
		"commuter_phone_number": "0700000000",
		"selections":            []map[string]any{{"description": "CBD - Westlands", "quantity": 2, "fare": 100}},
	}
	if status := c.callback(prof.UID, callbackSecret, payment); status != fiber.StatusCreated {
		t.Fatalf("callback: status %d", status)
	}
	if status := c.callback(prof.UID, callbackSecret, payment); status != fiber.StatusConflict {
		t.Fatalf("expected duplicate receipt to conflict, got %d", status)
	}
	if _, ok := rec.Last(notification.KindPaymentReceived); !ok {
		t.Fatalf("expected operator to be notified")
	}

	var report struct {
		TotalRevenue     int64  `json:"total_revenue"`
		FormattedTotal   string `json:"formatted_total"`
		TransactionCount int    `json:"transaction_count"`
	}
	if status := c.do(fiber.MethodGet, "/api/v1/reports?timeframe=today", nil, &report); status != fiber.StatusOK {
		t.Fatalf("report: status %d", status)
	}
	if report.TotalRevenue != 200 || report.TransactionCount != 1 || report.FormattedTotal != "KSH 200.00" {
		t.Fatalf("unexpected report %+v", report)
	}

	if status := c.do(fiber.MethodPost, "/api/v1/auth/logout", nil, nil); status != fiber.StatusOK {
		t.Fatalf("logout: status %d", status)
	}
	if status := c.do(fiber.MethodGet, "/api/v1/me", nil, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("expected token to be revoked, got %d", status)
	}
	c.token = ""
	if status := c.do(fiber.MethodGet, "/api/v1/session", nil, &view); status != fiber.StatusOK {
		t.Fatalf("session: status %d", status)
	}
	if view.Decision != "UNAUTHENTICATED" || view.Pending == nil || view.Pending.Path != "/(auth)/login" {
		t.Fatalf("expected sign-out to route to login, got %+v", view)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	c, _ := newClient(t)
	for _, path := range []string{"/api/v1/me", "/api/v1/profile", "/api/v1/routes", "/api/v1/reports", "/api/v1/qr"} {
		if status := c.do(fiber.MethodGet, path, nil, nil); status != fiber.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, status)
		}
	}
}

func TestSetupRequiresBackendsOutsideDev(t *testing.T) {
	_, err := Setup(fiber.New(), Deps{Cfg: config.Config{Env: "production"}})
	if err == nil {
		t.Fatalf("expected production without a database to fail")
	}
}

func TestHealthz(t *testing.T) {
	c, _ := newClient(t)
	var body struct {
		Status map[string]string `json:"status"`
	}
	if status := c.do(fiber.MethodGet, "/healthz", nil, &body); status != fiber.StatusOK {
		t.Fatalf("healthz: status %d", status)
	}
	if body.Status["postgres"] != "memory" || body.Status["redis"] != "memory" {
		t.Fatalf("unexpected health %+v", body.Status)
	}
}

// onboard signs an operator up on c's device and completes the profile.
func onboard(t *testing.T, c *client, email string) (token, uid string) {
	t.Helper()
	var signUp struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	creds := map[string]string{"email": email, "password": "secret1"}
	if status := c.do(fiber.MethodPost, "/api/v1/auth/sign-up", creds, &signUp); status != fiber.StatusCreated {
		t.Fatalf("sign up: status %d", status)
	}
	authed := c.as(c.device, signUp.AccessToken)
	onboarding := map[string]string{
		"owner_name":           "John Doe",
		"vehicle_registration": "KDC 123A",
		"phone_number":         "0712345678",
		"mpesa_short_code":     "123456",
	}
	if status := authed.do(fiber.MethodPost, "/api/v1/profile", onboarding, nil); status != fiber.StatusCreated {
		t.Fatalf("create profile: status %d", status)
	}
	return signUp.AccessToken, signUp.UserID
}

func TestSessionHidesAccountWithoutToken(t *testing.T) {
	c, _ := newClient(t)
	token, uid := onboard(t, c, "owner@example.com")

	var owner map[string]any
	if status := c.as(defaultDevice, token).do(fiber.MethodGet, "/api/v1/session", nil, &owner); status != fiber.StatusOK {
		t.Fatalf("session: status %d", status)
	}
	if owner["user_id"] != uid || owner["profile"] == nil {
		t.Fatalf("expected owner to see the full session, got %v", owner)
	}

	var stranger map[string]any
	if status := c.as(defaultDevice, "").do(fiber.MethodGet, "/api/v1/session", nil, &stranger); status != fiber.StatusOK {
		t.Fatalf("session: status %d", status)
	}
	if stranger["decision"] != "ACTIVE" || stranger["target"] != "(app)" {
		t.Fatalf("expected the decision to stay visible, got %v", stranger)
	}
	for _, key := range []string{"user_id", "email", "profile", "pending", "path"} {
		if v, ok := stranger[key]; ok && v != "" {
			t.Fatalf("expected %s to be hidden, got %v", key, v)
		}
	}

	// Another operator's token does not unlock this device either.
	otherToken, _ := onboard(t, c.as("phone-2", ""), "other@example.com")
	if status := c.as(defaultDevice, otherToken).do(fiber.MethodGet, "/api/v1/session", nil, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("expected a token for another device to be rejected, got %d", status)
	}
}

func TestSessionMutationsRequireOwner(t *testing.T) {
	c, _ := newClient(t)
	token, _ := onboard(t, c, "owner@example.com")
	stranger := c.as(defaultDevice, "")

	if status := stranger.do(fiber.MethodPut, "/api/v1/session/location", map[string]string{"path": "/(auth)/login"}, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("locate: expected 401, got %d", status)
	}
	if status := stranger.do(fiber.MethodPost, "/api/v1/session/acknowledge", nil, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("acknowledge: expected 401, got %d", status)
	}
	if status := stranger.do(fiber.MethodPost, "/api/v1/session/reload", nil, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("reload: expected 401, got %d", status)
	}
	if status := stranger.do(fiber.MethodGet, "/api/v1/session", nil, nil); status != fiber.StatusOK {
		t.Fatalf("get: expected read of the decision to work, got %d", status)
	}

	var view sessionView
	owner := c.as(defaultDevice, token)
	if status := owner.do(fiber.MethodPut, "/api/v1/session/location", map[string]string{"path": "/(app)/routes"}, &view); status != fiber.StatusOK {
		t.Fatalf("owner locate: status %d", status)
	}
	if view.Decision != "ACTIVE" {
		t.Fatalf("unexpected owner view %+v", view)
	}
}

func TestSessionWithoutDeviceHoldsNoGate(t *testing.T) {
	c, _ := newClient(t)
	anon := c.as("", "")
	before := c.rt.Sessions.Len()

	for i := 0; i < 50; i++ {
		var view sessionView
		if status := anon.do(fiber.MethodGet, "/api/v1/session", nil, &view); status != fiber.StatusOK {
			t.Fatalf("session: status %d", status)
		}
		if view.Decision != "UNAUTHENTICATED" {
			t.Fatalf("expected a signed-out view, got %+v", view)
		}
	}
	// A spoofed request id must not reach a real device either.
	spoofed := map[string]string{"X-Request-ID": defaultDevice}
	if status := anon.send(fiber.MethodPost, "/api/v1/session/reload", nil, spoofed, nil); status != fiber.StatusOK {
		t.Fatalf("reload: status %d", status)
	}
	if got := c.rt.Sessions.Len(); got != before {
		t.Fatalf("expected anonymous requests to hold no gates, went from %d to %d", before, got)
	}

	creds := map[string]string{"email": "a@b.co", "password": "secret1"}
	if status := anon.do(fiber.MethodPost, "/api/v1/auth/sign-up", creds, nil); status != fiber.StatusCreated {
		t.Fatalf("sign up: status %d", status)
	}
	if status := anon.do(fiber.MethodPost, "/api/v1/auth/login", creds, nil); status != fiber.StatusBadRequest {
		t.Fatalf("expected login without a device to be rejected, got %d", status)
	}
}

func TestLoginCannotBindAnotherDevice(t *testing.T) {
	c, _ := newClient(t)
	victim := c.as("victim-phone", "")
	var view sessionView
	victim.do(fiber.MethodGet, "/api/v1/session", nil, &view)

	attacker := c.as("attacker-phone", "")
	creds := map[string]string{"email": "attacker@example.com", "password": "secret1", "device_id": "victim-phone"}
	if status := attacker.do(fiber.MethodPost, "/api/v1/auth/sign-up", creds, nil); status != fiber.StatusBadRequest {
		t.Fatalf("expected mismatched device_id to be rejected on sign-up, got %d", status)
	}
	delete(creds, "device_id")
	if status := attacker.do(fiber.MethodPost, "/api/v1/auth/sign-up", creds, nil); status != fiber.StatusCreated {
		t.Fatalf("sign up: status %d", status)
	}
	creds["device_id"] = "victim-phone"
	if status := attacker.do(fiber.MethodPost, "/api/v1/auth/login", creds, nil); status != fiber.StatusBadRequest {
		t.Fatalf("expected mismatched device_id to be rejected on login, got %d", status)
	}

	if status := victim.do(fiber.MethodGet, "/api/v1/session", nil, &view); status != fiber.StatusOK {
		t.Fatalf("session: status %d", status)
	}
	if view.Decision != "UNAUTHENTICATED" {
		t.Fatalf("expected victim device to stay signed out, got %+v", view)
	}

	// Naming the header's own device in the body is fine.
	creds["device_id"] = "attacker-phone"
	if status := attacker.do(fiber.MethodPost, "/api/v1/auth/login", creds, nil); status != fiber.StatusOK {
		t.Fatalf("login: status %d", status)
	}
}

func TestCallbackRequiresSignature(t *testing.T) {
	c, rec := newClient(t)
	token, uid := onboard(t, c, "owner@example.com")
	payment := map[string]any{
		"mpesa_receipt_number": "forged1",
		"amount_paid":          5000,
	}

	if status := c.send(fiber.MethodPost, "/api/v1/payments/callback/"+uid, payment, nil, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("expected unsigned callback to be rejected, got %d", status)
	}
	if status := c.callback(uid, "wrong-secret", payment); status != fiber.StatusUnauthorized {
		t.Fatalf("expected wrongly signed callback to be rejected, got %d", status)
	}
	if _, ok := rec.Last(notification.KindPaymentReceived); ok {
		t.Fatalf("forged callbacks must not notify the operator")
	}

	var report struct {
		TransactionCount int `json:"transaction_count"`
	}
	if status := c.as(defaultDevice, token).do(fiber.MethodGet, "/api/v1/reports?timeframe=today", nil, &report); status != fiber.StatusOK {
		t.Fatalf("report: status %d", status)
	}
	if report.TransactionCount != 0 {
		t.Fatalf("expected nothing recorded, got %d payments", report.TransactionCount)
	}
}
