package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/naulify/naulify/internal/logging"
	"github.com/naulify/naulify/internal/notification"
)

func newTestService(t *testing.T) (*Service, *notification.Recorder) {
	t.Helper()
	rec := &notification.Recorder{}
	svc := NewService(NewMemoryRepository(), NewMemoryTokenStore(), rec, time.Hour, logging.Discard())
	return svc, rec
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, Credentials{Email: "Owner@Example.com", Password: "secret1", DeviceID: "phone-1"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if user.Email != "owner@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}
	if _, ok := rec.Last(notification.KindEmailVerification); !ok {
		t.Fatalf("expected verification email")
	}
	if cur := svc.Current("phone-1"); cur == nil || cur.ID != user.ID {
		t.Fatalf("expected sign up to sign in on device, got %+v", cur)
	}

	authed, err := svc.SignIn(ctx, Credentials{Email: "owner@example.com", Password: "secret1", DeviceID: "phone-2"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if authed.LastLogin == nil {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, Credentials{Email: "a@b.co", Password: "secret1"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	cases := []struct {
		name  string
		creds Credentials
		want  error
	}{
		{"wrong password", Credentials{Email: "a@b.co", Password: "nope123", DeviceID: "d"}, ErrInvalidCredentials},
		{"unknown user", Credentials{Email: "x@b.co", Password: "secret1", DeviceID: "d"}, ErrInvalidCredentials},
		{"missing fields", Credentials{Email: "", Password: "", DeviceID: "d"}, ErrMissingCredentials},
		{"bad email", Credentials{Email: "not-an-email", Password: "secret1", DeviceID: "d"}, ErrInvalidEmail},
		{"no device", Credentials{Email: "a@b.co", Password: "secret1"}, ErrDeviceRequired},
	}
	for _, tc := range cases {
		if _, err := svc.SignIn(ctx, tc.creds); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, Credentials{Email: "a@b.co", Password: "123"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	if _, err := svc.SignUp(ctx, Credentials{Email: "a@b.co", Password: "secret1"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := svc.SignUp(ctx, Credentials{Email: "A@B.co", Password: "secret1"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestFeedDeliversInitialAndChanges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var events []*Identity
	unsubscribe := svc.Feed("phone-1").Subscribe(func(id *Identity) {
		events = append(events, id)
	})

	user, err := svc.SignUp(ctx, Credentials{Email: "a@b.co", Password: "secret1", DeviceID: "phone-1"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	// Other devices do not leak into this feed.
	if _, err := svc.SignIn(ctx, Credentials{Email: "a@b.co", Password: "secret1", DeviceID: "phone-2"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	svc.SignOut("phone-1")
	svc.SignOut("phone-1")

	unsubscribe()
	unsubscribe()
	if _, err := svc.SignIn(ctx, Credentials{Email: "a@b.co", Password: "secret1", DeviceID: "phone-1"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected initial, sign-in and sign-out events, got %d", len(events))
	}
	if events[0] != nil || events[1] == nil || events[1].ID != user.ID || events[2] != nil {
		t.Fatalf("unexpected event sequence: %+v", events)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, Credentials{Email: "a@b.co", Password: "secret1", DeviceID: "phone-1"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	if err := svc.RequestPasswordReset(ctx, "missing@b.co"); err != nil {
		t.Fatalf("unknown email should still succeed: %v", err)
	}
	if _, ok := rec.Last(notification.KindPasswordReset); ok {
		t.Fatalf("no reset mail expected for unknown account")
	}

	if err := svc.RequestPasswordReset(ctx, "a@b.co"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	msg, ok := rec.Last(notification.KindPasswordReset)
	if !ok {
		t.Fatalf("expected reset mail")
	}
	if err := svc.ResetPassword(ctx, msg.Token, "newsecret"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := svc.ResetPassword(ctx, msg.Token, "again123"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token to be single use, got %v", err)
	}
	if svc.Current("phone-1") != nil {
		t.Fatalf("expected reset to sign out existing devices")
	}
	if _, err := svc.SignIn(ctx, Credentials{Email: "a@b.co", Password: "newsecret", DeviceID: "phone-1"}); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
}

func TestVerifyEmail(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	user, err := svc.SignUp(ctx, Credentials{Email: "a@b.co", Password: "secret1"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	msg, _ := rec.Last(notification.KindEmailVerification)
	if err := svc.VerifyEmail(ctx, msg.Token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	fetched, err := svc.User(ctx, user.ID)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if !fetched.EmailVerified {
		t.Fatalf("expected email to be verified")
	}
}

func TestRedisTokenStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	store := NewRedisTokenStore(cache)
	ctx := context.Background()
	token, err := store.Issue(ctx, PurposeVerifyEmail, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := store.Consume(ctx, PurposePasswordReset, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected purpose mismatch to fail, got %v", err)
	}
	uid, err := store.Consume(ctx, PurposeVerifyEmail, token)
	if err != nil || uid != "user-1" {
		t.Fatalf("consume: uid=%q err=%v", uid, err)
	}

	expiring, _ := store.Issue(ctx, PurposeVerifyEmail, "user-2", time.Minute)
	mr.FastForward(2 * time.Minute)
	if _, err := store.Consume(ctx, PurposeVerifyEmail, expiring); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestPasswordStrength(t *testing.T) {
	cases := map[string]Strength{
		"":          {},
		"abc":       {Score: 0, Label: ""},
		"abcdefgh":  {Score: 1, Label: "Weak"},
		"Abcdefgh":  {Score: 2, Label: "Fair"},
		"Abcdefg1":  {Score: 3, Label: "Good"},
		"Abcdefg1!": {Score: 4, Label: "Strong"},
		"short1!":   {Score: 2, Label: "Fair"},
	}
	for in, want := range cases {
		if got := PasswordStrength(in); got != want {
			t.Fatalf("PasswordStrength(%q) = %+v, want %+v", in, got, want)
		}
	}
}
