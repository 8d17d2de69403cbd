package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/naulify/naulify/internal/logging"
	"github.com/naulify/naulify/internal/notification"
)

const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrDeviceRequired     = errors.New("device id is required")
)

// Service manages accounts and which identity is signed in on each device.
type Service struct {
	repo     Repository
	tokens   TokenStore
	notifier notification.Notifier
	tokenTTL time.Duration
	logger   *slog.Logger
	devices  *devices
	now      func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, tokens TokenStore, notifier notification.Notifier, tokenTTL time.Duration, logger *slog.Logger) *Service {
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Service{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		tokenTTL: tokenTTL,
		logger:   logging.Component(logger, "identity"),
		devices:  newDevices(),
		now:      time.Now,
	}
}

// SignUp creates an account, sends a verification email and signs the new
// user in on the device.
func (s *Service) SignUp(ctx context.Context, creds Credentials) (User, error) {
	if err := validateCredentials(creds); err != nil {
		return User{}, err
	}
	if len(creds.Password) < minPasswordLength {
		return User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.New().String(),
		Email:        normalizeEmail(creds.Email),
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Warn("send verification failed", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	if creds.DeviceID != "" {
		s.devices.set(creds.DeviceID, user.Identity())
	}
	return user, nil
}

// SignIn verifies credentials and signs the user in on the device. Unknown
// accounts and wrong passwords are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, creds Credentials) (User, error) {
	if err := validateCredentials(creds); err != nil {
		return User{}, err
	}
	if creds.DeviceID == "" {
		return User{}, ErrDeviceRequired
	}

	user, err := s.repo.FindByEmail(ctx, creds.Email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("record login failed", slog.String("user_id", user.ID), slog.Any("error", err))
	} else {
		user.LastLogin = &now
	}

	s.devices.set(creds.DeviceID, user.Identity())
	return user, nil
}

// SignOut clears whatever identity is signed in on the device.
func (s *Service) SignOut(deviceID string) {
	s.devices.set(deviceID, nil)
}

// Current returns the identity signed in on the device, or nil.
func (s *Service) Current(deviceID string) *Identity {
	return s.devices.get(deviceID)
}

// Feed returns the identity-change stream for the device.
func (s *Service) Feed(deviceID string) Feed {
	return Feed{devices: s.devices, device: deviceID}
}

// User looks up an account by id.
func (s *Service) User(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// RequestPasswordReset emails a reset token when the account exists. It
// reports success either way so callers cannot tell which emails are
// registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrMissingCredentials
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		s.logger.Info("password reset requested", slog.Bool("account_found", false))
		return nil
	}
	token, err := s.tokens.Issue(ctx, PurposePasswordReset, user.ID, s.tokenTTL)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindPasswordReset,
		Destination: user.Email,
		Subject:     "Reset your password",
		Body:        "Use the link in this email to choose a new password.",
		Token:       token,
	})
	return nil
}

// ResetPassword consumes a reset token and sets a new password. Existing
// sessions for the account are signed out.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	userID, err := s.tokens.Consume(ctx, PurposePasswordReset, token)
	if err != nil {
		return err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	return s.RevokeTokens(ctx, user.ID)
}

// RevokeTokens invalidates every token issued to the user and signs the user
// out of all devices.
func (s *Service) RevokeTokens(ctx context.Context, userID string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1); err != nil {
		return err
	}
	s.devices.clearUser(user.ID)
	return nil
}

// SendVerification re-sends the verification email for an unverified account.
func (s *Service) SendVerification(ctx context.Context, userID string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}
	return s.sendVerification(ctx, user)
}

// VerifyEmail consumes a verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.tokens.Consume(ctx, PurposeVerifyEmail, token)
	if err != nil {
		return err
	}
	return s.repo.MarkEmailVerified(ctx, userID)
}

func (s *Service) sendVerification(ctx context.Context, user User) error {
	token, err := s.tokens.Issue(ctx, PurposeVerifyEmail, user.ID, s.tokenTTL)
	if err != nil {
		return err
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindEmailVerification,
		Destination: user.Email,
		Subject:     "Verify your email",
		Body:        "Confirm your email address to finish setting up your account.",
		Token:       token,
	})
	return nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}

func validateCredentials(creds Credentials) error {
	email := strings.TrimSpace(creds.Email)
	if email == "" || creds.Password == "" {
		return ErrMissingCredentials
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// Strength is a coarse password strength rating.
type Strength struct {
	Score int    `json:"score"`
	Label string `json:"label"`
}

// PasswordStrength scores one point each for length >= 8, an upper-case
// letter, a digit and a symbol.
func PasswordStrength(password string) Strength {
	if password == "" {
		return Strength{}
	}
	var score int
	if len(password) >= 8 {
		score++
	}
	var upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'a' && r <= 'z':
		default:
			symbol = true
		}
	}
	for _, ok := range []bool{upper, digit, symbol} {
		if ok {
			score++
		}
	}
	labels := [...]string{"", "Weak", "Fair", "Good", "Strong"}
	return Strength{Score: score, Label: labels[score]}
}
