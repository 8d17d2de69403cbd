package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/naulify/naulify/internal/config"
	"github.com/naulify/naulify/internal/identity"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token invalidated")
)

// Accounts is the part of the identity service tokens depend on.
type Accounts interface {
	User(ctx context.Context, id string) (identity.User, error)
	RevokeTokens(ctx context.Context, userID string) error
	SignOut(deviceID string)
}

// Claims are carried by both access and refresh tokens.
type Claims struct {
	DeviceID string `json:"dev"`
	Version  int    `json:"ver"`
	jwt.RegisteredClaims
}

type Service struct {
	cfg      config.Config
	accounts Accounts
	now      func() time.Time
}

func NewService(cfg config.Config, accounts Accounts) *Service {
	return &Service{cfg: cfg, accounts: accounts, now: time.Now}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues a token pair for an already authenticated user on a device.
func (s *Service) Login(user identity.User, deviceID string) (TokenPair, error) {
	access, err := s.sign(user.ID, deviceID, user.TokenVersion, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user.ID, deviceID, user.TokenVersion, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(userID, deviceID string, version int, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		DeviceID: deviceID,
		Version:  version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Service) parse(token, secret string) (Claims, error) {
	var claims Claims
	key := func(*jwt.Token) (any, error) { return []byte(secret), nil }
	_, err := jwt.ParseWithClaims(token, &claims, key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// current checks that the token's version still matches the account.
func (s *Service) current(ctx context.Context, claims Claims) error {
	user, err := s.accounts.User(ctx, claims.Subject)
	if err != nil {
		return ErrTokenRevoked
	}
	if user.TokenVersion != claims.Version {
		return ErrTokenRevoked
	}
	return nil
}

// Verify validates an access token and its version.
func (s *Service) Verify(ctx context.Context, token string) (Claims, error) {
	claims, err := s.parse(token, s.cfg.JWTSecret)
	if err != nil {
		return Claims{}, err
	}
	if err := s.current(ctx, claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.parse(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	if err := s.current(ctx, claims); err != nil {
		return "", 0, err
	}
	signed, err := s.sign(claims.Subject, claims.DeviceID, claims.Version, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments the token version so older tokens become invalid and
// signs the account out of its devices.
func (s *Service) Logout(ctx context.Context, userID, deviceID string) error {
	if err := s.accounts.RevokeTokens(ctx, userID); err != nil {
		return err
	}
	if deviceID != "" {
		s.accounts.SignOut(deviceID)
	}
	return nil
}
