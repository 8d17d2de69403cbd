package profile

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound means no profile exists for the user; onboarding is not done.
	ErrNotFound = errors.New("profile not found")
	// ErrUnavailable marks a storage or transport failure, as opposed to a
	// profile that is genuinely absent.
	ErrUnavailable = errors.New("profile store unavailable")
	// ErrExists is returned when onboarding runs twice for the same user.
	ErrExists = errors.New("profile already exists")
	// ErrIncomplete is returned when a required field is blank.
	ErrIncomplete = errors.New("please fill in all fields")
	// ErrInvalidVehicleType rejects vehicle types outside van, bus, mini-bus.
	ErrInvalidVehicleType = errors.New("invalid vehicle type")
)

// Service manages PSV profiles.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a profile service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns the profile for uid.
func (s *Service) Get(ctx context.Context, uid string) (Profile, error) {
	return s.repo.Get(ctx, uid)
}

// FetchProfile satisfies the session gate's profile lookup.
func (s *Service) FetchProfile(ctx context.Context, uid string) (Profile, error) {
	return s.repo.Get(ctx, uid)
}

// Create completes onboarding for uid.
func (s *Service) Create(ctx context.Context, uid string, input CreateInput) (Profile, error) {
	vt, err := ParseVehicleType(input.VehicleType)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		UID:                 uid,
		OwnerName:           strings.TrimSpace(input.OwnerName),
		VehicleRegistration: normalizePlate(input.VehicleRegistration),
		VehicleType:         vt,
		PhoneNumber:         strings.TrimSpace(input.PhoneNumber),
		MpesaShortCode:      strings.TrimSpace(input.MpesaShortCode),
		CreatedAt:           s.now().UTC(),
	}
	if err := validate(p); err != nil {
		return Profile{}, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Update applies a partial edit to an existing profile.
func (s *Service) Update(ctx context.Context, uid string, input UpdateInput) (Profile, error) {
	p, err := s.repo.Get(ctx, uid)
	if err != nil {
		return Profile{}, err
	}
	if input.OwnerName != nil {
		p.OwnerName = strings.TrimSpace(*input.OwnerName)
	}
	if input.VehicleRegistration != nil {
		p.VehicleRegistration = normalizePlate(*input.VehicleRegistration)
	}
	if input.PhoneNumber != nil {
		p.PhoneNumber = strings.TrimSpace(*input.PhoneNumber)
	}
	if input.MpesaShortCode != nil {
		p.MpesaShortCode = strings.TrimSpace(*input.MpesaShortCode)
	}
	if input.VehicleType != nil {
		vt, err := ParseVehicleType(*input.VehicleType)
		if err != nil {
			return Profile{}, err
		}
		p.VehicleType = vt
	}
	if err := validate(p); err != nil {
		return Profile{}, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func validate(p Profile) error {
	if p.OwnerName == "" || p.VehicleRegistration == "" || p.MpesaShortCode == "" || p.PhoneNumber == "" {
		return ErrIncomplete
	}
	return nil
}

// normalizePlate upper-cases registrations such as "kdc 123a".
func normalizePlate(v string) string {
	return strings.ToUpper(strings.Join(strings.Fields(v), " "))
}
