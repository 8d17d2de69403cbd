package profile

import (
	"fmt"
	"strings"
	"time"
)

// VehicleType is the kind of PSV the operator runs.
type VehicleType string

const (
	VehicleVan     VehicleType = "van"
	VehicleBus     VehicleType = "bus"
	VehicleMiniBus VehicleType = "mini-bus"
)

// ParseVehicleType validates v. An empty value defaults to bus, matching the
// onboarding form's initial selection.
func ParseVehicleType(v string) (VehicleType, error) {
	switch VehicleType(strings.ToLower(strings.TrimSpace(v))) {
	case "":
		return VehicleBus, nil
	case VehicleVan:
		return VehicleVan, nil
	case VehicleBus:
		return VehicleBus, nil
	case VehicleMiniBus:
		return VehicleMiniBus, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVehicleType, v)
	}
}

// Profile is a PSV operator's business profile. It exists once onboarding is
// complete.
type Profile struct {
	UID                 string      `json:"uid"`
	OwnerName           string      `json:"owner_name"`
	VehicleRegistration string      `json:"vehicle_registration"`
	VehicleType         VehicleType `json:"vehicle_type"`
	PhoneNumber         string      `json:"phone_number"`
	MpesaShortCode      string      `json:"mpesa_short_code"`
	CreatedAt           time.Time   `json:"created_at"`
}

// CreateInput carries the onboarding form.
type CreateInput struct {
	OwnerName           string
	VehicleRegistration string
	VehicleType         string
	PhoneNumber         string
	MpesaShortCode      string
}

// UpdateInput carries a partial edit; nil fields are left unchanged.
type UpdateInput struct {
	OwnerName           *string
	VehicleRegistration *string
	VehicleType         *string
	PhoneNumber         *string
	MpesaShortCode      *string
}
