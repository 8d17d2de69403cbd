package session

import (
	"strings"

	"github.com/naulify/naulify/internal/identity"
	"github.com/naulify/naulify/internal/profile"
)

// Group is a top-level navigation area.
type Group string

const (
	GroupNone       Group = ""
	GroupAuth       Group = "(auth)"
	GroupOnboarding Group = "onboarding"
	GroupApp        Group = "(app)"
)

// GroupOf returns the group a location path such as "/(app)/routes/form"
// belongs to. Unknown paths belong to no group.
func GroupOf(path string) Group {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	first, _, _ := strings.Cut(path, "/")
	switch g := Group(first); g {
	case GroupAuth, GroupOnboarding, GroupApp:
		return g
	default:
		return GroupNone
	}
}

// DefaultPath is where a replace into the group lands.
func (g Group) DefaultPath() string {
	switch g {
	case GroupAuth:
		return "/(auth)/login"
	case GroupOnboarding:
		return "/onboarding"
	case GroupApp:
		return "/(app)"
	default:
		return "/"
	}
}

// Decision is the collapsed session state that drives navigation.
type Decision int

const (
	Initializing Decision = iota
	Unauthenticated
	NeedsOnboarding
	Active
)

func (d Decision) String() string {
	switch d {
	case Initializing:
		return "INITIALIZING"
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case NeedsOnboarding:
		return "NEEDS_ONBOARDING"
	case Active:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the decision by name.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Target is the group the decision requires. Initializing requires none.
func (d Decision) Target() Group {
	switch d {
	case Unauthenticated:
		return GroupAuth
	case NeedsOnboarding:
		return GroupOnboarding
	case Active:
		return GroupApp
	default:
		return GroupNone
	}
}

// State is a snapshot of a device's session. Readers must treat the
// pointed-to values as read-only.
type State struct {
	Identity *identity.Identity
	Profile  *profile.Profile
	Loading  bool
}

// Decision collapses the state. A profile without an identity is ignored.
func (s State) Decision() Decision {
	switch {
	case s.Loading:
		return Initializing
	case s.Identity == nil:
		return Unauthenticated
	case s.Profile == nil:
		return NeedsOnboarding
	default:
		return Active
	}
}

// Transition reports the group to replace the current location with, if any.
// It compares groups, not paths: a device anywhere inside the required group
// stays where it is.
func Transition(current Group, st State) (Group, bool) {
	d := st.Decision()
	if d == Initializing {
		return current, false
	}
	target := d.Target()
	if target == current {
		return current, false
	}
	return target, true
}
