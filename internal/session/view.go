package session

import (
	"context"

	"github.com/naulify/naulify/internal/profile"
)

// View is what a client is told about its session.
type View struct {
	Decision Decision         `json:"decision"`
	Target   Group            `json:"target"`
	Path     string           `json:"path"`
	UserID   string           `json:"user_id,omitempty"`
	Email    string           `json:"email,omitempty"`
	Verified bool             `json:"email_verified"`
	Profile  *profile.Profile `json:"profile,omitempty"`
	Pending  *Navigation      `json:"pending,omitempty"`
}

// Public strips everything but the navigation decision, for callers that
// have not proven they own the signed-in account.
func (v View) Public() View {
	return View{Decision: v.Decision, Target: v.Target}
}

// View reports the device's current session.
func (d *Device) View() View {
	st := d.Gate.State()
	v := View{
		Decision: st.Decision(),
		Target:   st.Decision().Target(),
		Path:     d.Location.Path(),
		Profile:  st.Profile,
		Pending:  d.Location.Pending(),
	}
	if st.Identity != nil {
		v.UserID = st.Identity.ID
		v.Email = st.Identity.Email
		v.Verified = st.Identity.EmailVerified
	}
	return v
}

// Settle waits until the device's gate has resolved and returns its view. If
// ctx ends first the returned view is still loading.
func (m *Manager) Settle(ctx context.Context, deviceID string) (View, error) {
	d, err := m.Device(deviceID)
	if err != nil {
		return View{}, err
	}
	_, err = d.Gate.Await(ctx)
	return d.View(), err
}
