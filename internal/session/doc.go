// Package session decides which top-level area a client device must show.
//
// A Gate holds the device's session state: the signed-in identity, that
// identity's PSV profile and a loading flag. Two triggers change it: an
// identity change from the identity provider, and an explicit Reload after
// the profile was edited. Every trigger takes a new generation. A profile
// fetch whose generation is no longer current is dropped when it arrives, so
// a slow lookup for a signed-out user never overwrites the newer state.
//
// After every commit the gate compares the required area with the one the
// device's Navigator reports and, when they differ, replaces the location.
// Nothing is navigated while loading.
package session
