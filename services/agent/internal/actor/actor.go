// Package actor decides who the agent acts as: the signed-in user when a
// session is live, the anonymous device otherwise.
package actor

import (
	"context"

	"github.com/diagnosis/ukrbe-market/internal/device"
	"github.com/diagnosis/ukrbe-market/internal/otp"
)

type Actor struct {
	gate   *otp.Gate
	device *device.Identity
}

func New(gate *otp.Gate, identity *device.Identity) *Actor {
	return &Actor{gate: gate, device: identity}
}

// OwnerID is stamped on new listings.
func (a *Actor) OwnerID(ctx context.Context) (string, error) {
	if id := a.gate.UserID(ctx); id != "" {
		return id, nil
	}
	return a.device.AnonymousID(ctx)
}

func (a *Actor) Token(ctx context.Context) string {
	s, ok, err := a.gate.Session(ctx)
	if err != nil || !ok {
		return ""
	}
	return s.Token
}

func (a *Actor) AnonymousID(ctx context.Context) (string, error) {
	return a.device.AnonymousID(ctx)
}
