package gateway

import (
	"context"
	"time"
)

// Hosted covers processors integrated through webhooks only. There is
// no server-side API client, so the stored expiration is authoritative
// and charge retries wait for the processor's own dunning cycle.
type Hosted struct {
	name string
}

func NewHosted(name string) *Hosted { return &Hosted{name: name} }

func (g *Hosted) Name() string { return g.name }

func (g *Hosted) CanCancel(Profile) bool { return false }

func (g *Hosted) Cancel(context.Context, Profile, bool) error { return ErrNotSupported }

func (g *Hosted) GetExpiration(_ context.Context, p Profile) (time.Time, error) {
	return p.Expiration, nil
}

func (g *Hosted) CanRetry(Profile) bool { return false }

func (g *Hosted) Retry(context.Context, Profile) error { return ErrNotSupported }
