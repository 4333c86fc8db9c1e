package notify

import "context"

// Notifier is the outbound notification sink. Delivery is fire-and-forget:
// callers log failures but never fail a run on them.
type Notifier interface {
	Notify(ctx context.Context, summary string) error
}

// Nop discards notifications, used when no sink is configured.
type Nop struct{}

func (Nop) Notify(ctx context.Context, summary string) error { return nil }
