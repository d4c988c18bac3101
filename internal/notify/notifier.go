package notify

import "palcro/internal/events"

// Notifier is the fire-and-forget side channel the license service talks
// to. Implementations must never block the caller on delivery and never
// report failure back; a dropped notification is a logged warning, not an
// error the license decision can see.
type Notifier interface {
	KeyIssued(ev events.KeyIssued)
	KeyBound(ev events.KeyBound)
}

// Nop is used when no webhook is configured.
type Nop struct{}

func (Nop) KeyIssued(events.KeyIssued) {}
func (Nop) KeyBound(events.KeyBound)   {}
