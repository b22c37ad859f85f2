package fitness

import "github.com/pthm-cable/strider/physics"

// ContactTracker keeps edge-triggered ground contact flags from the
// physics world's begin/end events.
type ContactTracker struct {
	touching map[physics.BodyID]bool
}

// NewContactTracker returns a tracker with every flag down.
func NewContactTracker() *ContactTracker {
	return &ContactTracker{touching: make(map[physics.BodyID]bool)}
}

// Apply consumes events in order.
func (c *ContactTracker) Apply(events []physics.ContactEvent) {
	for _, ev := range events {
		switch ev.Kind {
		case physics.ContactBegin:
			c.touching[ev.Body] = true
		case physics.ContactEnd:
			delete(c.touching, ev.Body)
		}
	}
}

// Touching reports whether the body touches the ground.
func (c *ContactTracker) Touching(id physics.BodyID) bool {
	return c.touching[id]
}

// Count returns the number of bodies touching the ground.
func (c *ContactTracker) Count() int {
	return len(c.touching)
}
