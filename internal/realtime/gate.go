package realtime

import (
	"sync"
	"time"
)

// responseGate enforces single-response admission with a cooldown. The
// provider's server-side VAD can fire back-to-back response.created events
// when it mistakes a pause for a turn boundary; admitting both would make
// synthesized speech interrupt itself. The gate admits at most one
// in-flight response and refuses anything arriving within the cooldown of
// the last admission.
type responseGate struct {
	mu           sync.Mutex
	cooldown     time.Duration
	currentID    string
	lastAccepted time.Time
	now          func() time.Time
}

func newResponseGate(cooldown time.Duration) *responseGate {
	return &responseGate{cooldown: cooldown, now: time.Now}
}

// admit reports whether the response id may proceed. A refusal means the
// caller must actively cancel the response.
func (g *responseGate) admit(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentID != "" {
		return false
	}
	if !g.lastAccepted.IsZero() && g.now().Sub(g.lastAccepted) < g.cooldown {
		return false
	}
	g.currentID = id
	g.lastAccepted = g.now()
	return true
}

// complete clears the in-flight id if it matches; reports whether it did.
// A done event for a cancelled (never admitted) response is a no-op.
func (g *responseGate) complete(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == "" || id != g.currentID {
		return false
	}
	g.currentID = ""
	return true
}

func (g *responseGate) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentID = ""
	g.lastAccepted = time.Time{}
}
