package realtime

import (
	"testing"
	"time"
)

func newTestGate(cooldown time.Duration) (*responseGate, *time.Time) {
	now := time.Unix(1700000000, 0)
	g := newResponseGate(cooldown)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestGateAdmitsFirstResponse(t *testing.T) {
	g, _ := newTestGate(1200 * time.Millisecond)
	if !g.admit("resp_1") {
		t.Fatalf("first response refused")
	}
}

func TestGateRefusesWhileInFlight(t *testing.T) {
	g, now := newTestGate(1200 * time.Millisecond)
	if !g.admit("resp_1") {
		t.Fatalf("first response refused")
	}
	*now = now.Add(5 * time.Second)
	if g.admit("resp_2") {
		t.Fatalf("second response admitted while first in flight")
	}
}

func TestGateRefusesWithinCooldown(t *testing.T) {
	g, now := newTestGate(1200 * time.Millisecond)
	if !g.admit("resp_1") {
		t.Fatalf("first response refused")
	}
	if !g.complete("resp_1") {
		t.Fatalf("complete(resp_1) = false")
	}
	*now = now.Add(800 * time.Millisecond)
	if g.admit("resp_2") {
		t.Fatalf("response admitted within cooldown")
	}
}

func TestGateAdmitsAfterCooldown(t *testing.T) {
	g, now := newTestGate(1200 * time.Millisecond)
	g.admit("resp_1")
	g.complete("resp_1")
	*now = now.Add(1201 * time.Millisecond)
	if !g.admit("resp_2") {
		t.Fatalf("response refused after cooldown elapsed")
	}
}

func TestGateCompleteIgnoresUnknownID(t *testing.T) {
	g, _ := newTestGate(1200 * time.Millisecond)
	g.admit("resp_1")
	if g.complete("resp_other") {
		t.Fatalf("complete accepted a non-current id")
	}
	if g.complete("") {
		t.Fatalf("complete accepted empty id")
	}
	if !g.complete("resp_1") {
		t.Fatalf("complete rejected the current id")
	}
}

func TestGateResetClearsState(t *testing.T) {
	g, _ := newTestGate(1200 * time.Millisecond)
	g.admit("resp_1")
	g.reset()
	if !g.admit("resp_2") {
		t.Fatalf("response refused after reset")
	}
}
