package rate_limiter

import (
	"testing"
	"time"
)

func TestLimiter_BurstPerVisitor(t *testing.T) {
	l := New(1, 2)

	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") {
		t.Fatal("expected the burst to be allowed")
	}
	if l.Allow("10.0.0.1") {
		t.Error("expected the third request to be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("another client must have its own bucket")
	}
}

func TestLimiter_CleanupForgetsIdleVisitors(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(1, 1)
	l.now = func() time.Time { return now }

	l.GetVisitor("idle")
	now = now.Add(10 * time.Minute)
	l.GetVisitor("busy")
	l.cleanup()

	if _, ok := l.visitors["idle"]; ok {
		t.Error("expected idle visitor to be removed")
	}
	if _, ok := l.visitors["busy"]; !ok {
		t.Error("expected recent visitor to be kept")
	}

	l.CleanupAllVisitors()
	if len(l.visitors) != 0 {
		t.Errorf("expected no visitors, got %d", len(l.visitors))
	}
}
