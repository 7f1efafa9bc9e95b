package supervisor

import (
	"context"
	"testing"
	"time"
)

func TestTimeoutFor_NoDeadlineFallsBackToOneMinute(t *testing.T) {
	if got := timeoutFor(context.Background()); got != time.Minute {
		t.Fatalf("timeoutFor(no deadline) = %v, want 1m", got)
	}
}

func TestTimeoutFor_TracksRemainingCycleTime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := timeoutFor(ctx)
	if got <= 0 || got > 5*time.Second {
		t.Fatalf("timeoutFor = %v, want in (0, 5s]", got)
	}
}

func TestTimeoutFor_ExpiredDeadlineNeverReturnsZeroOrNegative(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	if got := timeoutFor(ctx); got <= 0 {
		t.Fatalf("timeoutFor(expired) = %v, want > 0", got)
	}
}

func TestLastTag_SetAndGet(t *testing.T) {
	var lt lastTag

	if _, has := lt.get(); has {
		t.Fatal("expected no tag recorded initially")
	}

	lt.set(42)
	tag, has := lt.get()
	if !has || tag != 42 {
		t.Fatalf("get() = (%d, %v), want (42, true)", tag, has)
	}
}

func TestLastTag_ClearIfMatchResolvesOutstandingTag(t *testing.T) {
	var lt lastTag

	lt.set(7)
	lt.clearIfMatch(7)

	if _, has := lt.get(); has {
		t.Fatal("expected tag to be cleared after clearIfMatch with the matching tag")
	}
}

func TestLastTag_ClearIfMatchIgnoresStaleTag(t *testing.T) {
	var lt lastTag

	lt.set(7)
	lt.set(9) // a newer delivery arrived before the older one's handler resolved

	lt.clearIfMatch(7) // the older delivery's handler finishes late

	tag, has := lt.get()
	if !has || tag != 9 {
		t.Fatalf("get() = (%d, %v), want (9, true): a stale clear must not drop the newer outstanding tag", tag, has)
	}
}
