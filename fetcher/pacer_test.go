package fetcher

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPacerEnforcesSpacing(t *testing.T) {
	spacing := 50 * time.Millisecond
	pacer := newDomainPacer(spacing, 0)

	var starts []time.Time
	for i := 0; i < 3; i++ {
		release, err := pacer.acquire(context.Background(), "shop.example")
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		starts = append(starts, time.Now())
		release()
	}

	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < spacing {
			t.Fatalf("starts %d and %d only %v apart, want >= %v", i-1, i, gap, spacing)
		}
	}
}

func TestPacerSerializesPerDomain(t *testing.T) {
	pacer := newDomainPacer(0, 0)

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := pacer.acquire(context.Background(), "shop.example")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Fatalf("max in-flight=%d, want 1 (serial per domain)", maxInFlight)
	}
}

func TestPacerDomainsIndependent(t *testing.T) {
	pacer := newDomainPacer(time.Hour, 0)

	// First acquire per domain never waits, regardless of other domains.
	for _, domain := range []string{"a.example", "b.example", "c.example"} {
		done := make(chan struct{})
		go func() {
			release, err := pacer.acquire(context.Background(), domain)
			if err == nil {
				release()
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("first acquire for %s blocked", domain)
		}
	}
}

func TestPacerHonorsContext(t *testing.T) {
	pacer := newDomainPacer(time.Hour, 0)

	// Consume the first slot so the next acquire must wait out the spacing.
	release, err := pacer.acquire(context.Background(), "shop.example")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pacer.acquire(ctx, "shop.example"); err == nil {
		t.Fatalf("expected context error while waiting for spacing")
	}
}

func TestPacerHonorsContextWhileSlotHeld(t *testing.T) {
	pacer := newDomainPacer(0, 0)

	release, err := pacer.acquire(context.Background(), "shop.example")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pacer.acquire(ctx, "shop.example"); err == nil {
		t.Fatalf("expected context error while slot is held")
	}
}
