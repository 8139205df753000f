package fetcher

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// domainPacer enforces the per-domain fetch discipline: at most one in-flight
// request per domain, and a minimum spacing between consecutive request
// starts. The slot channel holds the in-flight cap and the last-start
// timestamp is only touched by the slot holder.
type domainPacer struct {
	spacing time.Duration
	jitter  time.Duration

	mu    sync.Mutex
	slots map[string]*domainSlot
}

type domainSlot struct {
	sem  chan struct{}
	last time.Time
}

func newDomainPacer(spacing, jitter time.Duration) *domainPacer {
	return &domainPacer{
		spacing: spacing,
		jitter:  jitter,
		slots:   make(map[string]*domainSlot),
	}
}

// acquire blocks until the domain's slot is free and the spacing interval
// since the previous request start has elapsed, then marks the request
// start. The returned release must be called once the request completes.
func (p *domainPacer) acquire(ctx context.Context, domain string) (release func(), err error) {
	p.mu.Lock()
	slot, ok := p.slots[domain]
	if !ok {
		slot = &domainSlot{sem: make(chan struct{}, 1)}
		p.slots[domain] = slot
	}
	p.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	wait := time.Until(slot.last.Add(p.spacing))
	if p.jitter > 0 {
		wait += time.Duration(rand.Int63n(int64(p.jitter)))
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			<-slot.sem
			return nil, ctx.Err()
		}
	}

	slot.last = time.Now()
	return func() { <-slot.sem }, nil
}
