// Package patterns stores per-domain extraction rule sets and their attempt
// statistics.
package patterns

import (
	"errors"
	"sync"
	"time"

	"github.com/aluiziolira/pricetrack/models"
)

// ErrNotFound is returned by Lookup for domains without a registered
// pattern. Callers treat this as terminal and non-retryable.
var ErrNotFound = errors.New("patterns: not found")

// FlagReason labels why a pattern was flagged for regeneration.
type FlagReason string

const (
	FlagLowSuccessRate FlagReason = "low_success_rate"
	FlagNotFound       FlagReason = "not_found"
)

// HealthEvent is emitted to an external collaborator when a pattern looks
// unhealthy. The collaborator decides whether to regenerate it.
type HealthEvent struct {
	Domain      string
	Reason      FlagReason
	SuccessRate float64
	TotalCount  int64
}

// HealthFunc receives health events. It must not block; the repository calls
// it inline from Lookup and RecordAttempt.
type HealthFunc func(HealthEvent)

// Repository is a read-mostly store of patterns keyed by domain. Rule sets
// are immutable once stored; Put replaces the whole pattern. Attempt
// counters are serialized per domain so concurrent RecordAttempt calls for
// the same domain never lose updates.
type Repository struct {
	threshold   float64
	minAttempts int64

	mu      sync.RWMutex
	entries map[string]*entry
	onFlag  HealthFunc
}

type entry struct {
	mu            sync.Mutex
	pattern       models.Pattern
	success       int64
	total         int64
	lastValidated time.Time
	flagged       bool
}

// NewRepository builds an empty repository. Patterns whose rolling success
// rate drops below threshold after at least minAttempts recorded attempts
// are flagged once until they recover.
func NewRepository(threshold float64, minAttempts int64) *Repository {
	return &Repository{
		threshold:   threshold,
		minAttempts: minAttempts,
		entries:     make(map[string]*entry),
	}
}

// OnFlag registers the health event receiver.
func (r *Repository) OnFlag(fn HealthFunc) {
	r.mu.Lock()
	r.onFlag = fn
	r.mu.Unlock()
}

// Put validates and stores a pattern, replacing any previous rule set for
// the domain. Existing attempt counters survive the replacement.
func (r *Repository) Put(p models.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[p.Domain]; ok {
		e.mu.Lock()
		e.pattern = p
		e.mu.Unlock()
		return nil
	}
	r.entries[p.Domain] = &entry{pattern: p}
	return nil
}

// Lookup returns a snapshot of the domain's pattern, including current
// counter values. Unknown domains return ErrNotFound and emit a not-found
// health event.
func (r *Repository) Lookup(domain string) (models.Pattern, error) {
	r.mu.RLock()
	e, ok := r.entries[domain]
	flag := r.onFlag
	r.mu.RUnlock()

	if !ok {
		if flag != nil {
			flag(HealthEvent{Domain: domain, Reason: FlagNotFound})
		}
		return models.Pattern{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.pattern
	p.SuccessCount = e.success
	p.TotalCount = e.total
	p.LastValidatedAt = e.lastValidated
	return p, nil
}

// RecordAttempt applies one completed attempt to the domain's counters.
// Unknown domains are ignored. Safe for concurrent use; increments for the
// same domain are serialized on the entry mutex.
func (r *Repository) RecordAttempt(domain string, success bool) {
	r.mu.RLock()
	e, ok := r.entries[domain]
	flag := r.onFlag
	r.mu.RUnlock()
	if !ok {
		return
	}

	var event *HealthEvent

	e.mu.Lock()
	e.total++
	if success {
		e.success++
		e.lastValidated = time.Now()
	}
	rate := float64(e.success) / float64(e.total)
	if e.total >= r.minAttempts {
		if rate < r.threshold && !e.flagged {
			e.flagged = true
			event = &HealthEvent{
				Domain:      domain,
				Reason:      FlagLowSuccessRate,
				SuccessRate: rate,
				TotalCount:  e.total,
			}
		} else if rate >= r.threshold {
			e.flagged = false
		}
	}
	e.mu.Unlock()

	if event != nil && flag != nil {
		flag(*event)
	}
}

// Len returns the number of stored patterns.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns copies of all stored patterns with current counters.
func (r *Repository) Snapshot() []models.Pattern {
	r.mu.RLock()
	domains := make([]string, 0, len(r.entries))
	for domain := range r.entries {
		domains = append(domains, domain)
	}
	r.mu.RUnlock()

	out := make([]models.Pattern, 0, len(domains))
	for _, domain := range domains {
		if p, err := r.Lookup(domain); err == nil {
			out = append(out, p)
		}
	}
	return out
}
