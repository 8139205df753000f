// Package orchestrator drives due items through the fetch, extract and
// validate pipeline under bounded concurrency.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/pricetrack/config"
	"github.com/aluiziolira/pricetrack/extractor"
	"github.com/aluiziolira/pricetrack/fetcher"
	"github.com/aluiziolira/pricetrack/models"
	"github.com/aluiziolira/pricetrack/validator"
)

// Fetcher issues a single rate-limited fetch. Satisfied by *fetcher.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url, domain string) ([]byte, int, error)
}

// PatternSource looks up the extraction rule set for a domain. Satisfied by
// *patterns.Repository.
type PatternSource interface {
	Lookup(domain string) (models.Pattern, error)
}

// Sink receives each item's terminal outcome exactly once per cycle.
type Sink interface {
	Emit(outcome *models.FetchOutcome) error
}

// itemState tracks an item's progress through the per-item state machine.
type itemState string

const (
	statePending        itemState = "pending"
	stateInFlight       itemState = "in_flight"
	stateRetrying       itemState = "retrying"
	stateSucceeded      itemState = "succeeded"
	stateFailedTerminal itemState = "failed_terminal"
)

// Orchestrator fans a batch of due items out over a bounded worker pool.
// Items are independent units of work: one item's failure never aborts the
// batch, and no ordering is guaranteed across items.
type Orchestrator struct {
	cfg      *config.Config
	patterns PatternSource
	client   Fetcher
	engine   *extractor.Engine
	checker  *validator.Validator
	sink     Sink
	retry    RetryPolicy
	Metrics  *Metrics
}

// New builds an orchestrator from cfg and its collaborators.
func New(cfg *config.Config, source PatternSource, client Fetcher, sink Sink) *Orchestrator {
	checker := validator.New(cfg.DeviationThreshold, cfg.DeviationPenalty)
	checker.MinPrice = cfg.MinPrice
	checker.MaxPrice = cfg.MaxPrice

	o := &Orchestrator{
		cfg:      cfg,
		patterns: source,
		client:   client,
		engine:   extractor.New(),
		checker:  checker,
		sink:     sink,
		retry: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBackoff,
			MaxDelay:    cfg.RetryBackoffMax,
			Jitter:      0.2,
		},
		Metrics: NewMetrics(),
	}
	return o
}

// Run processes one cycle's batch and blocks until every item has reached
// a terminal state or ctx is cancelled. Cancelling stops dispatch; items
// never dispatched are reported as cancelled, in-flight ones finish.
func (o *Orchestrator) Run(ctx context.Context, items []models.FetchItem) (*models.CycleResult, error) {
	start := time.Now()
	result := &models.CycleResult{
		StartTime:    start,
		TotalItems:   len(items),
		ErrorsByKind: make(map[string]int),
	}

	queue := make(chan models.FetchItem)
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	record := func(outcome *models.FetchOutcome) {
		o.Metrics.IncItems()
		if outcome.Success {
			for field, r := range outcome.Extraction {
				o.Metrics.IncField(field, string(r.Strategy))
			}
		} else {
			o.Metrics.IncError(string(outcome.ErrorKind))
		}

		if err := o.sink.Emit(outcome); err != nil {
			slog.Error("sink emit failed",
				slog.String("item", outcome.Item.ID),
				slog.Any("error", err),
			)
		}

		resultMu.Lock()
		if outcome.Success {
			result.Succeeded++
		} else {
			result.Failed++
			result.ErrorsByKind[string(outcome.ErrorKind)]++
			result.FailedItems = append(result.FailedItems, outcome.Item.ID)
		}
		if outcome.AttemptsUsed > 1 {
			result.RetryCount += outcome.AttemptsUsed - 1
		}
		resultMu.Unlock()
	}

	workers := o.cfg.MaxConcurrent
	if workers > len(items) {
		workers = len(items)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				record(o.processItem(ctx, item))
			}
		}()
	}

	// Grouping by domain is scheduling locality only; interleaving the
	// groups keeps workers from queueing up behind one domain's serial slot.
	for _, item := range interleaveByDomain(items) {
		select {
		case queue <- item:
		case <-ctx.Done():
			record(cancelledOutcome(item))
		}
	}
	close(queue)
	wg.Wait()

	result.EndTime = time.Now()
	slog.Info("cycle complete",
		slog.Int("items", result.TotalItems),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("retries", result.RetryCount),
		slog.Duration("duration", result.EndTime.Sub(start)),
	)
	return result, ctx.Err()
}

// processItem runs one item through the state machine:
// Pending -> InFlight -> {Succeeded, Retrying, FailedTerminal}.
func (o *Orchestrator) processItem(ctx context.Context, item models.FetchItem) *models.FetchOutcome {
	start := time.Now()
	outcome := &models.FetchOutcome{Item: item, FetchedAt: start}
	finish := func() *models.FetchOutcome {
		outcome.DurationMs = time.Since(start).Milliseconds()
		return outcome
	}

	// Unknown domain is terminal before any network call; pattern
	// generation is a downstream concern triggered through the sink.
	pattern, err := o.patterns.Lookup(item.Domain)
	if err != nil {
		outcome.ErrorKind = models.ErrorKindPatternNotFound
		o.logState(item, stateFailedTerminal, 0)
		return finish()
	}

	// The item's deadline covers the full retry budget; exceeding it forces
	// a terminal failure without further retries.
	deadline := time.Duration(o.retry.MaxAttempts)*(o.cfg.Timeout+o.cfg.DomainSpacing) + o.retry.budget()
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var body []byte
	attempts := 0
	for {
		attempts++
		outcome.AttemptsUsed = attempts
		o.logState(item, stateInFlight, attempts)
		o.Metrics.IncFetch("started")

		fetchStart := time.Now()
		b, status, ferr := o.client.Fetch(ctx, item.URL, item.Domain)
		o.Metrics.ObserveDuration(time.Since(fetchStart))
		outcome.HTTPStatus = status

		if ferr == nil {
			body = b
			break
		}

		if o.retry.ShouldRetry(ferr, attempts) && ctx.Err() == nil {
			o.logState(item, stateRetrying, attempts)
			o.Metrics.IncRetries()
			delay := o.retry.Backoff(attempts)
			slog.Debug("retrying item",
				slog.String("item", item.ID),
				slog.Int("attempt", attempts),
				slog.Duration("backoff", delay),
				slog.Any("error", ferr),
			)
			if !sleepCtx(ctx, delay) {
				outcome.ErrorKind = models.ErrorKindCancelled
				o.logState(item, stateFailedTerminal, attempts)
				return finish()
			}
			continue
		}

		outcome.ErrorKind = fetcher.Kind(ferr)
		o.logState(item, stateFailedTerminal, attempts)
		slog.Warn("item failed",
			slog.String("item", item.ID),
			slog.String("url", item.URL),
			slog.String("kind", string(outcome.ErrorKind)),
			slog.Int("attempts", attempts),
		)
		return finish()
	}

	page, err := extractor.Parse(body)
	if err != nil {
		outcome.ErrorKind = models.ErrorKindMalformed
		o.logState(item, stateFailedTerminal, attempts)
		return finish()
	}

	outcome.Extraction = o.engine.Extract(page, pattern)
	outcome.Validation = o.checker.ValidateAll(outcome.Extraction, item.PriorPrice)
	outcome.Success = true
	o.logState(item, stateSucceeded, attempts)
	return finish()
}

func (o *Orchestrator) logState(item models.FetchItem, state itemState, attempt int) {
	slog.Debug("item state",
		slog.String("item", item.ID),
		slog.String("domain", item.Domain),
		slog.String("state", string(state)),
		slog.Int("attempt", attempt),
	)
}

func cancelledOutcome(item models.FetchItem) *models.FetchOutcome {
	return &models.FetchOutcome{
		Item:      item,
		ErrorKind: models.ErrorKindCancelled,
		FetchedAt: time.Now(),
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// interleaveByDomain partitions items by domain and deals them back out
// round-robin, preserving within-domain order.
func interleaveByDomain(items []models.FetchItem) []models.FetchItem {
	byDomain := make(map[string][]models.FetchItem)
	var order []string
	for _, item := range items {
		if _, ok := byDomain[item.Domain]; !ok {
			order = append(order, item.Domain)
		}
		byDomain[item.Domain] = append(byDomain[item.Domain], item)
	}

	out := make([]models.FetchItem, 0, len(items))
	for len(out) < len(items) {
		for _, domain := range order {
			queue := byDomain[domain]
			if len(queue) == 0 {
				continue
			}
			out = append(out, queue[0])
			byDomain[domain] = queue[1:]
		}
	}
	return out
}
