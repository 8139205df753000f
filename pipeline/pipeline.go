// Package pipeline delivers fetch outcomes to their sinks: batching,
// deduplication, attempt recording and on-disk writers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/pricetrack/config"
	"github.com/aluiziolira/pricetrack/models"
)

var (
	// ErrPipelineClosed is returned when Emit is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutcomeWriter defines the interface for outcome output.
type OutcomeWriter interface {
	Write(outcomes []*models.FetchOutcome) error
	Close() error
	Validate() error
}

// Pipeline coordinates de-duplication, batching and output writing for
// fetch outcomes. It implements the orchestrator's Sink.
type Pipeline struct {
	ctx       context.Context
	writer    OutcomeWriter
	outcomeCh chan *models.FetchOutcome
	batchSize int

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	metrics pipelineMetrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline over writer. ctx stops background reporting
// only; intake stays open until Close so cancelled cycles still flush the
// outcomes of items that were allowed to finish. The dedupe cache is bounded
// by cfg.DedupeMaxSize so long-running processes do not grow without limit.
func NewPipeline(ctx context.Context, writer OutcomeWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		// Only reachable with a non-positive size, which Config.Validate
		// rejects.
		panic(fmt.Sprintf("pipeline: dedupe cache: %v", err))
	}
	return &Pipeline{
		ctx:       ctx,
		writer:    writer,
		outcomeCh: make(chan *models.FetchOutcome, cfg.PipelineBufferSize),
		batchSize: cfg.BatchSize,
		seen:      seen,
		metrics:   newPipelineMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Emit enqueues one outcome for downstream processing.
func (p *Pipeline) Emit(outcome *models.FetchOutcome) error {
	if outcome == nil {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}
	return p.enqueue(outcome)
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.outcomeCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_outcomes"].(int64)
				dropped := metrics["dropped"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Any("dropped", dropped),
				)
			case <-p.ctx.Done():
				return
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.FetchOutcome, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for outcome := range p.outcomeCh {
		if !p.admit(outcome) {
			continue
		}
		batch = append(batch, outcome)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

// admit drops duplicate item IDs within the dedupe window.
func (p *Pipeline) admit(outcome *models.FetchOutcome) bool {
	if outcome.Item.ID == "" {
		p.metrics.addDropped("missing_id")
		return false
	}
	if dup, _ := p.seen.ContainsOrAdd(outcome.Item.ID, struct{}{}); dup {
		p.metrics.addDropped("duplicate_id")
		return false
	}
	p.metrics.incrementProcessed()
	return true
}

func (p *Pipeline) enqueue(outcome *models.FetchOutcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	// The signal context does not gate admission: cancellation lets
	// in-flight items finish, and their outcomes still belong in the output.
	// Only Close (or a writer failure) stops intake.
	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.outcomeCh <- outcome:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.outcomeCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type pipelineMetrics struct {
	mu        sync.Mutex
	processed int64
	dropped   map[string]int
}

func newPipelineMetrics() pipelineMetrics {
	return pipelineMetrics{
		dropped: make(map[string]int),
	}
}

func (m *pipelineMetrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *pipelineMetrics) addDropped(kind string) {
	m.mu.Lock()
	m.dropped[kind]++
	m.mu.Unlock()
}

func (m *pipelineMetrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyDropped := make(map[string]int, len(m.dropped))
	for k, v := range m.dropped {
		copyDropped[k] = v
	}

	return map[string]interface{}{
		"processed_outcomes": m.processed,
		"dropped":            copyDropped,
	}
}
