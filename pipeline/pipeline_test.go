package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/pricetrack/config"
	"github.com/aluiziolira/pricetrack/models"
)

type mockWriter struct {
	mu       sync.Mutex
	outcomes []*models.FetchOutcome
	writeErr error
	closed   bool
}

func (mw *mockWriter) Write(outcomes []*models.FetchOutcome) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	mw.outcomes = append(mw.outcomes, outcomes...)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.closed = true
	return nil
}

func (mw *mockWriter) Validate() error { return nil }

func (mw *mockWriter) count() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return len(mw.outcomes)
}

func (mw *mockWriter) ids() map[string]int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	ids := make(map[string]int)
	for _, o := range mw.outcomes {
		ids[o.Item.ID]++
	}
	return ids
}

func outcome(id string) *models.FetchOutcome {
	return &models.FetchOutcome{
		Item: models.FetchItem{
			ID:     id,
			URL:    "http://shop.example/" + id,
			Domain: "shop.example",
		},
		Success:      true,
		AttemptsUsed: 1,
		FetchedAt:    time.Now(),
	}
}

func pipelineConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.PipelineBufferSize = 16
	cfg.BatchSize = 4
	cfg.DedupeMaxSize = 128
	return cfg
}

func TestPipelineDeliversOutcomes(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, pipelineConfig())
	p.Start(2)

	const n = 25
	for i := 0; i < n; i++ {
		if err := p.Emit(outcome(fmt.Sprintf("item-%d", i))); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.count(); got != n {
		t.Fatalf("written=%d, want %d", got, n)
	}

	metrics := p.GetMetrics()
	if processed := metrics["processed_outcomes"].(int64); processed != n {
		t.Fatalf("processed=%d, want %d", processed, n)
	}
}

func TestPipelineDeduplicatesByItemID(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, pipelineConfig())
	p.Start(1)

	for i := 0; i < 3; i++ {
		if err := p.Emit(outcome("item-1")); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	if err := p.Emit(outcome("item-2")); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ids := writer.ids()
	if ids["item-1"] != 1 || ids["item-2"] != 1 {
		t.Fatalf("ids=%v, want each once", ids)
	}

	metrics := p.GetMetrics()
	dropped := metrics["dropped"].(map[string]int)
	if dropped["duplicate_id"] != 2 {
		t.Fatalf("dropped=%v, want 2 duplicate_id", dropped)
	}
}

func TestPipelineDropsMissingID(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, pipelineConfig())
	p.Start(1)

	if err := p.Emit(outcome("")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.count(); got != 0 {
		t.Fatalf("written=%d, want 0", got)
	}
	dropped := p.GetMetrics()["dropped"].(map[string]int)
	if dropped["missing_id"] != 1 {
		t.Fatalf("dropped=%v, want 1 missing_id", dropped)
	}
}

func TestPipelineEmitAfterClose(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, pipelineConfig())
	p.Start(1)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := p.Emit(outcome("item-1")); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("emit after close: %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineNilOutcomeIgnored(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, pipelineConfig())
	p.Start(1)

	if err := p.Emit(nil); err != nil {
		t.Fatalf("emit nil: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.count(); got != 0 {
		t.Fatalf("written=%d, want 0", got)
	}
}

func TestPipelineWriterErrorSurfacesOnClose(t *testing.T) {
	wantErr := errors.New("disk full")
	writer := &mockWriter{writeErr: wantErr}
	cfg := pipelineConfig()
	cfg.BatchSize = 1
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	// The worker may shut the pipeline down before every emit lands; those
	// rejections are expected once the write error hits.
	for i := 0; i < 5; i++ {
		if err := p.Emit(outcome(fmt.Sprintf("item-%d", i))); err != nil {
			break
		}
	}

	if err := p.Close(); !errors.Is(err, wantErr) {
		t.Fatalf("close err=%v, want %v", err, wantErr)
	}
	if p.Err() == nil {
		t.Fatalf("Err() should report the write failure")
	}
}

func TestPipelineConcurrentEmit(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, pipelineConfig())
	p.Start(4)

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for w := 0; w < producers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := p.Emit(outcome(fmt.Sprintf("p%d-i%d", w, i))); err != nil {
					t.Errorf("emit: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.count(); got != producers*perProducer {
		t.Fatalf("written=%d, want %d", got, producers*perProducer)
	}
}

func TestPipelineAcceptsAfterContextCancellation(t *testing.T) {
	writer := &mockWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPipeline(ctx, writer, pipelineConfig())
	p.Start(1)

	if err := p.Emit(outcome("item-1")); err != nil {
		t.Fatalf("emit before cancel: %v", err)
	}
	cancel()

	// Cancellation stops dispatching new items, but the ones already in
	// flight still finish and their outcomes must reach the writer.
	if err := p.Emit(outcome("item-2")); err != nil {
		t.Fatalf("emit after cancel: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ids := writer.ids()
	if ids["item-1"] != 1 || ids["item-2"] != 1 {
		t.Fatalf("ids=%v, want both items written", ids)
	}
}
