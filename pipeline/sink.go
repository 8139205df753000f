package pipeline

import (
	"github.com/aluiziolira/pricetrack/models"
)

// Sink receives terminal outcomes. Mirrors the orchestrator's consumer-side
// interface so sinks compose without importing it.
type Sink interface {
	Emit(outcome *models.FetchOutcome) error
}

// AttemptRecorder applies one completed attempt to a domain's pattern
// counters. Satisfied by *patterns.Repository.
type AttemptRecorder interface {
	RecordAttempt(domain string, success bool)
}

// RecordingSink updates pattern attempt counters before forwarding the
// outcome. An attempt counts as successful when the pipeline completed and
// every required field was accepted; that is the signal pattern health is
// about. Outcomes that never ran the pattern (unknown domain, cancelled
// before dispatch) record nothing.
type RecordingSink struct {
	recorder AttemptRecorder
	next     Sink
}

// NewRecordingSink wires a recorder in front of next. next may be nil.
func NewRecordingSink(recorder AttemptRecorder, next Sink) *RecordingSink {
	return &RecordingSink{recorder: recorder, next: next}
}

// Emit records the attempt and forwards the outcome.
func (s *RecordingSink) Emit(outcome *models.FetchOutcome) error {
	if outcome.AttemptsUsed > 0 && outcome.ErrorKind != models.ErrorKindPatternNotFound {
		s.recorder.RecordAttempt(outcome.Item.Domain, patternSucceeded(outcome))
	}
	if s.next != nil {
		return s.next.Emit(outcome)
	}
	return nil
}

func patternSucceeded(outcome *models.FetchOutcome) bool {
	if !outcome.Success {
		return false
	}
	for _, field := range models.RequiredFields {
		v, ok := outcome.Validation[field]
		if !ok || !v.Accepted {
			return false
		}
	}
	return true
}

// MultiSink fans one outcome out to several sinks, returning the first
// error but still delivering to the rest.
type MultiSink []Sink

// Emit delivers the outcome to every sink.
func (m MultiSink) Emit(outcome *models.FetchOutcome) error {
	var first error
	for _, sink := range m {
		if err := sink.Emit(outcome); err != nil && first == nil {
			first = err
		}
	}
	return first
}
