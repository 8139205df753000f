package models

import "time"

// ErrorKind labels the terminal failure class of an item. The labels double
// as metric label values, so they stay snake_case and stable.
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindConnection      ErrorKind = "connection"
	ErrorKindHTTPStatus      ErrorKind = "http_status"
	ErrorKindMalformed       ErrorKind = "malformed"
	ErrorKindPatternNotFound ErrorKind = "pattern_not_found"
	ErrorKindCancelled       ErrorKind = "cancelled"
)

// ExtractionResult is one field's extracted value. Value holds the
// normalized text; for the price field Price additionally holds the parsed
// amount. RuleIndex records which fallback position in the chain matched.
type ExtractionResult struct {
	Value      string   `json:"value"`
	Price      float64  `json:"price,omitempty"`
	Confidence float64  `json:"confidence"`
	Strategy   Strategy `json:"strategy"`
	RuleIndex  int      `json:"rule_index"`
}

// Warning flags a suspicious but accepted value.
type Warning string

const (
	WarningSuspiciousChange Warning = "suspicious_change"
)

// RejectReason explains a validation rejection.
type RejectReason string

const (
	RejectMissingRequiredField RejectReason = "missing_required_field"
	RejectOutOfRange           RejectReason = "out_of_range"
)

// ValidationOutcome is the validator's verdict for one field.
type ValidationOutcome struct {
	Accepted        bool         `json:"accepted"`
	FinalConfidence float64      `json:"final_confidence"`
	Warnings        []Warning    `json:"warnings,omitempty"`
	Reason          RejectReason `json:"reason,omitempty"`
}

// FetchOutcome is the terminal record for one item in one cycle. Success
// means the fetch-extract-validate pipeline completed, regardless of how
// many individual fields were accepted; field-level trouble shows up in the
// validation map instead.
type FetchOutcome struct {
	Item         FetchItem                    `json:"item"`
	Extraction   map[string]ExtractionResult  `json:"extraction,omitempty"`
	Validation   map[string]ValidationOutcome `json:"validation,omitempty"`
	Success      bool                         `json:"success"`
	ErrorKind    ErrorKind                    `json:"error_kind,omitempty"`
	HTTPStatus   int                          `json:"http_status,omitempty"`
	AttemptsUsed int                          `json:"attempts_used"`
	DurationMs   int64                        `json:"duration_ms"`
	FetchedAt    time.Time                    `json:"fetched_at"`
}

// AcceptedFields returns the names of fields the validator accepted.
func (o *FetchOutcome) AcceptedFields() []string {
	var out []string
	for field, v := range o.Validation {
		if v.Accepted {
			out = append(out, field)
		}
	}
	return out
}

// CycleResult summarizes one orchestration cycle.
type CycleResult struct {
	StartTime    time.Time
	EndTime      time.Time
	TotalItems   int
	Succeeded    int
	Failed       int
	RetryCount   int
	ErrorsByKind map[string]int
	FailedItems  []string
}
