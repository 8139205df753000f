// Package models defines the data structures shared across the tracker.
package models

import (
	"fmt"
	"time"
)

// Strategy identifies the extraction method family of a rule. The set is
// closed; Valid rejects anything outside it so that a new strategy cannot
// slip through as a silently ignored string.
type Strategy string

const (
	StrategyStructuredData Strategy = "structured_data"
	StrategyMetaTag        Strategy = "meta_tag"
	StrategySelector       Strategy = "selector"
	StrategyXPath          Strategy = "xpath"
)

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyStructuredData, StrategyMetaTag, StrategySelector, StrategyXPath:
		return true
	}
	return false
}

// Well-known field names. Price and title are required for a validated
// product snapshot; the others are optional.
const (
	FieldPrice        = "price"
	FieldTitle        = "title"
	FieldAvailability = "availability"
	FieldImage        = "image"
	FieldSKU          = "sku"
	FieldModel        = "model"
)

// RequiredFields lists the fields a snapshot cannot be accepted without.
var RequiredFields = []string{FieldPrice, FieldTitle}

// KnownField reports whether name is one of the tracked product fields.
func KnownField(name string) bool {
	switch name {
	case FieldPrice, FieldTitle, FieldAvailability, FieldImage, FieldSKU, FieldModel:
		return true
	}
	return false
}

// Rule is a single extraction attempt definition. BaseConfidence encodes the
// a priori reliability of the strategy class and is never altered by the
// extraction engine itself.
type Rule struct {
	Strategy       Strategy `yaml:"strategy" json:"strategy"`
	Locator        string   `yaml:"locator" json:"locator"`
	Attribute      string   `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	JSONPath       string   `yaml:"json_path,omitempty" json:"json_path,omitempty"`
	BaseConfidence float64  `yaml:"base_confidence" json:"base_confidence"`
}

// Validate checks the static shape of a rule.
func (r Rule) Validate() error {
	if !r.Strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", string(r.Strategy))
	}
	if r.BaseConfidence < 0 || r.BaseConfidence > 1 {
		return fmt.Errorf("base confidence %v outside [0, 1]", r.BaseConfidence)
	}
	switch r.Strategy {
	case StrategyStructuredData:
		if r.JSONPath == "" {
			return fmt.Errorf("structured data rule needs a json path")
		}
	default:
		if r.Locator == "" {
			return fmt.Errorf("%s rule needs a locator", r.Strategy)
		}
	}
	return nil
}

// Pattern is the extraction rule set for one domain: one ordered rule list
// per field, tried in declared order until a rule yields a value. Rule lists
// are immutable once loaded; replacing a pattern means replacing the whole
// value. The attempt counters are maintained by the repository, not by the
// pattern itself.
type Pattern struct {
	Domain          string            `yaml:"domain" json:"domain"`
	Fields          map[string][]Rule `yaml:"fields" json:"fields"`
	SuccessCount    int64             `yaml:"-" json:"success_count"`
	TotalCount      int64             `yaml:"-" json:"total_count"`
	LastValidatedAt time.Time         `yaml:"-" json:"last_validated_at"`
}

// Validate checks the static shape of a pattern and all of its rules.
func (p Pattern) Validate() error {
	if p.Domain == "" {
		return fmt.Errorf("pattern missing domain")
	}
	if len(p.Fields) == 0 {
		return fmt.Errorf("pattern for %s has no fields", p.Domain)
	}
	for field, rules := range p.Fields {
		if !KnownField(field) {
			return fmt.Errorf("pattern for %s names unknown field %q", p.Domain, field)
		}
		if len(rules) == 0 {
			return fmt.Errorf("pattern for %s has an empty rule chain for %s", p.Domain, field)
		}
		for i, rule := range rules {
			if err := rule.Validate(); err != nil {
				return fmt.Errorf("pattern for %s, field %s, rule %d: %w", p.Domain, field, i, err)
			}
		}
	}
	return nil
}

// SuccessRate returns the rolling success rate, or 1 when nothing has been
// recorded yet.
func (p Pattern) SuccessRate() float64 {
	if p.TotalCount == 0 {
		return 1
	}
	return float64(p.SuccessCount) / float64(p.TotalCount)
}
