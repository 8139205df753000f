// Package validator sanity-checks extracted values and produces the final
// confidence-adjusted verdict per field.
package validator

import (
	"github.com/aluiziolira/pricetrack/models"
)

// Validator applies format, bounds and historical deviation checks. A large
// price swing is flagged and penalized rather than rejected: sales are
// plausible and must not silently vanish.
type Validator struct {
	DeviationThreshold float64
	DeviationPenalty   float64
	MinPrice           float64
	MaxPrice           float64
}

// New builds a validator with the given deviation policy and the default
// open price interval (0, 1e9).
func New(deviationThreshold, deviationPenalty float64) *Validator {
	return &Validator{
		DeviationThreshold: deviationThreshold,
		DeviationPenalty:   deviationPenalty,
		MinPrice:           0,
		MaxPrice:           1e9,
	}
}

// Validate checks a single field. A nil result means the field was absent;
// that rejects required fields and is a no-op for optional ones (the caller
// simply omits them). priorPrice is only consulted for the price field.
func (v *Validator) Validate(field string, result *models.ExtractionResult, priorPrice *float64) models.ValidationOutcome {
	if result == nil {
		if isRequired(field) {
			return models.ValidationOutcome{
				Accepted: false,
				Reason:   models.RejectMissingRequiredField,
			}
		}
		return models.ValidationOutcome{Accepted: false}
	}

	outcome := models.ValidationOutcome{
		Accepted:        true,
		FinalConfidence: result.Confidence,
	}

	if field == models.FieldPrice {
		if result.Price <= v.MinPrice || result.Price >= v.MaxPrice {
			return models.ValidationOutcome{
				Accepted: false,
				Reason:   models.RejectOutOfRange,
			}
		}
		if priorPrice != nil && *priorPrice > 0 {
			deviation := (result.Price - *priorPrice) / *priorPrice
			if deviation < 0 {
				deviation = -deviation
			}
			if deviation > v.DeviationThreshold {
				outcome.Warnings = append(outcome.Warnings, models.WarningSuspiciousChange)
				outcome.FinalConfidence -= v.DeviationPenalty
			}
		}
	}

	if outcome.FinalConfidence < 0 {
		outcome.FinalConfidence = 0
	}
	return outcome
}

// ValidateAll runs Validate over every extracted field plus the required
// fields, so a missing required field still produces a rejection entry.
// Absent optional fields get no entry at all.
func (v *Validator) ValidateAll(extraction map[string]models.ExtractionResult, priorPrice *float64) map[string]models.ValidationOutcome {
	out := make(map[string]models.ValidationOutcome, len(extraction)+len(models.RequiredFields))
	for field, result := range extraction {
		r := result
		out[field] = v.Validate(field, &r, priorPrice)
	}
	for _, field := range models.RequiredFields {
		if _, ok := extraction[field]; !ok {
			out[field] = v.Validate(field, nil, priorPrice)
		}
	}
	return out
}

func isRequired(field string) bool {
	for _, f := range models.RequiredFields {
		if f == field {
			return true
		}
	}
	return false
}
