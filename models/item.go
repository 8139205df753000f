package models

import "time"

// FetchItem is one unit of due work handed in by the scheduler: a product
// page to visit during the current cycle. PriorPrice carries the last known
// price for deviation checks; nil means no history. Items are consumed once
// per cycle and not retained afterwards.
type FetchItem struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Domain     string     `json:"domain"`
	PriorPrice *float64   `json:"prior_price,omitempty"`
	DueAt      *time.Time `json:"due_at,omitempty"`
}

// Due reports whether the item is due at the given instant. Items without a
// due timestamp are always due.
func (it FetchItem) Due(now time.Time) bool {
	return it.DueAt == nil || !it.DueAt.After(now)
}
