package models

import (
	"testing"
	"time"
)

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{
			name: "valid selector rule",
			rule: Rule{Strategy: StrategySelector, Locator: ".price", BaseConfidence: 0.8},
		},
		{
			name: "valid structured data rule",
			rule: Rule{Strategy: StrategyStructuredData, JSONPath: "offers.price", BaseConfidence: 0.95},
		},
		{
			name:    "unknown strategy",
			rule:    Rule{Strategy: Strategy("regex"), Locator: ".price", BaseConfidence: 0.5},
			wantErr: true,
		},
		{
			name:    "structured data without json path",
			rule:    Rule{Strategy: StrategyStructuredData, BaseConfidence: 0.95},
			wantErr: true,
		},
		{
			name:    "selector without locator",
			rule:    Rule{Strategy: StrategySelector, BaseConfidence: 0.8},
			wantErr: true,
		},
		{
			name:    "confidence above one",
			rule:    Rule{Strategy: StrategySelector, Locator: ".price", BaseConfidence: 1.2},
			wantErr: true,
		},
		{
			name:    "negative confidence",
			rule:    Rule{Strategy: StrategySelector, Locator: ".price", BaseConfidence: -0.1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestPatternValidate(t *testing.T) {
	valid := Pattern{
		Domain: "shop.example",
		Fields: map[string][]Rule{
			FieldPrice: {{Strategy: StrategySelector, Locator: ".price", BaseConfidence: 0.8}},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid pattern rejected: %v", err)
	}

	noDomain := valid
	noDomain.Domain = ""
	if err := noDomain.Validate(); err == nil {
		t.Fatalf("pattern without domain accepted")
	}

	noFields := Pattern{Domain: "shop.example"}
	if err := noFields.Validate(); err == nil {
		t.Fatalf("pattern without fields accepted")
	}

	unknownField := Pattern{
		Domain: "shop.example",
		Fields: map[string][]Rule{
			"color": {{Strategy: StrategySelector, Locator: ".c", BaseConfidence: 0.5}},
		},
	}
	if err := unknownField.Validate(); err == nil {
		t.Fatalf("pattern with unknown field accepted")
	}
}

func TestPatternSuccessRate(t *testing.T) {
	p := Pattern{Domain: "shop.example", SuccessCount: 3, TotalCount: 4}
	if got := p.SuccessRate(); got != 0.75 {
		t.Fatalf("rate=%v, want 0.75", got)
	}

	fresh := Pattern{Domain: "shop.example"}
	if got := fresh.SuccessRate(); got != 0 {
		t.Fatalf("rate with no attempts=%v, want 0", got)
	}
}

func TestFetchItemDue(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		item FetchItem
		want bool
	}{
		{name: "no schedule is always due", item: FetchItem{ID: "a"}, want: true},
		{name: "past due time", item: FetchItem{ID: "b", DueAt: &past}, want: true},
		{name: "exactly now", item: FetchItem{ID: "c", DueAt: &now}, want: true},
		{name: "future due time", item: FetchItem{ID: "d", DueAt: &future}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Due(now); got != tt.want {
				t.Fatalf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAcceptedFields(t *testing.T) {
	o := &FetchOutcome{
		Validation: map[string]ValidationOutcome{
			FieldPrice:        {Accepted: true},
			FieldTitle:        {Accepted: false, Reason: RejectMissingRequiredField},
			FieldAvailability: {Accepted: true},
		},
	}

	got := o.AcceptedFields()
	if len(got) != 2 {
		t.Fatalf("accepted=%v, want price and availability", got)
	}
	for _, field := range got {
		if field == FieldTitle {
			t.Fatalf("rejected field %q surfaced as accepted", field)
		}
	}
}
