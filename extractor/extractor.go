package extractor

import (
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"

	"github.com/aluiziolira/pricetrack/models"
)

// Engine runs each field's ordered rule chain against a parsed page. The
// first rule whose application yields a non-empty, well-typed value wins;
// later rules are never evaluated. Rule order encodes a priori trust, so
// there is no aggregation or voting across rules.
type Engine struct {
	// AttemptHook, if set, is called before each rule application. Used for
	// metrics and for instrumenting short-circuit behavior in tests.
	AttemptHook func(field string, ruleIndex int, strategy models.Strategy)
}

// New builds an extraction engine.
func New() *Engine {
	return &Engine{}
}

// Extract runs every field chain of the pattern. Fields with no successful
// rule are absent from the returned map.
func (e *Engine) Extract(page *Page, pattern models.Pattern) map[string]models.ExtractionResult {
	out := make(map[string]models.ExtractionResult, len(pattern.Fields))
	for field, rules := range pattern.Fields {
		if result, ok := e.ExtractField(page, field, rules); ok {
			out[field] = result
		}
	}
	return out
}

// ExtractField tries the rules in declared order and returns the first
// acceptable match. The reported confidence is the matching rule's base
// confidence, untouched; the validator may adjust it later.
func (e *Engine) ExtractField(page *Page, field string, rules []models.Rule) (models.ExtractionResult, bool) {
	for i, rule := range rules {
		if e.AttemptHook != nil {
			e.AttemptHook(field, i, rule.Strategy)
		}

		raw, ok := applyRule(page, rule)
		if !ok {
			continue
		}

		result := models.ExtractionResult{
			Confidence: rule.BaseConfidence,
			Strategy:   rule.Strategy,
			RuleIndex:  i,
		}
		if field == models.FieldPrice {
			price, err := ParsePrice(raw)
			if err != nil {
				continue
			}
			result.Price = price
			result.Value = strconv.FormatFloat(price, 'f', 2, 64)
		} else {
			text := NormalizeText(raw)
			if text == "" {
				continue
			}
			result.Value = text
		}
		return result, true
	}
	return models.ExtractionResult{}, false
}

// applyRule dispatches on the rule's strategy. The switch is exhaustive
// over the closed strategy set; an unknown strategy yields no match.
func applyRule(page *Page, rule models.Rule) (string, bool) {
	switch rule.Strategy {
	case models.StrategyStructuredData:
		return applyStructuredData(page, rule)
	case models.StrategyMetaTag:
		return applyMetaTag(page, rule)
	case models.StrategySelector:
		return applySelector(page, rule)
	case models.StrategyXPath:
		return applyXPath(page, rule)
	}
	return "", false
}

func applyStructuredData(page *Page, rule models.Rule) (string, bool) {
	for _, obj := range page.structuredData() {
		if !isProductObject(obj) {
			continue
		}
		if value, ok := resolveJSONPath(obj, rule.JSONPath); ok {
			return value, true
		}
	}
	return "", false
}

func applyMetaTag(page *Page, rule models.Rule) (string, bool) {
	name := rule.Locator
	for _, node := range htmlquery.Find(page.root, "//meta") {
		if htmlquery.SelectAttr(node, "name") != name && htmlquery.SelectAttr(node, "property") != name {
			continue
		}
		attr := rule.Attribute
		if attr == "" {
			attr = "content"
		}
		if value := htmlquery.SelectAttr(node, attr); strings.TrimSpace(value) != "" {
			return value, true
		}
	}
	return "", false
}

func applySelector(page *Page, rule models.Rule) (string, bool) {
	sel, err := cascadia.Compile(rule.Locator)
	if err != nil {
		return "", false
	}
	match := page.doc.FindMatcher(sel).First()
	if match.Length() == 0 {
		return "", false
	}
	if rule.Attribute != "" {
		value, ok := match.Attr(rule.Attribute)
		if !ok || strings.TrimSpace(value) == "" {
			return "", false
		}
		return value, true
	}
	text := match.Text()
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func applyXPath(page *Page, rule models.Rule) (string, bool) {
	node, err := htmlquery.Query(page.root, rule.Locator)
	if err != nil || node == nil {
		return "", false
	}
	if rule.Attribute != "" {
		value := htmlquery.SelectAttr(node, rule.Attribute)
		if strings.TrimSpace(value) == "" {
			return "", false
		}
		return value, true
	}
	text := htmlquery.InnerText(node)
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// resolveJSONPath walks a dotted path ("offers.price", "offers.0.price")
// through nested maps and arrays. A bare array segment implicitly takes the
// first element.
func resolveJSONPath(obj map[string]interface{}, path string) (string, bool) {
	var current interface{} = obj
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return "", false
		}
		if arr, ok := current.([]interface{}); ok {
			if idx, err := strconv.Atoi(seg); err == nil {
				if idx < 0 || idx >= len(arr) {
					return "", false
				}
				current = arr[idx]
				continue
			}
			if len(arr) == 0 {
				return "", false
			}
			current = arr[0]
		}
		m, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		current, ok = m[seg]
		if !ok {
			return "", false
		}
	}
	if arr, ok := current.([]interface{}); ok {
		if len(arr) == 0 {
			return "", false
		}
		current = arr[0]
	}
	return stringifyLD(current)
}

func stringifyLD(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", false
		}
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
