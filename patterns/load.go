package patterns

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
	"gopkg.in/yaml.v3"

	"github.com/aluiziolira/pricetrack/models"
)

type patternFile struct {
	Patterns []models.Pattern `yaml:"patterns"`
}

// Load reads a YAML pattern set, checking rule shape, selector and XPath
// syntax up front so a broken locator fails at load time instead of on the
// first fetch. Rule chains that are not in descending base-confidence order
// are logged but not rejected: chain order encodes trust and is assumed to
// be curated upstream.
func Load(r io.Reader) ([]models.Pattern, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read patterns: %w", err)
	}

	var file patternFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse patterns: %w", err)
	}
	if len(file.Patterns) == 0 {
		return nil, fmt.Errorf("pattern file contains no patterns")
	}

	for _, p := range file.Patterns {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		for field, rules := range p.Fields {
			for i, rule := range rules {
				if err := checkLocator(rule); err != nil {
					return nil, fmt.Errorf("pattern for %s, field %s, rule %d: %w", p.Domain, field, i, err)
				}
				if i > 0 && rule.BaseConfidence > rules[i-1].BaseConfidence {
					slog.Warn("rule chain not ordered by confidence",
						slog.String("domain", p.Domain),
						slog.String("field", field),
						slog.Int("rule", i),
					)
				}
			}
		}
	}
	return file.Patterns, nil
}

// LoadFile reads patterns from a file path.
func LoadFile(path string) ([]models.Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open patterns file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func checkLocator(rule models.Rule) error {
	switch rule.Strategy {
	case models.StrategySelector:
		if _, err := cascadia.Compile(rule.Locator); err != nil {
			return fmt.Errorf("invalid selector %q: %w", rule.Locator, err)
		}
	case models.StrategyXPath:
		if _, err := xpath.Compile(rule.Locator); err != nil {
			return fmt.Errorf("invalid xpath %q: %w", rule.Locator, err)
		}
	}
	return nil
}
