package config

import (
	"fmt"
	"time"
)

// Config holds tracker configuration.
type Config struct {
	PatternsFile string
	ItemsFile    string

	MaxConcurrent int
	DomainSpacing time.Duration
	RandomDelay   time.Duration
	Timeout       time.Duration

	MaxAttempts     int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	DeviationThreshold float64
	DeviationPenalty   float64
	MinPrice           float64
	MaxPrice           float64

	HealthThreshold   float64
	HealthMinAttempts int64

	OutputFile   string
	OutputFormat string // jsonl, csv, or dual

	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int

	UserAgent   string
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for polite product tracking.
func DefaultConfig() *Config {
	return &Config{
		PatternsFile:       "patterns.yaml",
		ItemsFile:          "items.json",
		MaxConcurrent:      10,
		DomainSpacing:      time.Second,
		RandomDelay:        0,
		Timeout:            30 * time.Second,
		MaxAttempts:        3,
		RetryBackoff:       500 * time.Millisecond,
		RetryBackoffMax:    30 * time.Second,
		DeviationThreshold: 0.5,
		DeviationPenalty:   0.2,
		MinPrice:           0,
		MaxPrice:           1e9,
		HealthThreshold:    0.6,
		HealthMinAttempts:  5,
		OutputFile:         "output/outcomes.jsonl",
		OutputFormat:       "jsonl",
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MetricsAddr:        "",
		Verbose:            false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.PatternsFile == "" {
		return fmt.Errorf("patterns file cannot be empty")
	}
	if c.ItemsFile == "" {
		return fmt.Errorf("items file cannot be empty")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive")
	}
	if c.DomainSpacing < 0 {
		return fmt.Errorf("domain spacing cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.DeviationThreshold <= 0 {
		return fmt.Errorf("deviation threshold must be positive")
	}
	if c.DeviationPenalty < 0 || c.DeviationPenalty > 1 {
		return fmt.Errorf("deviation penalty must lie in [0, 1]")
	}
	if c.MinPrice < 0 {
		return fmt.Errorf("min price cannot be negative")
	}
	if c.MaxPrice <= c.MinPrice {
		return fmt.Errorf("max price must exceed min price")
	}
	if c.HealthThreshold <= 0 || c.HealthThreshold > 1 {
		return fmt.Errorf("health threshold must lie in (0, 1]")
	}
	if c.HealthMinAttempts < 1 {
		return fmt.Errorf("health min attempts must be at least 1")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "jsonl" && c.OutputFormat != "csv" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be jsonl, csv, or dual")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}
