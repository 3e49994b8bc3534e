package domain

import (
	"fmt"
	"time"
)

// DetectionEvent is one raw observation from a monitoring source. Rows are
// append-only: once written they are never updated or deleted.
type DetectionEvent struct {
	ID           int64     `json:"id"            db:"id"`
	Source       string    `json:"source"        db:"source"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	ResourceName string    `json:"resource_name" db:"resource_name"`
	Category     string    `json:"category"      db:"category"`
	MetricName   string    `json:"metric_name"   db:"metric_name"`
	MetricValue  float64   `json:"metric_value"  db:"metric_value"`
	MetricUnit   string    `json:"metric_unit"   db:"metric_unit"`
	Severity     Severity  `json:"severity"      db:"severity"`
	Context      string    `json:"context"       db:"context"` // JSON blob
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
}

// Severity levels for detection events.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Recognized issue categories. Events carrying any other category are
// rejected at ingestion.
const (
	CategoryDeadlock           = "DEADLOCK"
	CategorySlowQuery          = "SLOW_QUERY"
	CategoryQueryPerformance   = "QUERY_PERFORMANCE"
	CategoryConnectionOverload = "CONNECTION_OVERLOAD"
	CategoryTransactionFailure = "TRANSACTION_FAILURE"
	CategoryLockWait           = "LOCK_WAIT"
)

var knownCategories = map[string]bool{
	CategoryDeadlock:           true,
	CategorySlowQuery:          true,
	CategoryQueryPerformance:   true,
	CategoryConnectionOverload: true,
	CategoryTransactionFailure: true,
	CategoryLockWait:           true,
}

// KnownCategory reports whether category is in the recognized set.
func KnownCategory(category string) bool {
	return knownCategories[category]
}

// Validate checks the event before it enters the ledger.
func (e *DetectionEvent) Validate() error {
	if e.Source == "" {
		return fmt.Errorf("source is required")
	}
	if e.ResourceName == "" {
		return fmt.Errorf("resource_name is required")
	}
	if !KnownCategory(e.Category) {
		return fmt.Errorf("unrecognized category %q", e.Category)
	}
	if e.MetricValue < 0 {
		return fmt.Errorf("metric_value must be >= 0, got %v", e.MetricValue)
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", e.Severity)
	}
	return nil
}
