// Package model defines shared data structures for the discovery service.
package model

import "time"

// Candidate is a raw posting produced by a source adapter. It is never persisted;
// the filter pipeline turns it into a Verdict and the store into a Gig.
type Candidate struct {
	Source       string
	Title        string
	Body         string
	Link         string
	PriceText    string // raw price column when the source has one, e.g. "$50"
	DiscoveredAt time.Time
}

// BudgetKind tells whether a Budget is a single amount or a range.
type BudgetKind string

const (
	BudgetFixed BudgetKind = "fixed_price"
	BudgetRange BudgetKind = "range"
)

// Budget is an amount extracted from free text.
// Fixed budgets set Amount; ranges set Min and Max.
type Budget struct {
	Kind     BudgetKind `json:"type"`
	Amount   float64    `json:"amount,omitempty"`
	Min      float64    `json:"amountMin,omitempty"`
	Max      float64    `json:"amountMax,omitempty"`
	Currency string     `json:"currency,omitempty"`
}

// Classification is the zero-shot classifier output kept on a verdict.
// Confidence is the score of the positive label, not of the top label.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Verdict reasons.
const (
	ReasonAccepted        = "accepted"
	ReasonNegativeKeyword = "negative_keyword"
	ReasonNoKeywords      = "no_keywords"
	ReasonBelowThreshold  = "classifier_below_threshold"
)

// Verdict is the filter pipeline's decision for one candidate.
type Verdict struct {
	Score          float64
	Accepted       bool
	Reason         string
	Budget         *Budget
	Classification *Classification
}

// Gig is an accepted posting. It is created once by the store and never mutated.
type Gig struct {
	Fingerprint    string          `json:"fingerprint"`
	Source         string          `json:"source"`
	Title          string          `json:"title"`
	Link           string          `json:"link"`
	Snippet        string          `json:"snippet"`
	Score          float64         `json:"score"`
	Budget         *Budget         `json:"budget,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	FirstSeenAt    time.Time       `json:"firstSeenAt"`
}

// HealthStatus values mirror the scraper_health.status column.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "HEALTHY"
	StatusDegraded HealthStatus = "DEGRADED"
	StatusFailed   HealthStatus = "FAILED"
)

// HealthRecord summarises the run history of one source.
type HealthRecord struct {
	Source              string        `json:"source"`
	Status              HealthStatus  `json:"status"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	TotalSuccesses      int64         `json:"totalSuccesses"`
	TotalFailures       int64         `json:"totalFailures"`
	LastSuccessAt       *time.Time    `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time    `json:"lastFailureAt,omitempty"`
	LastDuration        time.Duration `json:"lastDurationNs"`
	LastError           string        `json:"lastError,omitempty"`
}

// RunOutcome is what the orchestrator reports to the store after each run.
type RunOutcome struct {
	Success  bool
	At       time.Time
	Duration time.Duration
	Err      error
}
