// Package store persists accepted gigs and per-source health records.
//
// Gig inserts are keyed by fingerprint and are atomic with respect to uniqueness:
// of any number of concurrent inserts with the same fingerprint exactly one reports
// Inserted. All writes are serialized through a single writer lock; reads are not.
package store

import (
	"context"
	"errors"
	"unicode/utf8"

	"gigbot/discovery-service/internal/model"
)

// InsertOutcome is the result of TryInsert.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota + 1
	AlreadyExists
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// ErrNotFound is returned when a source has no health record yet.
var ErrNotFound = errors.New("not found")

// Store is implemented by PostgresStore and MemoryStore.
type Store interface {
	// TryInsert stores gig unless its fingerprint was seen before.
	TryInsert(ctx context.Context, gig model.Gig) (InsertOutcome, error)

	// RecordRun folds one run outcome into the source's health record and returns
	// the updated record.
	RecordRun(ctx context.Context, source string, out model.RunOutcome) (model.HealthRecord, error)

	Health(ctx context.Context, source string) (model.HealthRecord, error)
	ListHealth(ctx context.Context) ([]model.HealthRecord, error)

	// RecentGigs returns the newest gigs first. limit <= 0 returns all of them.
	RecentGigs(ctx context.Context, limit int) ([]model.Gig, error)
}

// SnippetLen is the maximum rune length of a stored snippet.
const SnippetLen = 255

// NewGig builds the record stored for an accepted candidate.
func NewGig(c model.Candidate, v model.Verdict) model.Gig {
	return model.Gig{
		Fingerprint:    Fingerprint(c.Source, c.Link, c.Title),
		Source:         c.Source,
		Title:          c.Title,
		Link:           c.Link,
		Snippet:        Snippet(c.Body),
		Score:          v.Score,
		Budget:         v.Budget,
		Classification: v.Classification,
		FirstSeenAt:    c.DiscoveredAt,
	}
}

// Snippet truncates body to SnippetLen runes.
func Snippet(body string) string {
	if utf8.RuneCountInString(body) <= SnippetLen {
		return body
	}
	return string([]rune(body)[:SnippetLen])
}
