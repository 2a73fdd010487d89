// Package notify tells the outside world about newly discovered gigs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gigbot/discovery-service/internal/model"
)

// Notifier is implemented by every sink.
type Notifier interface {
	Notify(ctx context.Context, gig model.Gig) error
}

// Multi fans a gig out to every notifier. One failing sink does not stop the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, gig model.Gig) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, gig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatBudget renders b for humans, e.g. "USD 50–80" or "5,000".
func FormatBudget(b *model.Budget) string {
	if b == nil {
		return ""
	}
	var amount string
	if b.Kind == model.BudgetRange {
		amount = formatAmount(b.Min) + "–" + formatAmount(b.Max)
	} else {
		amount = formatAmount(b.Amount)
	}
	if b.Currency == "" {
		return amount
	}
	return b.Currency + " " + amount
}

func formatAmount(v float64) string {
	if v != float64(int64(v)) {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	s := strconv.FormatInt(int64(v), 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func scoreText(g model.Gig) string {
	s := fmt.Sprintf("score %.1f", g.Score)
	if g.Classification != nil {
		s += fmt.Sprintf(", %s %.0f%%", g.Classification.Label, g.Classification.Confidence*100)
	}
	return s
}
