package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigbot/discovery-service/internal/model"
)

func sampleGig() model.Gig {
	return model.Gig{
		Fingerprint: "abc123",
		Source:      "craigslist",
		Title:       "Fix my <WordPress> site",
		Link:        "https://sfbay.craigslist.org/cpg/1.html?a=1&b=2",
		Snippet:     "Need it done today & cheap",
		Score:       5,
		Budget:      &model.Budget{Kind: model.BudgetRange, Min: 50, Max: 80, Currency: "USD"},
		FirstSeenAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// ── Formatting ─────────────────────────────────────────────────────────────

func TestFormatBudget(t *testing.T) {
	tests := []struct {
		b    *model.Budget
		want string
	}{
		{nil, ""},
		{&model.Budget{Kind: model.BudgetFixed, Amount: 500, Currency: "USD"}, "USD 500"},
		{&model.Budget{Kind: model.BudgetFixed, Amount: 5000}, "5,000"},
		{&model.Budget{Kind: model.BudgetFixed, Amount: 1_000_000, Currency: "UGX"}, "UGX 1,000,000"},
		{&model.Budget{Kind: model.BudgetRange, Min: 50, Max: 80, Currency: "EUR"}, "EUR 50–80"},
		{&model.Budget{Kind: model.BudgetFixed, Amount: 12.5}, "12.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBudget(tt.b))
	}
}

func TestFormatTelegram_EscapesHTML(t *testing.T) {
	msg := FormatTelegram(sampleGig())

	assert.Contains(t, msg, "<b>Fix my &lt;WordPress&gt; site</b>")
	assert.Contains(t, msg, "USD 50–80")
	assert.Contains(t, msg, "today &amp; cheap")
	assert.Contains(t, msg, `href="https://sfbay.craigslist.org/cpg/1.html?a=1&amp;b=2"`)
}

// ── Telegram ───────────────────────────────────────────────────────────────

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegramNotifier_Sends(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifierWithSender(sender, 42)

	require.NoError(t, n.Notify(context.Background(), sampleGig()))

	require.Len(t, sender.sent, 1)
	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.EqualValues(t, 42, msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
}

func TestTelegramNotifier_WrapsError(t *testing.T) {
	n := NewTelegramNotifierWithSender(&fakeSender{err: errors.New("chat not found")}, 1)
	err := n.Notify(context.Background(), sampleGig())
	assert.ErrorContains(t, err, "chat not found")
}

// ── Redis ──────────────────────────────────────────────────────────────────

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisPublisher_PublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, NewRedisPublisher(pub).Notify(context.Background(), sampleGig()))

	assert.Equal(t, ChannelGigFound, pub.channel)
	var event struct {
		Type string    `json:"type"`
		Gig  model.Gig `json:"gig"`
	}
	require.NoError(t, json.Unmarshal(pub.payload, &event))
	assert.Equal(t, "EVENT_GIG_FOUND", event.Type)
	assert.Equal(t, "abc123", event.Gig.Fingerprint)
	require.NotNil(t, event.Gig.Budget)
	assert.Equal(t, 80.0, event.Gig.Budget.Max)
}

func TestRedisPublisher_Error(t *testing.T) {
	err := NewRedisPublisher(&fakePublisher{err: errors.New("READONLY")}).Notify(context.Background(), sampleGig())
	assert.ErrorContains(t, err, "READONLY")
}

// ── Multi ──────────────────────────────────────────────────────────────────

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, model.Gig) error {
	c.calls++
	return c.err
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	a := &countingNotifier{err: errors.New("a failed")}
	b := &countingNotifier{}
	c := &countingNotifier{err: errors.New("c failed")}

	err := Multi{a, b, c}.Notify(context.Background(), sampleGig())

	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 1, c.calls)
	assert.ErrorContains(t, err, "a failed")
	assert.ErrorContains(t, err, "c failed")
	assert.NoError(t, Multi{b}.Notify(context.Background(), sampleGig()))
}
