package filter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
)

// Default zero-shot labels. The first one is the label that counts as a gig.
var DefaultLabels = []string{"freelance gig", "job offer", "advertisement", "discussion"}

// Classifier scores text against candidate labels.
type Classifier interface {
	Classify(ctx context.Context, text string, labels []string) (map[string]float64, error)
}

// ClassifierError wraps any failure of the classification backend.
// The pipeline degrades to keyword-only scoring when it sees one.
type ClassifierError struct {
	Err error
}

func (e *ClassifierError) Error() string { return "classifier: " + e.Err.Error() }
func (e *ClassifierError) Unwrap() error { return e.Err }

// ─── Hugging Face inference API ─────────────────────────────────────────────

const huggingFaceBaseURL = "https://api-inference.huggingface.co/models/"

// HuggingFaceClassifier calls a hosted zero-shot classification model.
type HuggingFaceClassifier struct {
	client  *http.Client
	baseURL string
	model   string
	token   string
}

// NewHuggingFaceClassifier returns a classifier for model authenticated with token.
func NewHuggingFaceClassifier(hc *http.Client, model, token string) *HuggingFaceClassifier {
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	return &HuggingFaceClassifier{client: hc, baseURL: huggingFaceBaseURL, model: model, token: token}
}

type zeroShotRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		CandidateLabels []string `json:"candidate_labels"`
	} `json:"parameters"`
}

type zeroShotResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
	Error  string    `json:"error"`
}

func (h *HuggingFaceClassifier) Classify(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	var body zeroShotRequest
	body.Inputs = text
	body.Parameters.CandidateLabels = labels

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ClassifierError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+h.model, bytes.NewReader(payload))
	if err != nil {
		return nil, &ClassifierError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &ClassifierError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ClassifierError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ClassifierError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var out zeroShotResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ClassifierError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Error != "" {
		return nil, &ClassifierError{Err: fmt.Errorf("model error: %s", out.Error)}
	}
	if len(out.Labels) != len(out.Scores) || len(out.Labels) == 0 {
		return nil, &ClassifierError{Err: fmt.Errorf("malformed response: %d labels, %d scores", len(out.Labels), len(out.Scores))}
	}

	scores := make(map[string]float64, len(out.Labels))
	for i, l := range out.Labels {
		scores[l] = out.Scores[i]
	}
	return scores, nil
}

// ─── Cache + concurrency bound ─────────────────────────────────────────────

// CachedClassifier memoizes results by text and bounds concurrent backend calls.
// Failed calls are not cached.
type CachedClassifier struct {
	next   Classifier
	cache  *lru.Cache[string, map[string]float64]
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewCachedClassifier wraps next with an LRU of size entries and at most workers
// in-flight calls.
func NewCachedClassifier(next Classifier, size, workers int, logger *slog.Logger) (*CachedClassifier, error) {
	if size <= 0 {
		size = 1024
	}
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, map[string]float64](size)
	if err != nil {
		return nil, fmt.Errorf("classifier cache: %w", err)
	}
	return &CachedClassifier{
		next:   next,
		cache:  cache,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
	}, nil
}

func (c *CachedClassifier) Classify(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	key := cacheKey(text, labels)
	if scores, ok := c.cache.Get(key); ok {
		return scores, nil
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, &ClassifierError{Err: err}
	}
	defer c.sem.Release(1)

	// another caller may have filled it while we waited
	if scores, ok := c.cache.Get(key); ok {
		return scores, nil
	}

	scores, err := c.next.Classify(ctx, text, labels)
	if err != nil {
		c.logger.Debug("classifier call failed, not caching", "err", err)
		return nil, err
	}
	c.cache.Add(key, scores)
	return scores, nil
}

func cacheKey(text string, labels []string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(labels, "\x1f")))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// truncateWords keeps at most n whitespace-separated words of text.
func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if n > 0 && len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// topLabel returns the highest-scoring label, ties broken alphabetically.
func topLabel(scores map[string]float64) string {
	var best string
	bestScore := -1.0
	for l, s := range scores {
		if s > bestScore || (s == bestScore && l < best) {
			best, bestScore = l, s
		}
	}
	return best
}
