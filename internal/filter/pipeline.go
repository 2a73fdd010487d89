package filter

import (
	"context"
	"errors"
	"log/slog"

	"gigbot/discovery-service/internal/model"
)

// Config holds the keyword tables and classifier settings.
type Config struct {
	Keywords map[string]float64 `yaml:"keywords"`
	Negative []string           `yaml:"negative_keywords"`

	Classifier ClassifierConfig `yaml:"classifier"`
}

// ClassifierConfig controls the optional zero-shot stage.
type ClassifierConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Threshold     float64  `yaml:"threshold"`
	MaxWords      int      `yaml:"max_words"`
	Labels        []string `yaml:"labels"`
	PositiveLabel string   `yaml:"positive_label"`
	CacheSize     int      `yaml:"cache_size"`
	Workers       int      `yaml:"workers"`
}

// DefaultConfig returns the built-in keyword lists.
func DefaultConfig() Config {
	return Config{
		Keywords: weighted(1,
			// cheap
			"cheap", "low budget", "small budget", "affordable",
			"$10", "$20", "$30", "student project",
			// urgent
			"asap", "urgent", "quick job", "fast",
			"immediately", "deadline",
			// dev work
			"website", "web developer", "app", "automation",
			"script", "bot", "wordpress", "software",
		),
		Negative: []string{
			"[for hire]", "unpaid", "volunteer", "internship",
			"scam", "equity only", "commission only",
		},
		Classifier: ClassifierConfig{
			Enabled:       false,
			Threshold:     0.5,
			MaxWords:      200,
			Labels:        DefaultLabels,
			PositiveLabel: DefaultLabels[0],
			CacheSize:     1024,
			Workers:       2,
		},
	}
}

func weighted(w float64, terms ...string) map[string]float64 {
	m := make(map[string]float64, len(terms))
	for _, t := range terms {
		m[t] = w
	}
	return m
}

// Pipeline turns a candidate into a verdict. It is safe for concurrent use.
type Pipeline struct {
	keywords   Keywords
	classifier Classifier
	cfg        ClassifierConfig
	logger     *slog.Logger
}

// NewPipeline builds a pipeline. classifier may be nil, in which case the
// classification stage is disabled regardless of cfg.
func NewPipeline(cfg Config, classifier Classifier, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cc := cfg.Classifier
	if len(cc.Labels) == 0 {
		cc.Labels = DefaultLabels
	}
	if cc.PositiveLabel == "" {
		cc.PositiveLabel = cc.Labels[0]
	}
	if classifier == nil {
		cc.Enabled = false
	}
	return &Pipeline{
		keywords:   NewKeywords(cfg.Keywords, cfg.Negative),
		classifier: classifier,
		cfg:        cc,
		logger:     logger,
	}
}

// Evaluate scores c. It never fails: classifier errors fall back to the keyword score.
func (p *Pipeline) Evaluate(ctx context.Context, c model.Candidate) model.Verdict {
	text := c.Title + "\n" + c.Body
	folded := fold(text)

	if term, hit := p.keywords.NegativeMatch(folded); hit {
		p.logger.Debug("candidate vetoed", "source", c.Source, "term", term)
		return model.Verdict{Reason: model.ReasonNegativeKeyword}
	}

	score, _ := p.keywords.Score(folded)
	v := model.Verdict{Score: score}

	passed, degraded := false, false
	if p.cfg.Enabled {
		cls, err := p.classify(ctx, text)
		switch {
		case err != nil:
			degraded = true
			p.logger.Warn("classifier unavailable, using keyword score", "source", c.Source, "err", err)
		default:
			v.Classification = cls
			passed = cls.Confidence >= p.cfg.Threshold
		}
	}

	switch {
	case p.cfg.Enabled && !passed && !degraded:
		v.Reason = model.ReasonBelowThreshold
	case score <= 0 && !passed:
		v.Reason = model.ReasonNoKeywords
	default:
		v.Accepted = true
		v.Reason = model.ReasonAccepted
		v.Budget = ExtractBudget(c.PriceText + "\n" + text)
	}
	return v
}

func (p *Pipeline) classify(ctx context.Context, text string) (*model.Classification, error) {
	truncated := truncateWords(text, p.cfg.MaxWords)
	scores, err := p.classifier.Classify(ctx, truncated, p.cfg.Labels)
	if err != nil {
		var ce *ClassifierError
		if !errors.As(err, &ce) {
			err = &ClassifierError{Err: err}
		}
		return nil, err
	}
	return &model.Classification{
		Label:      topLabel(scores),
		Confidence: scores[p.cfg.PositiveLabel],
	}, nil
}
