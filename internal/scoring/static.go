package scoring

import (
	"context"
	"strings"
)

// Static is a deterministic keyword-backed Scorer used for offline runs and
// tests. Similarity is driven by per-set phrase lists, sentiment by a small
// polarity lexicon; identical input always produces identical scores, which
// keeps classifier tests hermetic and pipeline runs reproducible.
type Static struct {
	sets        map[string][]string
	positive    []string
	negative    []string
	concurrency int
}

// StaticConfig configures the static scorer. Zero-value fields fall back to
// the built-in lexicons.
type StaticConfig struct {
	Sets        map[string][]string // set name -> phrases
	Positive    []string
	Negative    []string
	Concurrency int
}

var defaultPositive = []string{
	"great", "good", "love", "fast", "clean", "reliable", "on time",
	"smooth", "friendly", "thank", "best", "improved", "nice",
}

var defaultNegative = []string{
	"late", "delay", "delayed", "slow", "dirty", "broken", "worst",
	"terrible", "awful", "crowded", "packed", "skipped", "ghosted",
	"stuck", "never came", "never showed", "smells", "hate", "filthy",
	"unreliable", "waiting forever", "no show",
}

// NewStatic builds a static scorer.
func NewStatic(cfg StaticConfig) *Static {
	s := &Static{
		sets:        cfg.Sets,
		positive:    cfg.Positive,
		negative:    cfg.Negative,
		concurrency: cfg.Concurrency,
	}
	if s.sets == nil {
		s.sets = map[string][]string{}
	}
	if s.positive == nil {
		s.positive = defaultPositive
	}
	if s.negative == nil {
		s.negative = defaultNegative
	}
	if s.concurrency <= 0 {
		s.concurrency = 8
	}
	return s
}

// Concurrency returns the configured worker budget.
func (s *Static) Concurrency() int { return s.concurrency }

// Similarity scores text by distinct phrase hits against the set's list:
// no hits scores 0, one hit clears typical thresholds, additional hits add a
// little, capped below 1.
func (s *Static) Similarity(_ context.Context, text, set string) (float64, error) {
	phrases := s.sets[set]
	if strings.TrimSpace(text) == "" || len(phrases) == 0 {
		return 0, nil
	}
	hits := 0
	for _, p := range phrases {
		if strings.Contains(text, p) {
			hits++
		}
	}
	if hits == 0 {
		return 0, nil
	}
	score := 0.55 + 0.1*float64(hits-1)
	if score > 0.95 {
		score = 0.95
	}
	return score, nil
}

// SimilarityBatch scores each text independently.
func (s *Static) SimilarityBatch(ctx context.Context, texts []string, set string) ([]float64, error) {
	out := make([]float64, len(texts))
	for i, t := range texts {
		score, err := s.Similarity(ctx, t, set)
		if err != nil {
			return nil, err
		}
		out[i] = score
	}
	return out, nil
}

// Sentiment scores polarity from lexicon hits: (positive - negative) over
// total hits, 0 when nothing matches.
func (s *Static) Sentiment(_ context.Context, text string) (float64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	var pos, neg int
	for _, w := range s.positive {
		if strings.Contains(text, w) {
			pos++
		}
	}
	for _, w := range s.negative {
		if strings.Contains(text, w) {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0, nil
	}
	return float64(pos-neg) / float64(pos+neg), nil
}

// SentimentBatch scores each text independently.
func (s *Static) SentimentBatch(ctx context.Context, texts []string) ([]float64, error) {
	out := make([]float64, len(texts))
	for i, t := range texts {
		score, err := s.Sentiment(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = score
	}
	return out, nil
}
