// Package sentiment scores the polarity of canonical text and detects
// sarcasm cues. Sarcastic praise is inverted: "oh great, another delay"
// must not count as a compliment.
package sentiment

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/transitlab/transitpulse/internal/routes"
	"github.com/transitlab/transitpulse/internal/scoring"
)

// sarcasmPatterns are surface cues that flip positive polarity. They are
// matched against canonical (lowercased) text.
var sarcasmPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\boh,? (?:great|good|wonderful|perfect|lovely)\b`),
	regexp.MustCompile(`\bthanks?,? cta\b`),
	regexp.MustCompile(`\b(?:just |gotta )?love (?:waiting|standing|being stuck|how)\b`),
	regexp.MustCompile(`\bwhat a surprise\b`),
	regexp.MustCompile(`\bshocker\b`),
	regexp.MustCompile(`\bnever fails\b`),
	regexp.MustCompile(`\bas usual\b`),
	regexp.MustCompile(`\bof course (?:it|the|they)\b`),
	regexp.MustCompile(`\bworking great\b.*\bnot\b`),
	regexp.MustCompile(`/s\b`),
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

// Result is the sentiment outcome for one text unit.
type Result struct {
	Score     float64 // in [-1, 1], negative means complaint
	Sarcastic bool
}

// Analyzer scores text through the injected scorer and applies the sarcasm
// flip on top.
type Analyzer struct {
	scorer scoring.Scorer
}

// NewAnalyzer builds an analyzer around a scorer.
func NewAnalyzer(scorer scoring.Scorer) *Analyzer {
	return &Analyzer{scorer: scorer}
}

// Analyze scores one text. A sarcastic text with positive raw polarity has
// its score negated; already-negative sarcasm keeps its score.
func (a *Analyzer) Analyze(ctx context.Context, text string) (Result, error) {
	score, err := a.scorer.Sentiment(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("scoring sentiment: %w", err)
	}
	return applySarcasm(text, clamp(score)), nil
}

// AnalyzeBatch scores a batch in one scorer round trip.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, texts []string) ([]Result, error) {
	scores, err := a.scorer.SentimentBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("scoring sentiment batch: %w", err)
	}
	if len(scores) != len(texts) {
		return nil, fmt.Errorf("sentiment batch size mismatch: got %d scores for %d texts", len(scores), len(texts))
	}
	out := make([]Result, len(texts))
	for i, text := range texts {
		out[i] = applySarcasm(text, clamp(scores[i]))
	}
	return out, nil
}

func applySarcasm(text string, score float64) Result {
	res := Result{Score: score}
	for _, p := range sarcasmPatterns {
		if p.MatchString(text) {
			res.Sarcastic = true
			break
		}
	}
	if res.Sarcastic && res.Score > 0 {
		res.Score = -res.Score
	}
	return res
}

// RouteContext extracts the sentences of text that mention the given route
// and joins them. When no sentence names the route the full text is
// returned, so a single-route unit still gets a score.
func RouteContext(text string, route routes.Route) string {
	pattern := routeMentionPattern(route)
	if pattern == nil {
		return text
	}
	var matched []string
	for _, sentence := range SplitSentences(text) {
		if pattern.MatchString(sentence) {
			matched = append(matched, sentence)
		}
	}
	if len(matched) == 0 {
		return text
	}
	return strings.Join(matched, ". ")
}

// SplitSentences breaks canonical text on sentence punctuation and
// newlines, dropping empty fragments.
func SplitSentences(text string) []string {
	var out []string
	for _, part := range sentenceSplit.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func routeMentionPattern(route routes.Route) *regexp.Regexp {
	switch route.Mode {
	case routes.ModeRail:
		color, ok := strings.CutSuffix(route.ID, "_line")
		if !ok || color == "" {
			return nil
		}
		return regexp.MustCompile(`\b` + regexp.QuoteMeta(color) + `\s+(?:line|train)s?\b`)
	case routes.ModeBus:
		if route.Number == "" {
			return nil
		}
		num := regexp.QuoteMeta(route.Number)
		return regexp.MustCompile(`(?:\b(?:bus|route)\s*#?` + num + `\b|\b` + num + `\s+bus(?:es)?\b|#` + num + `\b)`)
	}
	return nil
}

func clamp(score float64) float64 {
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}
