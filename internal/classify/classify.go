// Package classify implements the transit-relevance gate and the
// actionable-feedback classifier.
//
// Both score canonical text against fixed exemplar sets through the injected
// scorer and apply threshold-plus-margin rules: a text must beat the positive
// set's threshold AND outscore the contrast set by the margin. Route mentions
// bypass the transit gate entirely — extraction is a more precise signal than
// semantic similarity.
package classify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/transitlab/transitpulse/internal/scoring"
)

// Exemplar set names registered with the scorer.
const (
	SetTransit     = "transit"
	SetNonTransit  = "non_transit"
	SetFeedback    = "feedback"
	SetNonFeedback = "non_feedback"
)

// transitGroundingKeywords anchor the semantic gate: similarity alone is too
// loose, so transit-positive texts must also contain at least one of these.
var transitGroundingKeywords = []string{
	"cta", "train", "bus", "line", "transit", "station", "stop",
	"rail", "commute", "subway", "platform",
}

// feedbackKeywords backs the independent comment check: replies under
// non-feedback posts still count as feedback when they carry these.
var feedbackKeywords = regexp.MustCompile(`\b(?:late|delay\w*|crowd\w*|packed|dirty|filthy|broken|slow|rude|smell\w*|skip\w*|ghost\w*|no.show|never (?:came|showed)|stuck|terrible|awful|worst|unreliable|great|love|clean|reliable|thanks?|improv\w*|friendly|helpful)\b`)

// ExemplarSets returns the fixed reference sets for scorer registration.
// The feedback sets aggregate by top-3 mean, which is less sensitive to a
// single exemplar than max.
func ExemplarSets() []scoring.ExemplarSet {
	return []scoring.ExemplarSet{
		{Name: SetTransit, Texts: []string{
			"the red line train was delayed again this morning",
			"waiting for the bus at the stop in the cold",
			"cta service alert for train lines downtown",
			"the l was packed during rush hour today",
			"transferring between train lines at the station",
			"the bus driver skipped my stop completely",
		}},
		{Name: SetNonTransit, Texts: []string{
			"great deep dish pizza place in the neighborhood",
			"the bears game last night was exciting",
			"apartment hunting around the city is rough",
			"the weather along the lakefront is beautiful today",
			"a new restaurant opened downtown last week",
		}},
		{Name: SetFeedback, Texts: []string{
			"the train is always late and overcrowded",
			"the driver was really helpful and friendly",
			"this station smells terrible and needs cleaning",
			"service has actually improved a lot this year",
			"the bus never shows up on schedule anymore",
			"the escalator has been broken for three weeks",
		}, TopK: 3},
		{Name: SetNonFeedback, Texts: []string{
			"what time does the train start running on sundays",
			"how do i get to the airport from downtown",
			"interesting article about the history of the l",
			"does anyone know if the station entrance is open",
			"planning a trip and wondering about fares",
		}, TopK: 3},
	}
}

// StaticKeywordSets returns phrase lists for the static scorer, one per
// exemplar set. These stand in for embeddings when no scoring service is
// configured, so offline runs still gate sensibly.
func StaticKeywordSets() map[string][]string {
	return map[string][]string{
		SetTransit: {
			"cta", "train", "bus", " line", "station", "transit", "the l",
			"rail", "platform", "commute", "subway",
		},
		SetNonTransit: {
			"pizza", "restaurant", "apartment", "weather", "game", "concert",
			"movie", "recipe",
		},
		SetFeedback: {
			"late", "delay", "crowded", "packed", "dirty", "broken", "slow",
			"rude", "smell", "skipped", "never showed", "no show", "stuck",
			"terrible", "awful", "worst", "great", "love", "clean",
			"reliable", "improved", "friendly", "helpful",
		},
		SetNonFeedback: {
			"what time", "how do i", "how much", "does anyone know",
			"where is", "when does", "is there a",
		},
	}
}

// TransitResult is the gate's output for one text unit.
type TransitResult struct {
	IsTransitRelated bool
	Score            float64 // best similarity vs the transit set
	Margin           float64 // transit score minus non-transit score
	RouteBypass      bool    // gate passed because of an explicit route mention
}

// FeedbackResult is the actionability classifier's output.
type FeedbackResult struct {
	IsActionableFeedback bool
	Score                float64 // feedback-set similarity
	ContrastScore        float64 // non-feedback-set similarity
	KeywordOverride      bool    // comment passed via the independent keyword check
}

// Classifier runs both stages against one scorer with configured thresholds.
type Classifier struct {
	scorer            scoring.Scorer
	transitThreshold  float64
	feedbackThreshold float64
	margin            float64
}

// New builds a classifier. Thresholds are validated by the config layer
// before the pipeline starts; they are trusted here.
func New(scorer scoring.Scorer, transitThreshold, feedbackThreshold, margin float64) *Classifier {
	return &Classifier{
		scorer:            scorer,
		transitThreshold:  transitThreshold,
		feedbackThreshold: feedbackThreshold,
		margin:            margin,
	}
}

// ClassifyTransit gates a batch of canonical texts. hasRoute marks units
// with at least one route candidate; those pass regardless of similarity.
// Empty texts never pass and never reach the scorer with content.
func (c *Classifier) ClassifyTransit(ctx context.Context, texts []string, hasRoute []bool) ([]TransitResult, error) {
	if len(texts) != len(hasRoute) {
		return nil, fmt.Errorf("texts and hasRoute length mismatch: %d vs %d", len(texts), len(hasRoute))
	}
	transitScores, err := c.scorer.SimilarityBatch(ctx, texts, SetTransit)
	if err != nil {
		return nil, fmt.Errorf("transit similarity: %w", err)
	}
	contrastScores, err := c.scorer.SimilarityBatch(ctx, texts, SetNonTransit)
	if err != nil {
		return nil, fmt.Errorf("non-transit similarity: %w", err)
	}

	out := make([]TransitResult, len(texts))
	for i, text := range texts {
		score := transitScores[i]
		margin := score - contrastScores[i]
		semantic := strings.TrimSpace(text) != "" &&
			score > c.transitThreshold &&
			margin > c.margin &&
			hasGroundingKeyword(text)
		out[i] = TransitResult{
			IsTransitRelated: semantic || hasRoute[i],
			Score:            score,
			Margin:           margin,
			RouteBypass:      hasRoute[i] && !semantic,
		}
	}
	return out, nil
}

// ClassifyFeedback decides actionability for a batch of transit-related
// texts. isComment enables the independent keyword check so feedback replies
// under non-feedback posts pass.
func (c *Classifier) ClassifyFeedback(ctx context.Context, texts []string, isComment []bool) ([]FeedbackResult, error) {
	if len(texts) != len(isComment) {
		return nil, fmt.Errorf("texts and isComment length mismatch: %d vs %d", len(texts), len(isComment))
	}
	fbScores, err := c.scorer.SimilarityBatch(ctx, texts, SetFeedback)
	if err != nil {
		return nil, fmt.Errorf("feedback similarity: %w", err)
	}
	nfScores, err := c.scorer.SimilarityBatch(ctx, texts, SetNonFeedback)
	if err != nil {
		return nil, fmt.Errorf("non-feedback similarity: %w", err)
	}

	out := make([]FeedbackResult, len(texts))
	for i, text := range texts {
		fb, nf := fbScores[i], nfScores[i]
		semantic := strings.TrimSpace(text) != "" &&
			fb > c.feedbackThreshold &&
			fb-nf > c.margin
		res := FeedbackResult{
			IsActionableFeedback: semantic,
			Score:                fb,
			ContrastScore:        nf,
		}
		if !semantic && isComment[i] && feedbackKeywords.MatchString(text) {
			res.IsActionableFeedback = true
			res.KeywordOverride = true
		}
		out[i] = res
	}
	return out, nil
}

func hasGroundingKeyword(text string) bool {
	for _, kw := range transitGroundingKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
