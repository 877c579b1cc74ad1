package config

import (
	"fmt"
	"strings"
)

// Settings is the typed view of a resolved config, ready for wiring.
type Settings struct {
	DBPath            string
	Scorer            string
	EmbedEndpoint     string
	SentimentEndpoint string
	EmbedModel        string
	APIKey            string
	RoutesPath        string
	StopsPath         string

	TransitThreshold  float64
	FeedbackThreshold float64
	Margin            float64
	Concurrency       int
}

// ThresholdError reports a classification threshold outside its legal
// range. It aborts startup: running a whole batch with a broken gate is
// worse than refusing to run.
type ThresholdError struct {
	Name  string
	Value float64
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("threshold %s = %v is outside [0, 1]", e.Name, e.Value)
}

// Settings converts the resolved values, filling defaults and validating
// the thresholds.
func (r ResolvedConfig) Settings() (Settings, error) {
	var s Settings
	var err error

	s.DBPath = r.DBPath.Value
	s.Scorer = strings.TrimSpace(r.Scorer.Value)
	if s.Scorer == "" {
		s.Scorer = DefaultScorer
	}
	s.EmbedEndpoint = r.EmbedEndpoint.Value
	s.SentimentEndpoint = r.SentimentEndpoint.Value
	s.EmbedModel = r.EmbedModel.Value
	s.APIKey = r.APIKey.Value
	s.RoutesPath = r.RoutesPath.Value
	s.StopsPath = r.StopsPath.Value

	if s.TransitThreshold, err = floatOrDefault(r.TransitThreshold, DefaultTransitThreshold); err != nil {
		return s, fmt.Errorf("transit threshold: %w", err)
	}
	if s.FeedbackThreshold, err = floatOrDefault(r.FeedbackThreshold, DefaultFeedbackThreshold); err != nil {
		return s, fmt.Errorf("feedback threshold: %w", err)
	}
	if s.Margin, err = floatOrDefault(r.Margin, DefaultMargin); err != nil {
		return s, fmt.Errorf("margin: %w", err)
	}
	if s.Concurrency, err = intOrDefault(r.Concurrency, DefaultConcurrency); err != nil {
		return s, fmt.Errorf("concurrency: %w", err)
	}
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks the threshold ranges.
func (s Settings) Validate() error {
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"transit", s.TransitThreshold},
		{"feedback", s.FeedbackThreshold},
		{"margin", s.Margin},
	} {
		if t.value < 0 || t.value > 1 {
			return &ThresholdError{Name: t.name, Value: t.value}
		}
	}
	switch s.Scorer {
	case "static", "remote":
	default:
		return fmt.Errorf("unknown scorer mode %q (want static or remote)", s.Scorer)
	}
	if s.Scorer == "remote" && strings.TrimSpace(s.EmbedEndpoint) == "" {
		return fmt.Errorf("remote scorer requires an embed endpoint")
	}
	return nil
}
