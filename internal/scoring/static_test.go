package scoring

import (
	"context"
	"testing"
)

func TestStaticSimilarity(t *testing.T) {
	s := NewStatic(StaticConfig{
		Sets: map[string][]string{
			"transit": {"train", "bus", "cta"},
		},
	})
	ctx := context.Background()

	score, err := s.Similarity(ctx, "the train was late", "transit")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if score < 0.5 {
		t.Errorf("one hit scored %v, want >= 0.5", score)
	}

	multi, _ := s.Similarity(ctx, "cta train and bus all broken", "transit")
	if multi <= score {
		t.Errorf("three hits (%v) should outscore one hit (%v)", multi, score)
	}

	zero, _ := s.Similarity(ctx, "pizza review", "transit")
	if zero != 0 {
		t.Errorf("no hits scored %v, want 0", zero)
	}

	empty, _ := s.Similarity(ctx, "", "transit")
	if empty != 0 {
		t.Errorf("empty text scored %v, want 0", empty)
	}
}

func TestStaticSentiment(t *testing.T) {
	s := NewStatic(StaticConfig{})
	ctx := context.Background()

	neg, _ := s.Sentiment(ctx, "the bus was late and crowded")
	if neg >= 0 {
		t.Errorf("negative text scored %v, want < 0", neg)
	}

	pos, _ := s.Sentiment(ctx, "clean train, friendly driver, on time")
	if pos <= 0 {
		t.Errorf("positive text scored %v, want > 0", pos)
	}

	if zero, _ := s.Sentiment(ctx, "the schedule exists"); zero != 0 {
		t.Errorf("neutral text scored %v, want 0", zero)
	}
}

func TestStaticDeterministic(t *testing.T) {
	s := NewStatic(StaticConfig{Sets: map[string][]string{"transit": {"train"}}})
	ctx := context.Background()
	first, _ := s.Similarity(ctx, "train talk", "transit")
	for i := 0; i < 5; i++ {
		again, _ := s.Similarity(ctx, "train talk", "transit")
		if again != first {
			t.Fatalf("similarity not deterministic: %v vs %v", again, first)
		}
	}
}
