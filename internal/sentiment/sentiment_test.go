package sentiment

import (
	"context"
	"testing"

	"github.com/transitlab/transitpulse/internal/routes"
	"github.com/transitlab/transitpulse/internal/scoring"
)

func testAnalyzer() *Analyzer {
	return NewAnalyzer(scoring.NewStatic(scoring.StaticConfig{}))
}

func TestAnalyzePolarity(t *testing.T) {
	a := testAnalyzer()
	ctx := context.Background()

	res, err := a.Analyze(ctx, "the train was late and crowded")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Score >= 0 {
		t.Errorf("complaint: want negative score, got %v", res.Score)
	}
	if res.Sarcastic {
		t.Errorf("complaint: want not sarcastic")
	}

	res, err = a.Analyze(ctx, "clean train and a friendly driver")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Score <= 0 {
		t.Errorf("praise: want positive score, got %v", res.Score)
	}
}

func TestAnalyzeSarcasmFlipsPositive(t *testing.T) {
	a := testAnalyzer()
	res, err := a.Analyze(context.Background(), "oh great, love how clean and reliable this is")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !res.Sarcastic {
		t.Fatal("want sarcasm detected")
	}
	if res.Score >= 0 {
		t.Errorf("sarcastic praise: want negative score, got %v", res.Score)
	}
}

func TestAnalyzeSarcasmKeepsNegative(t *testing.T) {
	a := testAnalyzer()
	res, err := a.Analyze(context.Background(), "oh great, stuck on a late train as usual")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !res.Sarcastic {
		t.Fatal("want sarcasm detected")
	}
	if res.Score >= 0 {
		t.Errorf("sarcastic complaint: score must stay negative, got %v", res.Score)
	}
}

func TestAnalyzeBatchMatchesSingle(t *testing.T) {
	a := testAnalyzer()
	texts := []string{
		"the bus was late",
		"great service today",
		"oh great, another delay",
	}
	batch, err := a.AnalyzeBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	for i, text := range texts {
		single, err := a.Analyze(context.Background(), text)
		if err != nil {
			t.Fatalf("Analyze %q: %v", text, err)
		}
		if batch[i] != single {
			t.Errorf("text %q: batch %+v != single %+v", text, batch[i], single)
		}
	}
}

func TestRouteContextRail(t *testing.T) {
	reg := routes.Default()
	red, ok := reg.Get("red_line")
	if !ok {
		t.Fatal("default registry missing red_line")
	}
	text := "the red line was late again. the blue line was fine. what a day"
	got := RouteContext(text, red)
	want := "the red line was late again"
	if got != want {
		t.Errorf("RouteContext = %q, want %q", got, want)
	}
}

func TestRouteContextBus(t *testing.T) {
	reg := routes.Default()
	id, ok := reg.BusRouteID("66")
	if !ok {
		t.Fatal("default registry missing bus 66")
	}
	route, _ := reg.Get(id)
	text := "bus 66 never showed up. the weather was nice though"
	got := RouteContext(text, route)
	want := "bus 66 never showed up"
	if got != want {
		t.Errorf("RouteContext = %q, want %q", got, want)
	}
}

func TestRouteContextFallsBackToFullText(t *testing.T) {
	reg := routes.Default()
	red, _ := reg.Get("red_line")
	text := "the train was packed this morning"
	if got := RouteContext(text, red); got != text {
		t.Errorf("RouteContext = %q, want full text", got)
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("first one. second one!\nthird one?  ")
	want := []string{"first one", "second one", "third one"}
	if len(got) != len(want) {
		t.Fatalf("SplitSentences = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}
