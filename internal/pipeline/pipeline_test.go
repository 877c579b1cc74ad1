package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/transitlab/transitpulse/internal/classify"
	"github.com/transitlab/transitpulse/internal/feedback"
	"github.com/transitlab/transitpulse/internal/scoring"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	scorer := scoring.NewStatic(scoring.StaticConfig{Sets: classify.StaticKeywordSets()})
	p, err := New(Config{
		Scorer:            scorer,
		TransitThreshold:  0.5,
		FeedbackThreshold: 0.5,
		Margin:            0.05,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func postAt(id, threadID, text string, at time.Time) feedback.TextUnit {
	return feedback.TextUnit{
		ID:        id,
		ThreadID:  threadID,
		Source:    feedback.SourceReddit,
		RawText:   text,
		CreatedAt: at,
	}
}

func comment(id, threadID, parentID, text string) feedback.TextUnit {
	u := postAt(id, threadID, text, time.Time{})
	u.ParentID = parentID
	return u
}

func recordByID(t *testing.T, res *Result, id string) feedback.FeedbackRecord {
	t.Helper()
	for _, r := range res.Records {
		if r.TextUnitID == id {
			return r
		}
	}
	t.Fatalf("no record for unit %s", id)
	return feedback.FeedbackRecord{}
}

func TestRunThreadEndToEnd(t *testing.T) {
	p := newTestPipeline(t)
	units := []feedback.TextUnit{
		postAt("post", "t1", "The red line was late this morning.", time.Time{}),
		comment("c1", "t1", "post", "the train is always late"),
	}

	res, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID == "" {
		t.Error("empty run id")
	}
	if res.Stats.Records != 2 || res.Stats.Skipped != 0 || res.Stats.Degraded != 0 {
		t.Errorf("stats = %+v", res.Stats)
	}

	post := recordByID(t, res, "post")
	if !post.IsTransitRelated || !post.IsActionableFeedback {
		t.Errorf("post flags = %+v", post)
	}
	if post.ResolvedRouteID != "red_line" || post.RouteSource != feedback.RouteExplicit {
		t.Errorf("post route = %s/%s, want red_line/explicit", post.ResolvedRouteID, post.RouteSource)
	}
	if post.SentimentScore >= 0 {
		t.Errorf("post sentiment = %v, want negative", post.SentimentScore)
	}
	if post.TimeBucket != feedback.BucketMorning || post.InheritedTimeBucket != "" {
		t.Errorf("post bucket = %s inherited=%s, want own morning", post.TimeBucket, post.InheritedTimeBucket)
	}

	c1 := recordByID(t, res, "c1")
	if c1.ResolvedRouteID != "red_line" || c1.RouteSource != feedback.RouteInherited {
		t.Errorf("comment route = %s/%s, want inherited red_line", c1.ResolvedRouteID, c1.RouteSource)
	}
	if c1.TimeBucket != feedback.BucketMorning || c1.InheritedTimeBucket != feedback.BucketMorning {
		t.Errorf("comment bucket = %s inherited=%s, want inherited morning", c1.TimeBucket, c1.InheritedTimeBucket)
	}
}

func TestRunExplicitRouteOverridesInherited(t *testing.T) {
	p := newTestPipeline(t)
	units := []feedback.TextUnit{
		postAt("post", "t1", "red line was packed", time.Time{}),
		comment("c1", "t1", "post", "the blue line train was worse"),
	}

	res, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c1 := recordByID(t, res, "c1")
	if c1.ResolvedRouteID != "blue_line" || c1.RouteSource != feedback.RouteExplicit {
		t.Errorf("comment route = %s/%s, want explicit blue_line", c1.ResolvedRouteID, c1.RouteSource)
	}
}

func TestRunStopInference(t *testing.T) {
	p := newTestPipeline(t)
	units := []feedback.TextUnit{
		postAt("post", "t1", "waiting at midway forever", time.Time{}),
	}

	res, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := recordByID(t, res, "post")
	if rec.ResolvedRouteID != "orange_line" {
		t.Errorf("route = %s, want orange_line from the midway stop", rec.ResolvedRouteID)
	}
	if !rec.IsTransitRelated {
		t.Error("stop-inferred route must pass the transit gate")
	}
	if len(rec.StopMentions) != 1 || rec.StopMentions[0] != "midway" {
		t.Errorf("stop mentions = %v, want [midway]", rec.StopMentions)
	}
}

func TestRunSarcasmFlipsRecord(t *testing.T) {
	p := newTestPipeline(t)
	units := []feedback.TextUnit{
		postAt("post", "t1", "oh great, love how clean the red line is", time.Time{}),
	}

	res, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := recordByID(t, res, "post")
	if !rec.IsSarcastic {
		t.Error("want sarcasm flag set")
	}
	if rec.SentimentScore >= 0 {
		t.Errorf("sentiment = %v, want flipped negative", rec.SentimentScore)
	}
}

func TestRunSkipsMalformedAndDuplicate(t *testing.T) {
	p := newTestPipeline(t)
	units := []feedback.TextUnit{
		postAt("", "t1", "missing id", time.Time{}),
		postAt("post", "t1", "the red line was late", time.Time{}),
		postAt("post", "t1", "duplicate id", time.Time{}),
	}

	res, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Skipped != 2 || res.Stats.Records != 1 {
		t.Errorf("stats = %+v, want 2 skipped 1 record", res.Stats)
	}
}

func TestRunEmptyTextYieldsDefaultShape(t *testing.T) {
	p := newTestPipeline(t)
	units := []feedback.TextUnit{
		postAt("post", "t1", "   ", time.Time{}),
	}

	res, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := recordByID(t, res, "post")
	if rec.IsTransitRelated || rec.IsActionableFeedback || rec.SentimentScore != 0 {
		t.Errorf("empty text record = %+v, want all-default", rec)
	}
	if rec.RouteSource != feedback.RouteUnresolved || rec.TimeBucket != feedback.BucketUnknown {
		t.Errorf("empty text record = %+v, want unresolved/unknown", rec)
	}
}

func TestRunGateFailureClearsTimeBucket(t *testing.T) {
	p := newTestPipeline(t)
	units := []feedback.TextUnit{
		postAt("post", "t1", "spilled my coffee at state & lake this morning, what a mess", time.Time{}),
	}

	res, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := recordByID(t, res, "post")
	if rec.IsTransitRelated {
		t.Fatalf("record = %+v, want gate failure", rec)
	}
	if rec.TimeBucket != feedback.BucketUnknown {
		t.Errorf("bucket = %s, want unknown despite time phrase in text", rec.TimeBucket)
	}
	// Stop mentions are regex evidence, carried even when the gate fails.
	if len(rec.StopMentions) != 1 || rec.StopMentions[0] != "state & lake" {
		t.Errorf("stops = %v, want [state & lake]", rec.StopMentions)
	}
}

func TestRunOrphanStillGetsRecord(t *testing.T) {
	p := newTestPipeline(t)
	units := []feedback.TextUnit{
		postAt("post", "t1", "red line was late", time.Time{}),
		comment("lost", "t1", "deleted", "the train is always late"),
	}

	res, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Orphans != 1 {
		t.Errorf("orphans = %d, want 1", res.Stats.Orphans)
	}
	lost := recordByID(t, res, "lost")
	if lost.RouteSource != feedback.RouteUnresolved {
		t.Errorf("orphan route = %+v, must not inherit across a broken link", lost)
	}
}

func TestRunDeterministic(t *testing.T) {
	p := newTestPipeline(t)
	units := []feedback.TextUnit{
		postAt("post", "t1", "The red line was late this morning.", time.Time{}),
		comment("c1", "t1", "post", "same at belmont"),
		comment("c2", "t1", "post", "the 66 bus too"),
	}

	first, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if diff := cmp.Diff(first.Records, second.Records); diff != "" {
		t.Errorf("records differ between identical runs (-first +second):\n%s", diff)
	}
}

// errScorer fails every call, for degradation paths.
type errScorer struct{}

func (errScorer) Concurrency() int { return 2 }
func (errScorer) Similarity(context.Context, string, string) (float64, error) {
	return 0, errors.New("scorer down")
}
func (errScorer) SimilarityBatch(_ context.Context, texts []string, _ string) ([]float64, error) {
	return nil, errors.New("scorer down")
}
func (errScorer) Sentiment(context.Context, string) (float64, error) {
	return 0, errors.New("scorer down")
}
func (errScorer) SentimentBatch(_ context.Context, texts []string) ([]float64, error) {
	return nil, errors.New("scorer down")
}

func TestRunDegradesOnScorerFailure(t *testing.T) {
	p, err := New(Config{
		Scorer:            errScorer{},
		TransitThreshold:  0.5,
		FeedbackThreshold: 0.5,
		Margin:            0.05,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	units := []feedback.TextUnit{
		postAt("post", "t1", "the red line was late this morning", time.Time{}),
	}

	res, err := p.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run must survive scorer failure, got %v", err)
	}
	rec := recordByID(t, res, "post")
	if !rec.Degraded {
		t.Error("want record marked degraded")
	}
	if rec.IsTransitRelated || rec.ResolvedRouteID != "" {
		t.Errorf("degraded record = %+v, want defaults", rec)
	}
	if res.Stats.Degraded != 1 {
		t.Errorf("stats degraded = %d, want 1", res.Stats.Degraded)
	}
}

func TestRunContextCancellation(t *testing.T) {
	p := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	units := []feedback.TextUnit{
		postAt("post", "t1", "the red line was late", time.Time{}),
	}
	// The static scorer ignores ctx, so only the errgroup path observes
	// cancellation; a canceled run either errors or completes cleanly.
	if res, err := p.Run(ctx, units); err == nil && res == nil {
		t.Fatal("Run returned neither result nor error")
	}
}
