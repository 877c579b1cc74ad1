package inherit

import (
	"testing"
	"time"

	"github.com/transitlab/transitpulse/internal/feedback"
	"github.com/transitlab/transitpulse/internal/thread"
)

func unit(id, threadID, parentID string) feedback.TextUnit {
	return feedback.TextUnit{
		ID:        id,
		ThreadID:  threadID,
		ParentID:  parentID,
		Source:    feedback.SourceReddit,
		RawText:   "text",
		CreatedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func explicitCandidate(routeID string) feedback.RouteCandidate {
	return feedback.RouteCandidate{
		RouteID:    routeID,
		SpanStart:  0,
		SpanEnd:    8,
		Confidence: 0.95,
		Method:     feedback.MatchExplicitName,
	}
}

func transitAnn(cands ...feedback.RouteCandidate) Annotation {
	return Annotation{
		Candidates:     cands,
		TransitRelated: true,
		TimeBucket:     feedback.BucketUnknown,
	}
}

func TestResolveInheritanceChain(t *testing.T) {
	f := thread.Build([]feedback.TextUnit{
		unit("post", "t1", ""),
		unit("c1", "t1", "post"),
		unit("c2", "t1", "c1"),
	})
	anns := map[string]Annotation{
		"post": transitAnn(explicitCandidate("red_line")),
		"c1":   transitAnn(),
		"c2":   transitAnn(),
	}

	got := Resolve(f, anns)
	if r := got["post"]; r.RouteID != "red_line" || r.RouteSource != feedback.RouteExplicit {
		t.Errorf("post = %+v, want explicit red_line", r)
	}
	for _, id := range []string{"c1", "c2"} {
		r := got[id]
		if r.RouteID != "red_line" || r.RouteSource != feedback.RouteInherited {
			t.Errorf("%s = %+v, want inherited red_line", id, r)
		}
	}
}

func TestResolveExplicitOverridesInherited(t *testing.T) {
	f := thread.Build([]feedback.TextUnit{
		unit("post", "t1", ""),
		unit("c1", "t1", "post"),
		unit("c1a", "t1", "c1"),
	})
	anns := map[string]Annotation{
		"post": transitAnn(explicitCandidate("red_line")),
		"c1":   transitAnn(explicitCandidate("blue_line")),
		"c1a":  transitAnn(),
	}

	got := Resolve(f, anns)
	if r := got["c1"]; r.RouteID != "blue_line" || r.RouteSource != feedback.RouteExplicit {
		t.Errorf("c1 = %+v, want explicit blue_line over inherited red_line", r)
	}
	// The override becomes the new source for deeper descendants.
	if r := got["c1a"]; r.RouteID != "blue_line" || r.RouteSource != feedback.RouteInherited {
		t.Errorf("c1a = %+v, want inherited blue_line", r)
	}
}

func TestResolveLowConfidenceStillOverrides(t *testing.T) {
	f := thread.Build([]feedback.TextUnit{
		unit("post", "t1", ""),
		unit("c1", "t1", "post"),
	})
	stopCand := feedback.RouteCandidate{
		RouteID:    "orange_line",
		Confidence: 0.40,
		Method:     feedback.MatchStopInference,
	}
	anns := map[string]Annotation{
		"post": transitAnn(explicitCandidate("red_line")),
		"c1":   transitAnn(stopCand),
	}

	got := Resolve(f, anns)
	r := got["c1"]
	if r.RouteID != "orange_line" || r.RouteSource != feedback.RouteExplicit {
		t.Errorf("c1 = %+v, want own candidate to beat inheritance regardless of confidence", r)
	}
	if r.Method != feedback.MatchStopInference || r.Confidence != 0.40 {
		t.Errorf("c1 = %+v, want candidate method and confidence preserved", r)
	}
}

func TestResolveUnresolvedWithoutAncestor(t *testing.T) {
	f := thread.Build([]feedback.TextUnit{
		unit("post", "t1", ""),
		unit("c1", "t1", "post"),
	})
	anns := map[string]Annotation{
		"post": transitAnn(),
		"c1":   transitAnn(),
	}

	got := Resolve(f, anns)
	for _, id := range []string{"post", "c1"} {
		if r := got[id]; r.RouteID != "" || r.RouteSource != feedback.RouteUnresolved {
			t.Errorf("%s = %+v, want unresolved", id, r)
		}
	}
}

func TestResolveGateFailedReceivesButDoesNotSource(t *testing.T) {
	f := thread.Build([]feedback.TextUnit{
		unit("post", "t1", ""),
		unit("offtopic", "t1", "post"),
		unit("reply", "t1", "offtopic"),
	})
	anns := map[string]Annotation{
		"post": transitAnn(explicitCandidate("red_line")),
		"offtopic": {
			Candidates:     []feedback.RouteCandidate{explicitCandidate("green_line")},
			TransitRelated: false,
			TimeBucket:     feedback.BucketUnknown,
		},
		"reply": transitAnn(),
	}

	got := Resolve(f, anns)
	// The gate-failed unit keeps its own candidate on its record.
	if r := got["offtopic"]; r.RouteID != "green_line" {
		t.Errorf("offtopic = %+v, want its own green_line", r)
	}
	// But it never becomes a source: the grandchild inherits from the post.
	if r := got["reply"]; r.RouteID != "red_line" || r.RouteSource != feedback.RouteInherited {
		t.Errorf("reply = %+v, want red_line inherited past the gate-failed unit", r)
	}
}

func TestResolveTimeBucketInheritance(t *testing.T) {
	f := thread.Build([]feedback.TextUnit{
		unit("post", "t1", ""),
		unit("c1", "t1", "post"),
		unit("c2", "t1", "c1"),
	})
	anns := map[string]Annotation{
		"post": {TransitRelated: true, TimeBucket: feedback.BucketMorning},
		"c1":   {TransitRelated: true, TimeBucket: feedback.BucketUnknown},
		"c2":   {TransitRelated: true, TimeBucket: feedback.BucketEvening},
	}

	got := Resolve(f, anns)
	if r := got["post"]; r.TimeBucket != feedback.BucketMorning || r.TimeInherited {
		t.Errorf("post = %+v, want own morning bucket", r)
	}
	if r := got["c1"]; r.TimeBucket != feedback.BucketMorning || !r.TimeInherited {
		t.Errorf("c1 = %+v, want inherited morning bucket", r)
	}
	if r := got["c2"]; r.TimeBucket != feedback.BucketEvening || r.TimeInherited {
		t.Errorf("c2 = %+v, want own evening bucket over inherited", r)
	}
}

func TestResolveOrphanStartsFresh(t *testing.T) {
	f := thread.Build([]feedback.TextUnit{
		unit("post", "t1", ""),
		unit("lost", "t1", "gone"),
	})
	anns := map[string]Annotation{
		"post": transitAnn(explicitCandidate("red_line")),
		"lost": transitAnn(),
	}

	got := Resolve(f, anns)
	if r := got["lost"]; r.RouteSource != feedback.RouteUnresolved {
		t.Errorf("lost = %+v, orphan must not inherit from an unrelated root", r)
	}
}
