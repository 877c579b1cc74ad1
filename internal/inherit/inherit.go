// Package inherit resolves routes and time buckets across conversation
// trees. A comment like "same thing happened to me" carries no route of its
// own; it means whatever its nearest resolved ancestor was talking about.
package inherit

import (
	"github.com/transitlab/transitpulse/internal/feedback"
	"github.com/transitlab/transitpulse/internal/thread"
)

// Annotation is the per-unit evidence gathered by the earlier stages.
type Annotation struct {
	Candidates     []feedback.RouteCandidate // sorted best-first
	TransitRelated bool
	TimeBucket     feedback.TimeBucket
}

// Resolution is the inheritance outcome for one unit. RouteID is empty when
// RouteSource is unresolved.
type Resolution struct {
	RouteID       string
	RouteSource   feedback.RouteSource
	Confidence    float64
	Method        feedback.MatchMethod
	TimeBucket    feedback.TimeBucket
	TimeInherited bool
}

// carried is the state flowing parent-to-child during the walk.
type carried struct {
	routeID    string
	confidence float64
	method     feedback.MatchMethod
	timeBucket feedback.TimeBucket
}

// Resolve walks the forest parent-before-child and decides every unit's
// route and time bucket. Rules, in order:
//
//   - A unit's own route candidate always wins, whatever its confidence.
//   - Otherwise the nearest sourcing ancestor's route is inherited.
//   - Units that failed the transit gate may still inherit a route for
//     their record, but never source one for descendants.
//   - A known time bucket passes down to descendants whose own bucket is
//     unknown, regardless of the gate.
//
// Orphan subtrees resolve the same way as rooted trees; they just start
// with nothing to inherit.
func Resolve(f *thread.Forest, anns map[string]Annotation) map[string]Resolution {
	out := make(map[string]Resolution, f.Size())
	state := make(map[string]carried, f.Size())

	f.Walk(func(parent, node *thread.Node) {
		var in carried
		if parent != nil {
			in = state[parent.Unit.ID]
		}
		ann := anns[node.Unit.ID]

		res := Resolution{RouteSource: feedback.RouteUnresolved}
		switch {
		case len(ann.Candidates) > 0:
			best := ann.Candidates[0]
			res.RouteID = best.RouteID
			res.RouteSource = feedback.RouteExplicit
			res.Confidence = best.Confidence
			res.Method = best.Method
		case in.routeID != "":
			res.RouteID = in.routeID
			res.RouteSource = feedback.RouteInherited
			res.Confidence = in.confidence
			res.Method = in.method
		}

		res.TimeBucket = ann.TimeBucket
		if res.TimeBucket == "" {
			res.TimeBucket = feedback.BucketUnknown
		}
		if res.TimeBucket == feedback.BucketUnknown && in.timeBucket != feedback.BucketUnknown && in.timeBucket != "" {
			res.TimeBucket = in.timeBucket
			res.TimeInherited = true
		}

		down := in
		if ann.TransitRelated && res.RouteID != "" {
			down = carried{
				routeID:    res.RouteID,
				confidence: res.Confidence,
				method:     res.Method,
			}
		}
		if res.TimeBucket != feedback.BucketUnknown {
			down.timeBucket = res.TimeBucket
		} else {
			down.timeBucket = in.timeBucket
		}
		state[node.Unit.ID] = down
		out[node.Unit.ID] = res
	})
	return out
}
