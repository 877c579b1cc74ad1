// Package pipeline orchestrates the full classification run:
// validate, normalize, extract routes and stops, gate on transit relevance,
// classify actionability, score sentiment, then resolve inheritance across
// conversation trees and emit one record per surviving unit.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/transitlab/transitpulse/internal/classify"
	"github.com/transitlab/transitpulse/internal/feedback"
	"github.com/transitlab/transitpulse/internal/inherit"
	"github.com/transitlab/transitpulse/internal/routes"
	"github.com/transitlab/transitpulse/internal/scoring"
	"github.com/transitlab/transitpulse/internal/sentiment"
	"github.com/transitlab/transitpulse/internal/stops"
	"github.com/transitlab/transitpulse/internal/textnorm"
	"github.com/transitlab/transitpulse/internal/thread"
	"github.com/transitlab/transitpulse/internal/timeofday"
)

// chunkSize bounds one scorer round trip. Remote embedding services cap
// request sizes well above this.
const chunkSize = 32

// Pipeline wires the stages together. Build one per process; Run is safe
// for sequential reuse.
type Pipeline struct {
	registry   *routes.Registry
	stopsReg   *stops.Registry
	extractor  *routes.Extractor
	classifier *classify.Classifier
	analyzer   *sentiment.Analyzer
	timeRes    *timeofday.Resolver
	scorer     scoring.Scorer
}

// Config collects the pipeline's collaborators.
type Config struct {
	Routes            *routes.Registry
	Stops             *stops.Registry
	Scorer            scoring.Scorer
	TransitThreshold  float64
	FeedbackThreshold float64
	Margin            float64
}

// Stats counts what happened during one run.
type Stats struct {
	Units    int
	Records  int
	Skipped  int
	Degraded int
	Orphans  int
	Cycles   int
	Elapsed  time.Duration
}

// Result is one run's output. Records follow input order.
type Result struct {
	RunID     string
	StartedAt time.Time
	Records   []feedback.FeedbackRecord
	Stats     Stats
}

// unitWork accumulates per-unit stage output before assembly.
type unitWork struct {
	unit       feedback.TextUnit
	state      feedback.UnitState
	candidates []feedback.RouteCandidate
	stopNames  []string
	transit    classify.TransitResult
	fb         classify.FeedbackResult
	sent       sentiment.Result
	bucket     feedback.TimeBucket
	degraded   bool
}

// New builds a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Routes == nil {
		cfg.Routes = routes.Default()
	}
	if cfg.Stops == nil {
		cfg.Stops = stops.Default()
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("pipeline requires a scorer")
	}
	extractor, err := routes.NewExtractor(cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("building route extractor: %w", err)
	}
	timeRes, err := timeofday.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("building time resolver: %w", err)
	}
	return &Pipeline{
		registry:   cfg.Routes,
		stopsReg:   cfg.Stops,
		extractor:  extractor,
		classifier: classify.New(cfg.Scorer, cfg.TransitThreshold, cfg.FeedbackThreshold, cfg.Margin),
		analyzer:   sentiment.NewAnalyzer(cfg.Scorer),
		timeRes:    timeRes,
		scorer:     cfg.Scorer,
	}, nil
}

// Run processes one batch of text units end to end. Malformed or duplicate
// units are skipped with a warning; scorer failures degrade the affected
// units to default records instead of aborting the run. Only context
// cancellation stops a run mid-flight.
func (p *Pipeline) Run(ctx context.Context, units []feedback.TextUnit) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	res.Stats.Units = len(units)

	works := p.prepare(units, &res.Stats)
	if err := p.scoreAll(ctx, works); err != nil {
		return nil, err
	}

	accepted := make([]feedback.TextUnit, len(works))
	for i, w := range works {
		accepted[i] = w.unit
	}
	forest := thread.Build(accepted)
	res.Stats.Orphans = len(forest.Orphans)
	forest.Walk(func(_, n *thread.Node) {
		if n.ForcedRoot {
			res.Stats.Cycles++
		}
	})

	resolutions := inherit.Resolve(forest, p.annotations(works))
	res.Records = p.assemble(works, resolutions, &res.Stats)
	res.Stats.Records = len(res.Records)
	res.Stats.Elapsed = time.Since(res.StartedAt)

	log.Info().
		Str("run_id", res.RunID).
		Int("units", res.Stats.Units).
		Int("records", res.Stats.Records).
		Int("skipped", res.Stats.Skipped).
		Int("degraded", res.Stats.Degraded).
		Int("orphans", res.Stats.Orphans).
		Int("cycles", res.Stats.Cycles).
		Dur("elapsed", res.Stats.Elapsed).
		Msg("pipeline run complete")
	return res, nil
}

// prepare validates, deduplicates, normalizes, and runs the regex stages.
// These are cheap and deterministic, so they stay on one goroutine.
func (p *Pipeline) prepare(units []feedback.TextUnit, stats *Stats) []*unitWork {
	seen := make(map[string]struct{}, len(units))
	works := make([]*unitWork, 0, len(units))
	for i := range units {
		u := units[i]
		if err := u.Validate(); err != nil {
			stats.Skipped++
			log.Warn().Err(err).Str("unit_id", u.ID).Msg("skipping malformed unit")
			continue
		}
		if _, dup := seen[u.ID]; dup {
			stats.Skipped++
			log.Warn().Str("unit_id", u.ID).Msg("skipping duplicate unit id")
			continue
		}
		seen[u.ID] = struct{}{}

		u.CanonicalText = textnorm.Normalize(u.RawText)
		w := &unitWork{unit: u, state: feedback.StateNormalized}
		w.candidates = p.extractor.Extract(u.CanonicalText)

		mentions := p.stopsReg.Extract(u.CanonicalText)
		w.stopNames = make([]string, 0, len(mentions))
		routeSet := make(map[string]stops.Mention)
		for _, m := range mentions {
			w.stopNames = append(w.stopNames, m.Stop)
			for _, rid := range m.RouteIDs {
				routeSet[rid] = m
			}
		}
		// A stop served by exactly one route is weak route evidence, used
		// only when the text named no route itself.
		if len(w.candidates) == 0 && len(routeSet) == 1 {
			for rid, m := range routeSet {
				w.candidates = append(w.candidates, routes.InferredCandidate(rid, m.SpanStart, m.SpanEnd))
			}
		}

		w.bucket, _ = p.timeRes.Resolve(u.CanonicalText, u.CreatedAt)
		works = append(works, w)
	}
	return works
}

// scoreAll runs the scorer-backed stages chunked and in parallel, bounded
// by the scorer's concurrency budget.
func (p *Pipeline) scoreAll(ctx context.Context, works []*unitWork) error {
	g, gctx := errgroup.WithContext(ctx)
	limit := p.scorer.Concurrency()
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for start := 0; start < len(works); start += chunkSize {
		end := start + chunkSize
		if end > len(works) {
			end = len(works)
		}
		chunk := works[start:end]
		g.Go(func() error {
			return p.scoreChunk(gctx, chunk)
		})
	}
	return g.Wait()
}

// scoreChunk gates, classifies, and scores one chunk. On a chunk-level
// scorer failure every unit is retried alone so one poisoned text degrades
// only itself.
func (p *Pipeline) scoreChunk(ctx context.Context, chunk []*unitWork) error {
	if err := p.scoreUnits(ctx, chunk); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return ctx.Err()
	}
	for _, w := range chunk {
		if err := p.scoreUnits(ctx, []*unitWork{w}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.degraded = true
			log.Warn().Err(err).Str("unit_id", w.unit.ID).Msg("scoring failed, unit degraded to default record")
		}
	}
	return nil
}

func (p *Pipeline) scoreUnits(ctx context.Context, chunk []*unitWork) error {
	texts := make([]string, len(chunk))
	hasRoute := make([]bool, len(chunk))
	isComment := make([]bool, len(chunk))
	for i, w := range chunk {
		texts[i] = w.unit.CanonicalText
		hasRoute[i] = len(w.candidates) > 0
		isComment[i] = !w.unit.IsRoot()
	}

	transit, err := p.classifier.ClassifyTransit(ctx, texts, hasRoute)
	if err != nil {
		return err
	}
	for i, w := range chunk {
		w.transit = transit[i]
		w.state = feedback.StateGated
	}

	// Actionability and sentiment only matter for transit-related units.
	var related []*unitWork
	var relatedTexts []string
	var sentTexts []string
	var relatedComments []bool
	for i, w := range chunk {
		if !w.transit.IsTransitRelated {
			continue
		}
		related = append(related, w)
		relatedTexts = append(relatedTexts, w.unit.CanonicalText)
		sentTexts = append(sentTexts, p.sentimentText(w))
		relatedComments = append(relatedComments, isComment[i])
	}
	if len(related) == 0 {
		return nil
	}

	fb, err := p.classifier.ClassifyFeedback(ctx, relatedTexts, relatedComments)
	if err != nil {
		return err
	}
	sent, err := p.analyzer.AnalyzeBatch(ctx, sentTexts)
	if err != nil {
		return err
	}
	for i, w := range related {
		w.fb = fb[i]
		w.sent = sent[i]
		w.state = feedback.StateScored
	}
	return nil
}

// sentimentText narrows a unit's text to its route context when exactly
// one route candidate exists. Multi-route texts score whole, since the
// record carries a single resolved route anyway.
func (p *Pipeline) sentimentText(w *unitWork) string {
	if len(w.candidates) != 1 {
		return w.unit.CanonicalText
	}
	route, ok := p.registry.Get(w.candidates[0].RouteID)
	if !ok {
		return w.unit.CanonicalText
	}
	return sentiment.RouteContext(w.unit.CanonicalText, route)
}

func (p *Pipeline) annotations(works []*unitWork) map[string]inherit.Annotation {
	anns := make(map[string]inherit.Annotation, len(works))
	for _, w := range works {
		ann := inherit.Annotation{TimeBucket: w.bucket}
		if !w.degraded {
			ann.Candidates = w.candidates
			ann.TransitRelated = w.transit.IsTransitRelated
		}
		anns[w.unit.ID] = ann
	}
	return anns
}

// assemble builds the final records in input order.
func (p *Pipeline) assemble(works []*unitWork, resolutions map[string]inherit.Resolution, stats *Stats) []feedback.FeedbackRecord {
	records := make([]feedback.FeedbackRecord, 0, len(works))
	for _, w := range works {
		rec := feedback.DefaultRecord(w.unit.ID, w.unit.ThreadID)
		rec.Source = w.unit.Source

		if w.degraded {
			rec.Degraded = true
			stats.Degraded++
			records = append(records, *rec)
			continue
		}

		r, ok := resolutions[w.unit.ID]
		// Units that fail the gate keep the unknown bucket even when
		// their text carries a time signal.
		if ok && w.transit.IsTransitRelated {
			rec.TimeBucket = r.TimeBucket
			if r.TimeInherited {
				rec.InheritedTimeBucket = r.TimeBucket
			}
		}
		rec.IsTransitRelated = w.transit.IsTransitRelated
		rec.IsActionableFeedback = w.fb.IsActionableFeedback
		rec.SentimentScore = w.sent.Score
		rec.IsSarcastic = w.sent.Sarcastic
		rec.SetStops(w.stopNames)
		if ok && r.RouteID != "" {
			rec.ResolvedRouteID = r.RouteID
			rec.RouteSource = r.RouteSource
		}
		// Gate failures merge directly; everything else passed through
		// scoring and inheritance.
		w.state = feedback.StateMerged
		if r.RouteSource == feedback.RouteInherited || r.TimeInherited {
			w.state = feedback.StateInherited
		}
		log.Debug().
			Str("unit_id", w.unit.ID).
			Str("state", string(w.state)).
			Str("route", rec.ResolvedRouteID).
			Msg("record assembled")
		records = append(records, *rec)
	}
	return records
}
