// Package feedback defines the domain types shared across the Transitpulse
// classification pipeline.
//
// A TextUnit is one post or comment flowing through the stages; a
// FeedbackRecord is the single labeled output produced for it. Records are
// written once by the orchestrator, then the inheritance pass may fill the
// route fields exactly once more.
package feedback

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Source identifies where a text unit was fetched from.
type Source string

const (
	SourceReddit Source = "reddit"
	SourceBsky   Source = "bsky"
)

// MatchMethod describes how a route candidate was matched.
type MatchMethod string

const (
	MatchExplicitName  MatchMethod = "explicit_name"
	MatchAlias         MatchMethod = "alias"
	MatchStopInference MatchMethod = "stop_inference"
)

// RouteSource describes how a record's resolved route was obtained.
type RouteSource string

const (
	RouteExplicit   RouteSource = "explicit"
	RouteInherited  RouteSource = "inherited"
	RouteUnresolved RouteSource = "unresolved"
)

// TimeBucket is the coarse time-of-day label attached to a record.
type TimeBucket string

const (
	BucketMorning   TimeBucket = "morning"
	BucketAfternoon TimeBucket = "afternoon"
	BucketEvening   TimeBucket = "evening"
	BucketNight     TimeBucket = "night"
	BucketUnknown   TimeBucket = "unknown"
)

// UnitState tracks a text unit's progress through the pipeline.
// The gate-failure path jumps straight from StateGated to StateMerged.
type UnitState string

const (
	StateNormalized UnitState = "normalized"
	StateGated      UnitState = "gated"
	StateScored     UnitState = "scored"
	StateMerged     UnitState = "merged"
	StateInherited  UnitState = "inherited"
)

// TextUnit is one post or comment. A post has an empty ParentID; a comment's
// ParentID references its post or parent comment, forming a tree rooted at
// the post. Immutable once normalized.
type TextUnit struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"thread_id"`
	ParentID      string    `json:"parent_id,omitempty"`
	Source        Source    `json:"source"`
	RawText       string    `json:"raw_text"`
	CreatedAt     time.Time `json:"created_at"`
	CanonicalText string    `json:"canonical_text,omitempty"`
}

// IsRoot reports whether the unit is a thread root (a post).
func (u *TextUnit) IsRoot() bool { return u.ParentID == "" }

// Validate checks the fields required for a unit to enter the pipeline.
// Units failing validation are MalformedInput: skipped, logged, and excluded
// from their thread's tree.
func (u *TextUnit) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("text unit missing id")
	}
	if strings.TrimSpace(u.ThreadID) == "" {
		return fmt.Errorf("text unit %s missing thread_id", u.ID)
	}
	switch u.Source {
	case SourceReddit, SourceBsky:
	default:
		return fmt.Errorf("text unit %s has unknown source %q", u.ID, u.Source)
	}
	return nil
}

// RouteCandidate is one possible route attribution for a unit. Multiple
// candidates per unit are allowed; at most one becomes the resolved route.
type RouteCandidate struct {
	RouteID    string      `json:"route_id"`
	SpanStart  int         `json:"span_start"`
	SpanEnd    int         `json:"span_end"`
	Confidence float64     `json:"confidence"`
	Method     MatchMethod `json:"method"`
}

// SpanLen returns the length of the matched span.
func (c RouteCandidate) SpanLen() int { return c.SpanEnd - c.SpanStart }

// FeedbackRecord is the labeled output for one text unit.
type FeedbackRecord struct {
	TextUnitID           string      `json:"text_unit_id"`
	ThreadID             string      `json:"thread_id"`
	Source               Source      `json:"source"`
	ResolvedRouteID      string      `json:"resolved_route_id,omitempty"`
	RouteSource          RouteSource `json:"route_source"`
	IsTransitRelated     bool        `json:"is_transit_related"`
	IsActionableFeedback bool        `json:"is_actionable_feedback"`
	SentimentScore       float64     `json:"sentiment_score"`
	IsSarcastic          bool        `json:"is_sarcastic"`
	TimeBucket           TimeBucket  `json:"time_bucket"`
	InheritedTimeBucket  TimeBucket  `json:"inherited_time_bucket,omitempty"`
	StopMentions         []string    `json:"stop_mentions,omitempty"`
	Degraded             bool        `json:"degraded"`
}

// DefaultRecord returns the all-default record for a unit: the shape emitted
// when the transit gate fails, the text is empty, or scoring degraded.
func DefaultRecord(unitID, threadID string) *FeedbackRecord {
	return &FeedbackRecord{
		TextUnitID:  unitID,
		ThreadID:    threadID,
		RouteSource: RouteUnresolved,
		TimeBucket:  BucketUnknown,
	}
}

// SetStops stores a deduplicated, sorted copy of the stop mentions so record
// output is deterministic across runs.
func (r *FeedbackRecord) SetStops(stops []string) {
	if len(stops) == 0 {
		r.StopMentions = nil
		return
	}
	seen := make(map[string]struct{}, len(stops))
	out := make([]string, 0, len(stops))
	for _, s := range stops {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	r.StopMentions = out
}
