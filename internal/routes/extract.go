package routes

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/transitlab/transitpulse/internal/feedback"
)

// Fixed per-tier confidences. Explicit full-name mentions outrank aliases,
// which outrank stop-inferred candidates.
const (
	ConfidenceExplicit      = 0.95
	ConfidenceAlias         = 0.80
	ConfidenceStopInference = 0.40
)

// Extractor matches canonical text against the registry and returns ordered
// route candidates. Safe for concurrent use; all state is immutable after
// construction.
type Extractor struct {
	reg *Registry

	singleLine    *regexp.Regexp
	lineList      *regexp.Regexp
	lineTrain     *regexp.Regexp
	lineAtStation *regexp.Regexp
	lineTransfer  *regexp.Regexp
	lineVerb      *regexp.Regexp
	lineWord      *regexp.Regexp

	busSingle    *regexp.Regexp
	busReversed  *regexp.Regexp
	busList      *regexp.Regexp
	busNumber    *regexp.Regexp
	hashtagVerb  *regexp.Regexp
	hashtagThe   *regexp.Regexp
	busScheduled *regexp.Regexp
}

const busNum = `[a-z]?\d{1,3}[a-z]?`

// NewExtractor compiles the match patterns for a registry.
func NewExtractor(reg *Registry) (*Extractor, error) {
	lines := reg.LineNames()
	if len(lines) == 0 {
		return nil, fmt.Errorf("registry has no rail lines")
	}
	alt := strings.Join(lines, "|")

	e := &Extractor{reg: reg}
	var err error
	compile := func(expr string) *regexp.Regexp {
		if err != nil {
			return nil
		}
		var re *regexp.Regexp
		re, err = regexp.Compile(expr)
		return re
	}

	e.singleLine = compile(`\b(` + alt + `)[ -]line\b`)
	e.lineList = compile(`\b(?:` + alt + `)(?:\s*(?:,|and|&|\+)\s*(?:` + alt + `))+\s+lines?\b`)
	e.lineTrain = compile(`\b(` + alt + `)\s+trains?\b`)
	e.lineAtStation = compile(`\bthe\s+(` + alt + `)\s+at\s+\w`)
	e.lineTransfer = compile(`\b(` + alt + `)\s+to\s+(?:the\s+)?(` + alt + `)\b`)
	e.lineVerb = compile(`\b(?:ride|rode|riding|take|took|taking|catch|caught|wait(?:ing)?\s+for)\s+the\s+(` + alt + `)\b`)
	e.lineWord = compile(`\b(` + alt + `)\b`)

	e.busSingle = compile(`\b(?:bus|route)\s*#?(` + busNum + `)\b`)
	e.busReversed = compile(`\b(` + busNum + `)\s+bus\b`)
	e.busList = compile(`\bbus(?:es|ses)?\s+(` + busNum + `(?:\s*(?:,|and|&)\s*` + busNum + `)+)\b`)
	e.busNumber = compile(`(` + busNum + `)`)
	e.hashtagVerb = compile(`\b(?:ride|rode|riding|take|took|taking|catch|caught|on|wait(?:ing)?\s+for)\s+(?:the\s+)?#(` + busNum + `)\b`)
	e.hashtagThe = compile(`\bthe\s+#(` + busNum + `)\b`)
	e.busScheduled = compile(`\bthe\s+(` + busNum + `)\s+(?:scheduled|due|runs|running|arriv\w+)\b`)

	if err != nil {
		return nil, fmt.Errorf("compiling route patterns: %w", err)
	}
	return e, nil
}

// Extract returns the route candidates found in canonical text, sorted by
// confidence descending, then longer match span, then earliest position.
// No match returns an empty slice, not an error.
func (e *Extractor) Extract(text string) []feedback.RouteCandidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var found []feedback.RouteCandidate
	add := func(routeID string, start, end int, conf float64, method feedback.MatchMethod) {
		if _, ok := e.reg.Get(routeID); !ok {
			return
		}
		found = append(found, feedback.RouteCandidate{
			RouteID:    routeID,
			SpanStart:  start,
			SpanEnd:    end,
			Confidence: conf,
			Method:     method,
		})
	}

	// Rail: explicit "red line" and "red and blue lines" forms.
	for _, m := range e.singleLine.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]]+"_line", m[0], m[1], ConfidenceExplicit, feedback.MatchExplicitName)
	}
	for _, m := range e.lineList.FindAllStringIndex(text, -1) {
		span := text[m[0]:m[1]]
		for _, w := range e.lineWord.FindAllStringIndex(span, -1) {
			add(span[w[0]:w[1]]+"_line", m[0]+w[0], m[0]+w[1], ConfidenceExplicit, feedback.MatchExplicitName)
		}
	}

	// Rail aliases: trains, "the red at Belmont", transfers, ride/take verbs.
	for _, m := range e.lineTrain.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]]+"_line", m[0], m[1], ConfidenceAlias, feedback.MatchAlias)
	}
	for _, m := range e.lineAtStation.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]]+"_line", m[2], m[3], ConfidenceAlias, feedback.MatchAlias)
	}
	for _, m := range e.lineTransfer.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]]+"_line", m[2], m[3], ConfidenceAlias, feedback.MatchAlias)
		add(text[m[4]:m[5]]+"_line", m[4], m[5], ConfidenceAlias, feedback.MatchAlias)
	}
	for _, m := range e.lineVerb.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]]+"_line", m[2], m[3], ConfidenceAlias, feedback.MatchAlias)
	}

	// Bus: explicit "bus 66" / "66 bus" / "route 66" / "buses 66, 49".
	for _, m := range e.busSingle.FindAllStringSubmatchIndex(text, -1) {
		if id, ok := e.reg.BusRouteID(text[m[2]:m[3]]); ok {
			add(id, m[0], m[1], ConfidenceExplicit, feedback.MatchExplicitName)
		}
	}
	for _, m := range e.busReversed.FindAllStringSubmatchIndex(text, -1) {
		if id, ok := e.reg.BusRouteID(text[m[2]:m[3]]); ok {
			add(id, m[0], m[1], ConfidenceExplicit, feedback.MatchExplicitName)
		}
	}
	for _, m := range e.busList.FindAllStringSubmatchIndex(text, -1) {
		list := text[m[2]:m[3]]
		for _, n := range e.busNumber.FindAllStringIndex(list, -1) {
			if id, ok := e.reg.BusRouteID(list[n[0]:n[1]]); ok {
				add(id, m[2]+n[0], m[2]+n[1], ConfidenceExplicit, feedback.MatchExplicitName)
			}
		}
	}

	// Bus aliases: "#66" after a verb, "the #156", "the 156 scheduled".
	for _, pat := range []*regexp.Regexp{e.hashtagVerb, e.hashtagThe, e.busScheduled} {
		for _, m := range pat.FindAllStringSubmatchIndex(text, -1) {
			if id, ok := e.reg.BusRouteID(text[m[2]:m[3]]); ok {
				add(id, m[0], m[1], ConfidenceAlias, feedback.MatchAlias)
			}
		}
	}

	return Dedup(found)
}

// InferredCandidate builds the low-confidence candidate used when a stop
// mention maps to exactly one route.
func InferredCandidate(routeID string, start, end int) feedback.RouteCandidate {
	return feedback.RouteCandidate{
		RouteID:    routeID,
		SpanStart:  start,
		SpanEnd:    end,
		Confidence: ConfidenceStopInference,
		Method:     feedback.MatchStopInference,
	}
}

// Dedup keeps the best candidate per route and orders the result by
// confidence descending, ties broken by longer span, then earlier position,
// then route id for full determinism.
func Dedup(cands []feedback.RouteCandidate) []feedback.RouteCandidate {
	if len(cands) == 0 {
		return nil
	}
	best := make(map[string]feedback.RouteCandidate, len(cands))
	for _, c := range cands {
		cur, ok := best[c.RouteID]
		if !ok || better(c, cur) {
			best[c.RouteID] = c
		}
	}
	out := make([]feedback.RouteCandidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].SpanLen() != out[j].SpanLen() {
			return out[i].SpanLen() > out[j].SpanLen()
		}
		if out[i].SpanStart != out[j].SpanStart {
			return out[i].SpanStart < out[j].SpanStart
		}
		return out[i].RouteID < out[j].RouteID
	})
	return out
}

func better(a, b feedback.RouteCandidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.SpanLen() != b.SpanLen() {
		return a.SpanLen() > b.SpanLen()
	}
	return a.SpanStart < b.SpanStart
}
