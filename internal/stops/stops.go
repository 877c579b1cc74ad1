// Package stops extracts mentions of named stations and bus intersections
// from canonical text. Stop mentions enrich feedback records and feed the
// route extractor's lowest-confidence inference tier; they have no gating
// role of their own.
package stops

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Station is one rail station in the registry. Ambiguous names (street
// names, neighborhoods) only count when the text provides station context.
type Station struct {
	Name      string   `yaml:"name"`
	Routes    []string `yaml:"routes"`
	Ambiguous bool     `yaml:"ambiguous,omitempty"`
}

// Mention is one recognized stop in a text unit.
type Mention struct {
	Stop      string
	SpanStart int
	SpanEnd   int
	RouteIDs  []string
}

// Registry holds the read-only stop reference data: rail stations and bus
// intersection pairs derived from GTFS stop names.
type Registry struct {
	stations      []Station
	plain         map[string]Station   // lowercased name -> station
	intersections map[[2]string]string // sorted street pair -> display name
	stationRe     map[string]*regexp.Regexp
	contextRe     map[string][]*regexp.Regexp
}

type registryFile struct {
	Stations      []Station   `yaml:"stations"`
	Intersections [][2]string `yaml:"intersections"`
}

// intersectionPattern matches "<street> & <street>" the way riders write bus
// stops. Plain "and" is left alone: it is too common in prose.
var intersectionPattern = regexp.MustCompile(`\b([a-z0-9]+(?:\s[a-z]+)?)\s*&\s*([a-z0-9]+(?:\s[a-z]+)?)\b`)

// NewRegistry builds a registry from station and intersection lists.
func NewRegistry(stations []Station, intersections [][2]string) (*Registry, error) {
	r := &Registry{
		stations:      stations,
		plain:         make(map[string]Station, len(stations)),
		intersections: make(map[[2]string]string, len(intersections)),
		stationRe:     make(map[string]*regexp.Regexp, len(stations)),
		contextRe:     make(map[string][]*regexp.Regexp),
	}
	for _, st := range stations {
		name := strings.ToLower(strings.TrimSpace(st.Name))
		if name == "" {
			return nil, fmt.Errorf("station with empty name")
		}
		st.Name = name
		r.plain[name] = st

		quoted := regexp.QuoteMeta(name)
		re, err := regexp.Compile(`\b` + quoted + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compiling station pattern for %q: %w", name, err)
		}
		r.stationRe[name] = re

		if st.Ambiguous {
			// Ambiguous names need station context nearby.
			for _, expr := range []string{
				`\b` + quoted + `\s+(?:station|stop|platform|stn)\b`,
				`\b(?:at|near|from|to|station at)\s+` + quoted + `\b`,
			} {
				cre, err := regexp.Compile(expr)
				if err != nil {
					return nil, fmt.Errorf("compiling context pattern for %q: %w", name, err)
				}
				r.contextRe[name] = append(r.contextRe[name], cre)
			}
		}
	}
	for _, pair := range intersections {
		a := strings.ToLower(strings.TrimSpace(pair[0]))
		b := strings.ToLower(strings.TrimSpace(pair[1]))
		if a == "" || b == "" {
			continue
		}
		// Keyed order-independently; the registered order is the display
		// form, however riders write it.
		r.intersections[pairKey(a, b)] = a + " & " + b
	}
	return r, nil
}

// Load reads a yaml stop registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stop registry: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing stop registry %s: %w", path, err)
	}
	return NewRegistry(f.Stations, f.Intersections)
}

// Extract returns the stop mentions found in canonical text, sorted by name.
// Station matches carry the station's route set for the inference tier; bus
// intersection matches carry no routes.
func (r *Registry) Extract(text string) []Mention {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	byStop := make(map[string]Mention)

	for name, st := range r.plain {
		loc := r.stationRe[name].FindStringIndex(text)
		if loc == nil {
			continue
		}
		if st.Ambiguous && !r.hasContext(name, text) {
			continue
		}
		byStop[name] = Mention{
			Stop:      name,
			SpanStart: loc[0],
			SpanEnd:   loc[1],
			RouteIDs:  append([]string(nil), st.Routes...),
		}
	}

	for _, m := range intersectionPattern.FindAllStringSubmatchIndex(text, -1) {
		a := strings.TrimSpace(text[m[2]:m[3]])
		b := strings.TrimSpace(text[m[4]:m[5]])
		// The greedy groups can swallow a neighboring word ("at state",
		// "lake is"), so try the trimmed variants too.
		key := r.lookupIntersection(a, b)
		if key == "" {
			continue
		}
		if _, seen := byStop[key]; !seen {
			byStop[key] = Mention{Stop: key, SpanStart: m[0], SpanEnd: m[1]}
		}
	}

	if len(byStop) == 0 {
		return nil
	}
	out := make([]Mention, 0, len(byStop))
	for _, m := range byStop {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stop < out[j].Stop })
	return out
}

// lookupIntersection resolves a matched street pair to its registered
// display name, dropping the stray word the greedy groups may have captured.
// Returns "" when no registered pair matches.
func (r *Registry) lookupIntersection(a, b string) string {
	aVars := []string{a}
	if i := strings.LastIndexByte(a, ' '); i >= 0 {
		aVars = append(aVars, a[i+1:])
	}
	bVars := []string{b}
	if i := strings.IndexByte(b, ' '); i >= 0 {
		bVars = append(bVars, b[:i])
	}
	for _, aa := range aVars {
		for _, bb := range bVars {
			if name, ok := r.intersections[pairKey(aa, bb)]; ok {
				return name
			}
		}
	}
	return ""
}

// pairKey builds the order-independent key for an intersection.
func pairKey(a, b string) [2]string {
	if a <= b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

func (r *Registry) hasContext(name, text string) bool {
	for _, re := range r.contextRe[name] {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Default returns the built-in stop registry covering the stations and
// intersections that dominate the feeds. Deployments load the GTFS-derived
// file instead.
func Default() *Registry {
	stations := []Station{
		{Name: "o'hare", Routes: []string{"blue_line"}},
		{Name: "ohare", Routes: []string{"blue_line"}},
		{Name: "midway", Routes: []string{"orange_line"}},
		{Name: "kimball", Routes: []string{"brown_line"}},
		{Name: "95th", Routes: []string{"red_line"}},
		{Name: "howard", Routes: []string{"red_line", "purple_line", "yellow_line"}},
		{Name: "loyola", Routes: []string{"red_line"}},
		{Name: "logan square", Routes: []string{"blue_line"}},
		{Name: "forest park", Routes: []string{"blue_line"}},
		{Name: "fullerton", Routes: []string{"red_line", "brown_line", "purple_line"}},
		{Name: "belmont", Routes: []string{"red_line", "brown_line", "purple_line"}, Ambiguous: true},
		{Name: "addison", Routes: []string{"red_line", "blue_line", "brown_line"}, Ambiguous: true},
		{Name: "western", Routes: []string{"blue_line", "brown_line", "orange_line", "pink_line"}, Ambiguous: true},
		{Name: "damen", Routes: []string{"blue_line", "brown_line", "pink_line"}, Ambiguous: true},
		{Name: "garfield", Routes: []string{"red_line", "green_line"}, Ambiguous: true},
		{Name: "jackson", Routes: []string{"red_line", "blue_line"}, Ambiguous: true},
		{Name: "roosevelt", Routes: []string{"red_line", "orange_line", "green_line"}, Ambiguous: true},
		{Name: "clark/lake", Routes: []string{"blue_line", "brown_line", "green_line", "orange_line", "purple_line", "pink_line"}},
	}
	intersections := [][2]string{
		{"state", "lake"},
		{"chicago", "ashland"},
		{"chicago", "damen"},
		{"milwaukee", "ashland"},
		{"western", "armitage"},
		{"ashland", "division"},
		{"michigan", "randolph"},
		{"clark", "division"},
		{"halsted", "fullerton"},
		{"cicero", "irving park"},
	}
	reg, err := NewRegistry(stations, intersections)
	if err != nil {
		panic(err)
	}
	return reg
}
