// Package routes holds the read-only route registry and the route extractor
// that matches canonical text against known CTA route identifiers.
//
// Matching is tiered: explicit full route mentions score highest, official
// aliases and colloquial forms next, and stop-inferred candidates lowest.
// Confidence values are fixed per tier, never learned.
package routes

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode distinguishes rail lines from bus routes.
type Mode string

const (
	ModeRail Mode = "rail"
	ModeBus  Mode = "bus"
)

// Route is one entry in the registry: identifier, display metadata, and the
// alias set used for matching.
type Route struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Mode    Mode     `yaml:"mode"`
	Color   string   `yaml:"color,omitempty"`
	Number  string   `yaml:"number,omitempty"` // bus routes only
	Aliases []string `yaml:"aliases,omitempty"`
}

// Registry maps route identifiers to their metadata. Loaded at startup from
// the GTFS/route-config collaborator's output and never mutated during a run.
type Registry struct {
	byID      map[string]Route
	byNumber  map[string]string // bus number -> route id
	lineNames []string          // rail line color words, e.g. "red"
}

type registryFile struct {
	Routes []Route `yaml:"routes"`
}

// NewRegistry builds a registry from a route list.
func NewRegistry(list []Route) (*Registry, error) {
	r := &Registry{
		byID:     make(map[string]Route, len(list)),
		byNumber: make(map[string]string),
	}
	for _, rt := range list {
		if rt.ID == "" {
			return nil, fmt.Errorf("route with empty id (name %q)", rt.Name)
		}
		if _, dup := r.byID[rt.ID]; dup {
			return nil, fmt.Errorf("duplicate route id %q", rt.ID)
		}
		switch rt.Mode {
		case ModeRail, ModeBus:
		default:
			return nil, fmt.Errorf("route %q has unknown mode %q", rt.ID, rt.Mode)
		}
		r.byID[rt.ID] = rt
		if rt.Mode == ModeBus && rt.Number != "" {
			r.byNumber[strings.ToLower(rt.Number)] = rt.ID
		}
		if rt.Mode == ModeRail {
			if line, ok := strings.CutSuffix(rt.ID, "_line"); ok {
				r.lineNames = append(r.lineNames, line)
			}
		}
	}
	sort.Strings(r.lineNames)
	return r, nil
}

// Load reads a yaml registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading route registry: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing route registry %s: %w", path, err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("route registry %s contains no routes", path)
	}
	return NewRegistry(f.Routes)
}

// Get returns the route for an id.
func (r *Registry) Get(id string) (Route, bool) {
	rt, ok := r.byID[id]
	return rt, ok
}

// BusRouteID returns the route id for a bus number like "66" or "x9".
func (r *Registry) BusRouteID(number string) (string, bool) {
	id, ok := r.byNumber[strings.ToLower(number)]
	return id, ok
}

// LineNames returns the rail line color words, sorted.
func (r *Registry) LineNames() []string { return r.lineNames }

// Len returns the number of registered routes.
func (r *Registry) Len() int { return len(r.byID) }

// Default returns the built-in registry: the eight CTA rail lines and the
// high-ridership bus routes the feeds mention most. Deployments load the
// full GTFS-derived file instead; the default keeps tests and offline runs
// hermetic.
func Default() *Registry {
	list := []Route{
		{ID: "red_line", Name: "Red Line", Mode: ModeRail, Color: "#c60c30"},
		{ID: "blue_line", Name: "Blue Line", Mode: ModeRail, Color: "#00a1de"},
		{ID: "green_line", Name: "Green Line", Mode: ModeRail, Color: "#009b3a"},
		{ID: "orange_line", Name: "Orange Line", Mode: ModeRail, Color: "#f9461c"},
		{ID: "brown_line", Name: "Brown Line", Mode: ModeRail, Color: "#62361b"},
		{ID: "purple_line", Name: "Purple Line", Mode: ModeRail, Color: "#522398"},
		{ID: "pink_line", Name: "Pink Line", Mode: ModeRail, Color: "#e27ea6"},
		{ID: "yellow_line", Name: "Yellow Line", Mode: ModeRail, Color: "#f9e300"},
	}
	for _, num := range []string{
		"4", "6", "8", "9", "x9", "20", "22", "36", "47", "49", "x49",
		"53", "63", "66", "72", "77", "79", "80", "82", "87", "91",
		"146", "147", "151", "152", "155", "156",
	} {
		list = append(list, Route{
			ID:     "bus_" + num,
			Name:   "Route " + strings.ToUpper(num),
			Mode:   ModeBus,
			Number: num,
		})
	}
	reg, err := NewRegistry(list)
	if err != nil {
		// The built-in table is static; a failure here is a programming error.
		panic(err)
	}
	return reg
}
