// Package config resolves pipeline settings from, in ascending precedence,
// built-in defaults, the yaml config file, environment variables, and CLI
// flags. Every resolved value keeps its provenance so `transitpulse config`
// can show where a setting came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults. Thresholds come from held-out tuning against labeled
// Reddit threads; changing them shifts the gate's precision/recall balance.
const (
	DefaultTransitThreshold  = 0.55
	DefaultFeedbackThreshold = 0.60
	DefaultMargin            = 0.05
	DefaultConcurrency       = 8
	DefaultScorer            = "static"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath       string
	CLIDBPath        string
	CLIScorer        string
	CLIEmbedEndpoint string
	CLIRoutesPath    string
	CLIStopsPath     string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath            ResolvedValue `json:"db_path"`
	Scorer            ResolvedValue `json:"scorer"`
	EmbedEndpoint     ResolvedValue `json:"embed_endpoint"`
	SentimentEndpoint ResolvedValue `json:"sentiment_endpoint"`
	EmbedModel        ResolvedValue `json:"embed_model"`
	APIKey            ResolvedValue `json:"api_key"`
	RoutesPath        ResolvedValue `json:"routes_path"`
	StopsPath         ResolvedValue `json:"stops_path"`

	TransitThreshold  ResolvedValue `json:"transit_threshold"`
	FeedbackThreshold ResolvedValue `json:"feedback_threshold"`
	Margin            ResolvedValue `json:"margin"`
	Concurrency       ResolvedValue `json:"concurrency"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	Scorer struct {
		Mode              string `yaml:"mode"`
		EmbedEndpoint     string `yaml:"embed_endpoint"`
		SentimentEndpoint string `yaml:"sentiment_endpoint"`
		EmbedModel        string `yaml:"embed_model"`
		APIKey            string `yaml:"api_key"`
		Concurrency       string `yaml:"concurrency"`
	} `yaml:"scorer"`
	Registry struct {
		RoutesPath string `yaml:"routes_path"`
		StopsPath  string `yaml:"stops_path"`
	} `yaml:"registry"`
	Thresholds struct {
		Transit  string `yaml:"transit"`
		Feedback string `yaml:"feedback"`
		Margin   string `yaml:"margin"`
	} `yaml:"thresholds"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".transitpulse", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.Scorer, cfg.Scorer.Mode, SourceConfig, path)
		apply(&out.EmbedEndpoint, cfg.Scorer.EmbedEndpoint, SourceConfig, path)
		apply(&out.SentimentEndpoint, cfg.Scorer.SentimentEndpoint, SourceConfig, path)
		apply(&out.EmbedModel, cfg.Scorer.EmbedModel, SourceConfig, path)
		apply(&out.Concurrency, cfg.Scorer.Concurrency, SourceConfig, path)
		apply(&out.RoutesPath, cfg.Registry.RoutesPath, SourceConfig, path)
		apply(&out.StopsPath, cfg.Registry.StopsPath, SourceConfig, path)
		apply(&out.TransitThreshold, cfg.Thresholds.Transit, SourceConfig, path)
		apply(&out.FeedbackThreshold, cfg.Thresholds.Feedback, SourceConfig, path)
		apply(&out.Margin, cfg.Thresholds.Margin, SourceConfig, path)

		if key := strings.TrimSpace(cfg.Scorer.APIKey); key != "" {
			out.APIKey = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "TRANSITPULSE_DB")
	applyEnv(&out.Scorer, "TRANSITPULSE_SCORER")
	applyEnv(&out.EmbedEndpoint, "TRANSITPULSE_EMBED_ENDPOINT")
	applyEnv(&out.SentimentEndpoint, "TRANSITPULSE_SENTIMENT_ENDPOINT")
	applyEnv(&out.EmbedModel, "TRANSITPULSE_EMBED_MODEL")
	applyEnv(&out.Concurrency, "TRANSITPULSE_CONCURRENCY")
	applyEnv(&out.RoutesPath, "TRANSITPULSE_ROUTES")
	applyEnv(&out.StopsPath, "TRANSITPULSE_STOPS")
	applyEnv(&out.TransitThreshold, "TRANSITPULSE_TRANSIT_THRESHOLD")
	applyEnv(&out.FeedbackThreshold, "TRANSITPULSE_FEEDBACK_THRESHOLD")
	applyEnv(&out.Margin, "TRANSITPULSE_MARGIN")
	if v := strings.TrimSpace(os.Getenv("TRANSITPULSE_API_KEY")); v != "" {
		out.APIKey = ResolvedValue{Value: v, Source: SourceEnv, From: "TRANSITPULSE_API_KEY"}
	}

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.Scorer, opts.CLIScorer, SourceCLI, "--scorer")
	apply(&out.EmbedEndpoint, opts.CLIEmbedEndpoint, SourceCLI, "--embed-endpoint")
	apply(&out.RoutesPath, opts.CLIRoutesPath, SourceCLI, "--routes")
	apply(&out.StopsPath, opts.CLIStopsPath, SourceCLI, "--stops")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	return out, nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func floatOrDefault(v ResolvedValue, def float64) (float64, error) {
	if strings.TrimSpace(v.Value) == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q (from %s): %w", v.Value, v.From, err)
	}
	return f, nil
}

func intOrDefault(v ResolvedValue, def int) (int, error) {
	if strings.TrimSpace(v.Value) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v.Value))
	if err != nil {
		return 0, fmt.Errorf("parsing %q (from %s): %w", v.Value, v.From, err)
	}
	return n, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
