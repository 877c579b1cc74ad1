// Command transitpulse runs the rider-feedback classification pipeline and
// serves its output: ingest social-media text units, label them, store the
// records, and answer queries over them.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/transitlab/transitpulse/internal/config"
	"github.com/transitlab/transitpulse/internal/routes"
	"github.com/transitlab/transitpulse/internal/scoring"
	"github.com/transitlab/transitpulse/internal/stops"
	"github.com/transitlab/transitpulse/internal/store"
)

const version = "0.1.0"

var (
	flagConfig   string
	flagDB       string
	flagScorer   string
	flagEndpoint string
	flagRoutes   string
	flagStops    string
	flagVerbose  bool
	flagJSONLog  bool
)

func main() {
	root := &cobra.Command{
		Use:           "transitpulse",
		Short:         "Transit rider feedback classification pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "database file path")
	root.PersistentFlags().StringVar(&flagScorer, "scorer", "", "scorer mode: static or remote")
	root.PersistentFlags().StringVar(&flagEndpoint, "embed-endpoint", "", "remote embedding endpoint")
	root.PersistentFlags().StringVar(&flagRoutes, "routes", "", "route registry yaml path")
	root.PersistentFlags().StringVar(&flagStops, "stops", "", "stop registry yaml path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "structured JSON logs instead of console output")

	root.AddCommand(newRunCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newSummaryCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newConfigCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setupLogging() {
	level := zerolog.InfoLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	if !flagJSONLog {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// loadSettings resolves config from file, env, and flags.
func loadSettings() (config.Settings, error) {
	resolved, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:       flagConfig,
		CLIDBPath:        flagDB,
		CLIScorer:        flagScorer,
		CLIEmbedEndpoint: flagEndpoint,
		CLIRoutesPath:    flagRoutes,
		CLIStopsPath:     flagStops,
	})
	if err != nil {
		return config.Settings{}, err
	}
	return resolved.Settings()
}

func openStore(s config.Settings) (store.Store, error) {
	return store.New(store.Config{DBPath: s.DBPath})
}

func loadRegistries(s config.Settings) (*routes.Registry, *stops.Registry, error) {
	routeReg := routes.Default()
	if s.RoutesPath != "" {
		var err error
		if routeReg, err = routes.Load(s.RoutesPath); err != nil {
			return nil, nil, err
		}
	}
	stopReg := stops.Default()
	if s.StopsPath != "" {
		var err error
		if stopReg, err = stops.Load(s.StopsPath); err != nil {
			return nil, nil, err
		}
	}
	return routeReg, stopReg, nil
}

func buildScorer(s config.Settings, sets []scoring.ExemplarSet, keywordSets map[string][]string) (scoring.Scorer, error) {
	switch s.Scorer {
	case "remote":
		return scoring.NewRemote(scoring.RemoteConfig{
			EmbedEndpoint:     s.EmbedEndpoint,
			SentimentEndpoint: s.SentimentEndpoint,
			Model:             s.EmbedModel,
			APIKey:            s.APIKey,
			MaxConcurrency:    s.Concurrency,
		}, sets)
	case "static":
		return scoring.NewStatic(scoring.StaticConfig{
			Sets:        keywordSets,
			Concurrency: s.Concurrency,
		}), nil
	default:
		return nil, fmt.Errorf("unknown scorer mode %q", s.Scorer)
	}
}
