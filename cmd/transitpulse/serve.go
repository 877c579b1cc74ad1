package main

import (
	"encoding/json"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/transitlab/transitpulse/internal/config"
	"github.com/transitlab/transitpulse/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve feedback records over the Model Context Protocol (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			st, err := openStore(settings)
			if err != nil {
				return err
			}
			defer st.Close()

			s := mcp.NewServer(mcp.ServerConfig{Store: st, Version: version})
			log.Info().Str("db", settings.DBPath).Msg("mcp server listening on stdio")
			return server.ServeStdio(s)
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration and where each value came from",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := config.ResolveConfig(config.ResolveOptions{
				ConfigPath:       flagConfig,
				CLIDBPath:        flagDB,
				CLIScorer:        flagScorer,
				CLIEmbedEndpoint: flagEndpoint,
				CLIRoutesPath:    flagRoutes,
				CLIStopsPath:     flagStops,
			})
			if err != nil {
				return err
			}
			// Settings() also validates the thresholds; surface that here
			// so a bad config fails loudly before any run.
			if _, err := resolved.Settings(); err != nil {
				log.Warn().Err(err).Msg("resolved configuration is not runnable")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resolved)
		},
	}
}
