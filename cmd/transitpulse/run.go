package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/transitlab/transitpulse/internal/classify"
	"github.com/transitlab/transitpulse/internal/feedback"
	"github.com/transitlab/transitpulse/internal/pipeline"
	"github.com/transitlab/transitpulse/internal/store"
)

func newRunCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run [input.jsonl]",
		Short: "Process a batch of text units and store the feedback records",
		Long: `Reads text units as JSON lines (one unit per line, fields: id,
thread_id, parent_id, source, raw_text, created_at), runs the full
classification pipeline, and stores one feedback record per unit.
Reads stdin when no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			in := io.Reader(os.Stdin)
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening input: %w", err)
				}
				defer f.Close()
				in = f
			}
			units, err := readUnits(in)
			if err != nil {
				return err
			}
			if len(units) == 0 {
				return fmt.Errorf("no text units in input")
			}

			routeReg, stopReg, err := loadRegistries(settings)
			if err != nil {
				return err
			}
			scorer, err := buildScorer(settings, classify.ExemplarSets(), classify.StaticKeywordSets())
			if err != nil {
				return err
			}
			p, err := pipeline.New(pipeline.Config{
				Routes:            routeReg,
				Stops:             stopReg,
				Scorer:            scorer,
				TransitThreshold:  settings.TransitThreshold,
				FeedbackThreshold: settings.FeedbackThreshold,
				Margin:            settings.Margin,
			})
			if err != nil {
				return err
			}

			res, err := p.Run(cmd.Context(), units)
			if err != nil {
				return err
			}

			if dryRun {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Records)
			}

			st, err := openStore(settings)
			if err != nil {
				return err
			}
			defer st.Close()

			run := &store.Run{
				ID:          res.RunID,
				StartedAt:   res.StartedAt,
				FinishedAt:  res.StartedAt.Add(res.Stats.Elapsed),
				UnitCount:   int64(res.Stats.Units),
				RecordCount: int64(res.Stats.Records),
				Degraded:    int64(res.Stats.Degraded),
				Orphans:     int64(res.Stats.Orphans),
				Cycles:      int64(res.Stats.Cycles),
			}
			if err := st.AddRun(cmd.Context(), run); err != nil {
				return err
			}
			if err := st.AddRecordBatch(cmd.Context(), res.RunID, res.Records); err != nil {
				return err
			}

			log.Info().Str("run_id", res.RunID).Int("records", res.Stats.Records).Msg("records stored")
			fmt.Printf("run %s: %d units in, %d records stored (%d skipped, %d degraded)\n",
				res.RunID, res.Stats.Units, res.Stats.Records, res.Stats.Skipped, res.Stats.Degraded)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print records as JSON instead of storing them")
	return cmd
}

// readUnits parses JSONL input. Lines that fail to parse abort the run;
// partially ingesting a batch makes re-runs ambiguous.
func readUnits(r io.Reader) ([]feedback.TextUnit, error) {
	var units []feedback.TextUnit
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var u feedback.TextUnit
		if err := json.Unmarshal(line, &u); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNo, err)
		}
		units = append(units, u)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return units, nil
}
