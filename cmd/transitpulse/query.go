package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/transitlab/transitpulse/internal/feedback"
	"github.com/transitlab/transitpulse/internal/store"
)

func newQueryCmd() *cobra.Command {
	var (
		route        string
		bucket       string
		source       string
		feedbackOnly bool
		limit        int
		offset       int
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query stored feedback records",
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

			records, err := st.QueryRecords(cmd.Context(), store.QueryOpts{
				RouteID:      route,
				TimeBucket:   feedback.TimeBucket(bucket),
				Source:       feedback.Source(source),
				OnlyFeedback: feedbackOnly,
				Limit:        limit,
				Offset:       offset,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}
	cmd.Flags().StringVar(&route, "route", "", "filter by route id (e.g. red_line, bus_66)")
	cmd.Flags().StringVar(&bucket, "bucket", "", "filter by time bucket (morning|afternoon|evening|night|unknown)")
	cmd.Flags().StringVar(&source, "source", "", "filter by source platform (reddit|bsky)")
	cmd.Flags().BoolVar(&feedbackOnly, "feedback-only", false, "only actionable feedback records")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Aggregate feedback per route",
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

			sums, err := st.SummarizeRoutes(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range sums {
				fmt.Printf("%-14s records=%-5d feedback=%-5d sarcastic=%-4d avg_sentiment=%+.2f\n",
					s.RouteID, s.RecordCount, s.FeedbackCount, s.SarcasticCount, s.AvgSentiment)
			}
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics and recent runs",
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

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("runs: %d\nrecords: %d\nroutes: %d\ndb size: %d bytes\n",
				stats.RunCount, stats.RecordCount, stats.RouteCount, stats.DBSizeBytes)

			runs, err := st.ListRuns(cmd.Context(), 5)
			if err != nil {
				return err
			}
			if len(runs) > 0 {
				fmt.Println("\nrecent runs:")
				for _, r := range runs {
					fmt.Printf("  %s  %s  units=%d records=%d degraded=%d orphans=%d cycles=%d\n",
						r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.UnitCount, r.RecordCount, r.Degraded, r.Orphans, r.Cycles)
				}
			}
			return nil
		},
	}
}
