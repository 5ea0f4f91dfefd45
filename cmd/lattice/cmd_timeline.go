package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var timelineFlags struct {
	reportID string
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show the fused event timeline",
	Long: `Fuses stored events into one ordered timeline with burst clusters,
coverage gaps, and contradiction markers. Contradicted events keep every
variant; the best-supported one is marked primary.`,
	RunE: runTimeline,
}

func init() {
	timelineCmd.Flags().StringVar(&timelineFlags.reportID, "report", "", "Report scope (empty = all reports)")
}

func runTimeline(cmd *cobra.Command, _ []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Store().Close()

	tl, err := engine.Timeline(cmd.Context(), timelineFlags.reportID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, ev := range tl.Events {
		marker := " "
		if ev.Status == "contradicted" {
			marker = "!"
			if ev.Primary {
				marker = "*"
			}
		}
		fmt.Fprintf(out, "%s %s  %-30s %s\n",
			marker, ev.At.UTC().Format(time.RFC3339), ev.Key, ev.Description)
	}
	if len(tl.Clusters) > 0 {
		fmt.Fprintf(out, "\nBursts:\n")
		for _, c := range tl.Clusters {
			fmt.Fprintf(out, "  %s .. %s (%d events)\n",
				c.Start.UTC().Format(time.RFC3339), c.End.UTC().Format(time.RFC3339), len(c.Events))
		}
	}
	if len(tl.Gaps) > 0 {
		fmt.Fprintf(out, "\nGaps:\n")
		for _, g := range tl.Gaps {
			fmt.Fprintf(out, "  %-30s silent %s (%s .. %s)\n",
				g.EntityKey, g.Duration, g.Start.UTC().Format(time.RFC3339), g.End.UTC().Format(time.RFC3339))
		}
	}
	if keys := tl.Contradicted(); len(keys) > 0 {
		fmt.Fprintf(out, "\nContradicted keys (analyst review needed):\n")
		for _, k := range keys {
			fmt.Fprintf(out, "  %s\n", k)
		}
	}
	return nil
}
