package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var correlateCmd = &cobra.Command{
	Use:   "correlate [report-id...]",
	Short: "Run the cross-report correlation scan",
	Long: `Runs the fixed three-pass scan over the given reports (all known reports
when none are given): audit entity membership, mark entities recurring
across more reports than the matrix threshold, and deep-dive those hot dots
by joining technical identifiers across their documents. A final sweep
flags temporally synchronized activity between different reports.`,
	RunE: runCorrelate,
}

func runCorrelate(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Store().Close()

	alerts, err := engine.Correlate(cmd.Context(), args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(alerts) == 0 {
		fmt.Fprintln(out, "No alerts.")
		return nil
	}
	for _, a := range alerts {
		fmt.Fprintf(out, "%s  %-14s conf=%.2f reports=%s\n",
			a.ID, a.Kind, a.Confidence, strings.Join(a.ReportIDs, ","))
		if len(a.EntityIDs) > 0 {
			fmt.Fprintf(out, "    entities: %s\n", strings.Join(a.EntityIDs, ", "))
		}
		if len(a.Evidence) > 0 {
			fmt.Fprintf(out, "    evidence: %s\n", strings.Join(a.Evidence, ", "))
		}
		if a.Supersedes != "" {
			fmt.Fprintf(out, "    supersedes: %s\n", a.Supersedes)
		}
	}
	return nil
}
