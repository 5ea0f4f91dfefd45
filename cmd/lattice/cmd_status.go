package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored record counts per report",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Store().Close()

	statuses, alerts, err := engine.Status(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(statuses) == 0 {
		fmt.Fprintln(out, "Store is empty.")
		return nil
	}
	fmt.Fprintf(out, "%-28s %-22s %6s %6s %6s\n", "REPORT", "NAMESPACE", "DOCS", "ENTS", "EVTS")
	for _, s := range statuses {
		fmt.Fprintf(out, "%-28s %-22s %6d %6d %6d\n",
			s.ReportID, s.Namespace, s.Documents, s.Entities, s.Events)
	}
	fmt.Fprintf(out, "%d alert(s) total\n", alerts)
	return nil
}
