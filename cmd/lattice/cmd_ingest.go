package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lattice/internal/canon"
	"lattice/internal/ingest"
)

var ingestFlags struct {
	reportID string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir|file.json...>",
	Short: "Ingest collected artifacts into the fusion store",
	Long: `Reads artifact JSON (single object or array per file) from the given
directory or files and runs the full pipeline: canonicalize and deduplicate,
resolve entity mentions, update the relationship graph, and fuse dated
claims into the timeline. Unparseable artifacts are quarantined, the batch
continues.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFlags.reportID, "report", "", "Report ID stamped on artifacts that carry none")
}

func runIngest(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Store().Close()

	ctx := cmd.Context()
	var res *ingest.BatchResult
	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
			res, err = engine.IngestDir(ctx, args[0])
			if err != nil {
				return err
			}
			return printBatchResult(cmd, res)
		}
	}

	var artifacts []canon.Artifact
	for _, path := range args {
		batch, err := readArtifacts(path)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, batch...)
	}
	if ingestFlags.reportID != "" {
		for i := range artifacts {
			if artifacts[i].ReportID == "" {
				artifacts[i].ReportID = ingestFlags.reportID
			}
		}
	}
	res, err = engine.IngestBatch(ctx, artifacts)
	if err != nil {
		return err
	}
	return printBatchResult(cmd, res)
}

func readArtifacts(path string) ([]canon.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var batch []canon.Artifact
	if err := json.Unmarshal(data, &batch); err == nil {
		return batch, nil
	}
	var one canon.Artifact
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if one.SourceFile == "" {
		one.SourceFile = path
	}
	return []canon.Artifact{one}, nil
}

func printBatchResult(cmd *cobra.Command, res *ingest.BatchResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created:     %d\n", res.Created)
	fmt.Fprintf(out, "Duplicates:  %d\n", res.Duplicates)
	fmt.Fprintf(out, "Quarantined: %d\n", res.Quarantined)
	fmt.Fprintf(out, "Failed:      %d\n", res.Failed)
	fmt.Fprintf(out, "Events:      %d\n", res.Events)
	for _, q := range res.Quarantine {
		fmt.Fprintf(out, "  quarantined %s: %s\n", q.SourceFile, q.Reason)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	return nil
}
