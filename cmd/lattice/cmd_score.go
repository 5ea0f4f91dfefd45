package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score <claim-key>",
	Short: "Score the confidence of a claim from its evidence",
	Long: `Scores a claim key over its supporting documents. Confidence grows with
independent corroboration and saturates below 1.0; stacked coverage from
one source counts once. Disinformation sources never add support and are
listed as narrative attribution instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Store().Close()

	cs, err := engine.ScoreClaim(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Claim:       %s\n", cs.Key)
	fmt.Fprintf(out, "Confidence:  %.3f\n", cs.Result.Confidence)
	fmt.Fprintf(out, "Independent: %d (of %d documents)\n", cs.Result.Independent, cs.Result.Total)
	if cs.Result.Underflow {
		fmt.Fprintln(out, "Flag:        underflow (unverified-only, under-corroborated)")
	}
	if len(cs.Attribution) > 0 {
		fmt.Fprintln(out, "Attribution:")
		for _, a := range cs.Attribution {
			flag := ""
			if a.Flagged {
				flag = "  [flagged]"
			}
			fmt.Fprintf(out, "  %-30s tier=%-15s docs=%d%s\n", a.Source, a.Tier, len(a.Documents), flag)
		}
	}
	return nil
}
