package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lattice/internal/store"
)

var entitiesFlags struct {
	id       string
	reportID string
}

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List or inspect canonical entities",
	RunE:  runEntities,
}

func init() {
	f := entitiesCmd.Flags()
	f.StringVar(&entitiesFlags.id, "id", "", "Inspect one entity by ID (type:normalized name)")
	f.StringVar(&entitiesFlags.reportID, "report", "", "Restrict to entities seen in this report")
}

func runEntities(cmd *cobra.Command, _ []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	gw := engine.Store()
	defer gw.Close()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if entitiesFlags.id != "" {
		e, err := gw.GetEntity(ctx, entitiesFlags.id)
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("no entity %q", entitiesFlags.id)
		}
		fmt.Fprintf(out, "ID:        %s\n", e.ID)
		fmt.Fprintf(out, "Type:      %s\n", e.Type)
		fmt.Fprintf(out, "Canonical: %s\n", e.CanonicalName)
		fmt.Fprintf(out, "Aliases:   %s\n", strings.Join(e.Aliases, ", "))
		fmt.Fprintf(out, "Mentions:  %d\n", e.MentionCount)
		fmt.Fprintf(out, "FirstSeen: %s\n", e.FirstSeen)
		fmt.Fprintf(out, "Documents: %d\n", len(e.Documents))
		rels, err := gw.ListRelationshipsForEntity(ctx, e.ID)
		if err != nil {
			return err
		}
		for _, r := range rels {
			fmt.Fprintf(out, "  %s -[%s w=%d]-> %s\n", r.SourceID, r.Type, r.Weight, r.TargetID)
		}
		return nil
	}

	var entities []*store.Entity
	if entitiesFlags.reportID != "" {
		entities, err = gw.ListEntitiesByReport(ctx, entitiesFlags.reportID)
	} else {
		entities, err = gw.ListEntities(ctx)
	}
	if err != nil {
		return err
	}
	for _, e := range entities {
		fmt.Fprintf(out, "%-40s mentions=%-4d aliases=%d\n", e.ID, e.MentionCount, len(e.Aliases))
	}
	fmt.Fprintf(out, "%d entities\n", len(entities))
	return nil
}
