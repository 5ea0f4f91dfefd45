// lattice is the analytic fusion CLI: ingest collected artifacts, inspect
// the entity registry and relationship graph, fuse timelines, correlate
// across reports, and serve the query surface over MCP.
//
// Usage:
//
//	lattice ingest <dir|file.json...> [--report=<id>]
//	lattice entities [--id=<entity-id>] [--report=<id>]
//	lattice graph [--entity=<entity-id>]
//	lattice timeline [--report=<id>]
//	lattice correlate [report-id...]
//	lattice score <claim-key>
//	lattice status
//	lattice serve
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
