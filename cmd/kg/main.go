package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "kg",
		Short: "kgraph: a personal knowledge graph for LLM coding agents",
		Long:  "Tracks append-only project knowledge as nodes and bullets, indexes it for hybrid search, and packs ranked context for LLM prompts.",
	}

	root.AddCommand(
		initCmd(),
		contextCmd(),
		searchCmd(),
		showCmd(),
		addBulletCmd(),
		markReviewedCmd(),
		reviewCmd(),
		watchCmd(),
		serveCmd(),
		daemonCmd(),
		rebuildCmd(),
		calibrateCmd(),
		doctorCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
