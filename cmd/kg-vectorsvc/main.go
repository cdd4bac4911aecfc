// Command kg-vectorsvc runs the long-lived VectorService process for one
// kgraph project: it bootstraps its in-memory matrix from the project's
// derived index, then serves /embed and /search over HTTP until
// interrupted, grounded on wtd's relay-server main (signal.NotifyContext,
// a goroutine running ListenAndServe, graceful Shutdown on cancellation).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/kgraph/internal/config"
	"github.com/ehrlich-b/kgraph/internal/embedding"
	"github.com/ehrlich-b/kgraph/internal/index"
	"github.com/ehrlich-b/kgraph/internal/vectorservice"
)

func main() {
	var dirFlag string

	root := &cobra.Command{
		Use:   "kg-vectorsvc",
		Short: "Standalone VectorService process for a kgraph project",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := dirFlag
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				dir = wd
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			idx, err := index.Open(cfg.DBPath())
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer idx.Close()

			provider, err := embedding.NewFromProvider(cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.BaseURL)
			if err != nil {
				return fmt.Errorf("embedding provider: %w", err)
			}
			embedder := embedding.NewCachedEmbedder(embedding.New(provider), cfg.EmbeddingCacheDir())

			matrix := vectorservice.NewMatrix()
			if err := vectorservice.Bootstrap(matrix, idx); err != nil {
				return err
			}

			srv := vectorservice.NewServer(cfg.VectorServiceAddr(), matrix, embedder)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("kg-vectorsvc listening on %s\n", cfg.VectorServiceAddr())
			return srv.ListenAndServe(ctx)
		},
	}
	root.Flags().StringVar(&dirFlag, "dir", "", "project root (defaults to the current directory)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
