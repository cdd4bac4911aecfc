package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/kgraph/internal/config"
	"github.com/ehrlich-b/kgraph/internal/embedding"
	"github.com/ehrlich-b/kgraph/internal/facade"
	"github.com/ehrlich-b/kgraph/internal/index"
	"github.com/ehrlich-b/kgraph/internal/reranker"
	"github.com/ehrlich-b/kgraph/internal/vectorservice"
)

// reindexVectorSink pushes a freshly reindexed node's embedding into the
// local in-process matrix (always, satisfying the in-process-updates
// requirement directly) and, best-effort, into a running VectorService
// daemon over HTTP, mirroring the remote-then-local split
// vectorservice.FallbackSearcher already applies on the query side.
type reindexVectorSink struct {
	matrix *vectorservice.Matrix
	client *vectorservice.Client
}

func (s reindexVectorSink) Add(id string, vector []float32) {
	s.matrix.Add(id, vector)
	_ = s.client.Add(id, vector)
}

// loadConfig reads kgraph.yaml from the current directory, falling back
// to defaults when the file is absent.
func loadConfig() (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

// openFacade wires a Facade against the on-disk index, a best-effort
// embedder, and a VectorService client that falls back to an in-process
// search over the index's own embeddings when the daemon isn't running.
func openFacade(cfg *config.Config) (*facade.Facade, func(), error) {
	idx, err := index.Open(cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}

	provider, err := embedding.NewFromProvider(cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	if err != nil {
		idx.Close()
		return nil, nil, fmt.Errorf("embedding provider: %w", err)
	}
	embedder := embedding.NewCachedEmbedder(embedding.New(provider), cfg.EmbeddingCacheDir())

	matrix := vectorservice.NewMatrix()
	if rows, err := idx.AllEmbeddings(); err == nil {
		for _, r := range rows {
			matrix.Add(r.Slug, embedding.BytesToVec(r.Vector))
		}
	}
	client := vectorservice.NewClient(cfg.VectorServiceAddr())
	idx.SetEmbedder(embedder, reindexVectorSink{matrix: matrix, client: client})
	vec := vectorservice.NewFallbackSearcher(client, vectorservice.NewInProcessSearcher(matrix))

	var rerank *reranker.Reranker
	if cfg.Reranker.Enabled {
		rerank = reranker.New(reranker.NewHTTPCrossEncoder(cfg.Reranker.Model, cfg.Embedding.BaseURL), embedder)
	}

	f, err := facade.Open(cfg, idx, vec, embedder, rerank)
	if err != nil {
		idx.Close()
		return nil, nil, err
	}
	return f, func() { idx.Close() }, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a kgraph project in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.NodesPath(), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.IndexPath(), 0o755); err != nil {
				return err
			}
			if err := cfg.EnsureVCSIgnore(); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return err
			}
			idx, err := index.Open(cfg.DBPath())
			if err != nil {
				return fmt.Errorf("init index: %w", err)
			}
			idx.Close()
			fmt.Println("initialized:", cfg.Dir)
			return nil
		},
	}
}

func contextCmd() *cobra.Command {
	var maxTokens, limit int
	var sessionID string
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Print budget-packed context for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, closeFn, err := openFacade(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			out, err := f.Context(args[0], sessionID, maxTokens, limit)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 1000, "token budget for the packed context (4 characters per token)")
	cmd.Flags().IntVar(&limit, "limit", 20, "retrieval breadth; each scorer returns up to 3x this many candidates")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (accepted, currently unused)")
	return cmd
}

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Lexical search over bullet text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, closeFn, err := openFacade(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			out, err := f.Search(args[0], limit)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows returned")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [slug]",
		Short: "Print a node's full content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, closeFn, err := openFacade(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			out, err := f.Show(args[0])
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func addBulletCmd() *cobra.Command {
	var bulletType, status string
	cmd := &cobra.Command{
		Use:   "add-bullet [slug] [text]",
		Short: "Append a bullet to a node, creating it if absent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, closeFn, err := openFacade(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			id, err := f.AddBullet(args[0], args[1], bulletType, status)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&bulletType, "type", "fact", "bullet type")
	cmd.Flags().StringVar(&status, "status", "", "optional status tag")
	return cmd
}

func markReviewedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-reviewed [slug]",
		Short: "Clear a node's review budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, closeFn, err := openFacade(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			out, err := f.MarkReviewed(args[0])
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

func reviewCmd() *cobra.Command {
	var threshold, limit int
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List nodes whose review budget has crossed the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, closeFn, err := openFacade(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			out, err := f.ReviewList(threshold, limit)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", 0, "override the configured review budget threshold")
	cmd.Flags().IntVar(&limit, "limit", 20, "max nodes listed")
	return cmd
}

func rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the derived index from nodes on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, closeFn, err := openFacade(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := f.Index.RebuildAll(f.Store)
			if err != nil {
				return err
			}
			fmt.Printf("reindexed %d nodes\n", n)
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the index for drift against nodes on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, closeFn, err := openFacade(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			report, err := f.Doctor()
			if err != nil {
				return err
			}
			fmt.Println(facade.RenderDoctorReport(report))
			if !report.Clean() {
				os.Exit(1)
			}
			return nil
		},
	}
}

func calibrateCmd() *cobra.Command {
	var sampleSize int
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Sample bullets and recompute scorer quantile breakpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, closeFn, err := openFacade(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			report, err := f.Calibrator.Calibrate(sampleSize)
			if err != nil {
				return err
			}
			fmt.Printf("fts: %s (%d samples)\n", report.FTS.Status, report.FTS.SampleCount)
			fmt.Printf("vector: %s (%d samples)\n", report.Vector.Status, report.Vector.SampleCount)
			return nil
		},
	}
	cmd.Flags().IntVar(&sampleSize, "samples", 50, "number of bullets to sample")
	return cmd
}
