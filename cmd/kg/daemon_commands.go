package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/kgraph/internal/daemon"
	"github.com/ehrlich-b/kgraph/internal/embedding"
	"github.com/ehrlich-b/kgraph/internal/index"
	"github.com/ehrlich-b/kgraph/internal/vectorservice"
	"github.com/ehrlich-b/kgraph/internal/watcher"
)

const (
	procWatcher       = "watcher"
	procVectorService = "vectorservice"
)

// watchCmd runs the Watcher event loop in the foreground. It is the
// target process re-exec'd by Supervisor.Ensure via daemon start.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "watch",
		Short:  "Run the node watcher in the foreground",
		Hidden: true,
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

			w := watcher.New(cfg.NodesPath(), func(slug string) error {
				return f.Index.ReindexNode(f.Store, slug)
			})
			return w.Run()
		},
	}
}

// serveCmd runs the VectorService in the foreground, bootstrapped from
// the project's index. It is the re-exec target Supervisor.Ensure uses
// for the "vectorservice" process; kg-vectorsvc is the equivalent
// standalone binary for deployments where an external process
// supervisor owns restart policy directly.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "serve",
		Short:  "Run the VectorService in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
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
			return srv.ListenAndServe(ctx)
		},
	}
}

func daemonCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "daemon",
		Short: "Start, stop, and check the Watcher and VectorService processes",
	}
	d.AddCommand(daemonStartCmd(), daemonStopCmd(), daemonStatusCmd())
	return d
}

func daemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Ensure the Watcher and VectorService are running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sup := daemon.New(cfg)

			wPid, err := sup.Ensure(daemon.Spec{Name: procWatcher, Args: []string{"watch"}})
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			fmt.Printf("watcher running (pid %d)\n", wPid)

			vPid, err := sup.Ensure(daemon.Spec{Name: procVectorService, Args: []string{"serve"}})
			if err != nil {
				return fmt.Errorf("start vectorservice: %w", err)
			}
			fmt.Printf("vectorservice running (pid %d)\n", vPid)
			return nil
		},
	}
}

func daemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the Watcher and VectorService processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sup := daemon.New(cfg)
			if err := sup.Stop(procWatcher); err != nil {
				return fmt.Errorf("stop watcher: %w", err)
			}
			if err := sup.Stop(procVectorService); err != nil {
				return fmt.Errorf("stop vectorservice: %w", err)
			}
			fmt.Println("stopped")
			return nil
		},
	}
}

func daemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the Watcher and VectorService are running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sup := daemon.New(cfg)

			wSt := sup.StatusOf(procWatcher, nil)
			fmt.Println(renderStatus(wSt))

			client := vectorservice.NewClient(cfg.VectorServiceAddr())
			vSt := sup.StatusOf(procVectorService, client.Healthy)
			fmt.Println(renderStatus(vSt))
			return nil
		},
	}
}

func renderStatus(st daemon.Status) string {
	if !st.Running {
		return fmt.Sprintf("%s: not running", st.Name)
	}
	if st.Healthy {
		return fmt.Sprintf("%s: running (pid %d, healthy)", st.Name, st.PID)
	}
	return fmt.Sprintf("%s: running (pid %d)", st.Name, st.PID)
}
