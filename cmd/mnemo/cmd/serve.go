package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/api"
	"github.com/mnemo-dev/mnemo/internal/httpapi"
	"github.com/mnemo-dev/mnemo/internal/logging"
	"github.com/mnemo-dev/mnemo/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string
	var addr string
	var root string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start mnemo's query/job server",
		Long: `serve starts mnemo's external interface (spec.md §6): the Query,
Exact-fetch, and Job APIs plus the SSE event stream, over either an
MCP stdio-RPC transport (for editor/assistant integrations) or a
plain HTTP transport.`,
		RunE: func(c *cobra.Command, args []string) error {
			return runServe(c.Context(), root, transport, addr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8420", "listen address for --transport=http")
	cmd.Flags().StringVar(&root, "root", "", "project root (default: nearest .git or .mnemo.yaml)")

	return cmd
}

func runServe(ctx context.Context, root, transport, addr string) error {
	if root == "" {
		root = resolveProjectRoot()
	}

	eng, _, err := loadEngine(root)
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.StartWorker(ctx)
	defer eng.StopWorker()

	a := api.New(eng)

	// Mirror warnings and errors onto the SSE event stream now that a
	// Broadcaster exists; root.go's startLogging hook already installed
	// the file/stderr handler this wraps.
	prevLogger := slog.Default()
	slog.SetDefault(slog.New(logging.NewNotifyHandler(prevLogger.Handler(), a.Broadcaster.NotifyLog)))
	defer slog.SetDefault(prevLogger)

	switch transport {
	case "stdio":
		srv := mcp.New(a)
		return srv.Serve(ctx)
	case "http":
		listenAddr, err := httpapi.ParsePort(addr)
		if err != nil {
			return fmt.Errorf("parse --addr: %w", err)
		}
		srv := httpapi.New(a)
		slog.Info("http_server_starting", slog.String("addr", listenAddr))
		httpSrv := &http.Server{Addr: listenAddr, Handler: srv}
		go func() {
			<-ctx.Done()
			_ = httpSrv.Close()
		}()
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown transport %q (supported: stdio, http)", transport)
	}
}
