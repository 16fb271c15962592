package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/docqa/internal/server"
	"github.com/ziadkadry99/docqa/internal/session"
	"github.com/ziadkadry99/docqa/internal/syncer"
)

var (
	serverPort    int
	serverNoWatch bool
)

const shutdownTimeout = 10 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API and chat server",
	Long: `Starts the docqa HTTP server: a REST API for documents, search and
questions, a WebSocket chat endpoint, and a background watcher that keeps the
index in sync with the documents folder.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "port to listen on (default: server.port from config)")
	serverCmd.Flags().BoolVar(&serverNoWatch, "no-watch", false, "do not watch the documents folder for changes")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	assistant, err := a.assistant()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := a.engine.Sync(ctx)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	a.logger.Info("initial sync finished",
		zap.Int("added", report.Added),
		zap.Int("modified", report.Modified),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", len(report.Failed)),
	)

	port := a.cfg.Server.Port
	if serverPort > 0 {
		port = serverPort
	}

	srv := server.New(server.Config{
		Port:        port,
		AllowAll:    a.cfg.Server.AllowAllOrigins,
		MaxUpload:   a.cfg.MaxFileSize,
		DefaultTopK: a.cfg.TopK,
	}, a.engine, assistant, session.NewStore(a.database),
		server.WithLogger(a.logger),
		server.WithMetrics(a.metrics),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("docqa server starting",
			zap.String("version", Version),
			zap.Int("port", port),
			zap.String("documents", a.engine.Root()),
		)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if !serverNoWatch {
		w := syncer.NewWatcher(a.engine, a.watchDebounce(), a.logger)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
