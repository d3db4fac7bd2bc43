package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"spotifydl/internal/config"
	"spotifydl/internal/pipeline"
	"spotifydl/internal/shutdown"
	"spotifydl/internal/web"
	"spotifydl/pkg/utils"
)

func newServeCommand(opts *options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job API with websocket progress updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.Flags())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8080", "HTTP listen address")
	return cmd
}

func runServe(parent context.Context, cfg config.Config) error {
	log := newLogger(cfg, "spotifydl-web")
	defer log.Close()

	if err := utils.CheckDependencies(); err != nil {
		return fmt.Errorf("dependency check failed: %w", err)
	}

	sh := shutdown.New(parent, log)
	sh.Listen()
	defer sh.Shutdown()

	// One set of collaborators shared by all jobs; the single worker keeps
	// them from being used concurrently.
	deps := buildDeps(cfg, log)
	run := func(ctx context.Context, input string, hooks pipeline.Hooks) (pipeline.Result, error) {
		if needsCatalog([]string{input}) {
			if err := cfg.ValidateCredentials(); err != nil {
				return pipeline.Result{}, err
			}
		}
		orch, err := pipeline.New(deps, pipelineOptions(cfg), log, hooks)
		if err != nil {
			return pipeline.Result{}, err
		}
		return orch.Run(ctx, []string{input}), nil
	}

	jobMgr := web.NewJobManager()
	jobMgr.StartCleanup(sh.Context())
	server := web.NewServer(jobMgr, run, log)
	server.Start(sh.Context())

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting web server on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-sh.Context().Done():
	}

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("Server shutdown error: %v", err)
	}
	log.Info("Server stopped")
	return nil
}
