package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/compeek/compeek/internal/executor"
	"github.com/compeek/compeek/internal/persistence"
	"github.com/compeek/compeek/internal/runs"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Run service commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the run API: start, stop, list and stream agent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			srv, cleanup, err := a.runService(ctx, a.cfg.Agent.ContainerURL, a.cfg.Agent.ContainerToken)
			if err != nil {
				return err
			}
			defer cleanup()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			return g.Wait()
		},
	})
	return cmd
}

// runService wires the run store, manager and HTTP server. Requests that
// name no container go to containerURL with containerToken.
func (a *app) runService(ctx context.Context, containerURL, containerToken string) (*runs.Server, func(), error) {
	cfg := a.cfg
	client, err := a.llmClient()
	if err != nil {
		return nil, nil, err
	}

	pool, closePool, err := persistence.Provide(ctx, cfg.Runs, a.log)
	if err != nil {
		return nil, nil, err
	}
	var store runs.Store
	if pool == nil {
		store = runs.NewMemoryStore()
	} else {
		store, err = runs.NewSQLStore(ctx, pool)
		if err != nil {
			_ = closePool()
			return nil, nil, err
		}
	}

	healthTimeout := time.Duration(cfg.Agent.HealthCheckTimeout) * time.Second
	newExecutor := func(url, token string) executor.Executor {
		return executor.NewHTTP(url, token, a.log, executor.WithHealthTimeout(healthTimeout))
	}
	manager := runs.NewManager(store, client, newExecutor, runs.Config{
		Model:          cfg.Agent.Model,
		MaxIterations:  cfg.Agent.MaxIterations,
		MaxTokens:      cfg.Agent.MaxTokens,
		ThinkingBudget: cfg.Agent.ThinkingBudget,
		ContainerURL:   containerURL,
		ContainerToken: containerToken,
	}, a.log)

	a.log.Info("run service ready",
		zap.String("driver", cfg.Runs.Driver),
		zap.String("default_container", containerURL))

	cleanup := func() {
		_ = store.Close()
		if err := closePool(); err != nil {
			a.log.Warn("failed to close run database", zap.Error(err))
		}
	}
	return runs.NewServer(cfg.Runs.Addr(), cfg.Auth.Token, manager, a.log), cleanup, nil
}
