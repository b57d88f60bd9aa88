package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/compeek/compeek/internal/common/config"
	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/desktop"
	"github.com/compeek/compeek/internal/executor"
	"github.com/compeek/compeek/internal/toolserver"
)

func newServeCmd(a *app) *cobra.Command {
	var withRuns bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tool server inside the desktop container",
		Long: `Serve /api/health, /api/info, /api/tool, /api/bash and the MCP
streamable HTTP endpoint /mcp over the configured desktop backend.

With --with-runs the run service is started alongside and drives this
container by default.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			backend, err := newBackend(cfg.Desktop, a.log)
			if err != nil {
				return err
			}
			exec := executor.NewDirect(executor.DirectConfig{
				Shell:         cfg.Bash.Shell,
				BashTimeout:   cfg.Bash.TimeoutDuration(),
				Display:       cfg.Desktop.Display,
				SessionName:   cfg.Info.SessionName,
				APIPort:       cfg.Server.Port,
				VNCPort:       cfg.Info.VNCPort,
				Mode:          cfg.Desktop.Mode,
				TunnelAPIFile: cfg.Info.TunnelAPIFile,
				TunnelVNCFile: cfg.Info.TunnelVNCFile,
			}, backend, nil, a.log)

			srv := toolserver.New(toolserver.Config{
				Addr:         cfg.Server.Addr(),
				Token:        cfg.Auth.Token,
				ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
				WriteTimeout: cfg.Server.WriteTimeoutDuration(),
				SessionIdle:  cfg.Server.MCPSessionIdleDuration(),
				MaxSessions:  cfg.Server.MCPMaxSessions,
			}, exec, a.log)

			a.log.Info("starting compeek",
				zap.String("backend", backend.Name()),
				zap.String("mode", cfg.Desktop.Mode),
				zap.String("display", cfg.Desktop.Display))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })

			if withRuns {
				local := "http://" + net.JoinHostPort(loopbackHost(cfg.Server.Host), strconv.Itoa(cfg.Server.Port))
				runSrv, cleanup, err := a.runService(gctx, local, cfg.Auth.Token)
				if err != nil {
					return err
				}
				defer cleanup()
				g.Go(func() error { return runSrv.Run(gctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withRuns, "with-runs", false, "Also start the run service against this container")
	return cmd
}

// newBackend selects the desktop backend named in cfg.
func newBackend(cfg config.DesktopConfig, log *logger.Logger) (desktop.Backend, error) {
	opts := desktop.Options{
		Scale: desktop.Scaler{
			LogicalWidth:  cfg.Width,
			LogicalHeight: cfg.Height,
			ScreenWidth:   cfg.ScreenWidth,
			ScreenHeight:  cfg.ScreenHeight,
		},
		ScreenshotDir: cfg.ScreenshotDir,
		Logger:        log,
	}
	switch cfg.Backend {
	case "x11":
		return desktop.NewX11Backend(desktop.X11Config{
			Display:     cfg.Display,
			TypeDelayMs: cfg.TypeDelayMs,
		}, opts), nil
	case "vnc":
		return desktop.NewVNCBackend(desktop.VNCConfig{
			Host:    cfg.VNCHost,
			Port:    cfg.VNCPort,
			Timeout: cfg.VNCTimeoutDuration(),
		}, opts), nil
	}
	return nil, fmt.Errorf("unknown desktop backend %q", cfg.Backend)
}

func loopbackHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1"
	}
	return host
}
