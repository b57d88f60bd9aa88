package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/compeek/compeek/internal/common/config"
	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/llm"
	"github.com/compeek/compeek/internal/tracing"
)

// stdoutCommands write protocol or results on stdout, so logs go to stderr.
var stdoutCommands = map[string]bool{"mcp": true, "run": true, "extract": true}

// app carries what every subcommand needs once the root has loaded it.
type app struct {
	configDir string
	logLevel  string

	cfg *config.Config
	log *logger.Logger
}

func newRootCmd(version string) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "compeek",
		Short:        "Desktop control for LLM agents",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(stdoutCommands[cmd.Name()])
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configDir, "config", "", "Directory holding config.yaml (also searched: ., /etc/compeek)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newMCPCmd(a))
	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newRunsCmd(a))
	cmd.AddCommand(newExtractCmd(a))

	cmd.Version = version
	cmd.SetVersionTemplate("{{.Version}}\n")
	return cmd
}

func (a *app) init(stderrOnly bool) error {
	cfg, err := config.LoadWithPath(a.configDir)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if stderrOnly && (cfg.Logging.OutputPath == "" || cfg.Logging.OutputPath == "stdout") {
		cfg.Logging.OutputPath = "stderr"
	}
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = tracing.Shutdown(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// llmClient builds the Messages API client from the agent section.
func (a *app) llmClient() (*llm.HTTPClient, error) {
	return llm.NewHTTPClient(llm.Config{
		APIKey:          a.cfg.Agent.APIKey,
		BaseURL:         a.cfg.Agent.BaseURL,
		Timeout:         time.Duration(a.cfg.Agent.RequestTimeout) * time.Second,
		RetryMaxElapsed: time.Duration(a.cfg.Agent.RetryMaxElapsed) * time.Second,
	}, a.log)
}
