package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/agent"
	"github.com/compeek/compeek/internal/common/config"
	"github.com/compeek/compeek/internal/executor"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

type runFlags struct {
	task          string
	goal          string
	containerURL  string
	apiToken      string
	model         string
	osType        string
	document      string
	maxIterations int
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one agent workflow and print its events as JSON lines",
		Long: `Run one agent workflow against a container. Flags override the
fields of --task. Ctrl-C stops the run after the current step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req, err := f.request(a.cfg.Agent)
			if err != nil {
				return err
			}

			exec := executor.NewHTTP(req.ContainerURL, req.APIToken, a.log,
				executor.WithHealthTimeout(time.Duration(a.cfg.Agent.HealthCheckTimeout)*time.Second))
			if !exec.HealthCheck(ctx) {
				return fmt.Errorf("container at %s is not responding", req.ContainerURL)
			}
			client, err := a.llmClient()
			if err != nil {
				return err
			}

			run, err := agent.Start(ctx, client, exec, agent.Options{
				Goal:             req.Goal,
				Model:            req.Model,
				MaxIterations:    req.MaxIterations,
				MaxTokens:        a.cfg.Agent.MaxTokens,
				ThinkingBudget:   a.cfg.Agent.ThinkingBudget,
				OSType:           req.OSType,
				Context:          req.Context,
				DocumentBase64:   req.DocumentBase64,
				DocumentMimeType: req.DocumentMimeType,
			}, a.log)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for ev := range run.Events() {
				if err := enc.Encode(ev); err != nil {
					a.log.Warn("failed to write event", zap.Error(err))
				}
			}

			res := run.Wait()
			a.log.Info("run finished",
				zap.String("run_id", run.ID()),
				zap.String("status", string(res.Status)),
				zap.Int("actions", res.ActionCount),
				zap.Int("input_tokens", res.Usage.InputTokens),
				zap.Int("output_tokens", res.Usage.OutputTokens))
			if res.Status == v1.RunStatusFailed {
				return errors.New(res.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.task, "task", "", "YAML task file (goal, container_url, context, document, ...)")
	cmd.Flags().StringVar(&f.goal, "goal", "", "What the agent should do")
	cmd.Flags().StringVar(&f.containerURL, "container-url", "", "Tool server URL (default agent.containerUrl)")
	cmd.Flags().StringVar(&f.apiToken, "api-token", "", "Bearer token for the tool server")
	cmd.Flags().StringVar(&f.model, "model", "", "Model id (default agent.model)")
	cmd.Flags().StringVar(&f.osType, "os", "", "Target OS: linux, windows or macos")
	cmd.Flags().StringVar(&f.document, "document", "", "Image attached to the first message")
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", 0, "Iteration cap (default agent.maxIterations)")
	return cmd
}

// request merges the task file, flags and configuration defaults.
func (f *runFlags) request(defaults config.AgentConfig) (v1.StartRunRequest, error) {
	var req v1.StartRunRequest
	if f.task != "" {
		loaded, err := loadTask(f.task)
		if err != nil {
			return req, err
		}
		req = loaded
	}
	override(&req.Goal, f.goal)
	override(&req.ContainerURL, f.containerURL)
	override(&req.APIToken, f.apiToken)
	override(&req.Model, f.model)
	override(&req.DocumentPath, f.document)
	if f.osType != "" {
		req.OSType = v1.OSType(f.osType)
	}
	if f.maxIterations > 0 {
		req.MaxIterations = f.maxIterations
	}

	if req.ContainerURL == "" {
		req.ContainerURL = defaults.ContainerURL
	}
	if req.APIToken == "" {
		req.APIToken = defaults.ContainerToken
	}
	if req.Model == "" {
		req.Model = defaults.Model
	}
	if req.MaxIterations <= 0 {
		req.MaxIterations = defaults.MaxIterations
	}

	req.Goal = strings.TrimSpace(req.Goal)
	if req.Goal == "" {
		return req, errors.New("a goal is required (--goal or goal: in --task)")
	}
	switch req.OSType {
	case "", v1.OSLinux, v1.OSWindows, v1.OSMacOS:
	default:
		return req, fmt.Errorf("unknown os %q", req.OSType)
	}
	if err := attachDocument(&req); err != nil {
		return req, err
	}
	return req, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
