package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/constants"
	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/desktop"
	"github.com/compeek/compeek/internal/tracing"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// DirectConfig configures an in-process executor.
type DirectConfig struct {
	Shell       string        // defaults to /bin/bash
	BashTimeout time.Duration // defaults to 120s
	Display     string        // exported as DISPLAY to shell commands

	SessionName   string
	APIPort       int
	VNCPort       int
	Mode          string
	TunnelAPIFile string
	TunnelVNCFile string
}

// Direct runs actions on a local backend and commands in a local shell.
type Direct struct {
	cfg     DirectConfig
	backend desktop.Backend
	runner  desktop.Runner
	logger  *logger.Logger
}

// NewDirect creates a Direct executor. A nil runner uses os/exec.
func NewDirect(cfg DirectConfig, backend desktop.Backend, runner desktop.Runner, log *logger.Logger) *Direct {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/bash"
	}
	if cfg.BashTimeout <= 0 {
		cfg.BashTimeout = constants.BashTimeout
	}
	if cfg.Display == "" {
		cfg.Display = ":1"
	}
	if cfg.SessionName == "" {
		cfg.SessionName = "Desktop"
	}
	if cfg.Mode == "" {
		cfg.Mode = "full"
	}
	if runner == nil {
		runner = desktop.ExecRunner{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &Direct{
		cfg:     cfg,
		backend: backend,
		runner:  runner,
		logger:  log.WithFields(zap.String("component", "direct-executor")),
	}
}

// ExecuteAction runs the action on the configured backend.
func (d *Direct) ExecuteAction(ctx context.Context, action v1.Action) v1.ActionResult {
	ctx, span := tracing.TraceAction(ctx, "direct", string(action.Action))
	defer span.End()

	res := d.backend.Execute(ctx, action)
	if !res.OK() {
		tracing.MarkFailed(span, res.Error)
	}
	return res
}

// ExecuteBash runs command with the configured shell and timeout.
func (d *Direct) ExecuteBash(ctx context.Context, command string) v1.BashResponse {
	ctx, span := tracing.TraceBash(ctx, "direct", len(command))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.BashTimeout)
	defer cancel()

	out, err := d.runner.Run(ctx, []string{"DISPLAY=" + d.cfg.Display}, d.cfg.Shell, "-c", command)
	if err == nil {
		return v1.BashResponse{Output: string(out)}
	}

	msg := bashError(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = fmt.Sprintf("Command timed out after %s", d.cfg.BashTimeout)
	}
	d.logger.Debug("bash command failed", zap.Int("command_length", len(command)), zap.String("error", msg))
	tracing.MarkFailed(span, msg)
	return v1.BashResponse{Error: msg}
}

// bashError prefers the command's stderr over the generic exit message.
func bashError(err error) string {
	var cerr *desktop.CommandError
	if errors.As(err, &cerr) {
		if cerr.Stderr != "" {
			return cerr.Stderr
		}
		if cerr.Err != nil {
			return cerr.Err.Error()
		}
	}
	return err.Error()
}

// GetInfo reports the container identity. Tunnel is nil unless both tunnel
// files exist and are non-empty.
func (d *Direct) GetInfo(context.Context) (*v1.InfoResponse, error) {
	info := &v1.InfoResponse{
		Name:    d.cfg.SessionName,
		APIPort: d.cfg.APIPort,
		VNCPort: d.cfg.VNCPort,
		Mode:    d.cfg.Mode,
	}
	apiURL := readTrimmed(d.cfg.TunnelAPIFile)
	vncURL := readTrimmed(d.cfg.TunnelVNCFile)
	if apiURL != "" && vncURL != "" {
		info.Tunnel = &v1.TunnelInfo{APIURL: apiURL, VNCURL: vncURL}
	}
	return info, nil
}

// HealthCheck always succeeds; there is nothing remote to probe.
func (d *Direct) HealthCheck(context.Context) bool { return true }

func readTrimmed(path string) string {
	if path == "" {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
