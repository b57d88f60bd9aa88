// Package executor provides the four-call capability through which the agent
// loop and the tool server reach a desktop, either in-process or over HTTP.
package executor

import (
	"context"

	"github.com/compeek/compeek/internal/texteditor"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// Executor runs desktop actions and shell commands. Action and bash failures
// are reported in the returned value, never as a Go error.
type Executor interface {
	ExecuteAction(ctx context.Context, action v1.Action) v1.ActionResult
	ExecuteBash(ctx context.Context, command string) v1.BashResponse
	GetInfo(ctx context.Context) (*v1.InfoResponse, error)
	HealthCheck(ctx context.Context) bool
}

// RunTextEditor compiles an editor instruction and runs it through the
// executor's shell. An invalid instruction never reaches the shell.
func RunTextEditor(ctx context.Context, exec Executor, in texteditor.Instruction) v1.BashResponse {
	cmd, err := texteditor.Compile(in)
	if err != nil {
		return v1.BashResponse{Error: err.Error()}
	}
	return exec.ExecuteBash(ctx, cmd)
}
