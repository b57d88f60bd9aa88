// Package agent runs the LLM tool-calling loop that drives a desktop through
// an Executor.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/constants"
	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/common/stringutil"
	"github.com/compeek/compeek/internal/executor"
	"github.com/compeek/compeek/internal/llm"
	"github.com/compeek/compeek/internal/sysprompt"
	"github.com/compeek/compeek/internal/texteditor"
	"github.com/compeek/compeek/internal/tracing"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

const (
	DefaultModel          = "claude-sonnet-4-5"
	DefaultMaxIterations  = 50
	DefaultMaxTokens      = 16384
	DefaultThinkingBudget = 10240

	eventBuffer      = 64
	statusTextLimit  = 200
	stoppedMessage   = "Workflow stopped by user"
	completedMessage = "Task completed."
)

// ErrEmptyGoal is returned by Start when no goal is given.
var ErrEmptyGoal = errors.New("goal is required")

// Options configures one run.
type Options struct {
	RunID          string // generated when empty
	Goal           string
	Model          string
	MaxIterations  int
	MaxTokens      int
	ThinkingBudget int
	OSType         v1.OSType
	Context        map[string]any

	DocumentBase64   string
	DocumentMimeType string
}

func (o *Options) applyDefaults() {
	if o.RunID == "" {
		o.RunID = uuid.New().String()
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.ThinkingBudget <= 0 {
		o.ThinkingBudget = DefaultThinkingBudget
	}
	if o.DocumentBase64 != "" && o.DocumentMimeType == "" {
		o.DocumentMimeType = "image/png"
	}
}

// Result is the outcome of a finished run.
type Result struct {
	Status      v1.RunStatus
	Reason      v1.TerminalReason
	Success     bool
	ActionCount int
	Iterations  int
	Message     string
	Usage       llm.Usage
	Err         error // set when the LLM call failed
}

// Run is one executing workflow. Callers must drain Events until it is closed.
type Run struct {
	id     string
	opts   Options
	client llm.Client
	exec   executor.Executor
	logger *logger.Logger

	events chan *v1.Event
	done   chan struct{}
	cancel context.CancelFunc

	seq      int
	messages []llm.Message

	mu     sync.Mutex
	usage  llm.Usage
	result Result
}

// Start validates opts and launches the loop in its own goroutine. The loop
// stops when ctx is cancelled or Stop is called. Cancellation is observed at
// the top of each iteration; an LLM call or tool call already in flight runs
// to completion first.
func Start(ctx context.Context, client llm.Client, exec executor.Executor, opts Options, log *logger.Logger) (*Run, error) {
	if strings.TrimSpace(opts.Goal) == "" {
		return nil, ErrEmptyGoal
	}
	opts.applyDefaults()
	if log == nil {
		log = logger.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Run{
		id:     opts.RunID,
		opts:   opts,
		client: client,
		exec:   exec,
		logger: log.WithRunID(opts.RunID).WithFields(zap.String("component", "agent")),
		events: make(chan *v1.Event, eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go r.loop(ctx)
	return r, nil
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Events streams the run's events in order. The channel is closed after the
// terminal complete or error event.
func (r *Run) Events() <-chan *v1.Event { return r.events }

// Stop requests cancellation.
func (r *Run) Stop() { r.cancel() }

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its result.
func (r *Run) Wait() Result {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Usage returns the token total so far.
func (r *Run) Usage() llm.Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

func (r *Run) loop(ctx context.Context) {
	defer close(r.done)
	defer close(r.events)
	defer r.cancel()

	ctx, span := tracing.TraceRun(ctx, r.id, r.opts.Model, r.opts.MaxIterations)
	defer span.End()

	// In-flight calls are not interrupted by a stop request.
	callCtx := context.WithoutCancel(ctx)

	r.messages = []llm.Message{r.openingMessage()}
	tools := ToolDeclarations(r.opts.Model, string(r.opts.OSType))
	system := sysprompt.ForOS(string(r.opts.OSType))

	r.logger.Info("workflow started",
		zap.String("model", r.opts.Model),
		zap.Int("max_iterations", r.opts.MaxIterations))
	r.emit(v1.EventStatus, v1.StatusData{Message: "Starting workflow: " + r.opts.Goal, Step: 0})

	actionCount := 0
	for i := 1; i <= r.opts.MaxIterations; i++ {
		if ctx.Err() != nil {
			r.finishStopped(actionCount, i-1)
			return
		}

		usage := r.Usage()
		r.emit(v1.EventStatus, v1.StatusData{
			Message:    fmt.Sprintf("Iteration %d/%d", i, r.opts.MaxIterations),
			Step:       i,
			TotalSteps: r.opts.MaxIterations,
			Usage:      tokenUsage(usage),
		})

		resp, err := r.callLLM(callCtx, i, system, tools)
		if err != nil {
			r.finishLLMError(err, actionCount, i)
			return
		}
		r.messages = append(r.messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

		var results []llm.ContentBlock
		for _, block := range resp.Content {
			switch block.Type {
			case llm.BlockThinking:
				r.emit(v1.EventThinking, v1.ThinkingData{Content: block.Thinking})
			case llm.BlockText:
				r.emit(v1.EventStatus, v1.StatusData{Message: stringutil.Truncate(block.Text, statusTextLimit), Step: i})
			case llm.BlockToolUse:
				actionCount++
				results = append(results, r.dispatch(callCtx, block))
			}
		}

		if len(results) == 0 {
			r.finishCompleted(resp, actionCount, i)
			return
		}
		r.messages = append(r.messages, llm.Message{Role: llm.RoleUser, Content: results})
	}

	r.finishMaxIterations(actionCount)
}

func (r *Run) openingMessage() llm.Message {
	var blocks []llm.ContentBlock
	hasDocument := r.opts.DocumentBase64 != ""
	if hasDocument {
		blocks = append(blocks, llm.ImageBlock(r.opts.DocumentMimeType, r.opts.DocumentBase64))
	}
	blocks = append(blocks, llm.TextBlock(sysprompt.BuildUserPrompt(r.opts.Goal, r.opts.Context, hasDocument)))
	return llm.UserMessage(blocks...)
}

func (r *Run) callLLM(ctx context.Context, iteration int, system string, tools []llm.Tool) (*llm.MessageResponse, error) {
	ctx, span := tracing.TraceLLMCall(ctx, r.opts.Model, iteration)
	resp, err := r.client.CreateMessage(ctx, &llm.MessageRequest{
		Model:     r.opts.Model,
		MaxTokens: r.opts.MaxTokens,
		System:    system,
		Messages:  r.messages,
		Tools:     tools,
		Betas:     Betas(r.opts.Model),
		Thinking:  &llm.ThinkingConfig{Type: "enabled", BudgetTokens: r.opts.ThinkingBudget},
	})
	if err != nil {
		tracing.EndWithError(span, err)
		return nil, err
	}
	tracing.TraceLLMUsage(span, resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.StopReason)
	span.End()

	r.mu.Lock()
	r.usage.Add(resp.Usage)
	r.mu.Unlock()
	return resp, nil
}

// dispatch runs one tool_use block and returns its tool_result.
func (r *Run) dispatch(ctx context.Context, block llm.ContentBlock) llm.ContentBlock {
	params := map[string]any{}
	if len(block.Input) > 0 {
		_ = json.Unmarshal(block.Input, &params)
	}

	switch block.Name {
	case ToolComputer:
		return r.runComputer(ctx, block, params)
	case ToolBash:
		return r.runBash(ctx, block, params)
	case ToolTextEditor:
		return r.runEditor(ctx, block, params)
	}

	r.emit(v1.EventAction, v1.ActionData{Action: block.Name, Params: params, Description: "Action: " + block.Name})
	r.logger.Warn("model called unknown tool", zap.String("tool", block.Name))
	return llm.ToolResultText(block.ID, "Error: unknown tool "+block.Name, true)
}

func (r *Run) runComputer(ctx context.Context, block llm.ContentBlock, params map[string]any) llm.ContentBlock {
	var action v1.Action
	decodeErr := json.Unmarshal(block.Input, &action)
	if decodeErr != nil {
		name, _ := params["action"].(string)
		action.Action = v1.ActionType(name)
	}

	r.emit(v1.EventAction, v1.ActionData{
		Action:      string(action.Action),
		Params:      params,
		Description: DescribeAction(action),
	})
	if decodeErr != nil {
		return llm.ToolResultText(block.ID, "invalid computer action: "+decodeErr.Error(), true)
	}

	res := r.exec.ExecuteAction(ctx, action)
	switch {
	case res.Error != "":
		r.logger.Debug("action failed", zap.String("action", string(action.Action)), zap.String("error", res.Error))
		return llm.ToolResultText(block.ID, res.Error, true)
	case res.Base64 != "":
		r.emit(v1.EventScreenshot, v1.ScreenshotData{
			Base64: res.Base64,
			Width:  constants.DisplayWidth,
			Height: constants.DisplayHeight,
		})
		return llm.ToolResultImage(block.ID, res.Base64)
	}
	return llm.ToolResultText(block.ID, "Action executed successfully.", false)
}

func (r *Run) runBash(ctx context.Context, block llm.ContentBlock, params map[string]any) llm.ContentBlock {
	var input struct {
		Command string `json:"command"`
		Restart bool   `json:"restart"`
	}
	_ = json.Unmarshal(block.Input, &input)

	r.emit(v1.EventAction, v1.ActionData{Action: ToolBash, Params: params, Description: describeBash(input.Command)})

	if input.Restart {
		return llm.ToolResultText(block.ID, "Bash session restarted.", false)
	}
	if strings.TrimSpace(input.Command) == "" {
		return llm.ToolResultText(block.ID, "Error: command is required", true)
	}

	res := r.exec.ExecuteBash(ctx, input.Command)
	if res.Error != "" {
		return llm.ToolResultText(block.ID, "Error: "+res.Error, true)
	}
	if res.Output == "" {
		return llm.ToolResultText(block.ID, "Command executed successfully (no output).", false)
	}
	return llm.ToolResultText(block.ID, res.Output, false)
}

func (r *Run) runEditor(ctx context.Context, block llm.ContentBlock, params map[string]any) llm.ContentBlock {
	var in texteditor.Instruction
	decodeErr := json.Unmarshal(block.Input, &in)

	r.emit(v1.EventAction, v1.ActionData{Action: in.Command, Params: params, Description: DescribeEditorCommand(in)})
	if decodeErr != nil {
		return llm.ToolResultText(block.ID, "Error: invalid text editor input: "+decodeErr.Error(), true)
	}

	res := executor.RunTextEditor(ctx, r.exec, in)
	if res.Error != "" {
		return llm.ToolResultText(block.ID, "Error: "+res.Error, true)
	}
	if res.Output == "" {
		return llm.ToolResultText(block.ID, "Operation completed successfully.", false)
	}
	return llm.ToolResultText(block.ID, res.Output, false)
}

func (r *Run) finishCompleted(resp *llm.MessageResponse, actionCount, iterations int) {
	message := resp.Text()
	if message == "" {
		message = completedMessage
	}
	usage := r.Usage()
	r.emit(v1.EventComplete, v1.CompleteData{
		Message:      message,
		Success:      true,
		TotalActions: actionCount,
		Reason:       v1.ReasonCompleted,
		Usage:        tokenUsage(usage),
	})
	r.setResult(Result{
		Status:      v1.RunStatusCompleted,
		Reason:      v1.ReasonCompleted,
		Success:     true,
		ActionCount: actionCount,
		Iterations:  iterations,
		Message:     message,
		Usage:       usage,
	})
	r.logger.Info("workflow completed", zap.Int("actions", actionCount), zap.Int("iterations", iterations))
}

func (r *Run) finishStopped(actionCount, iterations int) {
	usage := r.Usage()
	r.emit(v1.EventComplete, v1.CompleteData{
		Message:      stoppedMessage,
		Success:      false,
		TotalActions: actionCount,
		Reason:       v1.ReasonStopped,
		Usage:        tokenUsage(usage),
	})
	r.setResult(Result{
		Status:      v1.RunStatusStopped,
		Reason:      v1.ReasonStopped,
		ActionCount: actionCount,
		Iterations:  iterations,
		Message:     stoppedMessage,
		Usage:       usage,
	})
	r.logger.Info("workflow stopped", zap.Int("actions", actionCount), zap.Int("iterations", iterations))
}

func (r *Run) finishMaxIterations(actionCount int) {
	message := fmt.Sprintf("Maximum iterations (%d) reached.", r.opts.MaxIterations)
	usage := r.Usage()
	r.emit(v1.EventError, v1.ErrorData{
		Message:      message,
		Recoverable:  false,
		TotalActions: actionCount,
		Reason:       v1.ReasonMaxIterations,
		Usage:        tokenUsage(usage),
	})
	r.setResult(Result{
		Status:      v1.RunStatusFailed,
		Reason:      v1.ReasonMaxIterations,
		ActionCount: actionCount,
		Iterations:  r.opts.MaxIterations,
		Message:     message,
		Usage:       usage,
	})
	r.logger.Warn("workflow hit iteration limit", zap.Int("actions", actionCount))
}

func (r *Run) finishLLMError(err error, actionCount, iterations int) {
	message := "LLM request failed: " + err.Error()
	usage := r.Usage()
	r.emit(v1.EventError, v1.ErrorData{
		Message:      message,
		Recoverable:  false,
		TotalActions: actionCount,
		Reason:       v1.ReasonLLMError,
		Usage:        tokenUsage(usage),
	})
	r.setResult(Result{
		Status:      v1.RunStatusFailed,
		Reason:      v1.ReasonLLMError,
		ActionCount: actionCount,
		Iterations:  iterations,
		Message:     message,
		Usage:       usage,
		Err:         err,
	})
	r.logger.Error("workflow failed", zap.Error(err), zap.Int("iteration", iterations))
}

func (r *Run) setResult(res Result) {
	r.mu.Lock()
	r.result = res
	r.mu.Unlock()
}

func (r *Run) emit(eventType v1.EventType, data any) {
	ev, err := v1.NewEvent(eventType, data)
	if err != nil {
		r.logger.Error("failed to encode event", zap.String("type", string(eventType)), zap.Error(err))
		return
	}
	r.seq++
	ev.RunID = r.id
	ev.Seq = r.seq
	r.events <- ev
}

func tokenUsage(u llm.Usage) *v1.TokenUsage {
	return &v1.TokenUsage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}
