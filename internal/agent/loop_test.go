package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/llm"
	"github.com/compeek/compeek/internal/sysprompt"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

func TestStart_RequiresGoal(t *testing.T) {
	_, err := Start(context.Background(), &scriptedLLM{}, &fakeExecutor{}, Options{Goal: "  "}, logger.NewNop())
	assert.ErrorIs(t, err, ErrEmptyGoal)
}

func TestRun_ClickThenScreenshot(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.MessageResponse{
		toolResponse(
			toolUse("tu_1", ToolComputer, map[string]any{"action": "left_click", "coordinate": []int{640, 360}}),
			toolUse("tu_2", ToolComputer, map[string]any{"action": "screenshot"}),
		),
		textResponse("Clicked and captured."),
	}}
	exec := &fakeExecutor{}

	run := startRun(t, context.Background(), client, exec, Options{Goal: "click at (640,360) then take a screenshot"})
	events := drain(t, run)

	assert.Equal(t, []v1.EventType{
		v1.EventStatus, // starting
		v1.EventStatus, // iteration 1
		v1.EventAction,
		v1.EventAction,
		v1.EventScreenshot,
		v1.EventStatus, // iteration 2
		v1.EventStatus, // model text
		v1.EventComplete,
	}, eventTypes(events))

	assert.Equal(t, "Starting workflow: click at (640,360) then take a screenshot", decode[v1.StatusData](t, events[0]).Message)

	click := decode[v1.ActionData](t, events[2])
	assert.Equal(t, "left_click", click.Action)
	assert.Equal(t, "Clicking at (640, 360)", click.Description)
	assert.Equal(t, []any{float64(640), float64(360)}, click.Params["coordinate"])
	assert.Equal(t, "screenshot", decode[v1.ActionData](t, events[3]).Action)

	shot := decode[v1.ScreenshotData](t, events[4])
	assert.Equal(t, v1.ScreenshotData{Base64: "iVBORw0KGgo=", Width: 1280, Height: 720}, shot)

	done := decode[v1.CompleteData](t, events[7])
	assert.True(t, done.Success)
	assert.Equal(t, 2, done.TotalActions)
	assert.Equal(t, "Clicked and captured.", done.Message)
	assert.Equal(t, v1.ReasonCompleted, done.Reason)

	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
		assert.Equal(t, run.ID(), ev.RunID)
	}

	res := run.Wait()
	assert.Equal(t, v1.RunStatusCompleted, res.Status)
	assert.Equal(t, 2, res.ActionCount)
	assert.Equal(t, 2, res.Iterations)

	acts := exec.Actions()
	require.Len(t, acts, 2)
	assert.Equal(t, v1.Point{X: 640, Y: 360}, *acts[0].Coordinate)

	results := lastToolResults(t, client, 1)
	require.Len(t, results, 2)
	assert.Equal(t, "Action executed successfully.", results[0].Content[0].Text)
	assert.Equal(t, "tu_1", results[0].ToolUseID)
	assert.Equal(t, llm.BlockImage, results[1].Content[0].Type)
	assert.Equal(t, "iVBORw0KGgo=", results[1].Content[0].Source.Data)
}

func TestRun_NoToolUseCompletesImmediately(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.MessageResponse{textResponse("Nothing", "to do")}}
	run := startRun(t, context.Background(), client, &fakeExecutor{}, Options{})
	events := drain(t, run)

	last := events[len(events)-1]
	require.Equal(t, v1.EventComplete, last.Type)
	done := decode[v1.CompleteData](t, last)
	assert.True(t, done.Success)
	assert.Zero(t, done.TotalActions)
	assert.Equal(t, "Nothing\nto do", done.Message)

	res := run.Wait()
	assert.Equal(t, v1.RunStatusCompleted, res.Status)
	assert.Zero(t, res.ActionCount)
	assert.Equal(t, 1, client.Calls())
}

func TestRun_EmptyTextUsesDefaultMessage(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.MessageResponse{{StopReason: llm.StopEndTurn}}}
	run := startRun(t, context.Background(), client, &fakeExecutor{}, Options{})
	drain(t, run)
	assert.Equal(t, "Task completed.", run.Wait().Message)
}

func TestRun_StopsAtMaxIterations(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.MessageResponse{
		toolResponse(toolUse("tu", ToolComputer, map[string]any{"action": "screenshot"})),
	}}
	exec := &fakeExecutor{}
	run := startRun(t, context.Background(), client, exec, Options{MaxIterations: 3})
	events := drain(t, run)

	last := events[len(events)-1]
	require.Equal(t, v1.EventError, last.Type)
	data := decode[v1.ErrorData](t, last)
	assert.Equal(t, "Maximum iterations (3) reached.", data.Message)
	assert.False(t, data.Recoverable)
	assert.Equal(t, 3, data.TotalActions)
	assert.Equal(t, v1.ReasonMaxIterations, data.Reason)

	res := run.Wait()
	assert.Equal(t, v1.RunStatusFailed, res.Status)
	assert.False(t, res.Success)
	assert.Equal(t, 3, client.Calls())
	assert.Len(t, exec.Actions(), 3)
}

func TestRun_CancelBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &scriptedLLM{responses: []*llm.MessageResponse{
		toolResponse(toolUse("tu", ToolComputer, map[string]any{"action": "left_click", "coordinate": []int{1, 1}})),
	}}
	exec := &fakeExecutor{onAction: func(n int, _ v1.Action) v1.ActionResult {
		if n == 2 {
			cancel()
		}
		return v1.ActionResult{}
	}}

	run := startRun(t, ctx, client, exec, Options{MaxIterations: 10})
	events := drain(t, run)

	last := events[len(events)-1]
	require.Equal(t, v1.EventComplete, last.Type)
	done := decode[v1.CompleteData](t, last)
	assert.False(t, done.Success)
	assert.Equal(t, v1.ReasonStopped, done.Reason)
	assert.Equal(t, "Workflow stopped by user", done.Message)
	assert.Equal(t, 2, done.TotalActions)

	res := run.Wait()
	assert.Equal(t, v1.RunStatusStopped, res.Status)
	assert.Equal(t, 2, res.ActionCount)
	assert.Equal(t, 2, client.Calls())
	assert.Len(t, exec.Actions(), 2)
}

func TestRun_StopMethod(t *testing.T) {
	release := make(chan struct{})
	client := &scriptedLLM{responses: []*llm.MessageResponse{
		toolResponse(toolUse("tu", ToolComputer, map[string]any{"action": "wait", "duration": 1})),
	}}
	exec := &fakeExecutor{onAction: func(int, v1.Action) v1.ActionResult {
		<-release
		return v1.ActionResult{}
	}}

	run := startRun(t, context.Background(), client, exec, Options{})
	run.Stop()
	close(release)
	drain(t, run)

	res := run.Wait()
	assert.Equal(t, v1.RunStatusStopped, res.Status)
	assert.LessOrEqual(t, res.ActionCount, 1)
}

func TestRun_LLMErrorEndsRun(t *testing.T) {
	client := &scriptedLLM{err: errors.New("anthropic API error: status 401: bad key")}
	run := startRun(t, context.Background(), client, &fakeExecutor{}, Options{})
	events := drain(t, run)

	last := events[len(events)-1]
	require.Equal(t, v1.EventError, last.Type)
	data := decode[v1.ErrorData](t, last)
	assert.False(t, data.Recoverable)
	assert.Equal(t, v1.ReasonLLMError, data.Reason)
	assert.Contains(t, data.Message, "bad key")

	res := run.Wait()
	assert.Equal(t, v1.RunStatusFailed, res.Status)
	assert.Error(t, res.Err)
}

func TestRun_ToolResults(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.MessageResponse{
		toolResponse(
			toolUse("c1", ToolComputer, map[string]any{"action": "left_click", "coordinate": []int{5, 5}}),
			toolUse("b1", ToolBash, map[string]any{"command": "false"}),
			toolUse("b2", ToolBash, map[string]any{"command": "true"}),
			toolUse("b3", ToolBash, map[string]any{"command": "echo hi"}),
			toolUse("e1", ToolTextEditor, map[string]any{"command": "create", "path": "/tmp/x.txt", "file_text": "hi"}),
			toolUse("e2", ToolTextEditor, map[string]any{"command": "str_replace", "path": "/tmp/x.txt"}),
			toolUse("u1", "teleport", map[string]any{}),
			toolUse("b4", ToolBash, map[string]any{"restart": true}),
		),
		textResponse("done"),
	}}
	exec := &fakeExecutor{
		onAction: func(int, v1.Action) v1.ActionResult { return v1.ActionResult{Error: "Action failed: click"} },
		onBash: func(cmd string) v1.BashResponse {
			switch {
			case cmd == "false":
				return v1.BashResponse{Error: "exit status 1"}
			case cmd == "echo hi":
				return v1.BashResponse{Output: "hi\n"}
			}
			return v1.BashResponse{}
		},
	}

	run := startRun(t, context.Background(), client, exec, Options{})
	events := drain(t, run)
	assert.Equal(t, 8, run.Wait().ActionCount)

	type want struct {
		text    string
		isError bool
	}
	expected := []want{
		{"Action failed: click", true},
		{"Error: exit status 1", true},
		{"Command executed successfully (no output).", false},
		{"hi\n", false},
		{"Operation completed successfully.", false},
		{"Error: str_replace requires old_str", true},
		{"Error: unknown tool teleport", true},
		{"Bash session restarted.", false},
	}
	results := lastToolResults(t, client, 1)
	require.Len(t, results, len(expected))
	for i, w := range expected {
		assert.Equal(t, w.text, results[i].Content[0].Text, "result %d", i)
		assert.Equal(t, w.isError, results[i].IsError, "result %d", i)
	}

	// Only the three runnable shell commands and the create reach the executor.
	cmds := exec.Commands()
	require.Len(t, cmds, 4)
	assert.True(t, strings.HasPrefix(cmds[3], "mkdir -p '/tmp' && cat > '/tmp/x.txt'"))

	var descriptions []string
	for _, ev := range events {
		if ev.Type == v1.EventAction {
			descriptions = append(descriptions, decode[v1.ActionData](t, ev).Description)
		}
	}
	assert.Equal(t, []string{
		"Clicking at (5, 5)",
		`Running: "false"`,
		`Running: "true"`,
		`Running: "echo hi"`,
		"Creating /tmp/x.txt",
		"Editing /tmp/x.txt",
		"Action: teleport",
		`Running: ""`,
	}, descriptions)
}

func TestRun_ThinkingAndTextEvents(t *testing.T) {
	long := strings.Repeat("é", 250)
	client := &scriptedLLM{responses: []*llm.MessageResponse{{
		StopReason: llm.StopEndTurn,
		Content: []llm.ContentBlock{
			{Type: llm.BlockThinking, Thinking: "let me think", Signature: "sig"},
			llm.TextBlock(long),
		},
	}}}
	run := startRun(t, context.Background(), client, &fakeExecutor{}, Options{})
	events := drain(t, run)

	require.Equal(t, []v1.EventType{v1.EventStatus, v1.EventStatus, v1.EventThinking, v1.EventStatus, v1.EventComplete}, eventTypes(events))
	assert.Equal(t, "let me think", decode[v1.ThinkingData](t, events[2]).Content)
	status := decode[v1.StatusData](t, events[3])
	assert.Equal(t, strings.Repeat("é", 200), status.Message)
	assert.Equal(t, 1, status.Step)
	assert.Equal(t, long, decode[v1.CompleteData](t, events[4]).Message)
}

func TestRun_RequestShape(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.MessageResponse{
		{
			StopReason: llm.StopToolUse,
			Content: []llm.ContentBlock{
				{Type: llm.BlockThinking, Thinking: "plan", Signature: "sig-1"},
				toolUse("tu", ToolComputer, map[string]any{"action": "screenshot"}),
			},
			Usage: llm.Usage{InputTokens: 10, OutputTokens: 5},
		},
		{StopReason: llm.StopEndTurn, Content: []llm.ContentBlock{llm.TextBlock("ok")}, Usage: llm.Usage{InputTokens: 7, OutputTokens: 3}},
	}}

	run := startRun(t, context.Background(), client, &fakeExecutor{}, Options{
		Goal:             "fill the form",
		Context:          map[string]any{"name": "Ada"},
		DocumentBase64:   "ZG9j",
		DocumentMimeType: "image/jpeg",
	})
	events := drain(t, run)

	first := client.Request(0)
	assert.Equal(t, DefaultModel, first.Model)
	assert.Equal(t, DefaultMaxTokens, first.MaxTokens)
	assert.Equal(t, &llm.ThinkingConfig{Type: "enabled", BudgetTokens: DefaultThinkingBudget}, first.Thinking)
	assert.Equal(t, sysprompt.ForOS(""), first.System)
	assert.Equal(t, []string{"computer-use-2025-01-24"}, first.Betas)
	assert.Len(t, first.Tools, 3)

	require.Len(t, first.Messages, 1)
	opening := first.Messages[0].Content
	require.Len(t, opening, 2)
	assert.Equal(t, llm.BlockImage, opening[0].Type)
	assert.Equal(t, "image/jpeg", opening[0].Source.MediaType)
	assert.Contains(t, opening[1].Text, `"name": "Ada"`)

	second := client.Request(1)
	require.Len(t, second.Messages, 3)
	assert.Equal(t, llm.RoleAssistant, second.Messages[1].Role)
	assert.Equal(t, "sig-1", second.Messages[1].Content[0].Signature)

	iter2 := statusWithMessage(t, events, "Iteration 2/50")
	assert.Equal(t, &v1.TokenUsage{InputTokens: 10, OutputTokens: 5}, iter2.Usage)

	res := run.Wait()
	assert.Equal(t, llm.Usage{InputTokens: 17, OutputTokens: 8}, res.Usage)
	assert.Equal(t, &v1.TokenUsage{InputTokens: 17, OutputTokens: 8}, decode[v1.CompleteData](t, events[len(events)-1]).Usage)
}

func TestRun_NonLinuxUsesGUIPrompt(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.MessageResponse{textResponse("ok")}}
	run := startRun(t, context.Background(), client, &fakeExecutor{}, Options{OSType: v1.OSWindows, Model: "claude-opus-4-5"})
	drain(t, run)

	req := client.Request(0)
	assert.Equal(t, sysprompt.ForOS("windows"), req.System)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "computer_20251124", req.Tools[0].Type)
	assert.Equal(t, []string{"computer-use-2025-11-24"}, req.Betas)
}
