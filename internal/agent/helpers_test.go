package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/llm"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// scriptedLLM replays canned responses in order, repeating the last one.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.MessageResponse
	err       error
	requests  []*llm.MessageRequest
}

func (s *scriptedLLM) CreateMessage(_ context.Context, req *llm.MessageRequest) (*llm.MessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	s.requests = append(s.requests, &cp)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedLLM) Request(i int) *llm.MessageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

// fakeExecutor records calls and answers from hooks.
type fakeExecutor struct {
	mu       sync.Mutex
	actions  []v1.Action
	commands []string
	onAction func(n int, a v1.Action) v1.ActionResult
	onBash   func(cmd string) v1.BashResponse
}

func (f *fakeExecutor) ExecuteAction(_ context.Context, a v1.Action) v1.ActionResult {
	f.mu.Lock()
	f.actions = append(f.actions, a)
	n := len(f.actions)
	f.mu.Unlock()
	if f.onAction != nil {
		return f.onAction(n, a)
	}
	if a.Action == v1.ActionScreenshot {
		return v1.ActionResult{Base64: "iVBORw0KGgo="}
	}
	return v1.ActionResult{}
}

func (f *fakeExecutor) ExecuteBash(_ context.Context, cmd string) v1.BashResponse {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	if f.onBash != nil {
		return f.onBash(cmd)
	}
	return v1.BashResponse{}
}

func (f *fakeExecutor) GetInfo(context.Context) (*v1.InfoResponse, error) {
	return &v1.InfoResponse{Name: "test"}, nil
}

func (f *fakeExecutor) HealthCheck(context.Context) bool { return true }

func (f *fakeExecutor) Actions() []v1.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]v1.Action(nil), f.actions...)
}

func (f *fakeExecutor) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func textResponse(texts ...string) *llm.MessageResponse {
	resp := &llm.MessageResponse{StopReason: llm.StopEndTurn}
	for _, t := range texts {
		resp.Content = append(resp.Content, llm.TextBlock(t))
	}
	return resp
}

func toolUse(id, name string, input any) llm.ContentBlock {
	raw, err := json.Marshal(input)
	if err != nil {
		panic(err)
	}
	return llm.ContentBlock{Type: llm.BlockToolUse, ID: id, Name: name, Input: raw}
}

func toolResponse(blocks ...llm.ContentBlock) *llm.MessageResponse {
	return &llm.MessageResponse{StopReason: llm.StopToolUse, Content: blocks}
}

func startRun(t *testing.T, ctx context.Context, client llm.Client, exec *fakeExecutor, opts Options) *Run {
	t.Helper()
	if opts.Goal == "" {
		opts.Goal = "do the thing"
	}
	run, err := Start(ctx, client, exec, opts, logger.NewNop())
	require.NoError(t, err)
	return run
}

// drain collects every event until the channel closes.
func drain(t *testing.T, run *Run) []*v1.Event {
	t.Helper()
	var out []*v1.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-run.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("run did not finish")
			return nil
		}
	}
}

func eventTypes(events []*v1.Event) []v1.EventType {
	out := make([]v1.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func decode[T any](t *testing.T, ev *v1.Event) T {
	t.Helper()
	var out T
	require.NoError(t, ev.Decode(&out))
	return out
}

// statusWithMessage returns the first status event carrying msg.
func statusWithMessage(t *testing.T, events []*v1.Event, msg string) v1.StatusData {
	t.Helper()
	for _, ev := range events {
		if ev.Type != v1.EventStatus {
			continue
		}
		if data := decode[v1.StatusData](t, ev); data.Message == msg {
			return data
		}
	}
	t.Fatalf("no status event %q in %v", msg, eventTypes(events))
	return v1.StatusData{}
}

// lastToolResults returns the tool_result blocks sent with request i.
func lastToolResults(t *testing.T, client *scriptedLLM, i int) []llm.ContentBlock {
	t.Helper()
	req := client.Request(i)
	last := req.Messages[len(req.Messages)-1]
	require.Equal(t, llm.RoleUser, last.Role)
	return last.Content
}
