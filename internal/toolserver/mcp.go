package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/executor"
	"github.com/compeek/compeek/internal/sysprompt"
	"github.com/compeek/compeek/internal/texteditor"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

const (
	serverName    = "compeek"
	serverVersion = "1.0.0"

	containerInfoURI = "compeek://container/info"
)

// computerActions are the actions exposed by the computer tool. Screenshot
// and zoom have their own tool.
var computerActions = []string{
	string(v1.ActionLeftClick), string(v1.ActionRightClick), string(v1.ActionDoubleClick),
	string(v1.ActionTripleClick), string(v1.ActionMiddleClick),
	string(v1.ActionTypeText), string(v1.ActionKey), string(v1.ActionScroll), string(v1.ActionMouseMove),
	string(v1.ActionLeftClickDrag), string(v1.ActionLeftMouseDown), string(v1.ActionLeftMouseUp),
	string(v1.ActionHoldKey), string(v1.ActionWait),
}

var numberItems = map[string]any{"type": "number"}

// NewMCPServer builds an MCP server exposing exec through the screenshot,
// computer, bash and text_editor tools, the container-info resource and the
// desktop-agent and execute-task prompts.
func NewMCPServer(exec executor.Executor, log *logger.Logger) *server.MCPServer {
	if log == nil {
		log = logger.Default()
	}
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)
	t := &tools{exec: exec, logger: log.WithFields(zap.String("component", "mcp-tools"))}
	t.register(s)
	return s
}

type tools struct {
	exec   executor.Executor
	logger *logger.Logger
}

func (t *tools) register(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("screenshot",
			mcp.WithDescription("Take a screenshot of the virtual desktop (1280x720). Optionally zoom into a specific region."),
			mcp.WithArray("region",
				mcp.Description("Zoom region [x1, y1, x2, y2] for a cropped screenshot"),
				mcp.Items(numberItems),
			),
		),
		t.wrapHandler("screenshot", t.screenshot),
	)

	s.AddTool(
		mcp.NewTool("computer",
			mcp.WithDescription("Perform mouse and keyboard actions on the virtual desktop (1280x720). Actions: left_click, right_click, double_click, triple_click, middle_click, type, key, scroll, mouse_move, left_click_drag, left_mouse_down, left_mouse_up, hold_key, wait."),
			mcp.WithString("action",
				mcp.Required(),
				mcp.Description("The action to perform"),
				mcp.Enum(computerActions...),
			),
			mcp.WithArray("coordinate",
				mcp.Description("Screen coordinates [x, y] for click/scroll/move/drag actions"),
				mcp.Items(numberItems),
			),
			mcp.WithString("text",
				mcp.Description(`Text to type, key name (e.g. "Return", "ctrl+s"), or key to hold`),
			),
			mcp.WithString("scroll_direction",
				mcp.Description("Scroll direction (for scroll action)"),
				mcp.Enum("up", "down", "left", "right"),
			),
			mcp.WithNumber("scroll_amount",
				mcp.Description(fmt.Sprintf("Number of scroll clicks (for scroll action, default %d)", v1.DefaultScrollAmount)),
			),
			mcp.WithArray("start_coordinate",
				mcp.Description("Start coordinates [x, y] for left_click_drag"),
				mcp.Items(numberItems),
			),
			mcp.WithNumber("duration",
				mcp.Description("Duration in seconds (for hold_key or wait actions)"),
			),
		),
		t.wrapHandler("computer", t.computer),
	)

	s.AddTool(
		mcp.NewTool("bash",
			mcp.WithDescription("Execute a bash command on the virtual desktop container. Has access to the full Linux toolchain: git, curl, wget, python3, node, npm, Firefox, and more. Timeout: 120s."),
			mcp.WithString("command",
				mcp.Required(),
				mcp.Description("The bash command to execute"),
			),
		),
		t.wrapHandler("bash", t.bash),
	)

	s.AddTool(
		mcp.NewTool("text_editor",
			mcp.WithDescription("View, create, and edit files on the container. Commands: view (read file with line numbers), create (write new file), str_replace (find & replace exactly one occurrence), insert (insert text at line number)."),
			mcp.WithString("command",
				mcp.Required(),
				mcp.Description("The file operation to perform"),
				mcp.Enum(texteditor.CommandView, texteditor.CommandCreate, texteditor.CommandStrReplace, texteditor.CommandInsert),
			),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Absolute path to the file"),
			),
			mcp.WithString("file_text", mcp.Description("Full file content (for create)")),
			mcp.WithString("old_str", mcp.Description("String to find and replace (for str_replace, must match exactly once)")),
			mcp.WithString("new_str", mcp.Description("Replacement string (for str_replace or insert)")),
			mcp.WithNumber("insert_line", mcp.Description("Line number to insert at (for insert)")),
			mcp.WithArray("view_range",
				mcp.Description("Line range [start, end] to view (for view)"),
				mcp.Items(numberItems),
			),
		),
		t.wrapHandler("text_editor", t.textEditor),
	)

	s.AddResource(
		mcp.NewResource(containerInfoURI, "container-info",
			mcp.WithResourceDescription("Container session info (name, mode, ports, tunnel URLs)"),
			mcp.WithMIMEType("application/json"),
		),
		t.containerInfo,
	)

	s.AddPrompt(
		mcp.NewPrompt("desktop-agent",
			mcp.WithPromptDescription("System prompt for a desktop automation agent with compeek tools"),
		),
		func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return mcp.NewGetPromptResult("System prompt for a desktop automation agent with compeek tools",
				[]mcp.PromptMessage{mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(sysprompt.SystemPromptBase))},
			), nil
		},
	)

	s.AddPrompt(
		mcp.NewPrompt("execute-task",
			mcp.WithPromptDescription("Prompt template for executing a task on the virtual desktop"),
			mcp.WithArgument("goal",
				mcp.ArgumentDescription("The task to execute on the desktop"),
				mcp.RequiredArgument(),
			),
		),
		func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			goal := req.Params.Arguments["goal"]
			if goal == "" {
				return nil, fmt.Errorf("goal is required")
			}
			return mcp.NewGetPromptResult("Prompt template for executing a task on the virtual desktop",
				[]mcp.PromptMessage{mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(sysprompt.TaskPrompt(goal)))},
			), nil
		},
	)

	t.logger.Debug("registered MCP tools", zap.Int("count", 4))
}

// wrapHandler logs each tool call with its session and duration.
func (t *tools) wrapHandler(toolName string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		log := t.logger.WithFields(zap.String("tool", toolName))
		if cs := server.ClientSessionFromContext(ctx); cs != nil {
			log = log.WithSessionID(cs.SessionID())
		}
		log.Debug("MCP tool call")

		result, err := handler(ctx, req)
		duration := time.Since(start)

		switch {
		case err != nil:
			log.Debug("MCP tool error", zap.Duration("duration", duration), zap.Error(err))
		case result != nil && result.IsError:
			log.Debug("MCP tool returned error", zap.Duration("duration", duration), zap.Any("result", result.Content))
		default:
			log.Debug("MCP tool success", zap.Duration("duration", duration))
		}
		return result, err
	}
}

func (t *tools) screenshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := v1.Action{Action: v1.ActionScreenshot}
	if raw, ok := req.GetArguments()["region"]; ok && raw != nil {
		var region v1.Region
		if err := remarshal(raw, &region); err != nil {
			return errorResult(err.Error()), nil
		}
		action = v1.Action{Action: v1.ActionZoom, Region: &region}
	}
	if err := action.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	res := t.exec.ExecuteAction(ctx, action)
	if !res.OK() {
		return errorResult(res.Error), nil
	}
	return imageResult(res.Base64), nil
}

func (t *tools) computer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var action v1.Action
	if err := remarshal(req.GetArguments(), &action); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if action.Action == v1.ActionScreenshot || action.Action == v1.ActionZoom {
		return errorResult("use the screenshot tool for " + string(action.Action)), nil
	}
	if err := action.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	res := t.exec.ExecuteAction(ctx, action)
	switch {
	case !res.OK():
		return errorResult(res.Error), nil
	case res.IsImage():
		return imageResult(res.Base64), nil
	}
	return mcp.NewToolResultText("Action executed successfully."), nil
}

func (t *tools) bash(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := req.RequireString("command")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	res := t.exec.ExecuteBash(ctx, command)
	if res.Error != "" {
		return errorResult(res.Error), nil
	}
	if res.Output == "" {
		return mcp.NewToolResultText("(no output)"), nil
	}
	return mcp.NewToolResultText(res.Output), nil
}

func (t *tools) textEditor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in texteditor.Instruction
	if err := remarshal(req.GetArguments(), &in); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	res := executor.RunTextEditor(ctx, t.exec, in)
	if res.Error != "" {
		return errorResult(res.Error), nil
	}
	if res.Output == "" {
		return mcp.NewToolResultText("Operation completed successfully."), nil
	}
	return mcp.NewToolResultText(res.Output), nil
}

func (t *tools) containerInfo(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	info, err := t.exec.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get container info: %w", err)
	}
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      containerInfoURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent("Error: " + msg)},
		IsError: true,
	}
}

func imageResult(b64 string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewImageContent(b64, "image/png")},
	}
}

// remarshal converts decoded JSON arguments into a typed value.
func remarshal(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
