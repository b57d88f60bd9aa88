package agent

import (
	"strings"

	"github.com/compeek/compeek/internal/common/constants"
	"github.com/compeek/compeek/internal/llm"
	"github.com/compeek/compeek/internal/sysprompt"
)

// Tool names the model calls.
const (
	ToolComputer   = "computer"
	ToolBash       = "bash"
	ToolTextEditor = "str_replace_based_edit_tool"
)

const (
	computerToolLegacy = "computer_20250124"
	computerToolZoom   = "computer_20251124"
	bashToolType       = "bash_20250124"
	editorToolType     = "text_editor_20250728"

	betaLegacy = "computer-use-2025-01-24"
	betaZoom   = "computer-use-2025-11-24"

	displayNumber = 1
)

// supportsZoom reports whether model gets the newer computer tool with zoom.
func supportsZoom(model string) bool {
	return strings.Contains(strings.ToLower(model), "opus")
}

// ToolDeclarations returns the tools offered to model. Non-Linux desktops get
// the computer tool only.
func ToolDeclarations(model, osType string) []llm.Tool {
	display := displayNumber
	computer := llm.Tool{
		Type:            computerToolLegacy,
		Name:            ToolComputer,
		DisplayWidthPx:  constants.DisplayWidth,
		DisplayHeightPx: constants.DisplayHeight,
		DisplayNumber:   &display,
	}
	if supportsZoom(model) {
		computer.Type = computerToolZoom
		computer.EnableZoom = true
	}

	tools := []llm.Tool{computer}
	if sysprompt.IsLinux(osType) {
		tools = append(tools,
			llm.Tool{Type: bashToolType, Name: ToolBash},
			llm.Tool{Type: editorToolType, Name: ToolTextEditor},
		)
	}
	return tools
}

// Betas returns the beta flags matching ToolDeclarations for model.
func Betas(model string) []string {
	if supportsZoom(model) {
		return []string{betaZoom}
	}
	return []string{betaLegacy}
}
