package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/compeek/compeek/internal/texteditor"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

func TestDescribeAction(t *testing.T) {
	at := &v1.Point{X: 10, Y: 20}
	tests := []struct {
		action v1.Action
		want   string
	}{
		{v1.Action{Action: v1.ActionScreenshot}, "Taking screenshot"},
		{v1.Action{Action: v1.ActionLeftClick, Coordinate: at}, "Clicking at (10, 20)"},
		{v1.Action{Action: v1.ActionRightClick, Coordinate: at}, "Right-clicking at (10, 20)"},
		{v1.Action{Action: v1.ActionDoubleClick, Coordinate: at}, "Double-clicking at (10, 20)"},
		{v1.Action{Action: v1.ActionTripleClick, Coordinate: at}, "Triple-clicking at (10, 20)"},
		{v1.Action{Action: v1.ActionTypeText, Text: "hello"}, `Typing: "hello"`},
		{v1.Action{Action: v1.ActionTypeText, Text: strings.Repeat("a", 60)}, `Typing: "` + strings.Repeat("a", 50) + `..."`},
		{v1.Action{Action: v1.ActionKey, Text: "ctrl+s"}, "Pressing key: ctrl+s"},
		{v1.Action{Action: v1.ActionScroll, Coordinate: at, ScrollDirection: v1.ScrollDown, ScrollAmount: 3}, "Scrolling down by 3"},
		{v1.Action{Action: v1.ActionScroll, Coordinate: at, ScrollDirection: v1.ScrollUp}, "Scrolling up by 5"},
		{v1.Action{Action: v1.ActionMouseMove, Coordinate: at}, "Moving mouse to (10, 20)"},
		{v1.Action{Action: v1.ActionZoom, Region: &v1.Region{X1: 0, Y1: 0, X2: 640, Y2: 360}}, "Zooming into region [0, 0, 640, 360]"},
		{v1.Action{Action: v1.ActionWait, Duration: 2}, "Waiting 2s"},
		{v1.Action{Action: v1.ActionWait, Duration: 0.5}, "Waiting 0.5s"},
		{v1.Action{Action: v1.ActionLeftClickDrag, StartCoordinate: &v1.Point{X: 1, Y: 2}, Coordinate: at}, "Dragging from (1, 2) to (10, 20)"},
		{v1.Action{Action: v1.ActionLeftClick}, "Clicking at (?, ?)"},
		{v1.Action{Action: v1.ActionLeftMouseDown}, "Action: left_mouse_down"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeAction(tt.action))
		})
	}
}

func TestDescribeEditorCommand(t *testing.T) {
	assert.Equal(t, "Viewing /etc/hosts (lines 1-10)",
		DescribeEditorCommand(texteditor.Instruction{Command: "view", Path: "/etc/hosts", ViewRange: []int{1, 10}}))
	assert.Equal(t, "Inserting at line 3 in /tmp/a", DescribeEditorCommand(texteditor.Instruction{Command: "insert", Path: "/tmp/a", InsertLine: 3}))
}
