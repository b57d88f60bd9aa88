package agent

import (
	"fmt"
	"strconv"

	"github.com/compeek/compeek/internal/common/stringutil"
	"github.com/compeek/compeek/internal/texteditor"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// DescribeAction returns the human-readable line shown for a computer action.
func DescribeAction(a v1.Action) string {
	switch a.Action {
	case v1.ActionScreenshot:
		return "Taking screenshot"
	case v1.ActionLeftClick:
		return "Clicking at " + point(a.Coordinate)
	case v1.ActionRightClick:
		return "Right-clicking at " + point(a.Coordinate)
	case v1.ActionMiddleClick:
		return "Middle-clicking at " + point(a.Coordinate)
	case v1.ActionDoubleClick:
		return "Double-clicking at " + point(a.Coordinate)
	case v1.ActionTripleClick:
		return "Triple-clicking at " + point(a.Coordinate)
	case v1.ActionTypeText:
		return `Typing: "` + stringutil.TruncateEllipsis(a.Text, 50) + `"`
	case v1.ActionKey:
		return "Pressing key: " + a.Text
	case v1.ActionHoldKey:
		return fmt.Sprintf("Holding key: %s for %ss", a.Text, seconds(a.Duration))
	case v1.ActionScroll:
		return fmt.Sprintf("Scrolling %s by %d", a.ScrollDirection, a.ScrollClicks())
	case v1.ActionMouseMove:
		return "Moving mouse to " + point(a.Coordinate)
	case v1.ActionLeftClickDrag:
		return fmt.Sprintf("Dragging from %s to %s", point(a.StartCoordinate), point(a.Coordinate))
	case v1.ActionZoom:
		if a.Region == nil {
			return "Zooming"
		}
		r := a.Region
		return fmt.Sprintf("Zooming into region [%d, %d, %d, %d]", r.X1, r.Y1, r.X2, r.Y2)
	case v1.ActionWait:
		return "Waiting " + seconds(a.Duration) + "s"
	}
	return "Action: " + string(a.Action)
}

// DescribeEditorCommand returns the line shown for a text editor call.
func DescribeEditorCommand(in texteditor.Instruction) string {
	return texteditor.Describe(in)
}

func describeBash(command string) string {
	return `Running: "` + stringutil.TruncateEllipsis(command, 50) + `"`
}

func point(p *v1.Point) string {
	if p == nil {
		return "(?, ?)"
	}
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

func seconds(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}
