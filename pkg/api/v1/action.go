package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ActionType names one desktop action.
type ActionType string

const (
	ActionScreenshot    ActionType = "screenshot"
	ActionLeftClick     ActionType = "left_click"
	ActionRightClick    ActionType = "right_click"
	ActionDoubleClick   ActionType = "double_click"
	ActionTripleClick   ActionType = "triple_click"
	ActionMiddleClick   ActionType = "middle_click"
	ActionTypeText      ActionType = "type"
	ActionKey           ActionType = "key"
	ActionScroll        ActionType = "scroll"
	ActionMouseMove     ActionType = "mouse_move"
	ActionLeftClickDrag ActionType = "left_click_drag"
	ActionLeftMouseDown ActionType = "left_mouse_down"
	ActionLeftMouseUp   ActionType = "left_mouse_up"
	ActionHoldKey       ActionType = "hold_key"
	ActionWait          ActionType = "wait"
	ActionZoom          ActionType = "zoom"
)

// AllActions lists every supported action in declaration order.
var AllActions = []ActionType{
	ActionScreenshot, ActionLeftClick, ActionRightClick, ActionDoubleClick,
	ActionTripleClick, ActionMiddleClick, ActionTypeText, ActionKey, ActionScroll,
	ActionMouseMove, ActionLeftClickDrag, ActionLeftMouseDown, ActionLeftMouseUp,
	ActionHoldKey, ActionWait, ActionZoom,
}

// ScrollDirection is the wheel direction of a scroll action.
type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollLeft  ScrollDirection = "left"
	ScrollRight ScrollDirection = "right"
)

// DefaultScrollAmount is used when a scroll action carries no amount.
const DefaultScrollAmount = 5

// ErrUnknownAction is returned for action names outside the vocabulary.
var ErrUnknownAction = errors.New("unknown action")

// Point is an (x, y) screen coordinate, encoded as a two element JSON array.
type Point struct {
	X int
	Y int
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

// UnmarshalJSON accepts integer or fractional numbers and rounds them.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("coordinate must be an [x, y] array: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("coordinate must have 2 elements, got %d", len(raw))
	}
	p.X = int(math.Round(raw[0]))
	p.Y = int(math.Round(raw[1]))
	return nil
}

// Region is a rectangle (x1, y1)-(x2, y2), encoded as a four element JSON array.
type Region struct {
	X1, Y1, X2, Y2 int
}

func (r Region) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X1, r.Y1, r.X2, r.Y2})
}

func (r *Region) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("region must be an [x1, y1, x2, y2] array: %w", err)
	}
	if len(raw) != 4 {
		return fmt.Errorf("region must have 4 elements, got %d", len(raw))
	}
	r.X1 = int(math.Round(raw[0]))
	r.Y1 = int(math.Round(raw[1]))
	r.X2 = int(math.Round(raw[2]))
	r.Y2 = int(math.Round(raw[3]))
	return nil
}

// Width returns the horizontal extent of the region.
func (r Region) Width() int { return r.X2 - r.X1 }

// Height returns the vertical extent of the region.
func (r Region) Height() int { return r.Y2 - r.Y1 }

// Action is one desktop action. Which fields are meaningful depends on Action.
// Coordinates are in the logical display resolution the agent was given.
type Action struct {
	Action          ActionType      `json:"action"`
	Coordinate      *Point          `json:"coordinate,omitempty"`
	StartCoordinate *Point          `json:"start_coordinate,omitempty"`
	Text            string          `json:"text,omitempty"`
	ScrollDirection ScrollDirection `json:"scroll_direction,omitempty"`
	ScrollAmount    int             `json:"scroll_amount,omitempty"`
	Duration        float64         `json:"duration,omitempty"`
	Region          *Region         `json:"region,omitempty"`
}

// ScrollClicks returns the number of wheel clicks a scroll action issues.
func (a Action) ScrollClicks() int {
	if a.ScrollAmount <= 0 {
		return DefaultScrollAmount
	}
	return a.ScrollAmount
}

// Validate checks that the action is known and carries the parameters it needs.
func (a Action) Validate() error {
	switch a.Action {
	case ActionScreenshot:
		return nil
	case ActionLeftClick, ActionRightClick, ActionDoubleClick, ActionTripleClick,
		ActionMiddleClick, ActionMouseMove:
		if a.Coordinate == nil {
			return fmt.Errorf("%s requires coordinate", a.Action)
		}
		return checkPoint(a.Action, "coordinate", *a.Coordinate)
	case ActionLeftMouseDown, ActionLeftMouseUp:
		if a.Coordinate != nil {
			return checkPoint(a.Action, "coordinate", *a.Coordinate)
		}
		return nil
	case ActionLeftClickDrag:
		if a.StartCoordinate == nil || a.Coordinate == nil {
			return fmt.Errorf("%s requires start_coordinate and coordinate", a.Action)
		}
		if err := checkPoint(a.Action, "start_coordinate", *a.StartCoordinate); err != nil {
			return err
		}
		return checkPoint(a.Action, "coordinate", *a.Coordinate)
	case ActionTypeText, ActionKey:
		if a.Text == "" {
			return fmt.Errorf("%s requires text", a.Action)
		}
		return nil
	case ActionHoldKey:
		if a.Text == "" {
			return fmt.Errorf("%s requires text", a.Action)
		}
		return checkDuration(a)
	case ActionWait:
		return checkDuration(a)
	case ActionScroll:
		if a.Coordinate == nil {
			return fmt.Errorf("%s requires coordinate", a.Action)
		}
		switch a.ScrollDirection {
		case ScrollUp, ScrollDown, ScrollLeft, ScrollRight:
		default:
			return fmt.Errorf("scroll_direction must be one of up, down, left, right, got %q", a.ScrollDirection)
		}
		if a.ScrollAmount < 0 {
			return fmt.Errorf("scroll_amount must be positive, got %d", a.ScrollAmount)
		}
		return checkPoint(a.Action, "coordinate", *a.Coordinate)
	case ActionZoom:
		if a.Region == nil {
			return fmt.Errorf("%s requires region", a.Action)
		}
		r := *a.Region
		if r.X1 < 0 || r.Y1 < 0 || r.Width() <= 0 || r.Height() <= 0 {
			return fmt.Errorf("region [%d, %d, %d, %d] is empty or negative", r.X1, r.Y1, r.X2, r.Y2)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, a.Action)
	}
}

func checkPoint(action ActionType, field string, p Point) error {
	if p.X < 0 || p.Y < 0 {
		return fmt.Errorf("%s %s must be non-negative, got [%d, %d]", action, field, p.X, p.Y)
	}
	return nil
}

func checkDuration(a Action) error {
	if a.Duration < 0 || math.IsNaN(a.Duration) {
		return fmt.Errorf("%s duration must be non-negative", a.Action)
	}
	return nil
}

// ActionResult is the outcome of one action: an image, an error, or neither.
type ActionResult struct {
	Base64 string `json:"base64,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the action succeeded.
func (r ActionResult) OK() bool { return r.Error == "" }

// IsImage reports whether the result carries PNG image data.
func (r ActionResult) IsImage() bool { return r.Error == "" && r.Base64 != "" }
