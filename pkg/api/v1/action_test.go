package v1

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_UnmarshalCoordinates(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"action":"left_click","coordinate":[640.4,359.6]}`), &a)
	require.NoError(t, err)
	require.NotNil(t, a.Coordinate)
	assert.Equal(t, Point{X: 640, Y: 360}, *a.Coordinate)

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"left_click","coordinate":[640,360]}`, string(out))
}

func TestAction_UnmarshalRejectsBadShapes(t *testing.T) {
	var a Action
	assert.Error(t, json.Unmarshal([]byte(`{"action":"left_click","coordinate":[1]}`), &a))
	assert.Error(t, json.Unmarshal([]byte(`{"action":"zoom","region":[1,2,3]}`), &a))
	assert.Error(t, json.Unmarshal([]byte(`{"action":"zoom","region":"all"}`), &a))
}

func TestAction_Validate(t *testing.T) {
	pt := &Point{X: 10, Y: 20}
	tests := []struct {
		name    string
		action  Action
		wantErr string
	}{
		{"screenshot", Action{Action: ActionScreenshot}, ""},
		{"click ok", Action{Action: ActionLeftClick, Coordinate: pt}, ""},
		{"click without coordinate", Action{Action: ActionLeftClick}, "left_click requires coordinate"},
		{"negative coordinate", Action{Action: ActionMouseMove, Coordinate: &Point{X: -1, Y: 0}}, "non-negative"},
		{"mouse down without coordinate", Action{Action: ActionLeftMouseDown}, ""},
		{"drag without start", Action{Action: ActionLeftClickDrag, Coordinate: pt}, "start_coordinate"},
		{"drag ok", Action{Action: ActionLeftClickDrag, Coordinate: pt, StartCoordinate: pt}, ""},
		{"type without text", Action{Action: ActionTypeText}, "type requires text"},
		{"key ok", Action{Action: ActionKey, Text: "ctrl+s"}, ""},
		{"hold key negative", Action{Action: ActionHoldKey, Text: "shift", Duration: -1}, "duration"},
		{"wait ok", Action{Action: ActionWait, Duration: 0.5}, ""},
		{"scroll bad direction", Action{Action: ActionScroll, Coordinate: pt, ScrollDirection: "sideways"}, "scroll_direction"},
		{"scroll negative amount", Action{Action: ActionScroll, Coordinate: pt, ScrollDirection: ScrollDown, ScrollAmount: -2}, "scroll_amount"},
		{"scroll ok", Action{Action: ActionScroll, Coordinate: pt, ScrollDirection: ScrollDown, ScrollAmount: 3}, ""},
		{"zoom without region", Action{Action: ActionZoom}, "requires region"},
		{"zoom empty region", Action{Action: ActionZoom, Region: &Region{X1: 5, Y1: 5, X2: 5, Y2: 10}}, "empty"},
		{"zoom ok", Action{Action: ActionZoom, Region: &Region{X1: 0, Y1: 0, X2: 100, Y2: 50}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAction_ValidateUnknown(t *testing.T) {
	err := Action{Action: "teleport"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAction))
	assert.Contains(t, err.Error(), "teleport")
}

func TestAction_ScrollClicksDefault(t *testing.T) {
	assert.Equal(t, DefaultScrollAmount, Action{Action: ActionScroll}.ScrollClicks())
	assert.Equal(t, 3, Action{Action: ActionScroll, ScrollAmount: 3}.ScrollClicks())
}

func TestInfoResponse_NullTunnel(t *testing.T) {
	out, err := json.Marshal(InfoResponse{Name: "Desktop", APIPort: 3000, VNCPort: 6080, Mode: "full"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Desktop","apiPort":3000,"vncPort":6080,"mode":"full","tunnel":null}`, string(out))
}

func TestEvent_RoundTripPayload(t *testing.T) {
	ev, err := NewEvent(EventStatus, StatusData{Message: "Iteration 1/50", Step: 1, TotalSteps: 50})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.NotZero(t, ev.Timestamp)
	assert.False(t, ev.IsTerminal())

	var data StatusData
	require.NoError(t, ev.Decode(&data))
	assert.Equal(t, 50, data.TotalSteps)

	done, err := NewEvent(EventComplete, CompleteData{Success: true})
	require.NoError(t, err)
	assert.True(t, done.IsTerminal())
}
