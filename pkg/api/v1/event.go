package v1

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType tags the payload of an Event.
type EventType string

const (
	EventScreenshot EventType = "screenshot"
	EventAction     EventType = "action"
	EventThinking   EventType = "thinking"
	EventStatus     EventType = "status"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
)

// TerminalReason says why a run ended.
type TerminalReason string

const (
	ReasonCompleted     TerminalReason = "completed"
	ReasonMaxIterations TerminalReason = "max_iterations"
	ReasonStopped       TerminalReason = "stopped"
	ReasonLLMError      TerminalReason = "llm_error"
)

// Event is one entry of a run's ordered event log.
// Timestamp is wall-clock milliseconds since the Unix epoch.
type Event struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id,omitempty"`
	Seq       int             `json:"seq"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates an event with a fresh ID, stamped now.
func NewEvent(eventType EventType, data interface{}) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// IsTerminal reports whether the event ends a run.
func (e *Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

type ScreenshotData struct {
	Base64 string `json:"base64"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ActionData struct {
	Action      string                 `json:"action"`
	Params      map[string]interface{} `json:"params"`
	Description string                 `json:"description"`
}

type ThinkingData struct {
	Content string `json:"content"`
}

type StatusData struct {
	Message    string      `json:"message"`
	Step       int         `json:"step"`
	TotalSteps int         `json:"totalSteps,omitempty"`
	Usage      *TokenUsage `json:"usage,omitempty"`
}

type CompleteData struct {
	Message      string         `json:"message"`
	Success      bool           `json:"success"`
	TotalActions int            `json:"totalActions"`
	Reason       TerminalReason `json:"reason"`
	Usage        *TokenUsage    `json:"usage,omitempty"`
}

type ErrorData struct {
	Message      string         `json:"message"`
	Recoverable  bool           `json:"recoverable"`
	TotalActions int            `json:"totalActions"`
	Reason       TerminalReason `json:"reason,omitempty"`
	Usage        *TokenUsage    `json:"usage,omitempty"`
}

// TokenUsage is the running LLM token total of a run.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}
