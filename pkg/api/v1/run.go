package v1

import "time"

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusStopped   RunStatus = "stopped"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusStopped
}

// OSType selects the prompt and tool set offered to the model.
type OSType string

const (
	OSLinux   OSType = "linux"
	OSWindows OSType = "windows"
	OSMacOS   OSType = "macos"
)

// StartRunRequest is the body of POST /api/runs.
type StartRunRequest struct {
	Goal             string                 `json:"goal" yaml:"goal"`
	Model            string                 `json:"model,omitempty" yaml:"model"`
	ContainerURL     string                 `json:"container_url" yaml:"container_url"`
	APIToken         string                 `json:"api_token,omitempty" yaml:"api_token"`
	Context          map[string]interface{} `json:"context,omitempty" yaml:"context"`
	DocumentBase64   string                 `json:"document_base64,omitempty" yaml:"-"`
	DocumentMimeType string                 `json:"document_mime_type,omitempty" yaml:"document_mime_type"`
	DocumentPath     string                 `json:"-" yaml:"document"`
	MaxIterations    int                    `json:"max_iterations,omitempty" yaml:"max_iterations"`
	OSType           OSType                 `json:"os_type,omitempty" yaml:"os_type"`
}

// Run is the persisted summary of a workflow run.
type Run struct {
	ID           string     `json:"id" db:"id"`
	Goal         string     `json:"goal" db:"goal"`
	Model        string     `json:"model" db:"model"`
	ContainerURL string     `json:"container_url" db:"container_url"`
	Status       RunStatus  `json:"status" db:"status"`
	ActionCount  int        `json:"action_count" db:"action_count"`
	Message      string     `json:"message" db:"message"`
	InputTokens  int        `json:"input_tokens" db:"input_tokens"`
	OutputTokens int        `json:"output_tokens" db:"output_tokens"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// ExtractRequest is the body of POST /api/extract.
type ExtractRequest struct {
	DocumentBase64   string `json:"document_base64" binding:"required"`
	DocumentMimeType string `json:"document_mime_type,omitempty"`
}

// RunListResponse is the body of GET /api/runs.
type RunListResponse struct {
	Runs  []*Run `json:"runs"`
	Total int    `json:"total"`
}

// RunEventsResponse is the body of GET /api/runs/:id/events.
type RunEventsResponse struct {
	Events []*Event `json:"events"`
}
