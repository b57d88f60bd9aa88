package websocket

// Actions carried in the envelope.
const (
	// Client -> server requests
	ActionHealthCheck = "health.check"
	ActionRunStop     = "run.stop"

	// Server -> client notifications
	ActionRunEvent  = "run.event"
	ActionRunStatus = "run.status"
)

// Error codes
const (
	ErrorCodeBadRequest    = "BAD_REQUEST"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeInternalError = "INTERNAL_ERROR"
	ErrorCodeConflict      = "CONFLICT"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
)
