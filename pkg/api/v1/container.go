package v1

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

// TunnelInfo holds the public URLs of a tunnelled container.
type TunnelInfo struct {
	APIURL string `json:"apiUrl"`
	VNCURL string `json:"vncUrl"`
}

// InfoResponse is returned by GET /api/info. Tunnel is null when no tunnel is up.
type InfoResponse struct {
	Name    string      `json:"name"`
	APIPort int         `json:"apiPort"`
	VNCPort int         `json:"vncPort"`
	Mode    string      `json:"mode"`
	Tunnel  *TunnelInfo `json:"tunnel"`
}

// BashRequest is the body of POST /api/bash.
type BashRequest struct {
	Command string `json:"command"`
}

// BashResponse carries either the command output or an error.
type BashResponse struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the body of non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
