package toolserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compeek/compeek/internal/common/httpmw"
	"github.com/compeek/compeek/internal/common/logger"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

func doRequest(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := New(Config{Token: "secret"}, &stubExecutor{}, logger.NewNop())

	w := doRequest(t, s.Handler(), http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got v1.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.GreaterOrEqual(t, got.Uptime, 0.0)
}

func TestInfo(t *testing.T) {
	exec := &stubExecutor{info: &v1.InfoResponse{Name: "Desktop", APIPort: 3000, VNCPort: 6080, Mode: "full"}}
	s := New(Config{Token: "secret"}, exec, logger.NewNop())

	w := doRequest(t, s.Handler(), http.MethodGet, "/api/info", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"Desktop","apiPort":3000,"vncPort":6080,"mode":"full","tunnel":null}`, w.Body.String())

	exec.infoErr = errors.New("disk gone")
	w = doRequest(t, s.Handler(), http.MethodGet, "/api/info", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTool(t *testing.T) {
	exec := &stubExecutor{actionResult: v1.ActionResult{Base64: "iVBOR"}}
	s := New(Config{}, exec, logger.NewNop())

	w := doRequest(t, s.Handler(), http.MethodPost, "/api/tool", `{"action":"left_click","coordinate":[640.4,359.6]}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"base64":"iVBOR"}`, w.Body.String())
	require.Len(t, exec.Actions(), 1)
	assert.Equal(t, &v1.Point{X: 640, Y: 360}, exec.Actions()[0].Coordinate)

	exec.actionResult = v1.ActionResult{Error: "left_click requires coordinate"}
	w = doRequest(t, s.Handler(), http.MethodPost, "/api/tool", `{"action":"left_click"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"error":"left_click requires coordinate"}`, w.Body.String())

	w = doRequest(t, s.Handler(), http.MethodPost, "/api/tool", `{"action":`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid action")
}

func TestBash(t *testing.T) {
	exec := &stubExecutor{bashResult: v1.BashResponse{Output: "hello\n"}}
	s := New(Config{}, exec, logger.NewNop())

	w := doRequest(t, s.Handler(), http.MethodPost, "/api/bash", `{"command":"echo hello"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"output":"hello\n"}`, w.Body.String())
	assert.Equal(t, []string{"echo hello"}, exec.Commands())

	exec.bashResult = v1.BashResponse{}
	w = doRequest(t, s.Handler(), http.MethodPost, "/api/bash", `{"command":"true"}`, "")
	assert.JSONEq(t, `{"output":""}`, w.Body.String())

	exec.bashResult = v1.BashResponse{Error: "boom"}
	w = doRequest(t, s.Handler(), http.MethodPost, "/api/bash", `{"command":"false"}`, "")
	assert.JSONEq(t, `{"error":"boom"}`, w.Body.String())

	w = doRequest(t, s.Handler(), http.MethodPost, "/api/bash", `{"command":"  "}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuth(t *testing.T) {
	exec := &stubExecutor{bashResult: v1.BashResponse{Output: "ok"}}
	s := New(Config{Token: "secret"}, exec, logger.NewNop())

	for _, path := range []string{"/api/tool", "/api/bash", "/mcp"} {
		w := doRequest(t, s.Handler(), http.MethodPost, path, `{"command":"x","action":"screenshot"}`, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.JSONEq(t, `{"error":"`+httpmw.UnauthorizedMessage+`"}`, w.Body.String(), path)

		w = doRequest(t, s.Handler(), http.MethodPost, path, `{"command":"x","action":"screenshot"}`, "wrong")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	assert.Empty(t, exec.Commands())
	assert.Empty(t, exec.Actions())

	w := doRequest(t, s.Handler(), http.MethodPost, "/api/bash", `{"command":"x"}`, "secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNoTokenMeansNoAuth(t *testing.T) {
	exec := &stubExecutor{}
	s := New(Config{}, exec, logger.NewNop())

	w := doRequest(t, s.Handler(), http.MethodPost, "/api/tool", `{"action":"screenshot"}`, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := New(Config{Token: "secret"}, &stubExecutor{}, logger.NewNop())
	w := doRequest(t, s.Handler(), http.MethodOptions, "/api/tool", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
