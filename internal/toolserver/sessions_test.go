package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compeek/compeek/internal/common/logger"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0.0"}}}`

func mcpPost(t *testing.T, url, sessionID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// readRPC decodes a JSON-RPC response that may be framed as JSON or as a
// single SSE event.
func readRPC(t *testing.T, resp *http.Response) rpcResponse {
	t.Helper()
	var raw []byte
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 1<<20), 1<<20)
		for sc.Scan() {
			if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				raw = []byte(data)
				break
			}
		}
	} else {
		var err error
		raw, err = io.ReadAll(resp.Body)
		require.NoError(t, err)
	}
	var out rpcResponse
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func openSession(t *testing.T, url string) string {
	t.Helper()
	resp := mcpPost(t, url, "", initializeBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, id)
	_ = readRPC(t, resp)

	notify := mcpPost(t, url, id, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	require.Less(t, notify.StatusCode, 300)
	return id
}

func TestSessions_Lifecycle(t *testing.T) {
	exec := &stubExecutor{bashResult: v1.BashResponse{Output: "pong"}}
	s := New(Config{}, exec, logger.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	a := openSession(t, srv.URL)
	b := openSession(t, srv.URL)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, s.sessions.Len())

	resp := mcpPost(t, srv.URL, a, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"bash","arguments":{"command":"ping"}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := readRPC(t, resp)
	require.Nil(t, out.Error)
	var res toolResult
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.Equal(t, "pong", res.Content[0].Text)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/mcp", nil)
	req.Header.Set(SessionHeader, a)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = del.Body.Close()
	assert.Equal(t, 1, s.sessions.Len())

	gone := mcpPost(t, srv.URL, a, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestSessions_UnknownAndMissingID(t *testing.T) {
	s := New(Config{}, &stubExecutor{}, logger.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp := mcpPost(t, srv.URL, "mcp-session-does-not-exist", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/mcp", nil)
	get, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = get.Body.Close()
	assert.Equal(t, http.StatusBadRequest, get.StatusCode)
	assert.Equal(t, 0, s.sessions.Len())
}

func TestSessions_Limit(t *testing.T) {
	s := New(Config{MaxSessions: 1}, &stubExecutor{}, logger.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	openSession(t, srv.URL)
	resp := mcpPost(t, srv.URL, "", initializeBody)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSessions_Sweep(t *testing.T) {
	s := New(Config{}, &stubExecutor{}, logger.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	openSession(t, srv.URL)
	busy := openSession(t, srv.URL)
	s.sessions.get(busy).inflight.Add(1)

	assert.Equal(t, 0, s.sessions.sweep(time.Now(), time.Hour))
	assert.Equal(t, 1, s.sessions.sweep(time.Now().Add(2*time.Hour), time.Hour))
	assert.Equal(t, 1, s.sessions.Len())

	s.sessions.get(busy).inflight.Add(-1)
	s.sessions.closeAll()
	assert.Equal(t, 0, s.sessions.Len())
}

type panickingTransport struct{ shutdowns int }

func (p *panickingTransport) ServeHTTP(http.ResponseWriter, *http.Request) { panic("transport blew up") }

func (p *panickingTransport) Shutdown(context.Context) error {
	p.shutdowns++
	return nil
}

func TestSessions_PanicReleasesInflight(t *testing.T) {
	reg := newSessionRegistry(nil, 4, logger.NewNop())
	transport := &panickingTransport{}
	sess := &mcpSession{id: "sess-1", transport: transport}
	reg.register(sess)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
	req.Header.Set(SessionHeader, "sess-1")
	assert.Panics(t, func() { reg.ServeHTTP(httptest.NewRecorder(), req) })

	assert.Equal(t, int32(0), sess.inflight.Load())
	assert.Equal(t, 1, reg.sweep(time.Now().Add(time.Hour), time.Minute))
	assert.Equal(t, 1, transport.shutdowns)
}
