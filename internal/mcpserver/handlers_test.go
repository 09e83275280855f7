package mcpserver

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/debugger-bridge/internal/adapters"
	"github.com/ctagard/debugger-bridge/internal/config"
	"github.com/ctagard/debugger-bridge/internal/dapclient"
	"github.com/ctagard/debugger-bridge/internal/registry"
	"github.com/ctagard/debugger-bridge/internal/transport"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

// fakeServer scripts a DAP adapter over one end of a net.Pipe(), answering
// every request with success immediately — the same harness shape used in
// internal/session's tests, reproduced here since unexported test helpers
// don't cross package boundaries.
type fakeServer struct {
	t   *transport.Transport
	seq int
}

func newFakeServer(conn net.Conn) *fakeServer {
	return &fakeServer{t: transport.NewSocket(conn)}
}

func (f *fakeServer) nextSeq() int {
	f.seq++
	return f.seq
}

func (f *fakeServer) send(msg dap.Message) { _ = f.t.Send(msg) }

func (f *fakeServer) serve() {
	done := make(chan struct{})
	for {
		msg, err := f.t.Receive(done)
		if err != nil {
			return
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			continue
		}
		base := req.GetRequest()
		switch m := msg.(type) {
		case *dap.InitializeRequest:
			f.send(&dap.InitializeResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
			f.send(&dap.InitializedEvent{Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "event"}, Event: "initialized"}})
		case *dap.LaunchRequest:
			f.send(&dap.LaunchResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		case *dap.SetBreakpointsRequest:
			bps := make([]dap.Breakpoint, len(m.Arguments.Breakpoints))
			for i, b := range m.Arguments.Breakpoints {
				bps[i] = dap.Breakpoint{Id: i + 1, Verified: true, Line: b.Line}
			}
			f.send(&dap.SetBreakpointsResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}, Body: dap.SetBreakpointsResponseBody{Breakpoints: bps}})
		case *dap.ConfigurationDoneRequest:
			f.send(&dap.ConfigurationDoneResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		case *dap.ContinueRequest:
			f.send(&dap.ContinueResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		case *dap.StackTraceRequest:
			f.send(&dap.StackTraceResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}, Body: dap.StackTraceResponseBody{StackFrames: []dap.StackFrame{{Id: 1, Name: "main", Line: 7}}}})
		case *dap.EvaluateRequest:
			f.send(&dap.EvaluateResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}, Body: dap.EvaluateResponseBody{Result: "42", Type: "int"}})
		case *dap.DisconnectRequest:
			f.send(&dap.DisconnectResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		}
	}
}

func (f *fakeServer) sendStopped(threadID int, reason string) {
	body, _ := json.Marshal(dap.StoppedEventBody{Reason: reason, ThreadId: threadID})
	f.send(&dap.StoppedEvent{Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "event"}, Event: "stopped", Body: body}})
}

type fakeAdapter struct {
	lang       types.Language
	lastServer *fakeServer
}

func (a *fakeAdapter) Language() types.Language { return a.lang }

func (a *fakeAdapter) Spawn(ctx context.Context, req adapters.LaunchRequest) (*adapters.Spawned, error) {
	clientConn, serverConn := net.Pipe()
	srv := newFakeServer(serverConn)
	a.lastServer = srv
	go srv.serve()
	return &adapters.Spawned{
		Client:     dapclient.New(transport.NewSocket(clientConn)),
		AdapterID:  "fake",
		LaunchArgs: map[string]interface{}{"program": req.Program},
	}, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// testServer builds a Server wired to a fake Python adapter, bypassing
// NewServer's real adapter registry so sessions run against the in-process
// fakeServer instead of spawning anything.
func testServer(t *testing.T) (*Server, *fakeAdapter) {
	t.Helper()
	cfg := config.DefaultConfig()
	logger := log.New(discardWriter{}, "", 0)
	fa := &fakeAdapter{lang: types.LanguagePython}
	adapterReg := adapters.NewRegistryFromMap(map[types.Language]adapters.Adapter{
		types.LanguagePython: fa,
	})
	reg := registry.New(adapterReg, cfg.MaxSessions, cfg.SessionTimeout, logger)
	t.Cleanup(reg.Shutdown)

	s := &Server{
		mcpServer: server.NewMCPServer("debugger-bridge-test", "0.0.0"),
		registry:  reg,
		adapters:  adapterReg,
		config:    cfg,
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s, fa
}

func callToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func startSession(t *testing.T, s *Server) (string, *fakeAdapter) {
	t.Helper()
	result, err := s.handleDebuggerStart(context.Background(), callToolRequest("debugger_start", map[string]any{
		"language": "python",
		"program":  "/app/main.py",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &body))
	sessionID := body["sessionId"].(string)

	sess, err := s.getSession(sessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.State().Kind == types.StateRunning }, 2*time.Second, 10*time.Millisecond)

	fa, err := s.adapters.Get(types.LanguagePython)
	require.NoError(t, err)
	return sessionID, fa.(*fakeAdapter)
}

func TestHandleDebuggerStartRejectsUnknownLanguage(t *testing.T) {
	s, _ := testServer(t)
	result, err := s.handleDebuggerStart(context.Background(), callToolRequest("debugger_start", map[string]any{
		"language": "cobol",
		"program":  "/app/x",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleDebuggerStartRejectsMalformedArgs(t *testing.T) {
	s, _ := testServer(t)
	result, err := s.handleDebuggerStart(context.Background(), callToolRequest("debugger_start", map[string]any{
		"language": "python",
		"program":  "/app/x",
		"args":     "not-json",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleDebuggerStartAndSessionState(t *testing.T) {
	s, _ := testServer(t)
	sessionID, _ := startSession(t, s)

	result, err := s.handleDebuggerSessionState(context.Background(), callToolRequest("debugger_session_state", map[string]any{"sessionId": sessionID}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &body))
	assert.Equal(t, "Running", body["state"])
}

func TestHandleDebuggerSessionStateUnknownSession(t *testing.T) {
	s, _ := testServer(t)
	result, err := s.handleDebuggerSessionState(context.Background(), callToolRequest("debugger_session_state", map[string]any{"sessionId": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleDebuggerSetAndListBreakpoints(t *testing.T) {
	s, _ := testServer(t)
	sessionID, _ := startSession(t, s)

	result, err := s.handleDebuggerSetBreakpoint(context.Background(), callToolRequest("debugger_set_breakpoint", map[string]any{
		"sessionId":  sessionID,
		"sourcePath": "/app/main.py",
		"line":       float64(12),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	result, err = s.handleDebuggerListBreakpoints(context.Background(), callToolRequest("debugger_list_breakpoints", map[string]any{"sessionId": sessionID}))
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &body))
	bps := body["breakpoints"].([]interface{})
	require.Len(t, bps, 1)
}

func TestHandleDebuggerContinueRequiresStopped(t *testing.T) {
	s, _ := testServer(t)
	sessionID, _ := startSession(t, s)

	result, err := s.handleDebuggerContinue(context.Background(), callToolRequest("debugger_continue", map[string]any{"sessionId": sessionID}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleDebuggerStackTraceAndEvaluate(t *testing.T) {
	s, _ := testServer(t)
	sessionID, fa := startSession(t, s)

	fa.lastServer.sendStopped(1, "breakpoint")
	sess, err := s.getSession(sessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.State().Kind == types.StateStopped }, 2*time.Second, 10*time.Millisecond)

	result, err := s.handleDebuggerStackTrace(context.Background(), callToolRequest("debugger_stack_trace", map[string]any{"sessionId": sessionID}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	result, err = s.handleDebuggerEvaluate(context.Background(), callToolRequest("debugger_evaluate", map[string]any{
		"sessionId":  sessionID,
		"expression": "x + 1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &body))
	assert.Equal(t, "42", body["result"])
}

func TestHandleDebuggerDisconnectRemovesSession(t *testing.T) {
	s, _ := testServer(t)
	sessionID, _ := startSession(t, s)

	result, err := s.handleDebuggerDisconnect(context.Background(), callToolRequest("debugger_disconnect", map[string]any{"sessionId": sessionID}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	_, err = s.getSession(sessionID)
	assert.Error(t, err)
}

func TestThreadIDArgDefaultsToZero(t *testing.T) {
	req := callToolRequest("x", map[string]any{})
	assert.Equal(t, 0, threadIDArg(req))
}

func TestThreadIDArgParsesFloat(t *testing.T) {
	req := callToolRequest("x", map[string]any{"threadId": float64(5)})
	assert.Equal(t, 5, threadIDArg(req))
}
