package session

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"testing"

	"github.com/google/go-dap"

	"github.com/ctagard/debugger-bridge/internal/adapters"
	"github.com/ctagard/debugger-bridge/internal/dapclient"
	"github.com/ctagard/debugger-bridge/internal/transport"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

// fakeServer is a minimal scripted DAP adapter driving the other end of a
// net.Pipe(): it answers every request with a success response as soon as
// it arrives, enough to drive Session.Run through its full orchestration
// without spawning a real adapter process.
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

func (f *fakeServer) send(msg dap.Message) {
	_ = f.t.Send(msg)
}

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
			f.send(&dap.InitializeResponse{
				Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command},
				Body:     dap.Capabilities{SupportsConfigurationDoneRequest: true},
			})
			f.send(&dap.InitializedEvent{Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "event"}, Event: "initialized"}})
		case *dap.LaunchRequest:
			f.send(&dap.LaunchResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		case *dap.SetBreakpointsRequest:
			bps := make([]dap.Breakpoint, len(m.Arguments.Breakpoints))
			for i, b := range m.Arguments.Breakpoints {
				bps[i] = dap.Breakpoint{Id: i + 1, Verified: true, Line: b.Line}
			}
			f.send(&dap.SetBreakpointsResponse{
				Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command},
				Body:     dap.SetBreakpointsResponseBody{Breakpoints: bps},
			})
		case *dap.ConfigurationDoneRequest:
			f.send(&dap.ConfigurationDoneResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		case *dap.ContinueRequest:
			f.send(&dap.ContinueResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		case *dap.NextRequest:
			f.send(&dap.NextResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		case *dap.StepInRequest:
			f.send(&dap.StepInResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		case *dap.StepOutRequest:
			f.send(&dap.StepOutResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		case *dap.PauseRequest:
			f.send(&dap.PauseResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		case *dap.StackTraceRequest:
			f.send(&dap.StackTraceResponse{
				Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command},
				Body: dap.StackTraceResponseBody{StackFrames: []dap.StackFrame{
					{Id: 1, Name: "main", Line: 10, Column: 1, Source: &dap.Source{Name: "main.py", Path: "/app/main.py"}},
				}},
			})
		case *dap.EvaluateRequest:
			f.send(&dap.EvaluateResponse{
				Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command},
				Body:     dap.EvaluateResponseBody{Result: "42", Type: "int"},
			})
		case *dap.DisconnectRequest:
			f.send(&dap.DisconnectResponse{Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "response"}, RequestSeq: base.Seq, Success: true, Command: base.Command}})
		}
	}
}

// sendStopped emits a "stopped" event, the trigger Session.WaitForStop
// waits on.
func (f *fakeServer) sendStopped(threadID int, reason string) {
	body, _ := json.Marshal(dap.StoppedEventBody{Reason: reason, ThreadId: threadID})
	f.send(&dap.StoppedEvent{Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: f.nextSeq(), Type: "event"}, Event: "stopped", Body: body}})
}

// fakeAdapter implements adapters.Adapter by wiring its Client to one end
// of a net.Pipe() whose other end a fakeServer drives.
type fakeAdapter struct {
	lang       types.Language
	spawnErr   error
	lastServer *fakeServer
}

func (a *fakeAdapter) Language() types.Language { return a.lang }

func (a *fakeAdapter) Spawn(ctx context.Context, req adapters.LaunchRequest) (*adapters.Spawned, error) {
	if a.spawnErr != nil {
		return nil, a.spawnErr
	}
	clientConn, serverConn := net.Pipe()
	server := newFakeServer(serverConn)
	a.lastServer = server
	go server.serve()

	client := dapclient.New(transport.NewSocket(clientConn))
	return &adapters.Spawned{
		Client:     client,
		AdapterID:  "fake-adapter",
		LaunchArgs: map[string]interface{}{"program": req.Program},
	}, nil
}

func newTestSession(t *testing.T, lang types.Language) (*Session, *fakeAdapter) {
	t.Helper()
	logger := log.New(discardWriter{}, "", 0)
	s := New(lang, "/app/main.py", nil, "/app", false, logger)
	a := &fakeAdapter{lang: lang}
	return s, a
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
