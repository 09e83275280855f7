// Package dapclient implements the DAP client core: sequence allocation,
// request/response correlation, event fanout to per-event-name
// subscribers, and a single reverse-request callback for adapter-initiated
// requests such as "startDebugging".
//
// The reader side of the shared transport never blocks the writer: the
// transport's own pump goroutine (see internal/transport) performs the
// blocking frame read, and this client's readLoop only drains the result
// channel, polling in 50ms ticks so it can observe shutdown promptly.
// Holding a lock across an unbounded read is the one invariant this
// package must never violate.
package dapclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/ctagard/debugger-bridge/internal/apperrors"
	"github.com/ctagard/debugger-bridge/internal/transport"
)

// Default request deadlines per spec §5.
const (
	InitializeTimeout     = 2 * time.Second
	DisconnectTimeout     = 2 * time.Second
	LaunchTimeout         = 5 * time.Second
	DefaultRequestTimeout = 5 * time.Second
)

// ReverseRequestHandler handles an adapter-initiated request (currently
// only "startDebugging" is exercised). It returns the response body to
// send back, or an error to fail the reverse request.
type ReverseRequestHandler func(command string, arguments json.RawMessage) (body interface{}, err error)

// Client is the high-level DAP client for a single transport connection.
type Client struct {
	t *transport.Transport

	mu      sync.Mutex
	pending map[int]chan dap.Message

	eventMu  sync.Mutex
	handlers map[string][]func(dap.EventMessage)

	reverseMu sync.Mutex
	reverse   ReverseRequestHandler

	capMu        sync.Mutex
	capabilities dap.Capabilities

	initialized     chan struct{}
	initializedOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wraps a transport in a DAP client and starts its read loop.
func New(t *transport.Transport) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		t:           t,
		pending:     make(map[int]chan dap.Message),
		handlers:    make(map[string][]func(dap.EventMessage)),
		initialized: make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	c.wg.Add(1)
	go c.readLoop()
	return c
}

// OnEvent registers a subscriber for a named DAP event ("stopped",
// "continued", "terminated", "exited", "thread", "output", ...). Multiple
// subscribers may register for the same event name.
func (c *Client) OnEvent(name string, handler func(dap.EventMessage)) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	c.handlers[name] = append(c.handlers[name], handler)
}

// SetReverseRequestHandler installs the single callback invoked when the
// adapter sends a request instead of a response or event.
func (c *Client) SetReverseRequestHandler(h ReverseRequestHandler) {
	c.reverseMu.Lock()
	defer c.reverseMu.Unlock()
	c.reverse = h
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		msg, err := c.t.Receive(c.ctx.Done())
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			// Transport EOF/error: fail every pending waiter so no slot
			// leaks, then stop. No event or callback reports the closed
			// stream to the session layer; a session moves to Failed only
			// where one of its own in-flight requests returns this error.
			c.failAllPending(apperrors.Transport(err))
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int]chan dap.Message)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- &dap.ErrorResponse{
			Response: dap.Response{Success: false, Message: err.Error()},
		}
	}
}

func (c *Client) dispatch(msg dap.Message) {
	switch m := msg.(type) {
	case dap.ResponseMessage:
		resp := m.GetResponse()
		c.mu.Lock()
		ch, ok := c.pending[resp.RequestSeq]
		if ok {
			delete(c.pending, resp.RequestSeq)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
		return

	case dap.EventMessage:
		ev := m.GetEvent()
		if ev.Event == "initialized" {
			c.initializedOnce.Do(func() { close(c.initialized) })
		}
		c.eventMu.Lock()
		subs := append([]func(dap.EventMessage){}, c.handlers[ev.Event]...)
		c.eventMu.Unlock()
		for _, h := range subs {
			h(m)
		}
		return

	case dap.RequestMessage:
		c.handleReverseRequest(m)
		return
	}
}

// handleReverseRequest implements the startDebugging reverse-request
// contract: invoke the registered callback, then answer with a response
// stamped with the adapter's original sequence number. The response is a
// success when the callback returns no error, and a failure carrying the
// error message otherwise (including when no callback is registered), so
// the adapter's own request loop isn't left hanging either way.
func (c *Client) handleReverseRequest(m dap.RequestMessage) {
	req := m.GetRequest()

	c.reverseMu.Lock()
	handler := c.reverse
	c.reverseMu.Unlock()

	var body interface{}
	var herr error
	if handler != nil {
		var args json.RawMessage
		if sd, ok := m.(*dap.StartDebuggingRequest); ok {
			raw, _ := json.Marshal(sd.Arguments)
			args = raw
		}
		body, herr = handler(req.Command, args)
	} else {
		herr = fmt.Errorf("no reverse-request handler registered for %q", req.Command)
	}

	resp := &dap.StartDebuggingResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Seq: c.t.NextSeq(), Type: "response"},
			RequestSeq:      req.Seq,
			Success:         herr == nil,
			Command:         req.Command,
		},
	}
	if herr != nil {
		resp.Message = herr.Error()
	}
	_ = body // the body, if any, is adapter-specific and currently unused by startDebugging's ack
	_ = c.t.Send(resp)
}

// setSeq stamps the outgoing sequence number on a concrete request type.
// go-dap's request structs each embed their own dap.Request, so there is
// no single interface setter; this switch is the one place that knowledge
// lives.
func setSeq(req dap.RequestMessage, seq int) {
	switch r := req.(type) {
	case *dap.InitializeRequest:
		r.Seq = seq
	case *dap.LaunchRequest:
		r.Seq = seq
	case *dap.DisconnectRequest:
		r.Seq = seq
	case *dap.ConfigurationDoneRequest:
		r.Seq = seq
	case *dap.ThreadsRequest:
		r.Seq = seq
	case *dap.StackTraceRequest:
		r.Seq = seq
	case *dap.ScopesRequest:
		r.Seq = seq
	case *dap.VariablesRequest:
		r.Seq = seq
	case *dap.EvaluateRequest:
		r.Seq = seq
	case *dap.SetBreakpointsRequest:
		r.Seq = seq
	case *dap.ContinueRequest:
		r.Seq = seq
	case *dap.NextRequest:
		r.Seq = seq
	case *dap.StepInRequest:
		r.Seq = seq
	case *dap.StepOutRequest:
		r.Seq = seq
	case *dap.PauseRequest:
		r.Seq = seq
	}
}

// sendRequest stamps and sends req, registers a one-shot response slot, and
// waits up to timeout for the correlated response.
func (c *Client) sendRequest(req dap.RequestMessage, timeout time.Duration) (dap.Message, error) {
	seq := c.t.NextSeq()
	setSeq(req, seq)

	respCh := make(chan dap.Message, 1)
	c.mu.Lock()
	c.pending[seq] = respCh
	c.mu.Unlock()

	if err := c.t.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, apperrors.Transport(err)
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, apperrors.Timeout(req.GetRequest().Command, timeout.String())
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// sendAsync stamps and sends req without waiting for a response, returning
// the channel the eventual response will arrive on. Used for launch on
// adapters (debugpy, vscode-js-debug) that don't answer until after
// configurationDone.
func (c *Client) sendAsync(req dap.RequestMessage) (chan dap.Message, error) {
	seq := c.t.NextSeq()
	setSeq(req, seq)

	respCh := make(chan dap.Message, 1)
	c.mu.Lock()
	c.pending[seq] = respCh
	c.mu.Unlock()

	if err := c.t.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, apperrors.Transport(err)
	}
	return respCh, nil
}

// Initialize sends the initialize request and stores the adapter's
// capabilities.
func (c *Client) Initialize(adapterID string) (dap.Capabilities, error) {
	req := &dap.InitializeRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{
			ClientID:                     "debugger-bridge",
			ClientName:                   "Debugger Bridge Server",
			AdapterID:                    adapterID,
			Locale:                       "en-US",
			LinesStartAt1:                true,
			ColumnsStartAt1:              true,
			PathFormat:                   "path",
			SupportsVariableType:         true,
			SupportsVariablePaging:       false,
			SupportsRunInTerminalRequest: false,
		},
	}

	resp, err := c.sendRequest(req, InitializeTimeout)
	if err != nil {
		return dap.Capabilities{}, err
	}
	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok {
		return dap.Capabilities{}, apperrors.New(apperrors.KindDapError, "unexpected response type %T for initialize", resp)
	}
	if !initResp.Success {
		return dap.Capabilities{}, apperrors.DapFailure("initialize", initResp.Message)
	}

	c.capMu.Lock()
	c.capabilities = initResp.Body
	c.capMu.Unlock()
	return initResp.Body, nil
}

// Capabilities returns the capabilities learned from Initialize.
func (c *Client) Capabilities() dap.Capabilities {
	c.capMu.Lock()
	defer c.capMu.Unlock()
	return c.capabilities
}

// WaitInitialized blocks until the "initialized" event has been observed.
func (c *Client) WaitInitialized(timeout time.Duration) error {
	select {
	case <-c.initialized:
		return nil
	case <-time.After(timeout):
		return apperrors.Timeout("waiting for initialized event", timeout.String())
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// LaunchAsync fires a launch request without waiting for its response,
// per the fire-and-forget discipline adapters that block until
// configurationDone require.
func (c *Client) LaunchAsync(args map[string]interface{}) (chan dap.Message, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("dapclient: marshal launch args: %w", err)
	}
	req := &dap.LaunchRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "launch"},
		Arguments: argsJSON,
	}
	return c.sendAsync(req)
}

// AwaitLaunch waits on the channel returned by LaunchAsync.
func (c *Client) AwaitLaunch(ch chan dap.Message, timeout time.Duration) error {
	select {
	case resp := <-ch:
		launchResp, ok := resp.(*dap.LaunchResponse)
		if !ok {
			return apperrors.New(apperrors.KindDapError, "unexpected response type %T for launch", resp)
		}
		if !launchResp.Success {
			return apperrors.DapFailure("launch", launchResp.Message)
		}
		return nil
	case <-time.After(timeout):
		return apperrors.Timeout("launch", timeout.String())
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// ConfigurationDone signals the adapter that breakpoints have been set.
func (c *Client) ConfigurationDone() error {
	req := &dap.ConfigurationDoneRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "configurationDone"},
	}
	resp, err := c.sendRequest(req, DefaultRequestTimeout)
	if err != nil {
		return err
	}
	cdResp, ok := resp.(*dap.ConfigurationDoneResponse)
	if !ok {
		return apperrors.New(apperrors.KindDapError, "unexpected response type %T for configurationDone", resp)
	}
	if !cdResp.Success {
		return apperrors.DapFailure("configurationDone", cdResp.Message)
	}
	return nil
}

// Disconnect sends disconnect with a hard 2s timeout. It does not drop the
// transport or kill the adapter process itself; Close drops the transport,
// and the session layer kills the process.
func (c *Client) Disconnect(terminateDebuggee bool) error {
	req := &dap.DisconnectRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "disconnect"},
		Arguments: &dap.DisconnectArguments{TerminateDebuggee: terminateDebuggee},
	}
	resp, err := c.sendRequest(req, DisconnectTimeout)
	if err != nil {
		return err
	}
	discResp, ok := resp.(*dap.DisconnectResponse)
	if !ok {
		return apperrors.New(apperrors.KindDapError, "unexpected response type %T for disconnect", resp)
	}
	if !discResp.Success {
		return apperrors.DapFailure("disconnect", discResp.Message)
	}
	return nil
}

// SetBreakpoints installs source breakpoints, preserving input order.
func (c *Client) SetBreakpoints(source dap.Source, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetBreakpointsRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "setBreakpoints"},
		Arguments: dap.SetBreakpointsArguments{Source: source, Breakpoints: bps},
	}
	resp, err := c.sendRequest(req, DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	bpResp, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok {
		return nil, apperrors.New(apperrors.KindDapError, "unexpected response type %T for setBreakpoints", resp)
	}
	if !bpResp.Success {
		return nil, apperrors.DapFailure("setBreakpoints", bpResp.Message)
	}
	return bpResp.Body.Breakpoints, nil
}

// Continue resumes the given thread, returning whether all threads
// continued.
func (c *Client) Continue(threadID int) (bool, error) {
	req := &dap.ContinueRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "continue"},
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}
	resp, err := c.sendRequest(req, DefaultRequestTimeout)
	if err != nil {
		return false, err
	}
	contResp, ok := resp.(*dap.ContinueResponse)
	if !ok {
		return false, apperrors.New(apperrors.KindDapError, "unexpected response type %T for continue", resp)
	}
	if !contResp.Success {
		return false, apperrors.DapFailure("continue", contResp.Message)
	}
	return contResp.Body.AllThreadsContinued, nil
}

func (c *Client) step(command string, threadID int) error {
	var req dap.RequestMessage
	switch command {
	case "next":
		req = &dap.NextRequest{Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: command}, Arguments: dap.NextArguments{ThreadId: threadID}}
	case "stepIn":
		req = &dap.StepInRequest{Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: command}, Arguments: dap.StepInArguments{ThreadId: threadID}}
	case "stepOut":
		req = &dap.StepOutRequest{Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: command}, Arguments: dap.StepOutArguments{ThreadId: threadID}}
	default:
		return fmt.Errorf("dapclient: unknown step command %q", command)
	}

	resp, err := c.sendRequest(req, DefaultRequestTimeout)
	if err != nil {
		return err
	}
	switch r := resp.(type) {
	case *dap.NextResponse:
		if !r.Success {
			return apperrors.DapFailure(command, r.Message)
		}
	case *dap.StepInResponse:
		if !r.Success {
			return apperrors.DapFailure(command, r.Message)
		}
	case *dap.StepOutResponse:
		if !r.Success {
			return apperrors.DapFailure(command, r.Message)
		}
	default:
		return apperrors.New(apperrors.KindDapError, "unexpected response type %T for %s", resp, command)
	}
	return nil
}

func (c *Client) Next(threadID int) error    { return c.step("next", threadID) }
func (c *Client) StepIn(threadID int) error  { return c.step("stepIn", threadID) }
func (c *Client) StepOut(threadID int) error { return c.step("stepOut", threadID) }

// Pause requests a pause on the given thread.
func (c *Client) Pause(threadID int) error {
	req := &dap.PauseRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "pause"},
		Arguments: dap.PauseArguments{ThreadId: threadID},
	}
	resp, err := c.sendRequest(req, DefaultRequestTimeout)
	if err != nil {
		return err
	}
	pauseResp, ok := resp.(*dap.PauseResponse)
	if !ok {
		return apperrors.New(apperrors.KindDapError, "unexpected response type %T for pause", resp)
	}
	if !pauseResp.Success {
		return apperrors.DapFailure("pause", pauseResp.Message)
	}
	return nil
}

// StackTrace returns the frames for a thread.
func (c *Client) StackTrace(threadID int) ([]dap.StackFrame, error) {
	req := &dap.StackTraceRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{ThreadId: threadID},
	}
	resp, err := c.sendRequest(req, DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	stResp, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return nil, apperrors.New(apperrors.KindDapError, "unexpected response type %T for stackTrace", resp)
	}
	if !stResp.Success {
		return nil, apperrors.DapFailure("stackTrace", stResp.Message)
	}
	return stResp.Body.StackFrames, nil
}

// Evaluate evaluates an expression in the given frame.
func (c *Client) Evaluate(expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	req := &dap.EvaluateRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "evaluate"},
		Arguments: dap.EvaluateArguments{Expression: expression, FrameId: frameID, Context: evalContext},
	}
	resp, err := c.sendRequest(req, DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	evalResp, ok := resp.(*dap.EvaluateResponse)
	if !ok {
		return nil, apperrors.New(apperrors.KindDapError, "unexpected response type %T for evaluate", resp)
	}
	if !evalResp.Success {
		return nil, apperrors.DapFailure("evaluate", evalResp.Message)
	}
	return &evalResp.Body, nil
}

// Close cancels the read loop and closes the transport. It is safe to
// call more than once.
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()
	return c.t.Close()
}
