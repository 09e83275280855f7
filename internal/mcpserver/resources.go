package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/debugger-bridge/internal/apperrors"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

// registerResources exposes read-only debugger state and reference
// documentation over MCP resources, on top of the tool surface.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcp.NewResource(
			"debugger://sessions",
			"All active debug sessions",
			mcp.WithMIMEType("application/json"),
		),
		s.handleSessionsResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"debugger://sessions/{sessionId}",
			"A single session's full state",
		),
		s.handleSessionResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"debugger://sessions/{sessionId}/stackTrace",
			"A stopped session's current call stack",
		),
		s.handleSessionStackTraceResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"debugger://state-machine",
			"The session lifecycle state machine reference",
			mcp.WithMIMEType("text/markdown"),
		),
		s.handleStateMachineResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"debugger://workflows",
			"Common multi-tool-call debugging workflows",
			mcp.WithMIMEType("text/markdown"),
		),
		s.handleWorkflowsResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"debugger://error-handling",
			"The error taxonomy and its JSON-RPC codes",
			mcp.WithMIMEType("text/markdown"),
		),
		s.handleErrorHandlingResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"debugger://troubleshooting",
			"Troubleshooting guidance for common adapter failures",
			mcp.WithMIMEType("text/markdown"),
		),
		s.handleTroubleshootingResource,
	)
}

func textResource(uri, mimeType string, text string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: mimeType, Text: text},
	}
}

func jsonResource(uri string, data interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDapError, err, "failed to marshal resource %s", uri)
	}
	return textResource(uri, "application/json", string(b)), nil
}

func (s *Server) handleSessionsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessions := s.registry.List()
	out := make([]map[string]interface{}, 0, len(sessions))
	for _, sess := range sessions {
		st := sess.State()
		out = append(out, map[string]interface{}{
			"sessionId": sess.ID,
			"language":  string(sess.Language),
			"program":   sess.Program,
			"state":     string(st.Kind),
			"mode":      string(sess.Mode()),
			"createdAt": sess.CreatedAt,
		})
	}
	return jsonResource(request.Params.URI, map[string]interface{}{"sessions": out})
}

func (s *Server) handleSessionResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessionID, err := sessionIDFromURI(request.Params.URI)
	if err != nil {
		return nil, err
	}
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	st := sess.State()
	result := map[string]interface{}{
		"sessionId":   sess.ID,
		"language":    string(sess.Language),
		"program":     sess.Program,
		"args":        sess.Args,
		"cwd":         sess.Cwd,
		"state":       string(st.Kind),
		"mode":        string(sess.Mode()),
		"createdAt":   sess.CreatedAt,
		"breakpoints": sess.ListBreakpoints(),
	}
	if st.Kind == types.StateStopped {
		result["threadId"] = st.ThreadID
		result["reason"] = string(st.Reason)
	}
	if st.Kind == types.StateFailed && st.Err != nil {
		result["error"] = st.Err.Error()
	}
	return jsonResource(request.Params.URI, result)
}

func (s *Server) handleSessionStackTraceResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessionID, err := sessionIDFromURI(request.Params.URI)
	if err != nil {
		return nil, err
	}
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	frames, err := sess.StackTrace(sess.State().ThreadID)
	if err != nil {
		return nil, err
	}
	return jsonResource(request.Params.URI, map[string]interface{}{"sessionId": sess.ID, "frames": frames})
}

// sessionIDFromURI extracts the {sessionId} path segment from a
// debugger://sessions/{sessionId}[/...] resource URI.
func sessionIDFromURI(uri string) (string, error) {
	const prefix = "debugger://sessions/"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return "", apperrors.InvalidParam("uri", fmt.Sprintf("not a session resource: %s", uri))
	}
	rest := uri[len(prefix):]
	for i, c := range rest {
		if c == '/' {
			return rest[:i], nil
		}
	}
	return rest, nil
}

func (s *Server) handleStateMachineResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return textResource(request.Params.URI, "text/markdown", stateMachineDoc), nil
}

func (s *Server) handleWorkflowsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return textResource(request.Params.URI, "text/markdown", workflowsDoc), nil
}

func (s *Server) handleErrorHandlingResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return textResource(request.Params.URI, "text/markdown", errorHandlingDoc), nil
}

func (s *Server) handleTroubleshootingResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return textResource(request.Params.URI, "text/markdown", troubleshootingDoc), nil
}

const stateMachineDoc = `# Session lifecycle

NotStarted -> Initializing -> Initialized -> Running <-> Stopped -> Terminated
Any non-terminal state can also transition to Failed. Terminated and Failed
are terminal: no further transitions are accepted once reached.

- NotStarted: session id allocated, adapter not yet spawned.
- Initializing: adapter process spawning and the DAP "initialize" handshake
  is in flight. debugger_start returns during this state.
- Initialized: "initialized" event received; pending breakpoints are
  flushed and configurationDone is sent next.
- Running: the debuggee is executing.
- Stopped: the debuggee is paused at a breakpoint, step, pause, or
  exception; threadId and reason are populated.
- Terminated: the debuggee or adapter exited, or debugger_disconnect
  completed.
- Failed: spawn, initialize, or launch failed; err is populated.
`

const workflowsDoc = `# Common workflows

## Launch and break at a known line
1. debugger_start
2. debugger_set_breakpoint (legal immediately; queued until Initialized)
3. debugger_wait_for_stop
4. debugger_stack_trace / debugger_evaluate
5. debugger_continue or debugger_step_over/into/out
6. debugger_disconnect

## Stop on entry
Pass stopOnEntry: true to debugger_start, then debugger_wait_for_stop
returns as soon as the adapter reports the entry stop (or, for adapters
that have no native entry stop, the synthesized first-executable-line
breakpoint).
`

const errorHandlingDoc = `# Error taxonomy

Every tool error is returned as an MCP tool-result error whose message is
prefixed with [Kind code]:

| Kind               | Code   | Meaning                                   |
|--------------------|--------|--------------------------------------------|
| InvalidParams       | -32602 | missing or malformed tool argument         |
| MethodNotFound      | -32601 | unsupported DAP reverse request            |
| NotFound            | -32000 | unknown sessionId                          |
| Timeout             | -32001 | an operation exceeded its deadline         |
| DapError            | -32002 | the debug adapter rejected a DAP request   |
| TransportError      | -32003 | the framed DAP transport failed            |
| BuildError          | -32004 | a Rust build-detection compile step failed |
| InvalidState        | -32005 | the tool isn't legal in the current state  |
| AdapterSpawnError   | -32006 | the adapter process failed to start        |
`

const troubleshootingDoc = `# Troubleshooting

- "InvalidState" on debugger_continue/step/pause/stack_trace/evaluate:
  the session isn't in the state that operation requires; check
  debugger_session_state first.
- debugger_start never reaches Initialized: the underlying adapter binary
  (debugpy, rdbg, vscode-js-debug, dlv, codelldb) may not be on PATH;
  check server logs for the AdapterSpawnError.
- Rust sessions failing with BuildError: the program path isn't
  buildable by rustc/cargo as detected, or a tests/fixtures/ override
  applies; the compiler's stderr is written to the server log (it is
  not part of the session's error).
- Node.js sessions stuck without a reported stack trace: the reverse
  startDebugging request may not have completed its child-session
  handshake yet; debugger_wait_for_stop again once the child has
  connected.
`
