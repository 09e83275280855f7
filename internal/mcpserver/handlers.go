package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/debugger-bridge/internal/apperrors"
	"github.com/ctagard/debugger-bridge/internal/session"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

// toolError converts a structured apperrors.Error (or any other error) into
// an MCP tool-level error result. mcp-go's CallToolResult carries errors as
// content with isError set rather than as a protocol-level JSON-RPC error,
// so the Kind and numeric code this server's taxonomy assigns are embedded
// in the message text. The error's Data map is not included in the result.
func toolError(err error) (*mcp.CallToolResult, error) {
	var appErr *apperrors.Error
	if apperrors.As(err, &appErr) {
		msg := fmt.Sprintf("[%s %d] %s", appErr.Kind, appErr.Code(), appErr.Message)
		result := mcp.NewToolResultError(msg)
		return result, nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

// jsonResult marshals data as the tool's text result.
func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return toolError(apperrors.Wrap(apperrors.KindDapError, err, "failed to marshal result"))
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) getSession(sessionID string) (*session.Session, error) {
	return s.registry.Get(sessionID)
}

func (s *Server) handleDebuggerStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	langStr, err := request.RequireString("language")
	if err != nil {
		return toolError(apperrors.MissingParam("language"))
	}
	lang := types.Language(langStr)
	valid := false
	for _, l := range types.SupportedLanguages {
		if l == lang {
			valid = true
			break
		}
	}
	if !valid {
		return toolError(apperrors.InvalidParam("language", fmt.Sprintf("must be one of %v", types.SupportedLanguages)))
	}

	program, err := request.RequireString("program")
	if err != nil {
		return toolError(apperrors.MissingParam("program"))
	}

	var args []string
	if argsJSON, err := request.RequireString("args"); err == nil && argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return toolError(apperrors.InvalidParam("args", `must be a JSON array of strings, e.g. ["--flag","value"]`))
		}
	}

	cwd, _ := request.RequireString("cwd")
	stopOnEntry := request.GetBool("stopOnEntry", false)

	if !s.config.CanSpawn() {
		return toolError(apperrors.New(apperrors.KindInvalidState, "server is configured with allowSpawn=false; debugger_start is disabled"))
	}

	sessionID, err := s.registry.CreateSession(lang, program, args, cwd, stopOnEntry)
	if err != nil {
		return toolError(err)
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"state":     string(types.StateInitializing),
	})
}

func (s *Server) handleDebuggerSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(apperrors.MissingParam("sessionId"))
	}
	sess, err := s.getSession(sessionID)
	if err != nil {
		return toolError(err)
	}
	st := sess.State()
	result := map[string]interface{}{
		"sessionId": sess.ID,
		"state":     string(st.Kind),
		"language":  string(sess.Language),
		"mode":      string(sess.Mode()),
	}
	if st.Kind == types.StateStopped {
		result["threadId"] = st.ThreadID
		result["reason"] = string(st.Reason)
	}
	if st.Kind == types.StateFailed && st.Err != nil {
		result["error"] = st.Err.Error()
	}
	return jsonResult(result)
}

func (s *Server) handleDebuggerSetBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(apperrors.MissingParam("sessionId"))
	}
	sourcePath, err := request.RequireString("sourcePath")
	if err != nil {
		return toolError(apperrors.MissingParam("sourcePath"))
	}
	lineF, err := request.RequireFloat("line")
	if err != nil {
		return toolError(apperrors.MissingParam("line"))
	}
	condition, _ := request.RequireString("condition")
	hitCondition, _ := request.RequireString("hitCondition")

	sess, err := s.getSession(sessionID)
	if err != nil {
		return toolError(err)
	}

	bp, err := sess.SetBreakpoint(sourcePath, int(lineF), condition, hitCondition)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(bp)
}

func (s *Server) handleDebuggerListBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(apperrors.MissingParam("sessionId"))
	}
	sess, err := s.getSession(sessionID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"sessionId":   sess.ID,
		"breakpoints": sess.ListBreakpoints(),
	})
}

func threadIDArg(request mcp.CallToolRequest) int {
	if v, err := request.RequireFloat("threadId"); err == nil {
		return int(v)
	}
	return 0
}

func (s *Server) handleDebuggerContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(apperrors.MissingParam("sessionId"))
	}
	sess, err := s.getSession(sessionID)
	if err != nil {
		return toolError(err)
	}
	threadID := threadIDArg(request)
	if threadID == 0 {
		threadID = sess.State().ThreadID
	}
	if err := sess.Continue(threadID); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{"sessionId": sess.ID, "state": "Running"})
}

func (s *Server) handleDebuggerStepOver(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleStep(request, (*session.Session).StepOver)
}

func (s *Server) handleDebuggerStepInto(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleStep(request, (*session.Session).StepInto)
}

func (s *Server) handleDebuggerStepOut(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleStep(request, (*session.Session).StepOut)
}

func (s *Server) handleStep(request mcp.CallToolRequest, fn func(*session.Session, int) error) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(apperrors.MissingParam("sessionId"))
	}
	sess, err := s.getSession(sessionID)
	if err != nil {
		return toolError(err)
	}
	threadID := threadIDArg(request)
	if threadID == 0 {
		threadID = sess.State().ThreadID
	}
	if err := fn(sess, threadID); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{"sessionId": sess.ID, "state": "Running"})
}

func (s *Server) handleDebuggerPause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(apperrors.MissingParam("sessionId"))
	}
	sess, err := s.getSession(sessionID)
	if err != nil {
		return toolError(err)
	}
	threadID := threadIDArg(request)
	if err := sess.Pause(threadID); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{"sessionId": sess.ID})
}

func (s *Server) handleDebuggerStackTrace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(apperrors.MissingParam("sessionId"))
	}
	sess, err := s.getSession(sessionID)
	if err != nil {
		return toolError(err)
	}
	threadID := threadIDArg(request)
	frames, err := sess.StackTrace(threadID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{"sessionId": sess.ID, "frames": frames})
}

func (s *Server) handleDebuggerEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(apperrors.MissingParam("sessionId"))
	}
	expression, err := request.RequireString("expression")
	if err != nil {
		return toolError(apperrors.MissingParam("expression"))
	}
	frameID := 0
	if v, err := request.RequireFloat("frameId"); err == nil {
		frameID = int(v)
	}
	evalContext := "repl"
	if c, err := request.RequireString("context"); err == nil && c != "" {
		evalContext = c
	}

	sess, err := s.getSession(sessionID)
	if err != nil {
		return toolError(err)
	}

	result, typ, err := sess.Evaluate(expression, frameID, evalContext)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{"result": result, "type": typ})
}

func (s *Server) handleDebuggerWaitForStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(apperrors.MissingParam("sessionId"))
	}
	timeoutMsF, err := request.RequireFloat("timeoutMs")
	if err != nil {
		return toolError(apperrors.MissingParam("timeoutMs"))
	}

	sess, err := s.getSession(sessionID)
	if err != nil {
		return toolError(err)
	}

	st, err := sess.WaitForStop(time.Duration(timeoutMsF) * time.Millisecond)
	if err != nil {
		return toolError(err)
	}
	result := map[string]interface{}{"sessionId": sess.ID, "state": string(st.Kind)}
	if st.Kind == types.StateStopped {
		result["threadId"] = st.ThreadID
		result["reason"] = string(st.Reason)
	}
	return jsonResult(result)
}

func (s *Server) handleDebuggerDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(apperrors.MissingParam("sessionId"))
	}
	sess, err := s.getSession(sessionID)
	if err != nil {
		return toolError(err)
	}
	disconnectErr := sess.Disconnect()
	s.registry.Remove(sess.ID)
	if disconnectErr != nil {
		s.logger.Printf("debugger_disconnect %s: remote disconnect error: %v", sess.ID, disconnectErr)
	}
	return jsonResult(map[string]interface{}{"sessionId": sess.ID, "state": "Terminated"})
}
