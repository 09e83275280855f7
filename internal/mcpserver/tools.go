package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTools() {
	s.registerDebuggerStart()
	s.registerDebuggerSessionState()
	s.registerDebuggerSetBreakpoint()
	s.registerDebuggerListBreakpoints()
	s.registerDebuggerWaitForStop()
	s.registerDebuggerDisconnect()

	if s.config.CanUseControlTools() {
		s.registerDebuggerContinue()
		s.registerDebuggerStepOver()
		s.registerDebuggerStepInto()
		s.registerDebuggerStepOut()
		s.registerDebuggerPause()
		s.registerDebuggerStackTrace()
		s.registerDebuggerEvaluate()
	}
}

func (s *Server) registerDebuggerStart() {
	tool := mcp.NewTool("debugger_start",
		mcp.WithDescription("Start a new debug session for a program. Returns a sessionId immediately (within about 100ms) while the adapter spawns and initializes in the background; poll debugger_session_state to see when it's ready."),
		mcp.WithString("language", mcp.Required(), mcp.Description("One of: python, ruby, nodejs, go, rust")),
		mcp.WithString("program", mcp.Required(), mcp.Description("Path to the program or source file to debug")),
		mcp.WithString("args", mcp.Description(`Program arguments, as a JSON array string, e.g. ["--flag","value"]`)),
		mcp.WithString("cwd", mcp.Description("Working directory for the debuggee")),
		mcp.WithBoolean("stopOnEntry", mcp.Description("Stop at the first line of the program (default false)")),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerStart)
}

func (s *Server) registerDebuggerSessionState() {
	tool := mcp.NewTool("debugger_session_state",
		mcp.WithDescription("Query a session's current lifecycle state"),
		mcp.WithString("sessionId", mcp.Required()),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerSessionState)
}

func (s *Server) registerDebuggerSetBreakpoint() {
	tool := mcp.NewTool("debugger_set_breakpoint",
		mcp.WithDescription("Set a breakpoint. Legal in any non-terminal session state; if the session isn't initialized yet, the breakpoint is queued and flushed once it is."),
		mcp.WithString("sessionId", mcp.Required()),
		mcp.WithString("sourcePath", mcp.Required()),
		mcp.WithNumber("line", mcp.Required()),
		mcp.WithString("condition", mcp.Description("Conditional expression; breakpoint fires only when true")),
		mcp.WithString("hitCondition", mcp.Description("Expression controlling how many hits to ignore before firing")),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerSetBreakpoint)
}

func (s *Server) registerDebuggerListBreakpoints() {
	tool := mcp.NewTool("debugger_list_breakpoints",
		mcp.WithDescription("List all breakpoints for a session, including ones still pending because the session isn't initialized yet"),
		mcp.WithString("sessionId", mcp.Required()),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerListBreakpoints)
}

func (s *Server) registerDebuggerContinue() {
	tool := mcp.NewTool("debugger_continue",
		mcp.WithDescription("Resume execution. Requires the session to be Stopped."),
		mcp.WithString("sessionId", mcp.Required()),
		mcp.WithNumber("threadId"),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerContinue)
}

func (s *Server) registerDebuggerStepOver() {
	tool := mcp.NewTool("debugger_step_over",
		mcp.WithDescription("Step over the current line. Requires the session to be Stopped."),
		mcp.WithString("sessionId", mcp.Required()),
		mcp.WithNumber("threadId"),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerStepOver)
}

func (s *Server) registerDebuggerStepInto() {
	tool := mcp.NewTool("debugger_step_into",
		mcp.WithDescription("Step into the current call. Requires the session to be Stopped."),
		mcp.WithString("sessionId", mcp.Required()),
		mcp.WithNumber("threadId"),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerStepInto)
}

func (s *Server) registerDebuggerStepOut() {
	tool := mcp.NewTool("debugger_step_out",
		mcp.WithDescription("Step out of the current frame. Requires the session to be Stopped."),
		mcp.WithString("sessionId", mcp.Required()),
		mcp.WithNumber("threadId"),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerStepOut)
}

func (s *Server) registerDebuggerPause() {
	tool := mcp.NewTool("debugger_pause",
		mcp.WithDescription("Pause a running session. Requires the session to be Running."),
		mcp.WithString("sessionId", mcp.Required()),
		mcp.WithNumber("threadId"),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerPause)
}

func (s *Server) registerDebuggerStackTrace() {
	tool := mcp.NewTool("debugger_stack_trace",
		mcp.WithDescription("Get the stopped thread's call stack. Requires the session to be Stopped."),
		mcp.WithString("sessionId", mcp.Required()),
		mcp.WithNumber("threadId"),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerStackTrace)
}

func (s *Server) registerDebuggerEvaluate() {
	tool := mcp.NewTool("debugger_evaluate",
		mcp.WithDescription("Evaluate an expression in the context of a stopped frame. If frameId is omitted, the top frame of the stopped thread is used."),
		mcp.WithString("sessionId", mcp.Required()),
		mcp.WithString("expression", mcp.Required()),
		mcp.WithNumber("frameId"),
		mcp.WithString("context", mcp.Description("DAP evaluate context: watch, repl, hover, or clipboard")),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerEvaluate)
}

func (s *Server) registerDebuggerWaitForStop() {
	tool := mcp.NewTool("debugger_wait_for_stop",
		mcp.WithDescription("Block until the session stops or terminates, up to timeoutMs. Returns immediately if already stopped."),
		mcp.WithString("sessionId", mcp.Required()),
		mcp.WithNumber("timeoutMs", mcp.Required()),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerWaitForStop)
}

func (s *Server) registerDebuggerDisconnect() {
	tool := mcp.NewTool("debugger_disconnect",
		mcp.WithDescription("Disconnect a session's debug adapter and remove it from the registry, regardless of whether the remote disconnect succeeds"),
		mcp.WithString("sessionId", mcp.Required()),
	)
	s.mcpServer.AddTool(tool, s.handleDebuggerDisconnect)
}
