// Package session implements the per-session state machine and lifecycle
// orchestrator: async adapter spawn with early handle return, pending
// breakpoint buffering flushed before configurationDone, event-driven
// state transitions, and the wait_for_stop waiter mechanism.
package session

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/go-dap"
	"github.com/google/uuid"

	"github.com/ctagard/debugger-bridge/internal/adapters"
	"github.com/ctagard/debugger-bridge/internal/apperrors"
	"github.com/ctagard/debugger-bridge/internal/dapclient"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

// InitLaunchBudget is the combined wall-clock budget for adapter spawn,
// DAP initialize, and launch orchestration (spec: 2s initialize + 5s
// launch).
const InitLaunchBudget = 7 * time.Second

// breakpointSpec is the source-of-truth request for one breakpoint; the
// same spec list backs both the pending buffer (pre-Initialized) and the
// installed set (post-flush), since installing is just "send the whole
// list for this source to the adapter".
type breakpointSpec struct {
	Line         int
	Condition    string
	HitCondition string
}

// Session is one debug session: its identity, its state machine, its
// pending/installed breakpoints, and its DAP client handle(s).
type Session struct {
	ID          string
	Language    types.Language
	Program     string
	Args        []string
	Cwd         string
	StopOnEntry bool
	CreatedAt   time.Time

	mu           sync.Mutex
	mode         types.SessionMode
	state        types.State
	client       *dapclient.Client
	cmd          *exec.Cmd
	adapterID    string
	port         int
	buildDir     string
	multiSession *MultiSessionManager
	parentID     string

	bpMu    sync.Mutex
	specs   map[string][]breakpointSpec
	results map[string][]types.Breakpoint
	flushed bool

	waitMu  sync.Mutex
	waiters []chan types.State

	logger *log.Logger
}

// New creates a session in NotStarted state. It does not spawn anything;
// call Run to begin the async orchestration.
func New(language types.Language, program string, args []string, cwd string, stopOnEntry bool, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		ID:          uuid.NewString(),
		Language:    language,
		Program:     program,
		Args:        args,
		Cwd:         cwd,
		StopOnEntry: stopOnEntry,
		CreatedAt:   time.Now(),
		mode:        types.ModeSingle,
		state:       types.NotStarted(),
		specs:       make(map[string][]breakpointSpec),
		results:     make(map[string][]types.Breakpoint),
		logger:      logger,
	}
}

// State returns the session's current state.
func (s *Session) State() types.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the session's transport topology mode.
func (s *Session) Mode() types.SessionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) setState(ns types.State) {
	s.mu.Lock()
	// Terminal states never transition further.
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = ns
	s.mu.Unlock()

	s.waitMu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.waitMu.Unlock()
	for _, w := range waiters {
		w <- ns
	}
}

func (s *Session) fail(err error) {
	s.logger.Printf("session %s: failed: %v", s.ID, err)
	s.setState(types.State{Kind: types.StateFailed, Err: err})
}

// WaitForStop blocks until the session reaches Stopped or a terminal
// state, returning immediately if it is already there. Multiple
// concurrent callers may wait at once; all are woken on the next
// qualifying transition.
func (s *Session) WaitForStop(timeout time.Duration) (types.State, error) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		st := s.state
		s.mu.Unlock()
		if st.Kind == types.StateStopped || st.Terminal() {
			return st, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return types.State{}, apperrors.Timeout("wait_for_stop", timeout.String())
		}

		ch := make(chan types.State, 1)
		s.waitMu.Lock()
		s.waiters = append(s.waiters, ch)
		s.waitMu.Unlock()

		select {
		case <-ch:
			continue
		case <-time.After(remaining):
			return types.State{}, apperrors.Timeout("wait_for_stop", timeout.String())
		}
	}
}

// Run performs the full orchestration: spawn, transport attach, DAP
// initialize, launch, pending-breakpoint flush, configurationDone. It is
// meant to be called on its own goroutine by the registry immediately
// after CreateSession returns the session's id.
func (s *Session) Run(parent context.Context, adapter adapters.Adapter) {
	s.mu.Lock()
	s.state = types.State{Kind: types.StateInitializing}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, InitLaunchBudget)
	defer cancel()

	req := adapters.LaunchRequest{
		Program:     s.Program,
		Args:        s.Args,
		Cwd:         s.Cwd,
		StopOnEntry: s.StopOnEntry,
		Logger:      s.logger,
	}

	spawned, err := adapter.Spawn(ctx, req)
	if err != nil {
		s.fail(apperrors.AdapterSpawn(string(s.Language), err))
		return
	}

	s.mu.Lock()
	s.client = spawned.Client
	s.adapterID = spawned.AdapterID
	s.port = spawned.Port
	s.buildDir = spawned.BuildDir
	if spawned.Cmd != nil {
		s.cmd = spawned.Cmd
	}
	s.mu.Unlock()

	s.subscribeEvents(s.client)

	if _, err := s.client.Initialize(spawned.AdapterID); err != nil {
		s.fail(err)
		return
	}

	msa, isMulti := adapter.(adapters.MultiSessionAdapter)
	if isMulti {
		s.mu.Lock()
		s.mode = types.ModeMultiSessionParent
		s.multiSession = newMultiSessionManager()
		s.mu.Unlock()
		s.installReverseRequestHandler(msa, req)
	}

	if spawned.EntryBreakpointPath != "" {
		s.addSpec(spawned.EntryBreakpointPath, breakpointSpec{Line: spawned.EntryBreakpointLine})
	}

	launchCh, err := s.client.LaunchAsync(spawned.LaunchArgs)
	if err != nil {
		s.fail(err)
		return
	}

	if err := s.client.WaitInitialized(dapclient.LaunchTimeout); err != nil {
		s.fail(err)
		return
	}
	s.setState(types.State{Kind: types.StateInitialized})

	s.flushAll()

	if err := s.client.ConfigurationDone(); err != nil {
		s.fail(err)
		return
	}

	if err := s.client.AwaitLaunch(launchCh, dapclient.LaunchTimeout); err != nil {
		s.fail(err)
		return
	}

	s.mu.Lock()
	if s.state.Kind == types.StateInitialized {
		s.state = types.State{Kind: types.StateRunning}
	}
	s.mu.Unlock()
}

// subscribeEvents wires one DAP client's events to this session's state
// machine. Used for both the primary client and, for multi-session
// languages, every child client — child events always flow into the
// parent session's state, which is the single source of truth.
func (s *Session) subscribeEvents(c *dapclient.Client) {
	c.OnEvent("stopped", func(ev dap.EventMessage) {
		var body dap.StoppedEventBody
		_ = json.Unmarshal(ev.GetEvent().Body, &body)
		s.setState(types.State{
			Kind:     types.StateStopped,
			ThreadID: body.ThreadId,
			Reason:   types.NormalizeStopReason(body.Reason),
		})
	})
	c.OnEvent("continued", func(ev dap.EventMessage) {
		s.setState(types.State{Kind: types.StateRunning})
	})
	c.OnEvent("thread", func(ev dap.EventMessage) {
		var body dap.ThreadEventBody
		_ = json.Unmarshal(ev.GetEvent().Body, &body)
		if body.Reason == "started" {
			s.mu.Lock()
			if s.state.Kind == types.StateInitialized {
				s.state = types.State{Kind: types.StateRunning}
			}
			s.mu.Unlock()
		}
	})
	c.OnEvent("terminated", func(ev dap.EventMessage) {
		s.setState(types.State{Kind: types.StateTerminated})
	})
	c.OnEvent("exited", func(ev dap.EventMessage) {
		s.setState(types.State{Kind: types.StateTerminated})
	})
	c.OnEvent("output", func(ev dap.EventMessage) {
		var body dap.OutputEventBody
		_ = json.Unmarshal(ev.GetEvent().Body, &body)
		s.logger.Printf("session %s output: %s", s.ID, strings.TrimRight(body.Output, "\n"))
	})
}

// Disconnect sends DAP disconnect with its hard 2s timeout, then
// unconditionally tears down the local process and transport regardless
// of whether the remote disconnect succeeded.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	client := s.client
	cmd := s.cmd
	buildDir := s.buildDir
	s.mu.Unlock()

	var disconnectErr error
	if client != nil {
		disconnectErr = client.Disconnect(true)
		_ = client.Close()
	}
	if cmd != nil {
		_ = adapters.KillProcess(cmd)
	}
	s.removeBuildDir(buildDir)

	s.setState(types.State{Kind: types.StateTerminated})
	return disconnectErr
}

// removeBuildDir cleans up a per-session Rust compile temp directory
// (see adapters.RustAdapter.compileStandalone). A no-op when the session
// never compiled a standalone artifact.
func (s *Session) removeBuildDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Printf("session %s: remove build dir %s: %v", s.ID, dir, err)
	}
}

func (s *Session) requireState(op string, allowed ...types.StateKind) error {
	st := s.State()
	for _, k := range allowed {
		if st.Kind == k {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, k := range allowed {
		names[i] = string(k)
	}
	return apperrors.InvalidState(op, names, string(st.Kind))
}

// activeClient returns the client operations should route to: the child
// client for a multi-session parent with an active child, the primary
// client otherwise.
func (s *Session) activeClient() (*dapclient.Client, error) {
	s.mu.Lock()
	mode := s.mode
	multi := s.multiSession
	client := s.client
	s.mu.Unlock()

	if mode == types.ModeMultiSessionParent {
		if multi == nil {
			return nil, apperrors.InvalidState("route to active child", []string{"has active child"}, "no children")
		}
		return multi.ActiveClient()
	}
	return client, nil
}

// Continue resumes execution. Legal only from Stopped.
func (s *Session) Continue(threadID int) error {
	if err := s.requireState("debugger_continue", types.StateStopped); err != nil {
		return err
	}
	c, err := s.activeClient()
	if err != nil {
		return err
	}
	_, err = c.Continue(threadID)
	return err
}

func (s *Session) step(op string, threadID int, fn func(*dapclient.Client, int) error) error {
	if err := s.requireState(op, types.StateStopped); err != nil {
		return err
	}
	c, err := s.activeClient()
	if err != nil {
		return err
	}
	return fn(c, threadID)
}

func (s *Session) StepOver(threadID int) error {
	return s.step("debugger_step_over", threadID, (*dapclient.Client).Next)
}
func (s *Session) StepInto(threadID int) error {
	return s.step("debugger_step_into", threadID, (*dapclient.Client).StepIn)
}
func (s *Session) StepOut(threadID int) error {
	return s.step("debugger_step_out", threadID, (*dapclient.Client).StepOut)
}

// Pause requests a pause. Legal only from Running.
func (s *Session) Pause(threadID int) error {
	if err := s.requireState("debugger_pause", types.StateRunning); err != nil {
		return err
	}
	c, err := s.activeClient()
	if err != nil {
		return err
	}
	return c.Pause(threadID)
}

// StackFrame is the MCP-facing shape of one DAP stack frame.
type StackFrame struct {
	ID     int
	Name   string
	Line   int
	Column int
	Source struct {
		Name string
		Path string
	}
}

// StackTrace returns the current stack. Legal only from Stopped.
func (s *Session) StackTrace(threadID int) ([]StackFrame, error) {
	if err := s.requireState("debugger_stack_trace", types.StateStopped); err != nil {
		return nil, err
	}
	c, err := s.activeClient()
	if err != nil {
		return nil, err
	}
	if threadID == 0 {
		threadID = s.State().ThreadID
	}
	frames, err := c.StackTrace(threadID)
	if err != nil {
		return nil, err
	}
	out := make([]StackFrame, len(frames))
	for i, f := range frames {
		out[i].ID = f.Id
		out[i].Name = f.Name
		out[i].Line = f.Line
		out[i].Column = f.Column
		if f.Source != nil {
			out[i].Source.Name = f.Source.Name
			out[i].Source.Path = f.Source.Path
		}
	}
	return out, nil
}

// Evaluate evaluates an expression. If frameID is 0 (omitted) and the
// session is Stopped, it first requests a stack trace on the stopped
// thread and uses the top frame; if not stopped, fails InvalidState.
func (s *Session) Evaluate(expression string, frameID int, evalContext string) (string, string, error) {
	st := s.State()
	if frameID == 0 {
		if st.Kind != types.StateStopped {
			return "", "", apperrors.InvalidState("debugger_evaluate (implicit frame)", []string{string(types.StateStopped)}, string(st.Kind))
		}
		frames, err := s.StackTrace(st.ThreadID)
		if err != nil {
			return "", "", err
		}
		if len(frames) == 0 {
			return "", "", apperrors.New(apperrors.KindDapError, "stopped thread %d has no stack frames", st.ThreadID)
		}
		frameID = frames[0].ID
	}

	c, err := s.activeClient()
	if err != nil {
		return "", "", err
	}
	body, err := c.Evaluate(expression, frameID, evalContext)
	if err != nil {
		return "", "", err
	}
	return body.Result, body.Type, nil
}

// Close releases resources without attempting a DAP disconnect; the
// registry calls it from Remove when it drops a session.
func (s *Session) Close() {
	s.mu.Lock()
	client := s.client
	cmd := s.cmd
	buildDir := s.buildDir
	s.mu.Unlock()
	if client != nil {
		_ = client.Close()
	}
	if cmd != nil {
		_ = adapters.KillProcess(cmd)
	}
	s.removeBuildDir(buildDir)
}
