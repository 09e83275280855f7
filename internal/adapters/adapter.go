// Package adapters provides the per-language debug adapter spawners: the
// process/socket/pipe plumbing needed to get a dapclient.Client talking to
// debugpy, rdbg, vscode-js-debug, Delve, or CodeLLDB, plus the
// language-specific launch-argument shaping each one requires.
package adapters

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"

	"github.com/ctagard/debugger-bridge/internal/config"
	"github.com/ctagard/debugger-bridge/internal/dapclient"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

// LaunchRequest carries the fields debugger_start accepts, already
// validated at the MCP tool boundary, plus the session's logger (the
// registry's shared logger) adapters pipe their spawned process's stderr
// through.
type LaunchRequest struct {
	Program     string
	Args        []string
	Cwd         string
	StopOnEntry bool
	Logger      *log.Logger
}

// stderrLogWriter adapts a *log.Logger into an io.Writer an exec.Cmd can
// use directly as Stderr, so an adapter process's stderr lines go through
// the session's logger, one prefixed line at a time, instead of being
// copied raw onto the server's own stderr.
type stderrLogWriter struct {
	logger *log.Logger
	prefix string
}

func (w stderrLogWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.logger.Printf("%s stderr: %s", w.prefix, line)
		}
	}
	return len(p), nil
}

// adapterStderr returns the io.Writer an adapter's Spawn should set
// cmd.Stderr to: the request's logger when set, or the
// standard logger otherwise (Logger is nil only in tests that construct a
// LaunchRequest by hand).
func adapterStderr(req LaunchRequest, prefix string) stderrLogWriter {
	logger := req.Logger
	if logger == nil {
		logger = log.Default()
	}
	return stderrLogWriter{logger: logger, prefix: prefix}
}

// Spawned is what Spawn returns: the connected client, the adapter
// process (nil when the adapter doesn't own a child process directly,
// e.g. a multi-session child), the adapter ID to hand to Initialize, and
// the launch arguments ready to send.
type Spawned struct {
	Client      *dapclient.Client
	Cmd         *exec.Cmd
	AdapterID   string
	LaunchArgs  map[string]interface{}
	// EntryBreakpointPath/Line are set by adapters (Ruby) that
	// implement the entry-breakpoint workaround instead of relying on
	// native stopOnEntry support. Zero value means "not needed".
	EntryBreakpointPath string
	EntryBreakpointLine int
	// Port is the TCP port the adapter is listening on, set only by
	// multi-session adapters (Node.js) so the session layer can open
	// further child connections to the same port.
	Port int
	// BuildDir is a per-session temporary directory the adapter compiled
	// an artifact into (Rust standalone rustc builds), to be removed by
	// the session layer on disconnect. Empty when the adapter didn't
	// create one.
	BuildDir string
}

// Adapter is the per-language spawner. Spawn must return within the
// caller's launch budget; it owns starting the adapter process (or
// connecting to one already running, for multi-session children) and
// wiring a dapclient.Client to it.
type Adapter interface {
	Language() types.Language
	Spawn(ctx context.Context, req LaunchRequest) (*Spawned, error)
}

// Registry looks up the Adapter for a language.
type Registry struct {
	adapters map[types.Language]Adapter
}

// NewRegistry builds the registry with all five language adapters wired to
// cfg.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		adapters: map[types.Language]Adapter{
			types.LanguagePython: NewPythonAdapter(cfg.Adapters.Python),
			types.LanguageRuby:   NewRubyAdapter(cfg.Adapters.Ruby),
			types.LanguageNodeJS: NewNodeAdapter(cfg.Adapters.Node),
			types.LanguageGo:     NewGoAdapter(cfg.Adapters.Go),
			types.LanguageRust:   NewRustAdapter(cfg.Adapters.Rust),
		},
	}
}

// NewRegistryFromMap builds a registry directly from a language->Adapter
// map, bypassing per-language config wiring. Exported for callers (tests
// in other packages) that need to substitute a fake Adapter for a
// language without spawning a real debug adapter process.
func NewRegistryFromMap(m map[types.Language]Adapter) *Registry {
	return &Registry{adapters: m}
}

// Get returns the adapter registered for lang.
func (r *Registry) Get(lang types.Language) (Adapter, error) {
	a, ok := r.adapters[lang]
	if !ok {
		return nil, fmt.Errorf("adapters: no adapter registered for language %q", lang)
	}
	return a, nil
}

// MultiSessionAdapter is implemented by adapters (Node.js) whose topology
// requires opening further child connections to the same port after the
// adapter sends a "startDebugging" reverse request.
type MultiSessionAdapter interface {
	Adapter
	ConnectChild(ctx context.Context, port int) (*dapclient.Client, error)
	BuildChildLaunchArgs(req LaunchRequest, pendingTargetID string) map[string]interface{}
}

// KillProcess kills a spawned adapter's process group (or, on platforms
// without process-group semantics, the process itself). Exported so the
// session package can tear down an adapter process without importing
// syscall-level details.
func KillProcess(cmd *exec.Cmd) error {
	return killProcessGroup(cmd)
}
