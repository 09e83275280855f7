package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ctagard/debugger-bridge/internal/config"
	"github.com/ctagard/debugger-bridge/internal/dapclient"
	"github.com/ctagard/debugger-bridge/internal/socketutil"
	"github.com/ctagard/debugger-bridge/internal/transport"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

const rubyConnectDeadline = 2 * time.Second

// RubyAdapter spawns rdbg in socket-server mode. rdbg has no stdio DAP
// transport, so the helper allocates a port, spawns the program under
// rdbg, and dials in. --stop-at-load is unreliable over a socket, so the
// session layer is expected to pair this adapter with the
// entry-breakpoint workaround (first-executable-line heuristic) rather
// than trust native stopOnEntry.
type RubyAdapter struct {
	rdbgPath string
}

func NewRubyAdapter(cfg config.RdbgConfig) *RubyAdapter {
	path := cfg.Path
	if path == "" {
		path = "rdbg"
	}
	return &RubyAdapter{rdbgPath: path}
}

func (r *RubyAdapter) Language() types.Language { return types.LanguageRuby }

func (r *RubyAdapter) Spawn(ctx context.Context, req LaunchRequest) (*Spawned, error) {
	port, err := socketutil.FindFreePort()
	if err != nil {
		return nil, fmt.Errorf("adapters: ruby find free port: %w", err)
	}

	rdbgArgs := []string{"--open", "--port", fmt.Sprintf("%d", port)}
	if req.StopOnEntry {
		rdbgArgs = append(rdbgArgs, "--stop-at-load")
	} else {
		rdbgArgs = append(rdbgArgs, "--nonstop")
	}
	rdbgArgs = append(rdbgArgs, req.Program)
	rdbgArgs = append(rdbgArgs, req.Args...)

	cmd := exec.CommandContext(ctx, r.rdbgPath, rdbgArgs...)
	cmd.Env = os.Environ()
	cmd.Stdin = nil
	cmd.Stderr = adapterStderr(req, "rdbg")
	setProcAttr(cmd)
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("adapters: start rdbg: %w", err)
	}

	conn, err := socketutil.ConnectWithRetry(port, rubyConnectDeadline)
	if err != nil {
		_ = killProcessGroup(cmd)
		return nil, fmt.Errorf("adapters: connect to rdbg: %w", err)
	}

	t := transport.NewSocket(conn)
	client := dapclient.New(t)

	launchArgs := map[string]interface{}{
		"type":    "rdbg",
		"request": "attach", // rdbg is already running the program; DAP attaches to it
	}
	if req.StopOnEntry {
		launchArgs["stopOnEntry"] = true
	}

	spawned := &Spawned{
		Client:     client,
		Cmd:        cmd,
		AdapterID:  "rdbg",
		LaunchArgs: launchArgs,
	}

	if req.StopOnEntry {
		if src, err := os.ReadFile(req.Program); err == nil {
			spawned.EntryBreakpointPath = req.Program
			spawned.EntryBreakpointLine = firstExecutableLine(string(src))
		}
	}

	return spawned, nil
}
