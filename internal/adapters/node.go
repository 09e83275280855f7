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

const (
	nodeServerStartupDelay = 500 * time.Millisecond
	nodeConnectDeadline    = 2 * time.Second
)

// NodeAdapter spawns vscode-js-debug's dapDebugServer.js, a DAP-to-CDP
// translator that runs as a multi-session parent: it never stops on entry
// and never runs user code itself, instead sending a "startDebugging"
// reverse request that hands the session layer a pending target id to
// connect a child session to, on the same port.
type NodeAdapter struct {
	nodePath    string
	jsDebugPath string
}

func NewNodeAdapter(cfg config.NodeConfig) *NodeAdapter {
	nodePath := cfg.NodePath
	if nodePath == "" {
		nodePath = "node"
	}
	return &NodeAdapter{nodePath: nodePath, jsDebugPath: cfg.JsDebugPath}
}

func (n *NodeAdapter) Language() types.Language { return types.LanguageNodeJS }

func (n *NodeAdapter) Spawn(ctx context.Context, req LaunchRequest) (*Spawned, error) {
	if n.jsDebugPath == "" {
		return nil, fmt.Errorf("adapters: node.jsDebugPath not configured; vscode-js-debug's dapDebugServer.js is required")
	}

	port, err := socketutil.FindFreePort()
	if err != nil {
		return nil, fmt.Errorf("adapters: node find free port: %w", err)
	}

	cmd := exec.CommandContext(ctx, n.nodePath, n.jsDebugPath, fmt.Sprintf("%d", port), "127.0.0.1")
	cmd.Env = os.Environ()
	cmd.Stdin = nil
	cmd.Stderr = adapterStderr(req, "vscode-js-debug")
	setProcAttr(cmd)
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("adapters: start vscode-js-debug: %w", err)
	}

	// dapDebugServer.js takes a moment to bind; give it a head start before
	// the connect-with-retry loop below starts dialing.
	time.Sleep(nodeServerStartupDelay)

	conn, err := socketutil.ConnectWithRetry(port, nodeConnectDeadline)
	if err != nil {
		_ = killProcessGroup(cmd)
		return nil, fmt.Errorf("adapters: connect to vscode-js-debug: %w", err)
	}

	t := transport.NewSocket(conn)
	client := dapclient.New(t)

	launchArgs := n.buildLaunchArgs(req)

	return &Spawned{
		Client:     client,
		Cmd:        cmd,
		AdapterID:  "pwa-node",
		LaunchArgs: launchArgs,
		Port:       port,
	}, nil
}

func (n *NodeAdapter) buildLaunchArgs(req LaunchRequest) map[string]interface{} {
	args := map[string]interface{}{
		"type":    "pwa-node",
		"request": "launch",
		"program": req.Program,
		"console": "internalConsole",
		// The parent never stops on entry; the session layer implements the
		// entry-breakpoint workaround on the child once it connects.
		"stopOnEntry": false,
	}
	if len(req.Args) > 0 {
		args["args"] = req.Args
	}
	if req.Cwd != "" {
		args["cwd"] = req.Cwd
	}
	return args
}

// ConnectChild opens a second TCP connection to the SAME port the parent
// is listening on, per the vscode-js-debug multi-session contract, and
// wraps it in its own dapclient.Client.
func (n *NodeAdapter) ConnectChild(ctx context.Context, port int) (*dapclient.Client, error) {
	conn, err := socketutil.ConnectWithRetry(port, nodeConnectDeadline)
	if err != nil {
		return nil, fmt.Errorf("adapters: connect node child session: %w", err)
	}
	return dapclient.New(transport.NewSocket(conn)), nil
}

// BuildChildLaunchArgs builds the launch arguments sent to a freshly
// connected child: the launch arguments mirror the parent's, plus the
// pendingTargetId vscode-js-debug uses to bind this connection to the
// specific target the startDebugging reverse request named.
func (n *NodeAdapter) BuildChildLaunchArgs(req LaunchRequest, pendingTargetID string) map[string]interface{} {
	args := n.buildLaunchArgs(req)
	args["__pendingTargetId"] = pendingTargetID
	return args
}
