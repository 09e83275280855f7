package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/ctagard/debugger-bridge/internal/config"
	"github.com/ctagard/debugger-bridge/internal/dapclient"
	"github.com/ctagard/debugger-bridge/internal/transport"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

// PythonAdapter spawns debugpy.adapter without --host/--port, which puts
// it in stdio mode: the adapter itself manages the separate connection to
// the debuggee it launches, while we talk DAP over its stdin/stdout.
type PythonAdapter struct {
	pythonPath string
}

func NewPythonAdapter(cfg config.DebugpyConfig) *PythonAdapter {
	pythonPath := cfg.PythonPath
	if pythonPath == "" {
		pythonPath = "python3"
	}
	return &PythonAdapter{pythonPath: pythonPath}
}

func (p *PythonAdapter) Language() types.Language { return types.LanguagePython }

func (p *PythonAdapter) Spawn(ctx context.Context, req LaunchRequest) (*Spawned, error) {
	cmd := exec.CommandContext(ctx, p.pythonPath, "-m", "debugpy.adapter")
	cmd.Env = os.Environ()
	setProcAttr(cmd)
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("adapters: debugpy stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("adapters: debugpy stdout pipe: %w", err)
	}
	cmd.Stderr = adapterStderr(req, "debugpy")

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("adapters: start debugpy: %w", err)
	}

	t := transport.NewPipe(stdin, stdout)
	client := dapclient.New(t)

	launchArgs := map[string]interface{}{
		"type":    "python",
		"request": "launch",
		"program": req.Program,
		"console": "internalConsole",
	}
	if len(req.Args) > 0 {
		launchArgs["args"] = req.Args
	}
	if req.Cwd != "" {
		launchArgs["cwd"] = req.Cwd
	}
	if req.StopOnEntry {
		launchArgs["stopOnEntry"] = true
	}

	return &Spawned{
		Client:     client,
		Cmd:        cmd,
		AdapterID:  "debugpy",
		LaunchArgs: launchArgs,
	}, nil
}
