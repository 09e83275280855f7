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

// GoAdapter spawns `dlv dap` without --listen, which makes Delve speak
// DAP over its own stdin/stdout. Delve compiles the target package
// itself; we only hand it a source path or package path.
type GoAdapter struct {
	dlvPath    string
	buildFlags string
}

func NewGoAdapter(cfg config.DelveConfig) *GoAdapter {
	dlvPath := cfg.Path
	if dlvPath == "" {
		dlvPath = "dlv"
	}
	return &GoAdapter{dlvPath: dlvPath, buildFlags: cfg.BuildFlags}
}

func (g *GoAdapter) Language() types.Language { return types.LanguageGo }

func (g *GoAdapter) Spawn(ctx context.Context, req LaunchRequest) (*Spawned, error) {
	cmd := exec.CommandContext(ctx, g.dlvPath, "dap")
	cmd.Env = os.Environ()
	setProcAttr(cmd)
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("adapters: dlv stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("adapters: dlv stdout pipe: %w", err)
	}
	cmd.Stderr = adapterStderr(req, "dlv")

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("adapters: start dlv: %w", err)
	}

	t := transport.NewPipe(stdin, stdout)
	client := dapclient.New(t)

	launchArgs := map[string]interface{}{
		"mode":    "debug",
		"program": req.Program,
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
	if g.buildFlags != "" {
		launchArgs["buildFlags"] = g.buildFlags
	}

	return &Spawned{
		Client:     client,
		Cmd:        cmd,
		AdapterID:  "delve",
		LaunchArgs: launchArgs,
	}, nil
}
