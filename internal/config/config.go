// Package config provides configuration management for the debugger bridge
// server: capability mode, per-language adapter paths and flags, and the
// safety limits applied to the session registry.
package config

import (
	"encoding/json"
	"os"
	"os/exec"
	"time"
)

// CapabilityMode controls which tool surface is exposed.
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // inspection-only tools
	ModeFull     CapabilityMode = "full"     // full debugging control
)

// Config holds the server configuration.
type Config struct {
	Mode         CapabilityMode `json:"mode"`
	AllowSpawn   bool           `json:"allowSpawn"`
	AllowAttach  bool           `json:"allowAttach"`
	AllowModify  bool           `json:"allowModify"`
	AllowExecute bool           `json:"allowExecute"`

	Adapters AdapterConfigs `json:"adapters"`

	MaxSessions    int           `json:"maxSessions"`
	SessionTimeout time.Duration `json:"sessionTimeout"`
}

// AdapterConfigs holds per-language adapter settings.
type AdapterConfigs struct {
	Python DebugpyConfig `json:"python"`
	Ruby   RdbgConfig    `json:"ruby"`
	Node   NodeConfig    `json:"node"`
	Go     DelveConfig   `json:"go"`
	Rust   CodeLLDBConfig `json:"rust"`
}

// DebugpyConfig holds debugpy-specific configuration. debugpy.adapter is
// spawned without --host/--port so it speaks DAP over stdio.
type DebugpyConfig struct {
	PythonPath string `json:"pythonPath"`
}

// RdbgConfig holds rdbg (ruby/debug)-specific configuration.
type RdbgConfig struct {
	Path string `json:"path"`
}

// NodeConfig holds vscode-js-debug-specific configuration.
type NodeConfig struct {
	NodePath    string `json:"nodePath"`
	JsDebugPath string `json:"jsDebugPath"` // path to vscode-js-debug's dapDebugServer.js
}

// DelveConfig holds Delve-specific configuration.
type DelveConfig struct {
	Path       string `json:"path"`
	BuildFlags string `json:"buildFlags"`
}

// CodeLLDBConfig holds CodeLLDB-specific configuration, plus the toolchain
// paths needed to compile a Rust source file before launching it.
type CodeLLDBConfig struct {
	Path       string `json:"path"` // path to the codelldb adapter binary
	RustcPath  string `json:"rustcPath"`
	CargoPath  string `json:"cargoPath"`
}

func findCodeLLDB() string {
	if path, err := exec.LookPath("codelldb"); err == nil {
		return path
	}
	locations := []string{
		"/usr/local/bin/codelldb",
		"/opt/homebrew/bin/codelldb",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return "codelldb"
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeFull,
		AllowSpawn:     true,
		AllowAttach:    true,
		AllowModify:    true,
		AllowExecute:   true,
		MaxSessions:    10,
		SessionTimeout: 30 * time.Minute,
		Adapters: AdapterConfigs{
			Python: DebugpyConfig{PythonPath: "python3"},
			Ruby:   RdbgConfig{Path: "rdbg"},
			Node:   NodeConfig{NodePath: "node"},
			Go:     DelveConfig{Path: "dlv"},
			Rust: CodeLLDBConfig{
				Path:      findCodeLLDB(),
				RustcPath: "rustc",
				CargoPath: "cargo",
			},
		},
	}
}

// LoadConfig loads configuration from a JSON file, falling back to
// DefaultConfig for an empty path.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CanUseControlTools reports whether execution-control tools (continue,
// step, pause, evaluate with side effects) are exposed.
func (c *Config) CanUseControlTools() bool { return c.Mode == ModeFull }

// CanSpawn reports whether debugger_start may spawn new sessions.
func (c *Config) CanSpawn() bool { return c.AllowSpawn }
