package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ctagard/debugger-bridge/internal/config"
	"github.com/ctagard/debugger-bridge/internal/mcpserver"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	mode := flag.String("mode", "", "Capability mode: 'readonly' or 'full' (default: the config file's mode, else full)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println("debugger-bridge version 0.1.0")
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	switch *mode {
	case "":
		// No flag given: keep the mode from the configuration file.
	case "readonly":
		cfg.Mode = config.ModeReadOnly
	case "full":
		cfg.Mode = config.ModeFull
	default:
		log.Fatalf("unknown mode %q: must be 'readonly' or 'full'", *mode)
	}

	logger := log.New(os.Stderr, "debugger-bridge: ", log.LstdFlags)
	srv := mcpserver.NewServer(cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Println("shutting down...")
		srv.Shutdown()
		os.Exit(0)
	}()

	logger.Println("debugger bridge server starting...")
	if err := srv.ServeStdio(); err != nil {
		srv.Shutdown()
		log.Fatalf("server error: %v", err)
	}
	srv.Shutdown()
}

func printHelp() {
	fmt.Println(`debugger-bridge: Debug Adapter Protocol bridge for MCP clients

A Model Context Protocol server that exposes Debug Adapter Protocol
sessions to LLM agents, so they can launch, break into, step through,
and inspect running programs.

USAGE:
    debugger-bridge [OPTIONS]

OPTIONS:
    -config <path>   Path to configuration file (JSON)
    -mode <mode>     Capability mode: 'readonly' or 'full'; overrides the
                     config file's "mode" (default: the config file's mode,
                     else full)
    -version         Show version and exit
    -help            Show this help message

SUPPORTED LANGUAGES:
    - Python (via debugpy)
    - Ruby (via rdbg / ruby/debug)
    - Node.js (via vscode-js-debug)
    - Go (via Delve)
    - Rust (via CodeLLDB)

CONFIGURATION:
    {
        "mode": "full",
        "allowSpawn": true,
        "allowAttach": true,
        "allowModify": true,
        "allowExecute": true,
        "maxSessions": 10,
        "sessionTimeout": 1800000000000,
        "adapters": {
            "python": {"pythonPath": "python3"},
            "ruby":   {"path": "rdbg"},
            "node":   {"nodePath": "node", "jsDebugPath": "/path/to/dapDebugServer.js"},
            "go":     {"path": "dlv", "buildFlags": ""},
            "rust":   {"path": "codelldb", "rustcPath": "rustc", "cargoPath": "cargo"}
        }
    }

MCP INTEGRATION:
    {
        "mcpServers": {
            "debugger-bridge": {
                "command": "debugger-bridge",
                "args": ["-mode", "full"]
            }
        }
    }

TOOLS:
    debugger_start            Launch a new debug session
    debugger_session_state    Query a session's lifecycle state
    debugger_set_breakpoint   Set (or queue) a breakpoint
    debugger_list_breakpoints List all breakpoints for a session
    debugger_continue         Resume execution
    debugger_step_over        Step over the current line
    debugger_step_into        Step into the current call
    debugger_step_out         Step out of the current frame
    debugger_pause            Pause a running session
    debugger_stack_trace      Get the stopped thread's call stack
    debugger_evaluate         Evaluate an expression
    debugger_wait_for_stop    Block until the session stops or terminates
    debugger_disconnect       End a debug session
`)
}
