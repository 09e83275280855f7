package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/debugger-bridge/internal/config"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

func TestRegistryGetKnownLanguages(t *testing.T) {
	reg := NewRegistry(config.DefaultConfig())
	for _, lang := range types.SupportedLanguages {
		a, err := reg.Get(lang)
		require.NoError(t, err, "language %s", lang)
		assert.Equal(t, lang, a.Language())
	}
}

func TestRegistryGetUnknownLanguage(t *testing.T) {
	reg := NewRegistry(config.DefaultConfig())
	_, err := reg.Get(types.Language("cobol"))
	assert.Error(t, err)
}

func TestNodeAdapterBuildLaunchArgs(t *testing.T) {
	n := NewNodeAdapter(config.NodeConfig{NodePath: "node", JsDebugPath: "/opt/dapDebugServer.js"})
	req := LaunchRequest{Program: "/app/index.js", Args: []string{"--flag"}, Cwd: "/app", StopOnEntry: true}

	args := n.buildLaunchArgs(req)
	assert.Equal(t, "pwa-node", args["type"])
	assert.Equal(t, "/app/index.js", args["program"])
	assert.Equal(t, []string{"--flag"}, args["args"])
	assert.Equal(t, "/app", args["cwd"])
	// The parent never natively stops on entry; the session layer handles
	// that via the child connection instead.
	assert.Equal(t, false, args["stopOnEntry"])
}

func TestNodeAdapterBuildChildLaunchArgs(t *testing.T) {
	n := NewNodeAdapter(config.NodeConfig{NodePath: "node", JsDebugPath: "/opt/dapDebugServer.js"})
	req := LaunchRequest{Program: "/app/index.js"}

	args := n.BuildChildLaunchArgs(req, "target-123")
	assert.Equal(t, "target-123", args["__pendingTargetId"])
	assert.Equal(t, "/app/index.js", args["program"])
}
