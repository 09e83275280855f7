package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/debugger-bridge/pkg/types"
)

func TestAddSpecDedupesSameLine(t *testing.T) {
	s, _ := newTestSession(t, types.LanguagePython)
	s.addSpec("/app/main.py", breakpointSpec{Line: 5, Condition: "a"})
	s.addSpec("/app/main.py", breakpointSpec{Line: 5, Condition: "b"})

	s.bpMu.Lock()
	specs := s.specs["/app/main.py"]
	s.bpMu.Unlock()
	require.Len(t, specs, 1)
	assert.Equal(t, "b", specs[0].Condition)
}

func TestListBreakpointsMixesPendingAndInstalled(t *testing.T) {
	s, a := newTestSession(t, types.LanguagePython)
	_, err := s.SetBreakpoint("/app/a.py", 1, "", "")
	require.NoError(t, err)

	s.Run(context.Background(), a)
	require.Eventually(t, func() bool { return s.State().Kind == types.StateRunning }, 2*time.Second, 10*time.Millisecond)

	_, err = s.SetBreakpoint("/app/b.py", 2, "", "")
	require.NoError(t, err)

	list := s.ListBreakpoints()
	var sawA, sawB bool
	for _, bp := range list {
		if bp.SourcePath == "/app/a.py" {
			sawA = true
		}
		if bp.SourcePath == "/app/b.py" {
			sawB = true
			assert.True(t, bp.Verified)
		}
	}
	assert.True(t, sawA)
	assert.True(t, sawB)
}

func TestFlushSourceRecordsResolvedLine(t *testing.T) {
	s, a := runToRunning(t, types.LanguagePython)

	bp, err := s.SetBreakpoint("/app/main.py", 20, "", "")
	require.NoError(t, err)
	assert.Equal(t, 20, bp.ResolvedLine)
	assert.True(t, bp.Verified)
}

func TestMinInt(t *testing.T) {
	assert.Equal(t, 1, minInt(1, 2))
	assert.Equal(t, 2, minInt(5, 2))
}
