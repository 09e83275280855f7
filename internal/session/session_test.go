package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/debugger-bridge/internal/apperrors"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

func TestSessionRunReachesRunning(t *testing.T) {
	s, a := newTestSession(t, types.LanguagePython)
	s.Run(context.Background(), a)

	require.Eventually(t, func() bool {
		return s.State().Kind == types.StateRunning
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionRunFailsOnSpawnError(t *testing.T) {
	s, a := newTestSession(t, types.LanguagePython)
	a.spawnErr = apperrors.New(apperrors.KindAdapterSpawnError, "boom")
	s.Run(context.Background(), a)

	st := s.State()
	assert.Equal(t, types.StateFailed, st.Kind)
	assert.Error(t, st.Err)
}

func runToRunning(t *testing.T, lang types.Language) (*Session, *fakeAdapter) {
	t.Helper()
	s, a := newTestSession(t, lang)
	s.Run(context.Background(), a)
	require.Eventually(t, func() bool { return s.State().Kind == types.StateRunning }, 2*time.Second, 10*time.Millisecond)
	return s, a
}

func TestSessionSetBreakpointBeforeStartIsBuffered(t *testing.T) {
	s, _ := newTestSession(t, types.LanguagePython)
	bp, err := s.SetBreakpoint("/app/main.py", 5, "", "")
	require.NoError(t, err)
	assert.True(t, bp.Verified)
	assert.Equal(t, 5, bp.Line)

	list := s.ListBreakpoints()
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].Line)
}

func TestSessionSetBreakpointAfterRunningFlushesImmediately(t *testing.T) {
	s, _ := runToRunning(t, types.LanguagePython)

	bp, err := s.SetBreakpoint("/app/main.py", 12, "x > 0", "")
	require.NoError(t, err)
	assert.True(t, bp.Verified)
	assert.Equal(t, 12, bp.ResolvedLine)
}

func TestSessionSetBreakpointRejectedWhenTerminated(t *testing.T) {
	s, _ := runToRunning(t, types.LanguagePython)
	require.NoError(t, s.Disconnect())

	_, err := s.SetBreakpoint("/app/main.py", 5, "", "")
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.KindInvalidState, appErr.Kind)
}

func stopSession(t *testing.T, s *Session, a *fakeAdapter, threadID int, reason string) {
	t.Helper()
	a.lastServer.sendStopped(threadID, reason)
	require.Eventually(t, func() bool { return s.State().Kind == types.StateStopped }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionContinueRequiresStopped(t *testing.T) {
	s, _ := runToRunning(t, types.LanguagePython)
	err := s.Continue(1)
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.KindInvalidState, appErr.Kind)
}

func TestSessionContinueFromStopped(t *testing.T) {
	s, a := runToRunning(t, types.LanguagePython)
	stopSession(t, s, a, 1, "breakpoint")

	require.NoError(t, s.Continue(1))
}

func TestSessionStepOperations(t *testing.T) {
	s, a := runToRunning(t, types.LanguagePython)
	stopSession(t, s, a, 1, "step")

	assert.NoError(t, s.StepOver(1))
	stopSession(t, s, a, 1, "step")
	assert.NoError(t, s.StepInto(1))
	stopSession(t, s, a, 1, "step")
	assert.NoError(t, s.StepOut(1))
}

func TestSessionPauseRequiresRunning(t *testing.T) {
	s, a := runToRunning(t, types.LanguagePython)
	require.NoError(t, s.Pause(1))

	stopSession(t, s, a, 1, "pause")
	err := s.Pause(1)
	require.Error(t, err)
}

func TestSessionStackTrace(t *testing.T) {
	s, a := runToRunning(t, types.LanguagePython)
	stopSession(t, s, a, 1, "breakpoint")

	frames, err := s.StackTrace(0)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "main", frames[0].Name)
	assert.Equal(t, "/app/main.py", frames[0].Source.Path)
}

func TestSessionEvaluateImplicitFrame(t *testing.T) {
	s, a := runToRunning(t, types.LanguagePython)
	stopSession(t, s, a, 1, "breakpoint")

	result, typ, err := s.Evaluate("1 + 1", 0, "repl")
	require.NoError(t, err)
	assert.Equal(t, "42", result)
	assert.Equal(t, "int", typ)
}

func TestSessionEvaluateImplicitFrameRequiresStopped(t *testing.T) {
	s, _ := runToRunning(t, types.LanguagePython)
	_, _, err := s.Evaluate("1 + 1", 0, "repl")
	require.Error(t, err)
}

func TestSessionDisconnectTerminates(t *testing.T) {
	s, _ := runToRunning(t, types.LanguagePython)
	require.NoError(t, s.Disconnect())
	assert.Equal(t, types.StateTerminated, s.State().Kind)
}

func TestSessionWaitForStopTimesOut(t *testing.T) {
	s, _ := runToRunning(t, types.LanguagePython)
	_, err := s.WaitForStop(50 * time.Millisecond)
	require.Error(t, err)
}

func TestSessionWaitForStopReturnsImmediatelyWhenAlreadyStopped(t *testing.T) {
	s, a := runToRunning(t, types.LanguagePython)
	stopSession(t, s, a, 3, "breakpoint")

	st, err := s.WaitForStop(time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.StateStopped, st.Kind)
	assert.Equal(t, 3, st.ThreadID)
}
