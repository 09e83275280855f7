package session

import (
	"github.com/google/go-dap"

	"github.com/ctagard/debugger-bridge/internal/apperrors"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

// addSpec records or updates a breakpoint spec for sourcePath, replacing
// any existing spec at the same line so that setting the same breakpoint
// twice installs a single entry rather than a duplicate.
func (s *Session) addSpec(sourcePath string, spec breakpointSpec) {
	s.bpMu.Lock()
	defer s.bpMu.Unlock()

	list := s.specs[sourcePath]
	for i, existing := range list {
		if existing.Line == spec.Line {
			list[i] = spec
			s.specs[sourcePath] = list
			return
		}
	}
	s.specs[sourcePath] = append(list, spec)
}

// flushAll sends every accumulated source's breakpoint specs to the
// adapter, grouped by source, and is called once after the "initialized"
// event and before configurationDone — DAP requires breakpoints be
// installed before that point.
func (s *Session) flushAll() {
	s.bpMu.Lock()
	sources := make([]string, 0, len(s.specs))
	for src := range s.specs {
		sources = append(sources, src)
	}
	s.bpMu.Unlock()

	for _, src := range sources {
		if _, err := s.flushSource(src); err != nil {
			s.logger.Printf("session %s: flush breakpoints for %s: %v", s.ID, src, err)
		}
	}

	s.bpMu.Lock()
	s.flushed = true
	s.bpMu.Unlock()
}

// flushSource sends the full spec list for one source to the adapter and
// records the results.
func (s *Session) flushSource(sourcePath string) ([]types.Breakpoint, error) {
	c, err := s.activeClient()
	if err != nil {
		return nil, err
	}

	s.bpMu.Lock()
	specs := append([]breakpointSpec{}, s.specs[sourcePath]...)
	s.bpMu.Unlock()

	dapBps := make([]dap.SourceBreakpoint, len(specs))
	for i, sp := range specs {
		dapBps[i] = dap.SourceBreakpoint{
			Line:         sp.Line,
			Condition:    sp.Condition,
			HitCondition: sp.HitCondition,
		}
	}

	resp, err := c.SetBreakpoints(dap.Source{Path: sourcePath}, dapBps)
	if err != nil {
		return nil, err
	}

	results := make([]types.Breakpoint, len(resp))
	for i, bp := range resp {
		results[i] = types.Breakpoint{
			SourcePath:   sourcePath,
			Line:         specs[minInt(i, len(specs)-1)].Line,
			Condition:    specs[minInt(i, len(specs)-1)].Condition,
			HitCondition: specs[minInt(i, len(specs)-1)].HitCondition,
			Verified:     bp.Verified,
			ID:           bp.Id,
			ResolvedLine: bp.Line,
		}
	}

	s.bpMu.Lock()
	s.results[sourcePath] = results
	s.bpMu.Unlock()

	return results, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SetBreakpoint installs or queues one breakpoint. Legal in any
// non-terminal state: before Initialized it is buffered and reported as
// verified=true (best effort); once Initialized, Running, or Stopped it
// is forwarded to the adapter immediately.
func (s *Session) SetBreakpoint(sourcePath string, line int, condition, hitCondition string) (types.Breakpoint, error) {
	st := s.State()
	if st.Terminal() {
		return types.Breakpoint{}, apperrors.InvalidState("debugger_set_breakpoint",
			[]string{string(types.StateNotStarted), string(types.StateInitializing), string(types.StateInitialized), string(types.StateRunning), string(types.StateStopped)},
			string(st.Kind))
	}

	s.addSpec(sourcePath, breakpointSpec{Line: line, Condition: condition, HitCondition: hitCondition})

	if st.Kind == types.StateNotStarted || st.Kind == types.StateInitializing {
		return types.Breakpoint{
			SourcePath: sourcePath,
			Line:       line,
			Condition:  condition,
			HitCondition: hitCondition,
			Verified:   true,
		}, nil
	}

	results, err := s.flushSource(sourcePath)
	if err != nil {
		return types.Breakpoint{}, err
	}
	for _, r := range results {
		if r.Line == line || r.ResolvedLine == line {
			return r, nil
		}
	}
	if len(results) > 0 {
		return results[len(results)-1], nil
	}
	return types.Breakpoint{SourcePath: sourcePath, Line: line, Condition: condition, HitCondition: hitCondition}, nil
}

// ListBreakpoints returns the union of installed and still-pending
// breakpoints across all sources.
func (s *Session) ListBreakpoints() []types.Breakpoint {
	s.bpMu.Lock()
	defer s.bpMu.Unlock()

	var out []types.Breakpoint
	for src, specs := range s.specs {
		if results, ok := s.results[src]; ok && len(results) == len(specs) {
			out = append(out, results...)
			continue
		}
		for _, sp := range specs {
			out = append(out, types.Breakpoint{
				SourcePath:   src,
				Line:         sp.Line,
				Condition:    sp.Condition,
				HitCondition: sp.HitCondition,
				Verified:     true,
			})
		}
	}
	return out
}
