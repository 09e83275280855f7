package session

import (
	"context"
	"encoding/json"

	"github.com/google/go-dap"
	"github.com/google/uuid"

	"github.com/ctagard/debugger-bridge/internal/adapters"
	"github.com/ctagard/debugger-bridge/internal/apperrors"
	"github.com/ctagard/debugger-bridge/internal/dapclient"
)

// installReverseRequestHandler wires the single reverse-request callback
// vscode-js-debug's "startDebugging" request drives: it opens a second
// connection to the same port, initializes and launches a child session
// on it, and forwards the child's events into this session's own state.
func (s *Session) installReverseRequestHandler(msa adapters.MultiSessionAdapter, req adapters.LaunchRequest) {
	s.client.SetReverseRequestHandler(func(command string, arguments json.RawMessage) (interface{}, error) {
		if command != "startDebugging" {
			return nil, apperrors.MethodNotFound(command)
		}

		var body struct {
			Configuration json.RawMessage `json:"configuration"`
			Request       string          `json:"request"`
		}
		if err := json.Unmarshal(arguments, &body); err != nil {
			return nil, err
		}

		targetID := extractPendingTargetID(body.Configuration)
		go s.connectChild(msa, req, targetID)

		return map[string]interface{}{}, nil
	})
}

// extractPendingTargetID accepts either of the two field names vscode-js-debug
// has used across versions for the same concept: __jsDebugChildServer or
// __pendingTargetId.
func extractPendingTargetID(configuration json.RawMessage) string {
	var fields struct {
		JsDebugChildServer json.Number `json:"__jsDebugChildServer"`
		PendingTargetID    string      `json:"__pendingTargetId"`
	}
	_ = json.Unmarshal(configuration, &fields)
	if fields.PendingTargetID != "" {
		return fields.PendingTargetID
	}
	return fields.JsDebugChildServer.String()
}

// connectChild implements the Node.js multi-session child spawn sequence:
// open a second TCP connection to the parent's port, register event
// forwarding, initialize, set the line-1 entry breakpoint if stopOnEntry
// was requested (the parent itself never stops on entry), launch with the
// pending target id, then configurationDone.
func (s *Session) connectChild(msa adapters.MultiSessionAdapter, req adapters.LaunchRequest, targetID string) {
	s.mu.Lock()
	port := s.port
	adapterID := s.adapterID
	multi := s.multiSession
	s.mu.Unlock()

	childClient, err := msa.ConnectChild(context.Background(), port)
	if err != nil {
		s.fail(err)
		return
	}

	s.subscribeEvents(childClient)

	if _, err := childClient.Initialize(adapterID); err != nil {
		s.fail(err)
		return
	}

	if req.StopOnEntry {
		_, _ = childClient.SetBreakpoints(dap.Source{Path: req.Program}, []dap.SourceBreakpoint{{Line: 1}})
	}

	launchArgs := msa.BuildChildLaunchArgs(req, targetID)
	launchCh, err := childClient.LaunchAsync(launchArgs)
	if err != nil {
		s.fail(err)
		return
	}

	if err := childClient.ConfigurationDone(); err != nil {
		s.fail(err)
		return
	}

	if err := childClient.AwaitLaunch(launchCh, dapclient.LaunchTimeout); err != nil {
		s.fail(err)
		return
	}

	childID := uuid.NewString()
	multi.AddChild(childID, childClient, port, "pwa-node")
}
