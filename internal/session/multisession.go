package session

import (
	"sync"

	"github.com/ctagard/debugger-bridge/internal/apperrors"
	"github.com/ctagard/debugger-bridge/internal/dapclient"
)

// childSession is one multi-session child: its own DAP client plus the
// adapter sub-type vscode-js-debug reported it as (e.g. "pwa-node").
type childSession struct {
	id      string
	client  *dapclient.Client
	port    int
	subType string
}

// MultiSessionManager tracks a Node.js-style multi-session parent's
// children: the first child added becomes active; removing the active
// child promotes the next one or clears active if none remain. Children
// never appear in the Session Registry — only the parent session does.
type MultiSessionManager struct {
	mu       sync.Mutex
	children []*childSession
	active   string
}

func newMultiSessionManager() *MultiSessionManager {
	return &MultiSessionManager{}
}

// AddChild registers a new child; if there is no active child yet, this
// one becomes active.
func (m *MultiSessionManager) AddChild(id string, client *dapclient.Client, port int, subType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children = append(m.children, &childSession{id: id, client: client, port: port, subType: subType})
	if m.active == "" {
		m.active = id
	}
}

// RemoveChild drops a child, promoting the next one to active if it was
// the active one, or clearing active if none remain.
func (m *MultiSessionManager) RemoveChild(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.children {
		if c.id == id {
			m.children = append(m.children[:i], m.children[i+1:]...)
			break
		}
	}
	if m.active == id {
		if len(m.children) > 0 {
			m.active = m.children[0].id
		} else {
			m.active = ""
		}
	}
}

// SetActive switches routing to the named child.
func (m *MultiSessionManager) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.children {
		if c.id == id {
			m.active = id
			return nil
		}
	}
	return apperrors.NotFound(id)
}

// ActiveClient returns the DAP client operations should route to.
func (m *MultiSessionManager) ActiveClient() (*dapclient.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return nil, apperrors.InvalidState("multi-session routing", []string{"has an active child"}, "no active child")
	}
	for _, c := range m.children {
		if c.id == m.active {
			return c.client, nil
		}
	}
	return nil, apperrors.InvalidState("multi-session routing", []string{"has an active child"}, "active child missing")
}
