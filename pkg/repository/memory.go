package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/pagetalk/pkg/model"
)

// Memory is an in-process Repository for tests and ephemeral runs.
type Memory struct {
	mu       sync.RWMutex
	settings model.Settings
	agents   []*model.Agent
	activeID model.AgentID
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) GetSettings(ctx context.Context) (*model.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.settings
	return &s, nil
}

func (m *Memory) PutSettings(ctx context.Context, settings *model.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = *settings
	return nil
}

func (m *Memory) ListAgents(ctx context.Context) ([]*model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agents := make([]*model.Agent, len(m.agents))
	for i, a := range m.agents {
		agents[i] = a.Clone()
	}
	return agents, nil
}

func (m *Memory) SaveAgents(ctx context.Context, agents []*model.Agent, activeID model.AgentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents = make([]*model.Agent, len(agents))
	for i, a := range agents {
		m.agents[i] = a.Clone()
	}
	m.activeID = activeID
	return nil
}

func (m *Memory) ActiveAgentID(ctx context.Context) (model.AgentID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeID, nil
}

func (m *Memory) Close() error {
	return nil
}
