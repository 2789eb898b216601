package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/pagetalk/pkg/model"
	"github.com/m-mizutani/pagetalk/pkg/repository"
	"github.com/m-mizutani/pagetalk/pkg/utils/logging"
)

// Registry holds the named agent profiles and tracks the active one.
// The registry always contains at least one agent.
type Registry struct {
	mu       sync.Mutex
	repo     repository.Repository
	agents   []*model.Agent
	activeID model.AgentID
}

// NewRegistry creates a registry seeded with a single default agent.
func NewRegistry() *Registry {
	agent := model.NewAgent("Default Agent")
	return &Registry{
		agents:   []*model.Agent{agent},
		activeID: agent.ID,
	}
}

// LoadRegistry restores the registry from the repository, seeding the
// default agent when nothing has been persisted yet.
func LoadRegistry(ctx context.Context, repo repository.Repository) (*Registry, error) {
	agents, err := repo.ListAgents(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load agents")
	}

	r := &Registry{repo: repo}
	if len(agents) == 0 {
		agent := model.NewAgent("Default Agent")
		r.agents = []*model.Agent{agent}
		r.activeID = agent.ID
		if err := r.persist(ctx); err != nil {
			return nil, err
		}
		return r, nil
	}

	r.agents = agents
	activeID, err := repo.ActiveAgentID(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load active agent")
	}
	r.activeID = r.agents[0].ID
	for _, a := range agents {
		if a.ID == activeID {
			r.activeID = activeID
			break
		}
	}

	return r, nil
}

// UpdateInput carries the fields to change; nil fields are left as-is.
type UpdateInput struct {
	Name            *string
	SystemPrompt    *string
	Temperature     *float64
	MaxOutputTokens *int
	TopP            *float64
}

// Create appends a new agent with default parameters. It does not
// activate the new agent.
func (r *Registry) Create(ctx context.Context, name string) (*model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		name = fmt.Sprintf("Agent %d", len(r.agents)+1)
	}
	agent := model.NewAgent(name)
	r.agents = append(r.agents, agent)

	if err := r.persist(ctx); err != nil {
		r.agents = r.agents[:len(r.agents)-1]
		return nil, err
	}

	logging.From(ctx).Info("agent created", "agent_id", agent.ID, "name", agent.Name)
	return agent.Clone(), nil
}

// Update modifies an existing agent. An empty name is normalized to a
// default label rather than rejected.
func (r *Registry) Update(ctx context.Context, id model.AgentID, input UpdateInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent := r.find(id)
	if agent == nil {
		return goerr.Wrap(model.ErrAgentNotFound, "cannot update agent", goerr.V("agent_id", id))
	}

	updated := agent.Clone()
	if input.Name != nil {
		updated.Name = *input.Name
		if updated.Name == "" {
			updated.Name = model.DefaultAgentName
		}
	}
	if input.SystemPrompt != nil {
		updated.SystemPrompt = *input.SystemPrompt
	}
	if input.Temperature != nil {
		updated.Temperature = *input.Temperature
	}
	if input.MaxOutputTokens != nil {
		updated.MaxOutputTokens = *input.MaxOutputTokens
	}
	if input.TopP != nil {
		updated.TopP = *input.TopP
	}
	if err := updated.Validate(); err != nil {
		return err
	}

	// commit to memory only once the repository accepted the change
	prev := agent.Clone()
	*agent = *updated
	if err := r.persist(ctx); err != nil {
		*agent = *prev
		return err
	}
	return nil
}

// Delete removes an agent. Deleting the last remaining agent is rejected.
// When the removed agent was active, the first remaining agent in registry
// order becomes active.
func (r *Registry) Delete(ctx context.Context, id model.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, a := range r.agents {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return goerr.Wrap(model.ErrAgentNotFound, "cannot delete agent", goerr.V("agent_id", id))
	}
	if len(r.agents) == 1 {
		return goerr.Wrap(model.ErrLastAgent, "at least one agent must remain")
	}

	remaining := make([]*model.Agent, 0, len(r.agents)-1)
	remaining = append(remaining, r.agents[:idx]...)
	remaining = append(remaining, r.agents[idx+1:]...)

	prevAgents, prevActive := r.agents, r.activeID
	r.agents = remaining
	if r.activeID == id {
		r.activeID = r.agents[0].ID
	}

	if err := r.persist(ctx); err != nil {
		r.agents, r.activeID = prevAgents, prevActive
		return err
	}
	return nil
}

// Activate makes the agent active. Switching agents changes future
// generation parameters only; conversation history is untouched.
func (r *Registry) Activate(ctx context.Context, id model.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(id) == nil {
		return goerr.Wrap(model.ErrAgentNotFound, "cannot activate agent", goerr.V("agent_id", id))
	}

	prev := r.activeID
	r.activeID = id
	if err := r.persist(ctx); err != nil {
		r.activeID = prev
		return err
	}
	return nil
}

// Active returns the active agent. Reads go through the registry so that
// a profile switch takes effect on the next generation call.
func (r *Registry) Active() *model.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if agent := r.find(r.activeID); agent != nil {
		return agent.Clone()
	}
	return r.agents[0].Clone()
}

// List returns the agents in registry order.
func (r *Registry) List() []*model.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents := make([]*model.Agent, len(r.agents))
	for i, a := range r.agents {
		agents[i] = a.Clone()
	}
	return agents
}

// FindByName returns the first agent with the given name.
func (r *Registry) FindByName(name string) (*model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.agents {
		if a.Name == name {
			return a.Clone(), nil
		}
	}
	return nil, goerr.Wrap(model.ErrAgentNotFound, "no agent with name", goerr.V("name", name))
}

func (r *Registry) find(id model.AgentID) *model.Agent {
	for _, a := range r.agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (r *Registry) persist(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	if err := r.repo.SaveAgents(ctx, r.agents, r.activeID); err != nil {
		return goerr.Wrap(err, "failed to persist agents")
	}
	return nil
}
