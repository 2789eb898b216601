package repository

import (
	"context"

	"github.com/m-mizutani/pagetalk/pkg/model"
)

// Repository is the durable store for settings and agent profiles.
// A missing key implies the default value; no schema versioning is kept.
type Repository interface {
	// GetSettings loads the persisted settings. Missing values are zero;
	// the caller applies defaults.
	GetSettings(ctx context.Context) (*model.Settings, error)

	// PutSettings stores the settings wholesale.
	PutSettings(ctx context.Context, settings *model.Settings) error

	// ListAgents returns the agent profiles in registry order.
	ListAgents(ctx context.Context) ([]*model.Agent, error)

	// SaveAgents replaces the stored profile list and the active agent ID.
	SaveAgents(ctx context.Context, agents []*model.Agent, activeID model.AgentID) error

	// ActiveAgentID returns the persisted active agent ID, empty when unset.
	ActiveAgentID(ctx context.Context) (model.AgentID, error)

	Close() error
}
