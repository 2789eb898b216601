package model

import (
	"math"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type AgentID string

func NewAgentID() AgentID {
	return AgentID(uuid.New().String())
}

// DefaultAgentName is assigned when an agent is saved with an empty name.
const DefaultAgentName = "Untitled Agent"

// Agent is a named bundle of system prompt and generation parameters.
type Agent struct {
	ID           AgentID `yaml:"id"`
	Name         string  `yaml:"name"`
	SystemPrompt string  `yaml:"system_prompt"`

	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	TopP            float64 `yaml:"top_p"`
}

// NewAgent creates an agent with default generation parameters.
func NewAgent(name string) *Agent {
	return &Agent{
		ID:              NewAgentID(),
		Name:            name,
		SystemPrompt:    "",
		Temperature:     0.7,
		MaxOutputTokens: 8192,
		TopP:            0.95,
	}
}

// Validate checks the generation parameter ranges.
func (a *Agent) Validate() error {
	if math.IsNaN(a.Temperature) || a.Temperature < 0 || a.Temperature > 2 {
		return goerr.Wrap(ErrInvalidParameter, "temperature must be in [0, 2]", goerr.V("temperature", a.Temperature))
	}
	if a.MaxOutputTokens <= 0 {
		return goerr.Wrap(ErrInvalidParameter, "maxOutputTokens must be positive", goerr.V("maxOutputTokens", a.MaxOutputTokens))
	}
	if math.IsNaN(a.TopP) || a.TopP < 0 || a.TopP > 1 {
		return goerr.Wrap(ErrInvalidParameter, "topP must be in [0, 1]", goerr.V("topP", a.TopP))
	}
	return nil
}

// Clone returns a copy so callers cannot mutate registry-owned state.
func (a *Agent) Clone() *Agent {
	c := *a
	return &c
}
