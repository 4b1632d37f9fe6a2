package orchestrator

import (
	"context"
	"sync"

	"github.com/kestrelai/agentkit/pkg/types"
)

// RoundRobinPolicy cycles deterministically through the agent list starting
// from index 0.
type RoundRobinPolicy struct {
	mu   sync.Mutex
	next int
}

// NewRoundRobinPolicy returns a policy starting at index 0.
func NewRoundRobinPolicy() *RoundRobinPolicy { return &RoundRobinPolicy{} }

func (p *RoundRobinPolicy) Next(ctx context.Context, agents []Agent, transcript []types.Message, history []Selection) (Agent, Selection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	agent := agents[p.next%len(agents)]
	p.next++
	return agent, Selection{AgentName: agent.Name(), Confidence: 1.0, Rationale: "round robin"}, nil
}
