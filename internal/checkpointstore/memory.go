// Package checkpointstore implements the workflow.Store interface against
// three backends: in-memory, a file-backed JSON-per-checkpoint layout, and
// SQLite.
package checkpointstore

import (
	"sort"
	"sync"

	"github.com/kestrelai/agentkit/internal/workflow"
)

// Memory is an in-process, non-durable Store, useful for tests and
// short-lived runs.
type Memory struct {
	mu          sync.RWMutex
	checkpoints map[string]workflow.Checkpoint // checkpoint_id -> checkpoint
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{checkpoints: make(map[string]workflow.Checkpoint)}
}

func (m *Memory) Save(checkpoint workflow.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[checkpoint.CheckpointID] = checkpoint
	return nil
}

func (m *Memory) LoadLatest(workflowID string) (*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *workflow.Checkpoint
	for _, cp := range m.checkpoints {
		if cp.WorkflowID != workflowID {
			continue
		}
		cp := cp
		if latest == nil || cp.Timestamp.After(latest.Timestamp) {
			latest = &cp
		}
	}
	return latest, nil
}

func (m *Memory) ListMetadata(workflowID string) ([]workflow.CheckpointMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.CheckpointMeta
	for _, cp := range m.checkpoints {
		if workflowID != "" && cp.WorkflowID != workflowID {
			continue
		}
		out = append(out, workflow.CheckpointMeta{
			CheckpointID: cp.CheckpointID,
			WorkflowID:   cp.WorkflowID,
			Timestamp:    cp.Timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) Delete(checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, checkpointID)
	return nil
}
