package checkpointstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kestrelai/agentkit/internal/workflow"
)

// File is a Store writing one JSON document per checkpoint into
// <base>/<workflow_id>/<checkpoint_id>.json.
type File struct {
	base string
}

// NewFile returns a File store rooted at base, creating it if needed.
func NewFile(base string) (*File, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("checkpointstore.File: %w", err)
	}
	return &File{base: base}, nil
}

func (f *File) dir(workflowID string) string {
	return filepath.Join(f.base, workflowID)
}

func (f *File) path(workflowID, checkpointID string) string {
	return filepath.Join(f.dir(workflowID), checkpointID+".json")
}

func (f *File) Save(checkpoint workflow.Checkpoint) error {
	if err := os.MkdirAll(f.dir(checkpoint.WorkflowID), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpointstore.File: marshal: %w", err)
	}
	tmp := f.path(checkpoint.WorkflowID, checkpoint.CheckpointID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpointstore.File: write: %w", err)
	}
	return os.Rename(tmp, f.path(checkpoint.WorkflowID, checkpoint.CheckpointID))
}

func (f *File) LoadLatest(workflowID string) (*workflow.Checkpoint, error) {
	entries, err := os.ReadDir(f.dir(workflowID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpointstore.File: list: %w", err)
	}

	var latest *workflow.Checkpoint
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		cp, err := f.readOne(workflowID, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		if latest == nil || cp.Timestamp.After(latest.Timestamp) {
			latest = cp
		}
	}
	return latest, nil
}

func (f *File) readOne(workflowID, checkpointID string) (*workflow.Checkpoint, error) {
	data, err := os.ReadFile(f.path(workflowID, checkpointID))
	if err != nil {
		return nil, err
	}
	var cp workflow.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (f *File) ListMetadata(workflowID string) ([]workflow.CheckpointMeta, error) {
	if workflowID == "" {
		dirs, err := os.ReadDir(f.base)
		if err != nil {
			return nil, fmt.Errorf("checkpointstore.File: list: %w", err)
		}
		var out []workflow.CheckpointMeta
		for _, d := range dirs {
			if !d.IsDir() {
				continue
			}
			metas, err := f.ListMetadata(d.Name())
			if err != nil {
				return nil, err
			}
			out = append(out, metas...)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
		return out, nil
	}

	entries, err := os.ReadDir(f.dir(workflowID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpointstore.File: list: %w", err)
	}
	var out []workflow.CheckpointMeta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		cp, err := f.readOne(workflowID, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, workflow.CheckpointMeta{CheckpointID: cp.CheckpointID, WorkflowID: cp.WorkflowID, Timestamp: cp.Timestamp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (f *File) Delete(checkpointID string) error {
	// checkpointID alone doesn't carry the workflow id in this layout, so
	// search each workflow directory; acceptable for the modest checkpoint
	// volumes an in-process engine produces.
	entries, err := os.ReadDir(f.base)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(f.base, e.Name(), checkpointID+".json")
		if _, err := os.Stat(p); err == nil {
			return os.Remove(p)
		}
	}
	return nil
}
