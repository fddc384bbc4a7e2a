package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// TaskInfo is one entry of a dataset's task index.
type TaskInfo struct {
	Name                    string `json:"name"`
	TaskDescription         string `json:"task_description"`
	TaskDetailedDescription string `json:"task_detailed_description"`
}

// Dataset is the loaded index of one workflow dataset directory. The
// directory holds a task_infos.json plus one subdirectory per workflow
// format, and per-task tool, profile and reference-conversation files.
type Dataset struct {
	Root    string
	Name    string
	Version string
	Tasks   map[string]TaskInfo
}

type taskIndex struct {
	Version   string              `json:"version"`
	TaskInfos map[string]TaskInfo `json:"task_infos"`
}

// LoadDataset reads the task index of the named dataset under dataDir.
// A missing or malformed index is a fatal configuration error.
func LoadDataset(dataDir, name string) (*Dataset, error) {
	root := filepath.Join(dataDir, name)
	path := filepath.Join(root, "task_infos.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %q: %w", name, err)
	}
	var idx taskIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &Dataset{Root: root, Name: name, Version: idx.Version, Tasks: idx.TaskInfos}, nil
}

// TaskIDs returns the workflow ids of the dataset in sorted order.
func (d *Dataset) TaskIDs() []string {
	ids := make([]string, 0, len(d.Tasks))
	for id := range d.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DatasetNames lists the dataset directories under dataDir.
func DatasetNames(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
