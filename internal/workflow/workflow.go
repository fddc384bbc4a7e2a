package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/models"
)

// formatSuffix maps a workflow format to the file suffix of its documents.
var formatSuffix = map[string]string{
	config.FormatText:      ".txt",
	config.FormatCode:      ".py",
	config.FormatFlowchart: ".md",
	config.FormatPDL:       ".yaml",
}

// ReferenceConversation pairs a recorded conversation with the user
// intention it was collected under. Used by turn-mode replay.
type ReferenceConversation struct {
	UserIntention string
	Conversation  *models.Conversation
}

// Workflow is one fully loaded task: its description, the workflow
// document in the configured format, the toolbox, and whichever user-side
// inputs the experiment mode needs.
type Workflow struct {
	Dataset string
	Format  string
	ID      string

	Name                    string
	TaskDescription         string
	TaskDetailedDescription string

	// Document is the workflow text handed to the bot prompt. For the
	// pdl format it is the API-free rendering of the parsed document.
	Document string
	Toolbox  Toolbox
	PDL      *PDL

	Profiles               []models.UserProfile
	OOWIntentions          []models.OOWIntention
	ReferenceConversations []ReferenceConversation
}

// Load reads every file a run of the given configuration needs. Session
// mode loads user profiles (plus the out-of-workflow catalogue when the
// user mode asks for it); turn mode loads reference conversations instead.
// Any missing file is a fatal configuration error.
func Load(ds *Dataset, cfg config.RunConfig) (*Workflow, error) {
	info, ok := ds.Tasks[cfg.WorkflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %q not in dataset %q (have %v)", cfg.WorkflowID, ds.Name, ds.TaskIDs())
	}

	w := &Workflow{
		Dataset:                 ds.Name,
		Format:                  cfg.WorkflowFormat,
		ID:                      cfg.WorkflowID,
		Name:                    info.Name,
		TaskDescription:         info.TaskDescription,
		TaskDetailedDescription: info.TaskDetailedDescription,
	}

	toolPath := filepath.Join(ds.Root, "tools", w.ID+".yaml")
	toolData, err := os.ReadFile(toolPath)
	if err != nil {
		return nil, fmt.Errorf("loading toolbox: %w", err)
	}
	if err := yaml.Unmarshal(toolData, &w.Toolbox); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", toolPath, err)
	}

	suffix := formatSuffix[cfg.WorkflowFormat]
	docPath := filepath.Join(ds.Root, cfg.WorkflowFormat, w.ID+suffix)
	docData, err := os.ReadFile(docPath)
	if err != nil {
		return nil, fmt.Errorf("loading workflow document: %w", err)
	}
	w.Document = strings.TrimSpace(string(docData))

	if cfg.WorkflowFormat == config.FormatPDL {
		w.PDL, err = ParsePDL(string(docData))
		if err != nil {
			return nil, err
		}
		w.Document = w.PDL.StringWithoutAPIs()
	}

	switch cfg.ExpMode {
	case config.ExpModeSession:
		if err := w.loadProfiles(ds); err != nil {
			return nil, err
		}
		if strings.Contains(strings.ToLower(cfg.UserMode), "oow") {
			if err := w.loadOOWIntentions(filepath.Dir(ds.Root)); err != nil {
				return nil, err
			}
		}
	case config.ExpModeTurn:
		if err := w.loadReferenceConversations(ds); err != nil {
			return nil, err
		}
	}

	return w, nil
}

// NumPersonas returns how many user-side inputs the workflow carries:
// profiles in session mode, reference conversations in turn mode.
func (w *Workflow) NumPersonas() int {
	if w.Profiles != nil {
		return len(w.Profiles)
	}
	return len(w.ReferenceConversations)
}

// String renders the workflow header for judge prompts.
func (w *Workflow) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s-%s\n", strings.ToUpper(w.Format), w.ID)
	fmt.Fprintf(&b, "Name: %s\n", w.Name)
	fmt.Fprintf(&b, "Task: %s\n", w.TaskDescription)
	fmt.Fprintf(&b, "Workflow: %s\n", w.TaskDetailedDescription)
	return b.String()
}

func (w *Workflow) loadProfiles(ds *Dataset) error {
	path := filepath.Join(ds.Root, "user_profile", w.ID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading user profiles: %w", err)
	}
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	w.Profiles = make([]models.UserProfile, 0, len(raw))
	for _, entry := range raw {
		profile, err := decodeProfile(entry)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		w.Profiles = append(w.Profiles, profile)
	}
	return nil
}

// decodeProfile tolerates the older "interactive_pattern" key still
// present in some datasets.
func decodeProfile(entry map[string]json.RawMessage) (models.UserProfile, error) {
	if v, ok := entry["interactive_pattern"]; ok {
		if _, exists := entry["interaction_patterns"]; !exists {
			entry["interaction_patterns"] = v
		}
		delete(entry, "interactive_pattern")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return models.UserProfile{}, err
	}
	var profile models.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

func (w *Workflow) loadOOWIntentions(dataDir string) error {
	path := filepath.Join(dataDir, "meta", "oow.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading out-of-workflow catalogue: %w", err)
	}
	if err := yaml.Unmarshal(data, &w.OOWIntentions); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (w *Workflow) loadReferenceConversations(ds *Dataset) error {
	path := filepath.Join(ds.Root, "user_profile_w_conversation", w.ID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading reference conversations: %w", err)
	}
	var raw []struct {
		UserIntention string           `json:"user_intention"`
		Conversation  []models.Message `json:"conversation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	w.ReferenceConversations = make([]ReferenceConversation, 0, len(raw))
	for _, entry := range raw {
		conv, err := models.FromMessages(entry.Conversation)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		w.ReferenceConversations = append(w.ReferenceConversations, ReferenceConversation{
			UserIntention: entry.UserIntention,
			Conversation:  conv,
		})
	}
	return nil
}
