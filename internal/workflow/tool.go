package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Tool is one toolbox entry. Tool definitions vary between datasets, so
// the full decoded document is kept in Raw and rendered verbatim into
// prompts; only the API name is interpreted by the engine itself.
type Tool struct {
	Name string
	Raw  map[string]any
}

// UnmarshalYAML decodes the entry into Raw and pulls out the API name.
func (t *Tool) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	name, ok := raw["API"].(string)
	if !ok || name == "" {
		return fmt.Errorf("toolbox entry missing API name")
	}
	t.Name = name
	t.Raw = raw
	return nil
}

// MarshalYAML renders the original definition.
func (t Tool) MarshalYAML() (any, error) {
	return t.Raw, nil
}

// Toolbox is the ordered tool list of one workflow.
type Toolbox []Tool

// Names returns the API names in declaration order.
func (tb Toolbox) Names() []string {
	names := make([]string, len(tb))
	for i, t := range tb {
		names[i] = t.Name
	}
	return names
}

// Find returns the named tool, or false when the toolbox has no such API.
func (tb Toolbox) Find(name string) (Tool, bool) {
	for _, t := range tb {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// String renders the toolbox as YAML for prompt templates.
func (tb Toolbox) String() string {
	out, err := yaml.Marshal([]Tool(tb))
	if err != nil {
		return ""
	}
	return string(out)
}
