package models

import (
	"fmt"
	"strings"
)

// UserProfile is a persistent synthetic-user persona driving the simulated
// user's goals. RequiredAPIs is the ground-truth set of APIs a successful
// conversation must exercise, used by the deterministic judge statistics.
type UserProfile struct {
	Persona             string   `json:"persona"`
	UserDetails         string   `json:"user_details"`
	UserNeeds           string   `json:"user_needs"`
	DialogueStyle       string   `json:"dialogue_style"`
	InteractionPatterns string   `json:"interaction_patterns"`
	RequiredAPIs        []string `json:"required_apis,omitempty"`

	// AdditionalConstraints is injected at prompt time for out-of-workflow
	// turns; it is not part of the stored profile.
	AdditionalConstraints string `json:"-"`
}

// String renders the profile as a numbered list for prompt templates.
func (p UserProfile) String() string {
	fields := []struct {
		name  string
		value string
	}{
		{"persona", p.Persona},
		{"user_details", p.UserDetails},
		{"user_needs", p.UserNeeds},
		{"dialogue_style", p.DialogueStyle},
		{"interaction_patterns", p.InteractionPatterns},
	}
	var b strings.Builder
	for i, f := range fields {
		fmt.Fprintf(&b, "%d. %s:\n    %s\n", i+1, f.name, f.value)
	}
	if p.AdditionalConstraints != "" {
		fmt.Fprintf(&b, "%d. additional_constraints:\n    %s\n", len(fields)+1, p.AdditionalConstraints)
	}
	return b.String()
}

// OOWIntention is one out-of-workflow user intention from the shared
// catalogue, injected probabilistically into simulated user turns.
type OOWIntention struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description"`
	Types       []map[string]any `yaml:"types" json:"types"`
}

// String renders the intention variants for prompt injection.
func (o OOWIntention) String() string {
	return fmt.Sprintf("%v", o.Types)
}
