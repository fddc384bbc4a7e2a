// Package models defines the core data structures for simulated conversations.
package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
)

// Prefix returns the display prefix used in rendered transcripts.
func (r Role) Prefix() string {
	switch r {
	case RoleSystem:
		return "[SYSTEM] "
	case RoleUser:
		return "[USER] "
	case RoleBot:
		return "[BOT] "
	default:
		return "[?] "
	}
}

// Color returns the lipgloss color used when rendering to a terminal.
func (r Role) Color() lipgloss.Color {
	switch r {
	case RoleSystem:
		return lipgloss.Color("#00D787") // green
	case RoleUser:
		return lipgloss.Color("#FF005F") // red
	case RoleBot:
		return lipgloss.Color("#FFAF00") // orange
	default:
		return lipgloss.Color("#6C6C6C")
	}
}

// UnmarshalJSON normalizes role names on decode so datasets that
// store roles uppercase compare equal to the Role constants.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole converts a stored role name back to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case RoleSystem:
		return RoleSystem, nil
	case RoleUser:
		return RoleUser, nil
	case RoleBot:
		return RoleBot, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}
