// Package prompt renders the LLM prompts used by the simulated roles and
// the judge. Templates are embedded so the binary is self-contained.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

// Template names.
const (
	BotReact     = "bot_react.tmpl"
	BotPDL       = "bot_pdl.tmpl"
	UserSim      = "user_sim.tmpl"
	UserOOW      = "user_oow.tmpl"
	APISim       = "api_sim.tmpl"
	JudgeSession = "judge_session.tmpl"
	JudgeTurn    = "judge_turn.tmpl"
)

// Render executes the named template with the given data.
func Render(name string, data any) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()) + "\n", nil
}
