// Package roles implements the three participants of a simulated
// conversation: the user, the bot under test, and the API backend. Each
// role appends its own messages to the shared conversation.
package roles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/llm"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/workflow"
)

// Env bundles the shared state every role works against.
type Env struct {
	Cfg       config.RunConfig
	Workflow  *workflow.Workflow
	Conv      *models.Conversation
	Models    *llm.Factory
	PersonaID int
	Log       *slog.Logger
}

// User produces the next user utterance.
type User interface {
	Process(ctx context.Context) (models.UserOutput, error)
}

// Bot produces the next bot prediction: either a response to the user or
// an API call.
type Bot interface {
	Process(ctx context.Context) (models.BotOutput, error)
	// SupportsActionChecks reports whether the bot's workflow carries an
	// action dependency graph that admission checks can run against.
	SupportsActionChecks() bool
}

// API resolves a bot's API call into a response.
type API interface {
	Process(ctx context.Context, call models.BotOutput) (models.APIOutput, error)
}

// Mode names accepted in run configurations. Aliases keep older
// experiment files working.
var (
	userConstructors = map[string]func(ctx context.Context, env *Env) (User, error){
		"simulated":     newSimulatedUser,
		"llm_profile":   newSimulatedUser,
		"simulated_oow": newOOWUser,
		"llm_oow":       newOOWUser,
		"manual":        newManualUser,
		"input_user":    newManualUser,
	}

	botConstructors = map[string]func(ctx context.Context, env *Env) (Bot, error){
		"react":     newReactBot,
		"react_bot": newReactBot,
		"pdl":       newPDLBot,
		"pdl_bot":   newPDLBot,
	}

	apiConstructors = map[string]func(ctx context.Context, env *Env) (API, error){
		"simulated": newSimulatedAPI,
		"llm":       newSimulatedAPI,
	}
)

// NewUser builds the user role configured by env.Cfg.UserMode.
func NewUser(ctx context.Context, env *Env) (User, error) {
	build, ok := userConstructors[env.Cfg.UserMode]
	if !ok {
		return nil, fmt.Errorf("unknown user mode %q", env.Cfg.UserMode)
	}
	return build(ctx, env)
}

// NewBot builds the bot role configured by env.Cfg.BotMode.
func NewBot(ctx context.Context, env *Env) (Bot, error) {
	build, ok := botConstructors[env.Cfg.BotMode]
	if !ok {
		return nil, fmt.Errorf("unknown bot mode %q", env.Cfg.BotMode)
	}
	return build(ctx, env)
}

// NewAPI builds the API role configured by env.Cfg.APIMode.
func NewAPI(ctx context.Context, env *Env) (API, error) {
	build, ok := apiConstructors[env.Cfg.APIMode]
	if !ok {
		return nil, fmt.Errorf("unknown api mode %q", env.Cfg.APIMode)
	}
	return build(ctx, env)
}
