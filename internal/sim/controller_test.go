package sim

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/roles"
	"github.com/raphaelgruber/flowsim-go/internal/workflow"
)

// scriptedUser plays back a fixed sequence of utterances.
type scriptedUser struct {
	conv    *models.Conversation
	lines   []string
	current int
}

func (u *scriptedUser) Process(context.Context) (models.UserOutput, error) {
	line := u.lines[u.current]
	u.current++
	u.conv.Append(models.Message{Role: models.RoleUser, Content: line})
	return models.UserOutput{Response: line}, nil
}

// scriptedBot plays back a fixed sequence of parsed outputs.
type scriptedBot struct {
	conv    *models.Conversation
	outputs []models.BotOutput
	current int
	checks  bool
}

func (b *scriptedBot) Process(context.Context) (models.BotOutput, error) {
	out := b.outputs[b.current]
	b.current++
	content := out.Response
	if out.Type() == models.BotActionCall {
		content = models.FormatAPICall(out.Action, out.ActionInput)
	}
	b.conv.Append(models.Message{Role: models.RoleBot, Content: content})
	return out, nil
}

func (b *scriptedBot) SupportsActionChecks() bool { return b.checks }

// okAPI answers every call with a 200 and records it.
type okAPI struct {
	conv  *models.Conversation
	calls []string
}

func (a *okAPI) Process(_ context.Context, call models.BotOutput) (models.APIOutput, error) {
	a.calls = append(a.calls, call.Action)
	a.conv.Append(models.Message{Role: models.RoleSystem, Content: models.APIResponsePrefix + "ok"})
	return models.APIOutput{Name: call.Action, StatusCode: 200, Data: "ok"}, nil
}

func sessionEnv(conv *models.Conversation) *roles.Env {
	cfg := config.DefaultRunConfig()
	cfg.ExpMode = config.ExpModeSession
	return &roles.Env{
		Cfg:  cfg,
		Conv: conv,
		Log:  slog.New(slog.DiscardHandler),
	}
}

func TestRunSessionEndsOnUserEndFlag(t *testing.T) {
	conv := models.NewConversation("")
	env := sessionEnv(conv)
	ctrl := &Controller{
		env:  env,
		user: &scriptedUser{conv: conv, lines: []string{"I want a room", "thanks " + models.EndFlag}},
		bot: &scriptedBot{conv: conv, outputs: []models.BotOutput{
			{Response: "Which date?"},
		}},
		api: &okAPI{conv: conv},
	}

	got, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	assert.Equal(t, models.RoleUser, got.At(0).Role)
	assert.Equal(t, models.RoleBot, got.At(1).Role)
	assert.Contains(t, got.At(2).Content, models.EndFlag)
}

func TestRunSessionActionThenResponse(t *testing.T) {
	conv := models.NewConversation("")
	env := sessionEnv(conv)
	api := &okAPI{conv: conv}
	ctrl := &Controller{
		env:  env,
		user: &scriptedUser{conv: conv, lines: []string{"book it", models.EndFlag}},
		bot: &scriptedBot{conv: conv, outputs: []models.BotOutput{
			{Action: "check_availability", ActionInput: map[string]any{}},
			{Action: "book_room", ActionInput: map[string]any{}},
			{Response: "Booked!"},
		}},
		api: api,
	}

	got, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"check_availability", "book_room"}, api.calls)
	assert.Equal(t, []string{"check_availability", "book_room"}, got.CalledAPIs())
	assert.Equal(t, "Booked!", got.At(-2).Content)
}

func TestRunSessionRejectedCallDoesNotConsumeActionBudget(t *testing.T) {
	conv := models.NewConversation("")
	env := sessionEnv(conv)
	env.Cfg.BotActionLimit = 1
	api := &okAPI{conv: conv}

	pdl := bookingPDL()
	dep, err := NewDependencyChecker(conv, pdl)
	require.NoError(t, err)

	ctrl := &Controller{
		env:  env,
		user: &scriptedUser{conv: conv, lines: []string{"book it", models.EndFlag}},
		bot: &scriptedBot{conv: conv, outputs: []models.BotOutput{
			{Action: "book_room", ActionInput: map[string]any{}},
			{Action: "check_availability", ActionInput: map[string]any{}},
			{Response: "Done"},
		}, checks: true},
		api:      api,
		checkers: []Checker{dep},
	}

	got, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	// The rejected call left a rejection message and the retry still fit
	// into the one-action budget.
	assert.Equal(t, []string{"check_availability"}, api.calls)

	var rejections int
	for _, msg := range got.Msgs {
		if msg.Role == models.RoleSystem && msg.Content == "Precondition check failed! check_availability not activated for book_room!" {
			rejections++
		}
	}
	assert.Equal(t, 1, rejections)
}

func TestRunSessionBotActionLimit(t *testing.T) {
	conv := models.NewConversation("")
	env := sessionEnv(conv)
	env.Cfg.BotActionLimit = 2
	api := &okAPI{conv: conv}
	ctrl := &Controller{
		env:  env,
		user: &scriptedUser{conv: conv, lines: []string{"go", models.EndFlag}},
		bot: &scriptedBot{conv: conv, outputs: []models.BotOutput{
			{Action: "a", ActionInput: map[string]any{}},
			{Action: "b", ActionInput: map[string]any{}},
			{Action: "never_reached", ActionInput: map[string]any{}},
		}},
		api: api,
	}

	_, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, api.calls)
}

func TestRunSessionTurnLimit(t *testing.T) {
	conv := models.NewConversation("")
	env := sessionEnv(conv)
	env.Cfg.ConversationTurnLimit = 2

	ctrl := &Controller{
		env:  env,
		user: &scriptedUser{conv: conv, lines: []string{"one", "two", "never asked"}},
		bot: &scriptedBot{conv: conv, outputs: []models.BotOutput{
			{Response: "r1"}, {Response: "r2"},
		}},
		api: &okAPI{conv: conv},
	}

	got, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, got.Len())
}

func TestRunTeacherForcedSubstitutesReference(t *testing.T) {
	ref := models.NewConversation("ref")
	ref.Append(models.Message{Role: models.RoleUser, Content: "book a room"})
	ref.Append(models.Message{Role: models.RoleBot, Content: "reference reply"})
	ref.Append(models.Message{Role: models.RoleUser, Content: models.EndFlag})

	conv := models.NewConversation("")
	cfg := config.DefaultRunConfig()
	cfg.ExpMode = config.ExpModeTurn
	env := &roles.Env{
		Cfg:  cfg,
		Conv: conv,
		Log:  slog.New(slog.DiscardHandler),
		Workflow: &workflow.Workflow{
			ReferenceConversations: []workflow.ReferenceConversation{
				{UserIntention: "booking", Conversation: ref},
			},
		},
	}
	ctrl := &Controller{
		env: env,
		bot: &scriptedBot{conv: conv, outputs: []models.BotOutput{
			{Response: "predicted reply"},
		}},
	}

	got, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())

	forced := got.At(1)
	assert.Equal(t, "reference reply", forced.Content)
	assert.Equal(t, "predicted reply", forced.ContentPredict)
	assert.Equal(t, got.ID, forced.ConversationID, "substituted message carries the live conversation id")
}

func TestRunTeacherForcedUppercaseDatasetRoles(t *testing.T) {
	raw := `[
		{"role": "USER", "content": "book a room"},
		{"role": "BOT", "content": "reference reply"}
	]`
	var msgs []models.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msgs))
	ref, err := models.FromMessages(msgs)
	require.NoError(t, err)

	conv := models.NewConversation("")
	cfg := config.DefaultRunConfig()
	cfg.ExpMode = config.ExpModeTurn
	env := &roles.Env{
		Cfg:  cfg,
		Conv: conv,
		Log:  slog.New(slog.DiscardHandler),
		Workflow: &workflow.Workflow{
			ReferenceConversations: []workflow.ReferenceConversation{
				{UserIntention: "booking", Conversation: ref},
			},
		},
	}
	bot := &scriptedBot{conv: conv, outputs: []models.BotOutput{
		{Response: "predicted reply"},
	}}
	ctrl := &Controller{env: env, bot: bot}

	got, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())

	forced := got.At(1)
	assert.Equal(t, models.RoleBot, forced.Role)
	assert.Equal(t, "reference reply", forced.Content)
	assert.Equal(t, "predicted reply", forced.ContentPredict, "bot must be invoked for reference bot turns")
}

func TestRunTeacherForcedPersonaOutOfRange(t *testing.T) {
	cfg := config.DefaultRunConfig()
	cfg.ExpMode = config.ExpModeTurn
	env := &roles.Env{
		Cfg:       cfg,
		Conv:      models.NewConversation(""),
		Log:       slog.New(slog.DiscardHandler),
		Workflow:  &workflow.Workflow{},
		PersonaID: 4,
	}
	ctrl := &Controller{env: env, bot: &scriptedBot{conv: env.Conv}}
	_, err := ctrl.Run(context.Background())
	assert.Error(t, err)
}
