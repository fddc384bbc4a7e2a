package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/flowsim-go/internal/graph"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/workflow"
)

func bookingPDL() *workflow.PDL {
	return &workflow.PDL{
		Name:    "hotel_booking",
		Version: string(graph.EncodingNative),
		APIs: []graph.ActionSpec{
			{Name: "check_availability"},
			{Name: "book_room", Precondition: []any{"check_availability"}},
		},
	}
}

func TestDependencyCheckerAdmitsAfterPrecondition(t *testing.T) {
	conv := models.NewConversation("")
	checker, err := NewDependencyChecker(conv, bookingPDL())
	require.NoError(t, err)

	assert.False(t, checker.Check(models.BotOutput{Action: "book_room"}))
	require.Equal(t, 1, conv.Len())
	assert.Equal(t, models.RoleSystem, conv.Last().Role)
	assert.Equal(t,
		"Precondition check failed! check_availability not activated for book_room!",
		conv.Last().Content)

	assert.True(t, checker.Check(models.BotOutput{Action: "check_availability"}))
	assert.True(t, checker.Check(models.BotOutput{Action: "book_room"}))
	assert.Equal(t, 1, conv.Len(), "passing checks append nothing")
}

func TestDependencyCheckerUnknownAction(t *testing.T) {
	conv := models.NewConversation("")
	checker, err := NewDependencyChecker(conv, bookingPDL())
	require.NoError(t, err)

	assert.False(t, checker.Check(models.BotOutput{Action: "cancel_booking"}))
	assert.Equal(t, "ERROR! Action cancel_booking not found!", conv.Last().Content)
}

func TestDuplicateCheckerTripsAtThreshold(t *testing.T) {
	conv := models.NewConversation("")
	checker := NewDuplicateChecker(conv, 2)

	call := models.FormatAPICall("check_availability", map[string]any{"date": "2026-09-01"})

	conv.Append(models.Message{Role: models.RoleBot, Content: call})
	assert.True(t, checker.Check(models.BotOutput{Action: "check_availability"}))

	// A system message in between does not break the streak.
	conv.Append(models.Message{Role: models.RoleSystem, Content: "<API response> ok"})
	conv.Append(models.Message{Role: models.RoleBot, Content: call})
	assert.False(t, checker.Check(models.BotOutput{Action: "check_availability"}))
	assert.Equal(t, duplicateRejection, conv.Last().Content)
}

func TestDuplicateCheckerDifferingBotMessageResetsStreak(t *testing.T) {
	conv := models.NewConversation("")
	checker := NewDuplicateChecker(conv, 2)

	conv.Append(models.Message{Role: models.RoleBot, Content: "call A"})
	conv.Append(models.Message{Role: models.RoleBot, Content: "call B"})
	conv.Append(models.Message{Role: models.RoleBot, Content: "call A"})
	assert.True(t, checker.Check(models.BotOutput{}))
	assert.Equal(t, 3, conv.Len())
}

func TestDuplicateCheckerEmptyConversation(t *testing.T) {
	conv := models.NewConversation("")
	assert.True(t, NewDuplicateChecker(conv, 2).Check(models.BotOutput{}))
}
