//go:build integration

// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/flowsim-go/internal/models"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func testMessages(cid string) []models.Message {
	return []models.Message{
		{Role: models.RoleUser, Content: "I need a room", ConversationID: cid, UtteranceID: 0},
		{Role: models.RoleBot, Content: "<Call API> check_hotel({})", ConversationID: cid, UtteranceID: 1,
			APIs: []models.APICall{{Name: "check_hotel", Params: map[string]any{}}}},
		{Role: models.RoleSystem, Content: "<API response> {}", ConversationID: cid, UtteranceID: 2},
	}
}

func testRunRecord(version string, personaID int) models.RunRecord {
	return models.RunRecord{
		ExpVersion:      version,
		ExpMode:         "session",
		WorkflowDataset: "travel",
		WorkflowFormat:  "pdl",
		WorkflowID:      "000",
		PersonaID:       personaID,
		ConversationID:  uuid.New().String(),
		Config:          map[string]any{"bot_mode": "react"},
		CreatedAt:       time.Now().UTC(),
	}
}

func TestInsertAndQueryConversation(t *testing.T) {
	ctx := context.Background()
	cid := uuid.New().String()

	require.NoError(t, testDB.InsertMessages(ctx, testMessages(cid)))

	msgs, err := testDB.QueryConversation(ctx, cid)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, 1, msgs[1].UtteranceID)
	require.Len(t, msgs[1].APIs, 1)
	assert.Equal(t, "check_hotel", msgs[1].APIs[0].Name)
}

func TestQueryConversationEmpty(t *testing.T) {
	msgs, err := testDB.QueryConversation(context.Background(), "no-such-conversation")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeleteConversation(t *testing.T) {
	ctx := context.Background()
	cid := uuid.New().String()
	require.NoError(t, testDB.InsertMessages(ctx, testMessages(cid)))

	n, err := testDB.DeleteConversation(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	msgs, err := testDB.QueryConversation(ctx, cid)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRunRecordIdentityIsUnique(t *testing.T) {
	ctx := context.Background()
	version := "v-" + uuid.New().String()

	rec := testRunRecord(version, 0)
	require.NoError(t, testDB.InsertRunRecord(ctx, rec))

	// Same identity key, different conversation id.
	dup := testRunRecord(version, 0)
	err := testDB.InsertRunRecord(ctx, dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Different persona is a different unit.
	require.NoError(t, testDB.InsertRunRecord(ctx, testRunRecord(version, 1)))
}

func TestQueryAndDeleteRunRecords(t *testing.T) {
	ctx := context.Background()
	version := "v-" + uuid.New().String()

	require.NoError(t, testDB.InsertRunRecord(ctx, testRunRecord(version, 0)))
	require.NoError(t, testDB.InsertRunRecord(ctx, testRunRecord(version, 1)))

	recs, err := testDB.QueryRunRecords(ctx, map[string]any{"exp_version": version})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "travel", recs[0].WorkflowDataset)
	assert.Equal(t, map[string]any{"bot_mode": "react"}, recs[0].Config)

	n, err := testDB.DeleteRunRecords(ctx, map[string]any{"exp_version": version, "persona_id": 0})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err = testDB.QueryRunRecords(ctx, map[string]any{"exp_version": version})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestEvaluationPerConversationIsUnique(t *testing.T) {
	ctx := context.Background()
	cid := uuid.New().String()

	rec := models.JudgeRecord{
		ConversationID:  cid,
		ExpVersion:      "v1",
		WorkflowDataset: "travel",
		WorkflowFormat:  "pdl",
		WorkflowID:      "000",
		Mode:            "session",
		NumMessages:     6,
		Session:         &models.SessionVerdict{Pass: true, GoalsTotal: 2, GoalsAccomplished: 2},
		SessionStat: &models.APIStat{
			Required: []string{"check_hotel"}, Called: []string{"check_hotel"},
			Precision: 1, Recall: 1, F1: 1,
		},
		JudgeModel: "gpt-4o",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, testDB.InsertEvaluation(ctx, rec))

	err := testDB.InsertEvaluation(ctx, rec)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := testDB.QueryEvaluations(ctx, map[string]any{"conversation_id": cid})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Session)
	assert.True(t, got[0].Session.Pass)
	assert.Equal(t, 2, got[0].Session.GoalsTotal)

	n, err := testDB.DeleteEvaluations(ctx, map[string]any{"conversation_id": cid})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWhereClauseRejectsBadKeys(t *testing.T) {
	_, _, err := whereClause(map[string]any{"exp_version; DROP": "x"})
	assert.Error(t, err)

	_, _, err = whereClause(nil)
	assert.Error(t, err)

	where, vars, err := whereClause(map[string]any{"exp_version": "v1", "persona_id": 3})
	require.NoError(t, err)
	assert.Equal(t, "WHERE exp_version = $exp_version AND persona_id = $persona_id", where)
	assert.Equal(t, map[string]any{"exp_version": "v1", "persona_id": 3}, vars)
}
