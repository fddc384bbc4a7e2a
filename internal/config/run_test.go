package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRunConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadRunConfigAppliesDefaults(t *testing.T) {
	path := writeRunConfig(t, `
workflow_dataset: travel
workflow_id: "000"
exp_version: v1
`)
	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "travel", cfg.WorkflowDataset)
	assert.Equal(t, FormatPDL, cfg.WorkflowFormat)
	assert.Equal(t, ExpModeSession, cfg.ExpMode)
	assert.Equal(t, 20, cfg.ConversationTurnLimit)
	assert.Equal(t, 2, cfg.DuplicateThreshold)
	assert.True(t, cfg.CheckDependencies)
}

func TestLoadRunConfigExpandsEnv(t *testing.T) {
	t.Setenv("FLOWSIM_TEST_VERSION", "v42")
	path := writeRunConfig(t, `
workflow_dataset: travel
exp_version: ${FLOWSIM_TEST_VERSION}
`)
	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "v42", cfg.ExpVersion)
}

func TestLoadRunConfigRejectsBadMode(t *testing.T) {
	path := writeRunConfig(t, `
workflow_dataset: travel
exp_version: v1
exp_mode: replay
`)
	_, err := LoadRunConfig(path)
	assert.ErrorContains(t, err, "exp_mode")
}

func TestValidateRequiresDataset(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.ExpVersion = "v1"
	assert.ErrorContains(t, cfg.Validate(), "workflow_dataset")
}

func TestMapRoundTrips(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.WorkflowDataset = "travel"
	cfg.ExpVersion = "v1"

	m := cfg.Map()
	require.NotNil(t, m)
	assert.Equal(t, "travel", m["workflow_dataset"])
	assert.Equal(t, "v1", m["exp_version"])
	assert.Equal(t, ExpModeSession, m["exp_mode"])
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLogLevel("debug").String())
	assert.Equal(t, "WARN", parseLogLevel("WARNING").String())
	assert.Equal(t, "INFO", parseLogLevel("garbage").String())
}
