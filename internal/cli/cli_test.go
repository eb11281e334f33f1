package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashwanths814/vital-sub001/db"
	"github.com/yashwanths814/vital-sub001/services"
	"github.com/yashwanths814/vital-sub001/store"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "grievancectl", cmd.Use)

	commandNames := make(map[string]bool)
	for _, c := range cmd.Commands() {
		commandNames[c.Name()] = true
	}
	for _, name := range []string{"auto", "manual", "show", "sweep", "seed"} {
		assert.True(t, commandNames[name], "Should have '%s' command", name)
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestBuildManualCommand_Flags(t *testing.T) {
	cmd := buildManualCommand(nil)

	reasonFlag := cmd.Flags().Lookup("reason")
	require.NotNil(t, reasonFlag)
	assert.Equal(t, "r", reasonFlag.Shorthand)
	assert.NotNil(t, cmd.Flags().Lookup("by"))
	assert.NotNil(t, cmd.RunE)
}

// useMemoryRuntime points every command at one shared in-memory store
func useMemoryRuntime(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	engine := services.NewEscalationEngine(s, nil, services.EscalationConfig{})

	original := OpenRuntime
	OpenRuntime = func(ctx context.Context, configPath string) (*Runtime, error) {
		return &Runtime{Store: s, Engine: engine}, nil
	}
	t.Cleanup(func() { OpenRuntime = original })
	return s
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := BuildCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_SeedAndAuto(t *testing.T) {
	s := useMemoryRuntime(t)

	_, err := run(t, "seed", "--id", "issue-1", "--days-ago", "8", "--sla-days", "7", "--category", "roads")
	require.NoError(t, err)

	issue, err := s.Get(context.Background(), "issue-1")
	require.NoError(t, err)
	assert.Equal(t, "roads", issue.Category)

	out, err := run(t, "auto", "issue-1")
	require.NoError(t, err)

	var result db.EscalationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Escalated)
	require.NotNil(t, result.NewLevel)
	assert.Equal(t, db.LevelTDO, *result.NewLevel)
}

func TestCLI_ManualPrintsWaitingState(t *testing.T) {
	useMemoryRuntime(t)

	_, err := run(t, "seed", "--id", "issue-2", "--days-ago", "1")
	require.NoError(t, err)

	out, err := run(t, "manual", "issue-2", "--reason", "No water for a week", "--by", "villager-1")
	require.NoError(t, err)

	var result db.EscalationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Escalated)
	assert.Equal(t, db.OutcomeNotYetEligible, result.Outcome)
	assert.Equal(t, 3, result.RemainingDays)
}

func TestCLI_ShowAndSweep(t *testing.T) {
	useMemoryRuntime(t)

	_, err := run(t, "seed", "--id", "issue-3", "--days-ago", "20", "--sla-days", "5")
	require.NoError(t, err)

	out, err := run(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, `"escalated": 1`)

	out, err = run(t, "show", "issue-3")
	require.NoError(t, err)

	var preview services.EscalationPreview
	require.NoError(t, json.Unmarshal([]byte(out), &preview))
	assert.Equal(t, db.LevelTDO, preview.Level)
	assert.Len(t, preview.History, 1)
	assert.True(t, preview.Auto.Eligible)
}

func TestCLI_UnknownIssue(t *testing.T) {
	useMemoryRuntime(t)

	_, err := run(t, "auto", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = run(t, "auto")
	assert.Error(t, err)
}
