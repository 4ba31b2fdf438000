package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRounds() []Round {
	return []Round{
		{
			RoundID:   1,
			ToolCalls: []ToolCall{{ID: "tc-main", Name: "run_command", Status: StatusRunning}},
			SubAgentRounds: []Round{
				{RoundID: 10, ToolCalls: []ToolCall{{ID: "tc-nested", Name: "read_file", Status: StatusWaitConfirmation}}},
			},
		},
		{RoundID: 2, ToolCalls: []ToolCall{{ID: "tc-other", Name: "grep"}}},
	}
}

func TestLocateStatusPatchMainRound(t *testing.T) {
	patch, ok := LocateStatusPatch("tc-main", StatusCompleted, sampleRounds())
	require.True(t, ok)

	assert.Equal(t, 1, patch.RoundID)
	require.Len(t, patch.ToolCalls, 1)
	assert.Equal(t, "tc-main", patch.ToolCalls[0].ID)
	assert.Equal(t, StatusCompleted, patch.ToolCalls[0].Status)
	assert.Empty(t, patch.ToolCalls[0].Name)
	assert.Nil(t, patch.SubAgentRounds)
}

func TestLocateStatusPatchNestedShapedAtParentRound(t *testing.T) {
	patch, ok := LocateStatusPatch("tc-nested", StatusAccepted, sampleRounds())
	require.True(t, ok)

	// shaped at the top round id with an empty main tool-call list
	assert.Equal(t, 1, patch.RoundID)
	require.NotNil(t, patch.ToolCalls)
	assert.Empty(t, patch.ToolCalls)
	require.Len(t, patch.SubAgentRounds, 1)
	assert.Equal(t, 10, patch.SubAgentRounds[0].RoundID)
	require.Len(t, patch.SubAgentRounds[0].ToolCalls, 1)
	assert.Equal(t, StatusAccepted, patch.SubAgentRounds[0].ToolCalls[0].Status)
}

func TestLocateStatusPatchMiss(t *testing.T) {
	_, ok := LocateStatusPatch("tc-missing", StatusAccepted, sampleRounds())
	assert.False(t, ok)
}

func TestLocatedPatchAppliesThroughMerge(t *testing.T) {
	s := NewStore("conv-1")
	s.Append(Turn{ID: "t1", Role: RoleAssistant, Rounds: sampleRounds()})

	patch, ok := LocateStatusPatch("tc-nested", StatusAccepted, s.Read()[0].Rounds)
	require.True(t, ok)

	s.Append(Turn{ID: "t1", Rounds: []Round{patch}})

	turns := s.Read()
	nested := turns[0].Rounds[0].SubAgentRounds[0].ToolCalls[0]
	assert.Equal(t, StatusAccepted, nested.Status)
	assert.Equal(t, "read_file", nested.Name)

	// sibling state is untouched
	assert.Equal(t, StatusRunning, turns[0].Rounds[0].ToolCalls[0].Status)
	require.Len(t, turns[0].Rounds, 2)
}

func TestFindToolCall(t *testing.T) {
	call, ok := FindToolCall("tc-nested", sampleRounds())
	require.True(t, ok)
	assert.Equal(t, "read_file", call.Name)

	_, ok = FindToolCall("nope", sampleRounds())
	assert.False(t, ok)
}
