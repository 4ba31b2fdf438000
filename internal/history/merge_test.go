package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestMergeTurnConcatenatesContent(t *testing.T) {
	dst := Turn{ID: "t1", Role: RoleAssistant, Content: "Hello"}
	mergeTurn(&dst, Turn{ID: "t1", Content: ", world"})
	assert.Equal(t, "Hello, world", dst.Content)
}

func TestMergeTurnNilNeverOverwrites(t *testing.T) {
	dst := Turn{ID: "t1", Role: RoleAssistant, TurnStatus: strptr("inProgress"), ModelName: strptr("m1")}

	mergeTurn(&dst, Turn{ID: "t1"})
	require.NotNil(t, dst.TurnStatus)
	assert.Equal(t, "inProgress", *dst.TurnStatus)

	mergeTurn(&dst, Turn{ID: "t1", TurnStatus: strptr("done")})
	assert.Equal(t, "done", *dst.TurnStatus)
	assert.Equal(t, "m1", *dst.ModelName)
}

func TestMergeTurnReferencesDedupPreservesOrder(t *testing.T) {
	a := Reference{Kind: "file", Path: "a.go"}
	b := Reference{Kind: "file", Path: "b.go"}

	dst := Turn{ID: "t1", References: []Reference{a}}
	mergeTurn(&dst, Turn{ID: "t1", References: []Reference{b, a}})

	assert.Equal(t, []Reference{a, b}, dst.References)
}

func TestMergeTurnStepsUpsertByID(t *testing.T) {
	dst := Turn{ID: "t1", Steps: []Step{{ID: "s1", Title: "plan", Status: "running"}}}
	mergeTurn(&dst, Turn{ID: "t1", Steps: []Step{
		{ID: "s1", Title: "plan", Status: "done"},
		{ID: "s2", Title: "apply"},
	}})

	require.Len(t, dst.Steps, 2)
	assert.Equal(t, "done", dst.Steps[0].Status)
	assert.Equal(t, "s2", dst.Steps[1].ID)
}

func TestMergeTurnFileEditsUpsertByURLAndTool(t *testing.T) {
	dst := Turn{ID: "t1", FileEdits: []FileEdit{{FileURL: "file:///a.go", ToolName: "edit", Added: 1}}}
	mergeTurn(&dst, Turn{ID: "t1", FileEdits: []FileEdit{
		{FileURL: "file:///a.go", ToolName: "edit", Added: 3},
		{FileURL: "file:///a.go", ToolName: "patch", Added: 2},
	}})

	require.Len(t, dst.FileEdits, 2)
	assert.Equal(t, 3, dst.FileEdits[0].Added)
	assert.Equal(t, "patch", dst.FileEdits[1].ToolName)
}

func TestMergeRoundReplyAppendOnly(t *testing.T) {
	dst := Round{RoundID: 1, Reply: "part one"}
	mergeRound(&dst, Round{RoundID: 1, Reply: " part two"})
	assert.Equal(t, "part one part two", dst.Reply)
}

func TestMergeToolCallOnlyNonEmptyFieldsOverwrite(t *testing.T) {
	dst := ToolCall{ID: "tc1", Name: "run_command", Status: StatusRunning, ProgressMessage: "compiling"}

	mergeToolCall(&dst, ToolCall{ID: "tc1", Result: "ok", Status: StatusCompleted})
	assert.Equal(t, "run_command", dst.Name)
	assert.Equal(t, "compiling", dst.ProgressMessage)
	assert.Equal(t, "ok", dst.Result)
	assert.Equal(t, StatusCompleted, dst.Status)

	// late informational update never regresses a terminal status
	mergeToolCall(&dst, ToolCall{ID: "tc1", Status: StatusRunning, ResultDetails: "exit 0"})
	assert.Equal(t, StatusCompleted, dst.Status)
	assert.Equal(t, "exit 0", dst.ResultDetails)
}

func TestMergeIdempotentExceptAppendOnlyFields(t *testing.T) {
	patch := Turn{
		ID:   "t1",
		Role: RoleAssistant,
		Rounds: []Round{{
			RoundID:   1,
			ToolCalls: []ToolCall{{ID: "tc1", Name: "run_command", Status: StatusAccepted}},
		}},
		Steps:      []Step{{ID: "s1", Title: "run"}},
		References: []Reference{{Kind: "file", Path: "a.go"}},
	}

	once := Turn{ID: "t1", Role: RoleAssistant}
	mergeTurn(&once, patch)
	twice := Turn{ID: "t1", Role: RoleAssistant}
	mergeTurn(&twice, patch)
	mergeTurn(&twice, patch)

	// structural state is replay-safe
	assert.Equal(t, once.Rounds, twice.Rounds)
	assert.Equal(t, once.Steps, twice.Steps)
	assert.Equal(t, once.References, twice.References)

	// concatenating fields grow on replay
	grower := Turn{ID: "t1", Role: RoleAssistant}
	delta := Turn{ID: "t1", Content: "abc", Rounds: []Round{{RoundID: 1, Reply: "xyz"}}}
	mergeTurn(&grower, delta)
	mergeTurn(&grower, delta)
	assert.Equal(t, "abcabc", grower.Content)
	assert.Equal(t, "xyzxyz", grower.Rounds[0].Reply)
}

func TestMergeSubAgentRoundsRecurse(t *testing.T) {
	dst := Round{RoundID: 1, SubAgentRounds: []Round{{RoundID: 10, Reply: "sub "}}}
	mergeRound(&dst, Round{RoundID: 1, SubAgentRounds: []Round{
		{RoundID: 10, Reply: "reply", ToolCalls: []ToolCall{{ID: "tc9", Status: StatusAccepted}}},
		{RoundID: 11, Reply: "new"},
	}})

	require.Len(t, dst.SubAgentRounds, 2)
	assert.Equal(t, "sub reply", dst.SubAgentRounds[0].Reply)
	require.Len(t, dst.SubAgentRounds[0].ToolCalls, 1)
	assert.Equal(t, "new", dst.SubAgentRounds[1].Reply)
}
