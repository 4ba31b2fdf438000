package history

// Turn is one user- or assistant-authored message in a conversation. A turn
// with ParentTurnID set never appears as a top-level entry; its rounds are
// folded into the parent turn's last round as sub-agent rounds.
type Turn struct {
	ID                string      `json:"id"`
	ParentTurnID      *string     `json:"parentTurnId,omitempty"`
	Role              string      `json:"role"`
	Content           string      `json:"content,omitempty"`
	References        []Reference `json:"references,omitempty"`
	Steps             []Step      `json:"steps,omitempty"`
	Rounds            []Round     `json:"rounds,omitempty"`
	TurnStatus        *string     `json:"turnStatus,omitempty"`
	FollowUp          *string     `json:"followUp,omitempty"`
	SuggestedTitle    *string     `json:"suggestedTitle,omitempty"`
	ModelName         *string     `json:"modelName,omitempty"`
	BillingMultiplier *float64    `json:"billingMultiplier,omitempty"`
	ErrorMessages     []string    `json:"errorMessages,omitempty"`
	PanelMessages     []string    `json:"panelMessages,omitempty"`
	FileEdits         []FileEdit  `json:"fileEdits,omitempty"`
}

// Reference points at a resource the turn cites. References form a set:
// the merge de-duplicates by value, preserving first-seen order.
type Reference struct {
	Kind  string `json:"kind"`
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

// Step is a progress step shown while the assistant works; upserted by id.
type Step struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status,omitempty"`
}

// Round is one step of an agent's response within a turn. Reply only grows
// by concatenation; RoundID is unique within its containing round list.
type Round struct {
	RoundID        int        `json:"roundId"`
	Reply          string     `json:"reply,omitempty"`
	ToolCalls      []ToolCall `json:"toolCalls,omitempty"`
	SubAgentRounds []Round    `json:"subAgentRounds,omitempty"`
}

// ToolCall is a single invocation of an external capability. Its id is
// unique within the conversation and stable for the call's lifetime.
type ToolCall struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name,omitempty"`
	Status          Status                 `json:"status,omitempty"`
	Title           string                 `json:"title,omitempty"`
	ProgressMessage string                 `json:"progressMessage,omitempty"`
	Result          string                 `json:"result,omitempty"`
	ResultDetails   string                 `json:"resultDetails,omitempty"`
	Error           string                 `json:"error,omitempty"`
	InvokeParams    map[string]interface{} `json:"invokeParams,omitempty"`
}

// FileEdit records a file mutated during the turn; upserted by the pair
// (FileURL, ToolName).
type FileEdit struct {
	FileURL  string `json:"fileUrl"`
	ToolName string `json:"toolName"`
	Diff     string `json:"diff,omitempty"`
	Added    int    `json:"added,omitempty"`
	Removed  int    `json:"removed,omitempty"`
}
