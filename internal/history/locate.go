package history

// LocateStatusPatch finds a tool call anywhere under the given rounds and
// returns a minimal round patch carrying only the status change. Main rounds
// are searched first; a hit in a round's SubAgentRounds is returned shaped as
// the parent round id with an empty main tool-call list, so the store's
// upsert-by-id merge applies it without a separate code path. The second
// result is false when the id is not found anywhere.
func LocateStatusPatch(toolCallID string, status Status, rounds []Round) (Round, bool) {
	for _, round := range rounds {
		for _, call := range round.ToolCalls {
			if call.ID == toolCallID {
				return Round{
					RoundID:   round.RoundID,
					ToolCalls: []ToolCall{{ID: toolCallID, Status: status}},
				}, true
			}
		}
	}

	for _, round := range rounds {
		for _, sub := range round.SubAgentRounds {
			for _, call := range sub.ToolCalls {
				if call.ID == toolCallID {
					return Round{
						RoundID:   round.RoundID,
						ToolCalls: []ToolCall{},
						SubAgentRounds: []Round{{
							RoundID:   sub.RoundID,
							ToolCalls: []ToolCall{{ID: toolCallID, Status: status}},
						}},
					}, true
				}
			}
		}
	}

	return Round{}, false
}

// FindToolCall returns a copy of the tool call with the given id, searching
// main rounds first, then sub-agent rounds.
func FindToolCall(toolCallID string, rounds []Round) (ToolCall, bool) {
	for _, round := range rounds {
		for _, call := range round.ToolCalls {
			if call.ID == toolCallID {
				return cloneToolCall(call), true
			}
		}
	}
	for _, round := range rounds {
		for _, sub := range round.SubAgentRounds {
			for _, call := range sub.ToolCalls {
				if call.ID == toolCallID {
					return cloneToolCall(call), true
				}
			}
		}
	}
	return ToolCall{}, false
}
