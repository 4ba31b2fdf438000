package history

// The merge engine folds streamed partial updates into the history tree.
// The same logical turn/round/tool call arrives many times with growing text
// and changing status; merging must tolerate retransmission and must never
// lose a known field just because a later partial update omits it.

func mergeTurn(dst *Turn, patch Turn) {
	dst.Content += patch.Content

	for _, ref := range patch.References {
		if !containsReference(dst.References, ref) {
			dst.References = append(dst.References, ref)
		}
	}

	// Last writer wins, nil never overwrites.
	if patch.TurnStatus != nil {
		dst.TurnStatus = patch.TurnStatus
	}
	if patch.FollowUp != nil {
		dst.FollowUp = patch.FollowUp
	}
	if patch.SuggestedTitle != nil {
		dst.SuggestedTitle = patch.SuggestedTitle
	}
	if patch.ModelName != nil {
		dst.ModelName = patch.ModelName
	}
	if patch.BillingMultiplier != nil {
		dst.BillingMultiplier = patch.BillingMultiplier
	}
	if patch.ParentTurnID != nil {
		dst.ParentTurnID = patch.ParentTurnID
	}

	dst.ErrorMessages = append(dst.ErrorMessages, patch.ErrorMessages...)
	dst.PanelMessages = append(dst.PanelMessages, patch.PanelMessages...)

	for _, step := range patch.Steps {
		upsertStep(&dst.Steps, step)
	}

	mergeRounds(&dst.Rounds, patch.Rounds)

	for _, edit := range patch.FileEdits {
		upsertFileEdit(&dst.FileEdits, edit)
	}
}

func mergeRounds(dst *[]Round, patches []Round) {
	for _, patch := range patches {
		found := false
		for i := range *dst {
			if (*dst)[i].RoundID == patch.RoundID {
				mergeRound(&(*dst)[i], patch)
				found = true
				break
			}
		}
		if !found {
			*dst = append(*dst, cloneRound(patch))
		}
	}
}

func mergeRound(dst *Round, patch Round) {
	dst.Reply += patch.Reply

	for _, call := range patch.ToolCalls {
		upsertToolCall(&dst.ToolCalls, call)
	}

	mergeRounds(&dst.SubAgentRounds, patch.SubAgentRounds)
}

func upsertToolCall(dst *[]ToolCall, patch ToolCall) {
	for i := range *dst {
		if (*dst)[i].ID == patch.ID {
			mergeToolCall(&(*dst)[i], patch)
			return
		}
	}
	*dst = append(*dst, cloneToolCall(patch))
}

// mergeToolCall overwrites only the fields present in the incoming patch.
// Status moves only forward; a late update to a terminal call is accepted as
// informational but never regresses the status.
func mergeToolCall(dst *ToolCall, patch ToolCall) {
	if patch.Name != "" {
		dst.Name = patch.Name
	}
	if CanAdvance(dst.Status, patch.Status) {
		dst.Status = patch.Status
	}
	if patch.Title != "" {
		dst.Title = patch.Title
	}
	if patch.ProgressMessage != "" {
		dst.ProgressMessage = patch.ProgressMessage
	}
	if patch.Result != "" {
		dst.Result = patch.Result
	}
	if patch.ResultDetails != "" {
		dst.ResultDetails = patch.ResultDetails
	}
	if patch.Error != "" {
		dst.Error = patch.Error
	}
	if patch.InvokeParams != nil {
		dst.InvokeParams = cloneParams(patch.InvokeParams)
	}
}

func upsertStep(dst *[]Step, step Step) {
	for i := range *dst {
		if (*dst)[i].ID == step.ID {
			(*dst)[i] = step
			return
		}
	}
	*dst = append(*dst, step)
}

func upsertFileEdit(dst *[]FileEdit, edit FileEdit) {
	for i := range *dst {
		if (*dst)[i].FileURL == edit.FileURL && (*dst)[i].ToolName == edit.ToolName {
			(*dst)[i] = edit
			return
		}
	}
	*dst = append(*dst, edit)
}

func containsReference(refs []Reference, ref Reference) bool {
	for _, existing := range refs {
		if existing == ref {
			return true
		}
	}
	return false
}

func cloneTurn(t Turn) Turn {
	out := t
	out.References = append([]Reference(nil), t.References...)
	out.Steps = append([]Step(nil), t.Steps...)
	out.ErrorMessages = append([]string(nil), t.ErrorMessages...)
	out.PanelMessages = append([]string(nil), t.PanelMessages...)
	out.FileEdits = append([]FileEdit(nil), t.FileEdits...)
	if t.Rounds != nil {
		out.Rounds = make([]Round, 0, len(t.Rounds))
		for _, r := range t.Rounds {
			out.Rounds = append(out.Rounds, cloneRound(r))
		}
	}
	return out
}

func cloneRound(r Round) Round {
	out := r
	if r.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, 0, len(r.ToolCalls))
		for _, call := range r.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, cloneToolCall(call))
		}
	}
	if r.SubAgentRounds != nil {
		out.SubAgentRounds = make([]Round, 0, len(r.SubAgentRounds))
		for _, sub := range r.SubAgentRounds {
			out.SubAgentRounds = append(out.SubAgentRounds, cloneRound(sub))
		}
	}
	return out
}

func cloneToolCall(c ToolCall) ToolCall {
	out := c
	out.InvokeParams = cloneParams(c.InvokeParams)
	return out
}

func cloneParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
