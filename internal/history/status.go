package history

// Status is the lifecycle state of a tool call.
type Status string

const (
	StatusWaitConfirmation Status = "waitForConfirmation"
	StatusAccepted         Status = "accepted"
	StatusRunning          Status = "running"
	StatusCompleted        Status = "completed"
	StatusError            Status = "error"
	StatusCancelled        Status = "cancelled"
)

// Terminal reports whether no further status transition is permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

func (s Status) rank() int {
	switch s {
	case StatusWaitConfirmation:
		return 1
	case StatusAccepted:
		return 2
	case StatusRunning:
		return 3
	case StatusCompleted, StatusError, StatusCancelled:
		return 4
	}
	return 0
}

// CanAdvance reports whether a tool call may move from `from` to `to`.
// Transitions are monotonic: a terminal state is never left and a later
// out-of-order update never moves the status backward. Updates that cannot
// advance are still applied as informational field updates by the merge.
func CanAdvance(from, to Status) bool {
	if to == "" || from == to {
		return false
	}
	if from.Terminal() {
		return false
	}
	return to.rank() > from.rank()
}
