package domain

// InvocationOutcome tags the result of dispatching one message to an
// actor's engine. Per the design notes, this replaces throwing typed
// suspensions with an explicit variant the worker pattern-matches on.
type InvocationOutcome string

const (
	OutcomeCompleted           InvocationOutcome = "completed"
	OutcomeSuspendedOnActivity InvocationOutcome = "suspended_on_activity"
	OutcomeSuspendedOnEvent    InvocationOutcome = "suspended_on_event"
	OutcomeFailed              InvocationOutcome = "failed"
)

// InvocationResult is the return value of every engine.Instance dispatch
// method (Execute, ResumeWithActivity, ResumeWithActivityError,
// ResumeWithEvent). At most one of ActivityRequest / EventRequest / Err
// is populated, matching Outcome; a Completed result populates none.
type InvocationResult struct {
	Outcome         InvocationOutcome
	ActivityRequest *ActivityRequest
	EventRequest    *EventRequest
	Err             error
}

// Completed builds a successful, non-suspended result.
func Completed() InvocationResult {
	return InvocationResult{Outcome: OutcomeCompleted}
}

// SuspendedOnActivity builds a result recording that the actor is
// waiting on the named activity invocation.
func SuspendedOnActivity(req ActivityRequest) InvocationResult {
	return InvocationResult{Outcome: OutcomeSuspendedOnActivity, ActivityRequest: &req}
}

// SuspendedOnEvent builds a result recording that the actor is
// waiting on an external event.
func SuspendedOnEvent(req EventRequest) InvocationResult {
	return InvocationResult{Outcome: OutcomeSuspendedOnEvent, EventRequest: &req}
}

// Failed wraps a non-suspension error raised during dispatch.
func Failed(err error) InvocationResult {
	return InvocationResult{Outcome: OutcomeFailed, Err: err}
}
