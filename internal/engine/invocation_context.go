package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oriys/actorforge/internal/domain"
	"github.com/oriys/actorforge/internal/pkg/crypto"
)

// InvocationContext is the explicit, process-scoped object actor code
// is handed for one Behavior.Run call. It replaces both direct I/O
// and ambient closures: every side effect an actor can have -- mutate
// state, call an activity, wait for an event -- goes through one of
// its methods, each of which is a journal lookup keyed by how many
// times that kind of call has already happened in this invocation.
type InvocationContext struct {
	ctx      context.Context
	instance *Instance
	input    map[string]interface{}

	activityCalls int
	eventCalls    int
}

func newInvocationContext(ctx context.Context, instance *Instance, input map[string]interface{}) *InvocationContext {
	return &InvocationContext{ctx: ctx, instance: instance, input: input}
}

// Context returns the invocation's context.Context, for passing to
// code that needs cancellation/deadline awareness but must still
// avoid doing its own I/O.
func (ic *InvocationContext) Context() context.Context {
	return ic.ctx
}

// Input returns the payload passed to Execute. Resumed invocations
// (ResumeWithActivity/ResumeWithActivityError/ResumeWithEvent) have no
// input of their own; behavior code reaching a later point in its
// logic derives what happened from CallActivity/AwaitEvent's return
// values instead.
func (ic *InvocationContext) Input() map[string]interface{} {
	return ic.input
}

// State returns a defensive copy of the actor's state as of the start
// of this invocation plus any UpdateState calls already made within it.
func (ic *InvocationContext) State() map[string]interface{} {
	return ic.instance.GetState()
}

// UpdateState atomically replaces the actor's state with mutator's
// result, appending a state_changed journal entry and persisting the
// updated record before returning. This is the actor's only
// persistence primitive and is itself a suspension point: if it
// returns an error, the caller should treat the invocation as failed
// rather than continue running with a stale view of state.
func (ic *InvocationContext) UpdateState(mutator func(state map[string]interface{}) map[string]interface{}) error {
	return ic.instance.updateState(ic.ctx, mutator)
}

// CallActivity invokes a named activity. On the first replay pass
// that reaches this call site it has no answer recorded yet and
// returns a *domain.ActivitySuspendError; Behavior.Run should
// propagate that error unchanged. On a later resume, once the
// Activity Executor's result has been appended to the journal, the
// same call site returns the recorded result (or the recorded
// failure) immediately instead of suspending again.
func (ic *InvocationContext) CallActivity(name string, input map[string]interface{}, idempotencyKey string) (map[string]interface{}, error) {
	occurrence := ic.activityCalls
	ic.activityCalls++

	req, result, failure := ic.instance.findActivityAt(occurrence)
	if req == nil {
		activityID := fmt.Sprintf("%s#activity-%d", ic.instance.ID.String(), occurrence)
		if idempotencyKey == "" {
			idempotencyKey = defaultIdempotencyKey(activityID, name, input)
		}
		return nil, &domain.ActivitySuspendError{Request: domain.ActivityRequest{
			ActivityID:     activityID,
			ActivityName:   name,
			Input:          input,
			IdempotencyKey: idempotencyKey,
		}}
	}
	if result != nil {
		return result, nil
	}
	if failure != "" {
		return nil, fmt.Errorf("activity %s failed: %s", req.ActivityName, failure)
	}
	// Requested but not yet answered: still suspended on the same request.
	return nil, &domain.ActivitySuspendError{Request: *req}
}

// defaultIdempotencyKey derives a stable dedup key for a CallActivity
// invocation that didn't supply its own, so the executor's
// consult-before-execute idempotency check still fires across retries
// and worker crashes instead of silently becoming a no-op.
func defaultIdempotencyKey(activityID, name string, input map[string]interface{}) string {
	encoded, err := json.Marshal(input)
	if err != nil {
		return crypto.HashString(activityID + name)
	}
	return crypto.HashString(activityID + name + string(encoded))
}

// AwaitEvent waits for an external event of the given type, following
// the same replay-and-suspend pattern as CallActivity.
func (ic *InvocationContext) AwaitEvent(eventType string) (map[string]interface{}, error) {
	occurrence := ic.eventCalls
	ic.eventCalls++

	req, payload := ic.instance.findEventAt(occurrence)
	if req == nil {
		return nil, &domain.EventSuspendError{Request: domain.EventRequest{EventType: eventType}}
	}
	if payload != nil {
		return payload, nil
	}
	return nil, &domain.EventSuspendError{Request: *req}
}

// findActivityAt returns the occurrence-th activity_requested entry
// in the instance's journal (0-indexed) decoded back into a request,
// along with its result if an activity_completed entry for the same
// activity_id exists, or its failure message if an activity_failed
// entry does.
func (i *Instance) findActivityAt(occurrence int) (*domain.ActivityRequest, map[string]interface{}, string) {
	seen := 0
	var req *domain.ActivityRequest
	for _, entry := range i.journal.Entries {
		if entry.Type != domain.EntryActivityRequested {
			continue
		}
		if seen == occurrence {
			req = decodeActivityRequest(entry.Data)
			break
		}
		seen++
	}
	if req == nil {
		return nil, nil, ""
	}

	for _, entry := range i.journal.Entries {
		switch entry.Type {
		case domain.EntryActivityCompleted:
			if activityID(entry.Data) == req.ActivityID {
				return req, asMap(entry.Data["result"]), ""
			}
		case domain.EntryActivityFailed:
			if activityID(entry.Data) == req.ActivityID {
				return req, nil, asString(entry.Data["error"])
			}
		}
	}
	return req, nil, ""
}

// findEventAt mirrors findActivityAt for event_awaited/event_received
// entries, matched by event type and occurrence order rather than by
// an ID since events have no separate identifier of their own.
func (i *Instance) findEventAt(occurrence int) (*domain.EventRequest, map[string]interface{}) {
	seen := 0
	var req *domain.EventRequest
	var reqIndex int
	for idx, entry := range i.journal.Entries {
		if entry.Type != domain.EntryEventAwaited {
			continue
		}
		if seen == occurrence {
			req = &domain.EventRequest{EventType: asString(entry.Data["event_type"])}
			reqIndex = idx
			break
		}
		seen++
	}
	if req == nil {
		return nil, nil
	}

	for _, entry := range i.journal.Entries[reqIndex+1:] {
		if entry.Type == domain.EntryEventReceived && asString(entry.Data["event_type"]) == req.EventType {
			return req, asMap(entry.Data["payload"])
		}
	}
	return req, nil
}

func decodeActivityRequest(data map[string]interface{}) *domain.ActivityRequest {
	return &domain.ActivityRequest{
		ActivityID:     asString(data["activity_id"]),
		ActivityName:   asString(data["activity_name"]),
		Input:          asMap(data["input"]),
		IdempotencyKey: asString(data["idempotency_key"]),
	}
}

func activityID(data map[string]interface{}) string {
	return asString(data["activity_id"])
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}
