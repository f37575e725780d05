// Package engine implements the Actor Engine: the deterministic
// replay loop that turns an actor's journal into its current state,
// drives one logical invocation of actor code forward through its
// suspension points, and records every state mutation and suspension
// decision as a new journal entry.
//
// Actor code itself (a Behavior) is ordinary synchronous Go: it reads
// and mutates state through an *InvocationContext instead of a
// database handle, and it calls activities or waits on events through
// methods that look like ordinary (blocking) function calls but are
// really journal lookups. The first time a given call site is reached
// within an invocation it has nothing to return, so it raises a typed
// suspension error; on the next resume the whole Behavior runs again
// from the top, and every call site up to the new one now finds its
// answer already recorded and returns immediately. This keeps the
// actor contract free of any explicit state-machine bookkeeping at
// the cost of requiring Behavior.Run to be deterministic given the
// same sequence of inputs -- no clocks, no randomness, no I/O other
// than through the context.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/oriys/actorforge/internal/domain"
	"github.com/oriys/actorforge/internal/journalstore"
	"github.com/oriys/actorforge/internal/statestore"
	"github.com/oriys/actorforge/internal/telemetry"
)

// Behavior is the actor code contract. Run is invoked once per
// logical message (execute, resume-with-activity, resume-with-event)
// and must derive everything it does solely from ictx: its trigger
// accessors, UpdateState, CallActivity and AwaitEvent. It must never
// perform its own I/O.
type Behavior interface {
	Run(ictx *InvocationContext) error
}

// DefaultSnapshotThreshold is the journal length at which Instance
// compacts to a snapshot on its next successful commit.
const DefaultSnapshotThreshold = 200

// Instance is one activated actor: its identity, its current
// reconstructed state, its journal tail since the last snapshot, and
// the stores it persists through. A Runtime owns exactly one Instance
// per active actor_id, matching the single-writer invariant.
type Instance struct {
	ID       domain.ActorID
	Behavior Behavior

	states            statestore.Store
	journals          journalstore.Store
	snapshotThreshold int

	state   map[string]interface{}
	journal domain.Journal
	cursor  int64 // next cursor to assign when appending
}

// NewInstance constructs an Instance. Load must be called before
// Execute/Resume* to hydrate state and journal from the stores.
func NewInstance(id domain.ActorID, behavior Behavior, states statestore.Store, journals journalstore.Store) *Instance {
	return &Instance{
		ID:                id,
		Behavior:          behavior,
		states:            states,
		journals:          journals,
		snapshotThreshold: DefaultSnapshotThreshold,
		state:             make(map[string]interface{}),
	}
}

// WithSnapshotThreshold overrides the default compaction threshold.
func (i *Instance) WithSnapshotThreshold(n int) *Instance {
	i.snapshotThreshold = n
	return i
}

// Load hydrates state from the latest snapshot (if any) plus the
// journal entries since it, by applying state_changed entries
// directly as state replacements -- it never re-invokes Behavior.Run.
// Unknown entry types are skipped: they describe suspension
// bookkeeping the replay walk inside Run reinterprets itself.
func (i *Instance) Load(ctx context.Context) error {
	snapshot, err := i.journals.LatestSnapshot(ctx, i.ID.Type, i.ID.ID)
	if err != nil {
		return fmt.Errorf("load snapshot for %s: %w", i.ID, err)
	}

	sinceCursor := int64(-1)
	if snapshot != nil {
		i.state = copyStateMap(snapshot.State)
		sinceCursor = snapshot.Cursor
	}

	journal, err := i.journals.Read(ctx, i.ID.Type, i.ID.ID, sinceCursor)
	if err != nil {
		return fmt.Errorf("read journal for %s: %w", i.ID, err)
	}
	i.journal = journal
	i.cursor = journal.Cursor()
	if i.cursor == 0 && snapshot != nil {
		i.cursor = snapshot.Cursor + 1
	}

	i.Replay()
	return nil
}

// Replay reconstructs i.state from i.journal's state_changed entries
// on top of whatever i.state already holds (the last snapshot, or
// empty for a cold actor). It is idempotent and side-effect free
// beyond mutating i.state, so it is safe to call again after Load.
func (i *Instance) Replay() {
	for _, entry := range i.journal.Entries {
		if entry.Type == domain.EntryStateChanged {
			i.state = copyStateMap(entry.Data)
		}
	}
}

// GetState returns a defensive copy of the actor's current state.
func (i *Instance) GetState() map[string]interface{} {
	return copyStateMap(i.state)
}

// GetJournal returns the journal tail held since the last snapshot.
func (i *Instance) GetJournal() domain.Journal {
	return i.journal
}

// LoadJournal replaces the in-memory journal tail, used by tests and
// by the Runtime when handing off an already-hydrated instance.
func (i *Instance) LoadJournal(journal domain.Journal) {
	i.journal = journal
	i.cursor = journal.Cursor()
}

// Execute runs a fresh invocation: message_type == "execute".
func (i *Instance) Execute(ctx context.Context, input map[string]interface{}) domain.InvocationResult {
	ictx := newInvocationContext(ctx, i, input)
	return i.run(ctx, ictx)
}

// ResumeWithActivity re-runs the actor from the top after appending
// the activity's successful result to the journal; every call_activity
// site up to and including the resumed one now finds its answer on
// replay.
func (i *Instance) ResumeWithActivity(ctx context.Context, req domain.ActivityRequest, result map[string]interface{}) domain.InvocationResult {
	if err := i.append(ctx, domain.JournalEntry{
		Type: domain.EntryActivityCompleted,
		Data: map[string]interface{}{"activity_id": req.ActivityID, "activity_name": req.ActivityName, "result": result},
	}); err != nil {
		return domain.Failed(err)
	}
	ictx := newInvocationContext(ctx, i, nil)
	return i.run(ctx, ictx)
}

// ResumeWithActivityError is the failure counterpart of
// ResumeWithActivity: the activity exhausted its retries and the
// actor must observe the failure through its next call_activity
// return value instead of a result.
func (i *Instance) ResumeWithActivityError(ctx context.Context, req domain.ActivityRequest, activityErr error) domain.InvocationResult {
	if err := i.append(ctx, domain.JournalEntry{
		Type: domain.EntryActivityFailed,
		Data: map[string]interface{}{"activity_id": req.ActivityID, "activity_name": req.ActivityName, "error": activityErr.Error()},
	}); err != nil {
		return domain.Failed(err)
	}
	ictx := newInvocationContext(ctx, i, nil)
	return i.run(ctx, ictx)
}

// ResumeWithEvent re-runs the actor from the top after appending the
// received event's payload to the journal.
func (i *Instance) ResumeWithEvent(ctx context.Context, req domain.EventRequest, payload map[string]interface{}) domain.InvocationResult {
	if err := i.append(ctx, domain.JournalEntry{
		Type: domain.EntryEventReceived,
		Data: map[string]interface{}{"event_type": req.EventType, "payload": payload},
	}); err != nil {
		return domain.Failed(err)
	}
	ictx := newInvocationContext(ctx, i, nil)
	return i.run(ctx, ictx)
}

func (i *Instance) run(ctx context.Context, ictx *InvocationContext) domain.InvocationResult {
	err := i.Behavior.Run(ictx)
	if err == nil {
		return domain.Completed()
	}

	var activitySuspend *domain.ActivitySuspendError
	if asActivitySuspend(err, &activitySuspend) {
		telemetry.RecordSuspend("activity")
		if appendErr := i.append(ctx, domain.JournalEntry{
			Type: domain.EntryActivityRequested,
			Data: map[string]interface{}{
				"activity_id":     activitySuspend.Request.ActivityID,
				"activity_name":   activitySuspend.Request.ActivityName,
				"input":           activitySuspend.Request.Input,
				"idempotency_key": activitySuspend.Request.IdempotencyKey,
			},
		}); appendErr != nil {
			return domain.Failed(appendErr)
		}
		return domain.SuspendedOnActivity(activitySuspend.Request)
	}

	var eventSuspend *domain.EventSuspendError
	if asEventSuspend(err, &eventSuspend) {
		telemetry.RecordSuspend("event")
		if appendErr := i.append(ctx, domain.JournalEntry{
			Type: domain.EntryEventAwaited,
			Data: map[string]interface{}{"event_type": eventSuspend.Request.EventType},
		}); appendErr != nil {
			return domain.Failed(appendErr)
		}
		return domain.SuspendedOnEvent(eventSuspend.Request)
	}

	return domain.Failed(err)
}

func asActivitySuspend(err error, target **domain.ActivitySuspendError) bool {
	return errors.As(err, target)
}

func asEventSuspend(err error, target **domain.EventSuspendError) bool {
	return errors.As(err, target)
}

// updateState is the commit point for UpdateState: it applies mutator
// to a copy of the current state, swaps i.state in before appending
// so that a compaction triggered by this very append snapshots the
// post-mutation state rather than the stale pre-mutation one, and
// rolls the swap back if the append fails.
func (i *Instance) updateState(ctx context.Context, mutator func(map[string]interface{}) map[string]interface{}) error {
	previous := i.state
	next := mutator(copyStateMap(i.state))
	i.state = next
	if err := i.append(ctx, domain.JournalEntry{Type: domain.EntryStateChanged, Data: next}); err != nil {
		i.state = previous
		return err
	}
	return i.persistRecord(ctx)
}

// append adds entry to both the journal store and the in-memory
// journal tail, assigning it the next cursor.
func (i *Instance) append(ctx context.Context, entry domain.JournalEntry) error {
	entry.Cursor = i.cursor
	if err := i.journals.Append(ctx, i.ID.Type, i.ID.ID, entry); err != nil {
		return fmt.Errorf("append journal entry for %s: %w", i.ID, err)
	}
	i.journal = i.journal.Append(entry)
	i.cursor++
	return i.maybeCompact(ctx)
}

// maybeCompact snapshots and trims once the journal tail reaches
// the configured threshold, bounding replay cost for long-lived actors.
func (i *Instance) maybeCompact(ctx context.Context) error {
	if len(i.journal.Entries) < i.snapshotThreshold {
		return nil
	}
	snapshot := domain.Snapshot{
		ActorID: i.ID.String(),
		State:   copyStateMap(i.state),
		Cursor:  i.cursor - 1,
	}
	if err := i.journals.SaveSnapshot(ctx, i.ID.Type, i.ID.ID, snapshot); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", i.ID, err)
	}
	if err := i.journals.Trim(ctx, i.ID.Type, i.ID.ID, snapshot.Cursor); err != nil {
		return fmt.Errorf("trim journal for %s: %w", i.ID, err)
	}
	i.journal = domain.Journal{}
	return nil
}

// persistRecord writes the current state into the state store,
// conditioned on the previously observed version so a concurrent
// writer (which should never exist under a held lease, but might
// during lease handoff) is detected rather than silently overwritten.
func (i *Instance) persistRecord(ctx context.Context) error {
	existing, err := i.states.Load(ctx, i.ID.Type, i.ID.ID)
	version := int64(0)
	if err == nil {
		version = existing.Version
	}
	record := &domain.ActorRecord{
		ID:        i.ID.ID,
		ActorType: i.ID.Type,
		Status:    domain.ActorStatusActive,
		State:     copyStateMap(i.state),
		Version:   version,
	}
	if err := i.states.Save(ctx, record); err != nil {
		return fmt.Errorf("persist state for %s: %w", i.ID, err)
	}
	return nil
}

func copyStateMap(src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
