// Package worker implements the Actor Worker: the scheduler loop that
// dequeues messages for one actor_type, activates the target actor
// through the Actor Runtime, dispatches the message to the right
// engine.Instance entry point, and routes the result -- completion,
// suspension, or failure -- back through deactivation, activity
// handoff, or the Retry Handler.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/actorforge/internal/activity"
	"github.com/oriys/actorforge/internal/domain"
	"github.com/oriys/actorforge/internal/idempotency"
	"github.com/oriys/actorforge/internal/logging"
	"github.com/oriys/actorforge/internal/mqueue"
	pushqueue "github.com/oriys/actorforge/internal/queue"
	"github.com/oriys/actorforge/internal/retry"
	"github.com/oriys/actorforge/internal/runtime"
	"github.com/oriys/actorforge/internal/telemetry"
)

const deadLetterReasonUnknownActorType = "unknown_actor_type"

// leaseContentionNackDelay is the "small delay" the spec's tie-break
// calls for when activation fails only because another process
// already holds the actor's lease -- long enough that a live holder's
// renewal loop has a window to finish, short enough that the message
// doesn't visibly stall.
const leaseContentionNackDelay = 250 * time.Millisecond

// Config configures one Actor Worker. Spec §4.7 calls for one worker
// per actor_type; QueueName follows the "actor:"+type convention used
// throughout the message-flow description in §2.
type Config struct {
	ActorType      string
	QueueName      string // defaults to "actor:"+ActorType
	DequeueTimeout time.Duration
	PollInterval   time.Duration
	MessagePolicy  domain.RetryPolicy
	ActivityPolicy domain.RetryPolicy

	// Adaptive enables AIMD concurrency/poll-interval scaling (see
	// adaptive.go) instead of the static single-sequential-loop mode.
	// MaxWorkers bounds how many messages this worker processes
	// concurrently when Adaptive is true; 0 picks a default.
	Adaptive   bool
	MaxWorkers int
}

// Worker drives Config.ActorType's message loop against a shared
// Runtime, message queue, activity executor/registry and retry
// handler.
type Worker struct {
	cfg       Config
	queueName string

	rt        *runtime.Runtime
	behaviors runtime.BehaviorFactory
	queue     mqueue.Queue
	executor  *activity.Executor
	registry  activity.Registry
	idem      idempotency.Store
	retries   *retry.Handler
	notifier  pushqueue.Notifier
	adaptive  *adaptiveController
	inFlight  atomic.Int32

	stop chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Worker. idem may be nil if no activity the worker
// will run uses an idempotency key.
func New(cfg Config, rt *runtime.Runtime, behaviors runtime.BehaviorFactory, queue mqueue.Queue, executor *activity.Executor, registry activity.Registry, idem idempotency.Store) *Worker {
	if cfg.QueueName == "" {
		cfg.QueueName = "actor:" + cfg.ActorType
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	w := &Worker{
		cfg:       cfg,
		queueName: cfg.QueueName,
		rt:        rt,
		behaviors: behaviors,
		queue:     queue,
		executor:  executor,
		registry:  registry,
		idem:      idem,
		retries:   retry.New(queue),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if cfg.Adaptive {
		ac := defaultAdaptiveConfig(cfg.MaxWorkers, cfg.PollInterval)
		w.adaptive = newAdaptiveController(ac, ac.MinSlots, cfg.PollInterval)
	}
	return w
}

// WithNotifier attaches a push-based notifier: the worker's sleep
// between empty polls is cut short as soon as a mailbox notification
// arrives, instead of waiting out the full PollInterval. Without a
// notifier (the default), the worker relies on pure polling.
func (w *Worker) WithNotifier(n pushqueue.Notifier) *Worker {
	w.notifier = n
	return w
}

// Run dequeues and processes messages until ctx is cancelled or Stop
// is called. It blocks; callers typically run it in its own
// goroutine.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	var wake <-chan struct{}
	if w.notifier != nil {
		wake = w.notifier.Subscribe(ctx, pushqueue.QueueMailbox)
	}
	if w.adaptive != nil {
		w.adaptive.Start()
		defer w.adaptive.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		default:
		}

		msg, err := w.queue.Dequeue(ctx, w.queueName, w.cfg.DequeueTimeout)
		if w.adaptive != nil {
			if depth, depthErr := w.queue.Depth(ctx, w.queueName); depthErr == nil {
				w.adaptive.SetQueueDepth(int64(depth))
			}
		}
		if err != nil {
			logging.Op().Error("dequeue failed", "queue", w.queueName, "error", err)
			w.sleep(ctx, wake)
			continue
		}
		if msg == nil {
			w.sleep(ctx, wake)
			continue
		}

		// In adaptive mode, process concurrently up to the controller's
		// current slot count instead of one message at a time; once that
		// budget is exhausted the loop falls back to processing inline,
		// which naturally applies backpressure until a slot frees up.
		if w.adaptive != nil && int(w.inFlight.Load()) < w.adaptive.Slots() {
			w.inFlight.Add(1)
			w.wg.Add(1)
			go func(m *domain.Message) {
				defer w.wg.Done()
				defer w.inFlight.Add(-1)
				w.process(ctx, m)
				w.adaptive.RecordCompleted()
			}(msg)
			continue
		}

		w.process(ctx, msg)
		if w.adaptive != nil {
			w.adaptive.RecordCompleted()
		}
	}
}

// sleep waits out the poll interval unless ctx/stop fires first, or --
// with a notifier attached -- a mailbox notification wakes it early so
// the next Dequeue runs without the full interval's latency. The
// interval itself comes from the adaptive controller when enabled,
// otherwise from the static Config.PollInterval.
func (w *Worker) sleep(ctx context.Context, wake <-chan struct{}) {
	interval := w.cfg.PollInterval
	if w.adaptive != nil {
		interval = w.adaptive.PollInterval()
	}
	select {
	case <-ctx.Done():
	case <-w.stop:
	case <-wake:
	case <-time.After(interval):
	}
}

// Stop requests the worker's Run loop to exit after its current
// message finishes processing, matching the cooperative-shutdown
// requirement in spec §5: stop dequeuing, drain the in-flight
// invocation to its next suspension/completion, then return.
func (w *Worker) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

// Wait blocks until Run has returned.
func (w *Worker) Wait() {
	<-w.done
}

// process implements spec §4.7's process(msg): activate, dispatch on
// message_type, then route the outcome to deactivation+ack,
// deactivation+activity-handoff, deactivation+event-wait, or
// deactivation+retry-handling.
func (w *Worker) process(ctx context.Context, msg *domain.Message) {
	start := time.Now()
	logging.Op().Debug("message:received", "actor_type", msg.ActorType, "actor_id", msg.ActorID, "message_type", msg.MessageType, "message_id", msg.MessageID)

	behavior, err := w.behaviors(msg.ActorType)
	if err != nil {
		logging.Op().Warn("unknown actor type", "actor_type", msg.ActorType, "message_id", msg.MessageID)
		if dlErr := w.queue.DeadLetter(ctx, msg, deadLetterReasonUnknownActorType); dlErr != nil {
			logging.Op().Error("dead_letter failed", "message_id", msg.MessageID, "error", dlErr)
		}
		return
	}

	id := domain.ActorID{Type: msg.ActorType, ID: msg.ActorID}
	inst, err := w.rt.Activate(ctx, id, behavior)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyActive) {
			if nackErr := w.queue.Nack(ctx, msg, leaseContentionNackDelay); nackErr != nil {
				logging.Op().Error("nack after lease contention failed", "message_id", msg.MessageID, "error", nackErr)
			}
			return
		}
		logging.Op().Error("activate failed", "actor_id", id.String(), "error", err)
		w.handleFailure(ctx, msg, err)
		return
	}
	w.rt.Touch(id)

	result := w.dispatch(ctx, inst, msg)

	switch result.Outcome {
	case domain.OutcomeCompleted:
		if err := w.rt.Deactivate(ctx, id); err != nil {
			logging.Op().Error("deactivate after completion failed", "actor_id", id.String(), "error", err)
		}
		telemetry.RecordMessage(msg.ActorType, time.Since(start).Milliseconds(), true)
		logging.Op().Debug("message:completed", "actor_id", id.String(), "message_id", msg.MessageID)
		if err := w.queue.Ack(ctx, msg); err != nil {
			logging.Op().Error("ack failed, relying on redelivery", "message_id", msg.MessageID, "error", err)
		}

	case domain.OutcomeSuspendedOnActivity:
		if err := w.rt.Deactivate(ctx, id); err != nil {
			logging.Op().Error("deactivate before activity handoff failed", "actor_id", id.String(), "error", err)
		}
		telemetry.RecordSuspend("activity")
		w.handOffActivity(id, *result.ActivityRequest)
		if err := w.queue.Ack(ctx, msg); err != nil {
			logging.Op().Error("ack failed, relying on redelivery", "message_id", msg.MessageID, "error", err)
		}

	case domain.OutcomeSuspendedOnEvent:
		if err := w.rt.Deactivate(ctx, id); err != nil {
			logging.Op().Error("deactivate before event wait failed", "actor_id", id.String(), "error", err)
		}
		telemetry.RecordSuspend("event")
		if err := w.queue.Ack(ctx, msg); err != nil {
			logging.Op().Error("ack failed, relying on redelivery", "message_id", msg.MessageID, "error", err)
		}

	default: // domain.OutcomeFailed
		if err := w.rt.Deactivate(ctx, id); err != nil {
			logging.Op().Error("deactivate after failure failed", "actor_id", id.String(), "error", err)
		}
		telemetry.RecordMessage(msg.ActorType, time.Since(start).Milliseconds(), false)
		logging.Op().Warn("message:failed", "actor_id", id.String(), "message_id", msg.MessageID, "error", result.Err)
		w.handleFailure(ctx, msg, result.Err)
	}
}

// dispatch maps msg.MessageType to the corresponding engine.Instance
// entry point, per spec §4.7's process(msg) dispatch table.
func (w *Worker) dispatch(ctx context.Context, inst instance, msg *domain.Message) domain.InvocationResult {
	switch msg.MessageType {
	case domain.MessageExecute:
		return inst.Execute(ctx, msg.Payload)

	case domain.MessageActivityComplete:
		req, err := decodeActivityRequest(msg.Payload)
		if err != nil {
			return domain.Failed(err)
		}
		result, _ := msg.Payload["result"].(map[string]interface{})
		return inst.ResumeWithActivity(ctx, req, result)

	case domain.MessageActivityFailed:
		req, err := decodeActivityRequest(msg.Payload)
		if err != nil {
			return domain.Failed(err)
		}
		errMsg, _ := msg.Payload["error"].(string)
		return inst.ResumeWithActivityError(ctx, req, errors.New(errMsg))

	case domain.MessageEvent:
		eventType, _ := msg.Payload["event_type"].(string)
		payload, _ := msg.Payload["payload"].(map[string]interface{})
		return inst.ResumeWithEvent(ctx, domain.EventRequest{EventType: eventType}, payload)

	default:
		return domain.Failed(fmt.Errorf("unsupported message_type %q", msg.MessageType))
	}
}

// instance is the subset of *engine.Instance the worker dispatches
// against; declared locally so worker_test.go can substitute a fake
// without pulling in the engine's store dependencies.
type instance interface {
	Execute(ctx context.Context, input map[string]interface{}) domain.InvocationResult
	ResumeWithActivity(ctx context.Context, req domain.ActivityRequest, result map[string]interface{}) domain.InvocationResult
	ResumeWithActivityError(ctx context.Context, req domain.ActivityRequest, activityErr error) domain.InvocationResult
	ResumeWithEvent(ctx context.Context, req domain.EventRequest, payload map[string]interface{}) domain.InvocationResult
}

func decodeActivityRequest(payload map[string]interface{}) (domain.ActivityRequest, error) {
	activityID, _ := payload["activity_id"].(string)
	if activityID == "" {
		return domain.ActivityRequest{}, errors.New("resume payload missing activity_id")
	}
	activityName, _ := payload["activity_name"].(string)
	return domain.ActivityRequest{ActivityID: activityID, ActivityName: activityName}, nil
}

// handleFailure invokes the Retry Handler, matching spec §4.7's
// "catch any other error" branch: schedule a later attempt, or
// dead-letter once policy.MaxRetries is exhausted.
func (w *Worker) handleFailure(ctx context.Context, msg *domain.Message, cause error) {
	telemetry.RecordRetry(msg.ActorType, "message_error")
	if err := w.retries.HandleFailure(ctx, msg, cause, w.cfg.MessagePolicy); err != nil {
		logging.Op().Error("retry handler failed", "message_id", msg.MessageID, "error", err)
	}
}

// handOffActivity runs the requested activity against the Activity
// Executor -- consulting the idempotency store first when the request
// carries a key -- and enqueues the activity_completed/activity_failed
// resumption message back onto the actor's own queue, so the next
// Run loop resumes it in FIFO order behind anything already pending.
func (w *Worker) handOffActivity(id domain.ActorID, req domain.ActivityRequest) {
	telemetry.RecordActivation(id.Type, "activity_requested")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.runActivity(context.Background(), id, req)
	}()
}

func (w *Worker) runActivity(ctx context.Context, id domain.ActorID, req domain.ActivityRequest) {
	result, err := w.invokeActivity(ctx, req)

	var payload map[string]interface{}
	msgType := domain.MessageActivityComplete
	if err != nil {
		msgType = domain.MessageActivityFailed
		payload = map[string]interface{}{"activity_id": req.ActivityID, "activity_name": req.ActivityName, "error": err.Error()}
	} else {
		payload = map[string]interface{}{"activity_id": req.ActivityID, "activity_name": req.ActivityName, "result": result}
	}

	resume := domain.Message{
		MessageID:   req.ActivityID + "#resume",
		ActorID:     id.ID,
		ActorType:   id.Type,
		MessageType: msgType,
		Payload:     payload,
		Metadata:    domain.MessageMetadata{Timestamp: time.Now().UnixMilli()},
	}
	if enqErr := w.queue.Enqueue(ctx, w.queueName, resume, mqueue.EnqueueOptions{DedupKey: resume.MessageID}); enqErr != nil {
		logging.Op().Error("enqueue activity resumption failed", "activity_id", req.ActivityID, "error", enqErr)
		return
	}
	if w.notifier != nil {
		if notifyErr := w.notifier.Notify(ctx, pushqueue.QueueMailbox); notifyErr != nil {
			logging.Op().Warn("notify resumption failed", "activity_id", req.ActivityID, "error", notifyErr)
		}
	}
}

func (w *Worker) invokeActivity(ctx context.Context, req domain.ActivityRequest) (map[string]interface{}, error) {
	if req.IdempotencyKey != "" && w.idem != nil {
		if cached, err := w.idem.Get(ctx, req.IdempotencyKey); err == nil && cached != nil {
			telemetry.RecordIdempotencyHit("hit")
			return cached.Result, nil
		}
		telemetry.RecordIdempotencyHit("miss")
	}

	def, err := w.registry.Resolve(ctx, req.ActivityName, "")
	if err != nil {
		return nil, fmt.Errorf("resolve activity %s: %w", req.ActivityName, err)
	}

	input, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("marshal activity input: %w", err)
	}

	ctx = activity.WithExecutionID(ctx, req.ActivityID)
	output, err := w.executor.InvokeWithRetry(ctx, def, input, w.cfg.ActivityPolicy)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("unmarshal activity output: %w", err)
	}

	if req.IdempotencyKey != "" && w.idem != nil {
		_ = w.idem.Set(ctx, &idempotency.Record{
			Key:        req.IdempotencyKey,
			ActorID:    req.ActivityID,
			Result:     result,
			ExecutedAt: time.Now().UnixMilli(),
			ExpiresAt:  time.Now().Add(24 * time.Hour).UnixMilli(),
		})
	}

	return result, nil
}

// WaitActivities blocks until every in-flight activity handoff
// goroutine this worker has spawned has finished -- used by tests and
// by a daemon's shutdown path that wants activity completions flushed
// before exiting.
func (w *Worker) WaitActivities() {
	w.wg.Wait()
}
