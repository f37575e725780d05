package worker

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/actorforge/internal/logging"
)

// adaptiveController dynamically adjusts a Worker's concurrent
// processing slots and poll interval based on observed queue depth and
// throughput, using the same additive-increase/multiplicative-decrease
// (AIMD) pattern TCP congestion control uses, applied here to actor
// mailbox draining instead of packet sending:
//
//   - growing depth  -> scale concurrency up, shorten the poll interval
//   - idle/draining  -> scale concurrency down after a few stable
//     rounds, lengthen the poll interval
//
// All values are clamped to adaptiveConfig's bounds. Disabled by
// default: Worker.Run falls back to one sequential dequeue loop and
// its static PollInterval.
type adaptiveController struct {
	cfg adaptiveConfig

	currentSlots  atomic.Int32
	currentPollNs atomic.Int64

	completedCount atomic.Int64
	queueDepth     atomic.Int64

	prevDepth    int64
	stableRounds int

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// adaptiveConfig bounds the adaptive controller's scaling.
type adaptiveConfig struct {
	ProbeInterval               time.Duration
	MinSlots                    int
	MaxSlots                    int
	MinPollInterval             time.Duration
	MaxPollInterval             time.Duration
	ScaleUpStep                 int
	ScaleDownRate               float64
	StableRoundsBeforeScaleDown int
}

func defaultAdaptiveConfig(maxSlots int, basePoll time.Duration) adaptiveConfig {
	if maxSlots <= 0 {
		maxSlots = 16
	}
	if basePoll <= 0 {
		basePoll = 500 * time.Millisecond
	}
	return adaptiveConfig{
		ProbeInterval:               2 * time.Second,
		MinSlots:                    1,
		MaxSlots:                    maxSlots,
		MinPollInterval:             20 * time.Millisecond,
		MaxPollInterval:             basePoll,
		ScaleUpStep:                 2,
		ScaleDownRate:               0.75,
		StableRoundsBeforeScaleDown: 3,
	}
}

func newAdaptiveController(cfg adaptiveConfig, initialSlots int, initialPoll time.Duration) *adaptiveController {
	slots := clampInt(initialSlots, cfg.MinSlots, cfg.MaxSlots)
	poll := clampDuration(initialPoll, cfg.MinPollInterval, cfg.MaxPollInterval)

	ac := &adaptiveController{cfg: cfg, stopCh: make(chan struct{})}
	ac.currentSlots.Store(int32(slots))
	ac.currentPollNs.Store(int64(poll))
	return ac
}

func (ac *adaptiveController) Start() {
	ac.wg.Add(1)
	go ac.loop()
}

func (ac *adaptiveController) Stop() {
	close(ac.stopCh)
	ac.wg.Wait()
}

// RecordCompleted is called by the worker after each processed message.
func (ac *adaptiveController) RecordCompleted() {
	ac.completedCount.Add(1)
}

// SetQueueDepth is called by the worker after each Dequeue attempt.
func (ac *adaptiveController) SetQueueDepth(depth int64) {
	ac.queueDepth.Store(depth)
}

func (ac *adaptiveController) Slots() int {
	return int(ac.currentSlots.Load())
}

func (ac *adaptiveController) PollInterval() time.Duration {
	return time.Duration(ac.currentPollNs.Load())
}

func (ac *adaptiveController) loop() {
	defer ac.wg.Done()
	ticker := time.NewTicker(ac.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ac.stopCh:
			return
		case <-ticker.C:
			ac.probe()
		}
	}
}

func (ac *adaptiveController) probe() {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	completed := ac.completedCount.Swap(0)
	depth := ac.queueDepth.Load()

	slots := int(ac.currentSlots.Load())
	pollNs := ac.currentPollNs.Load()

	growing := depth > 0 && depth > ac.prevDepth
	idle := depth == 0 && completed == 0
	draining := depth == 0 && completed > 0

	switch {
	case growing:
		ac.stableRounds = 0
		slots = minInt(slots+ac.cfg.ScaleUpStep, ac.cfg.MaxSlots)
		pollNs = int64(clampDuration(time.Duration(float64(pollNs)*0.75), ac.cfg.MinPollInterval, ac.cfg.MaxPollInterval))

	case idle:
		ac.stableRounds++
		if ac.stableRounds >= ac.cfg.StableRoundsBeforeScaleDown {
			slots = maxInt(int(math.Ceil(float64(slots)*ac.cfg.ScaleDownRate)), ac.cfg.MinSlots)
			pollNs = int64(clampDuration(time.Duration(float64(pollNs)*1.5), ac.cfg.MinPollInterval, ac.cfg.MaxPollInterval))
		}

	case draining:
		ac.stableRounds++
		if ac.stableRounds >= ac.cfg.StableRoundsBeforeScaleDown {
			slots = maxInt(int(math.Ceil(float64(slots)*ac.cfg.ScaleDownRate)), ac.cfg.MinSlots)
			pollNs = int64(clampDuration(time.Duration(float64(pollNs)*1.25), ac.cfg.MinPollInterval, ac.cfg.MaxPollInterval))
		}

	default:
		ac.stableRounds = 0
		if depth > int64(slots) {
			slots = minInt(slots+1, ac.cfg.MaxSlots)
		}
	}

	ac.currentSlots.Store(int32(slots))
	ac.currentPollNs.Store(pollNs)
	ac.prevDepth = depth

	logging.Op().Debug("adaptive worker probe",
		"depth", depth, "completed", completed, "slots", slots, "poll_interval", time.Duration(pollNs))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
