package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/oriys/actorforge/internal/blobstore"
	"github.com/oriys/actorforge/internal/domain"
	"github.com/oriys/actorforge/internal/idempotency"
	"github.com/oriys/actorforge/internal/jobtracker"
	"github.com/oriys/actorforge/internal/retry"
	"github.com/oriys/actorforge/internal/telemetry"
)

const wasmPageSize = 65536

// compiledEntry memoizes a compiled WASM module against its blob path.
// Insertion is idempotent: recompiling a cache miss twice under a race
// just replaces the entry with an equivalent one.
type compiledEntry struct {
	module wazero.CompiledModule
}

// Executor is the Activity Executor: it resolves a definition, loads
// or reuses a compiled module, instantiates it in a wazero sandbox,
// and invokes its "execute" export under a wall-clock timeout. Linear
// memory is not capped by the definition's MaxMemoryMB (see Invoke).
type Executor struct {
	registry    Registry
	blobs       blobstore.Store
	idempotency idempotency.Store
	runtime     wazero.Runtime
	tracker     *jobtracker.Tracker

	mu    sync.Mutex
	cache map[string]*compiledEntry // blob_path -> compiled module
}

// NewExecutor wires the Activity Executor to its registry, blob store
// and idempotency store. A single wazero.Runtime is shared across all
// invocations; compiled modules are cached by blob path.
func NewExecutor(registry Registry, blobs blobstore.Store, idem idempotency.Store) *Executor {
	return &Executor{
		registry:    registry,
		blobs:       blobs,
		idempotency: idem,
		runtime:     wazero.NewRuntime(context.Background()),
		cache:       make(map[string]*compiledEntry),
	}
}

// Close releases the underlying wazero runtime and every cached
// compiled module.
func (e *Executor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// WithTracker attaches a progress tracker: Invoke reports compiling/
// instantiating/executing phase transitions against whatever execution
// ID WithExecutionID put on its context. Without a tracker (the
// default), progress reporting is a no-op.
func (e *Executor) WithTracker(tracker *jobtracker.Tracker) *Executor {
	e.tracker = tracker
	return e
}

func (e *Executor) reportPhase(ctx context.Context, phase, message string, percent int) {
	if e.tracker == nil {
		return
	}
	executionID := executionIDFromContext(ctx)
	if executionID == "" {
		return
	}
	e.tracker.Update(executionID, percent, message, phase)
}

func (e *Executor) compiledModule(ctx context.Context, def *domain.ActivityDefinition) (wazero.CompiledModule, error) {
	e.mu.Lock()
	if entry, ok := e.cache[def.BlobPath]; ok {
		e.mu.Unlock()
		return entry.module, nil
	}
	e.mu.Unlock()

	data, err := e.blobs.Get(ctx, def.BlobPath)
	if err != nil {
		return nil, fmt.Errorf("load activity module %s: %w", def.BlobPath, err)
	}

	compiled, err := e.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("compile activity module %s: %w", def.BlobPath, err)
	}

	e.mu.Lock()
	e.cache[def.BlobPath] = &compiledEntry{module: compiled}
	e.mu.Unlock()
	return compiled, nil
}

// Invoke runs one activity invocation: resolve -> compile-or-reuse ->
// instantiate -> grow memory by MaxMemoryMB's worth of pages -> call
// execute under a wall-clock timeout -> decode the JSON output. The
// memory limit is not an upper bound: the module can grow its memory
// past MaxMemoryMB. Idempotency
// key handling (consult-before-execute, cache-on-success) is the
// caller's responsibility, since it spans the actor's correlation and
// not just this one WASM call.
func (e *Executor) Invoke(ctx context.Context, def *domain.ActivityDefinition, input []byte) ([]byte, error) {
	e.reportPhase(ctx, "compiling", "resolving and compiling "+def.Name, 10)
	compiled, err := e.compiledModule(ctx, def)
	if err != nil {
		return nil, err
	}

	maxPages := uint32((def.Limits.MaxMemoryMB * 1024 * 1024) / wasmPageSize)
	if maxPages == 0 {
		maxPages = 16 // 1 MiB floor so a misconfigured limit doesn't zero out the sandbox
	}

	config := wazero.NewModuleConfig().WithStartFunctions("_start")
	modCtx, cancel := context.WithTimeout(ctx, time.Duration(def.Limits.MaxExecutionMs)*time.Millisecond)
	defer cancel()

	e.reportPhase(ctx, "instantiating", "instantiating sandbox for "+def.Name, 40)
	instance, err := e.runtime.InstantiateModule(modCtx, compiled, config)
	if err != nil {
		return nil, fmt.Errorf("instantiate activity %s: %w", def.Name, err)
	}
	defer instance.Close(modCtx)

	mem := instance.Memory()
	if mem == nil {
		return nil, fmt.Errorf("activity %s exports no linear memory", def.Name)
	}
	if _, ok := mem.Grow(maxPages); !ok {
		// Module may already have enough pages statically declared; that's fine.
		_ = ok
	}

	inPtr, inLen, err := writeInput(modCtx, instance, mem, input)
	if err != nil {
		return nil, fmt.Errorf("write activity input %s: %w", def.Name, err)
	}

	execFn := instance.ExportedFunction("execute")
	if execFn == nil {
		return nil, fmt.Errorf("activity %s does not export execute", def.Name)
	}

	e.reportPhase(ctx, "executing", "running "+def.Name, 60)
	resultCh := make(chan struct {
		packed uint64
		err    error
	}, 1)
	go func() {
		results, err := execFn.Call(modCtx, uint64(inPtr), uint64(inLen))
		if err != nil {
			resultCh <- struct {
				packed uint64
				err    error
			}{0, err}
			return
		}
		resultCh <- struct {
			packed uint64
			err    error
		}{results[0], nil}
	}()

	select {
	case <-modCtx.Done():
		return nil, fmt.Errorf("activity %s exceeded %dms execution limit", def.Name, def.Limits.MaxExecutionMs)
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("activity %s trapped: %w", def.Name, res.err)
		}
		outPtr, outLen := unpackPointer(res.packed)
		output, ok := mem.Read(outPtr, outLen)
		if !ok {
			return nil, fmt.Errorf("activity %s returned an out-of-bounds output pointer", def.Name)
		}
		out := make([]byte, len(output))
		copy(out, output)
		e.reportPhase(ctx, "finalizing", "completed "+def.Name, 100)
		return out, nil
	}
}

// InvokeWithRetry wraps Invoke in the in-process retry wrapper,
// recording metrics around both the individual attempt and the
// overall outcome.
func (e *Executor) InvokeWithRetry(ctx context.Context, def *domain.ActivityDefinition, input []byte, policy domain.RetryPolicy) ([]byte, error) {
	start := time.Now()
	var output []byte

	err := retry.WithRetry(ctx, policy, func(ctx context.Context) error {
		out, err := e.Invoke(ctx, def, input)
		if err != nil {
			telemetry.RecordRetry(def.Name, "activity_error")
			return err
		}
		output = out
		return nil
	})

	telemetry.RecordActivityExecution(def.Name, time.Since(start).Milliseconds(), err == nil)
	return output, err
}

// writeInput allocates space for input inside the guest's linear
// memory using its exported allocate function if present, falling
// back to writing at a fixed offset past the module's initial data
// for modules that manage their own memory layout statically.
func writeInput(ctx context.Context, instance api.Module, mem api.Memory, input []byte) (uint32, uint32, error) {
	allocateFn := instance.ExportedFunction("allocate")
	if allocateFn != nil {
		results, err := allocateFn.Call(ctx, uint64(len(input)))
		if err != nil {
			return 0, 0, fmt.Errorf("call allocate: %w", err)
		}
		ptr := uint32(results[0])
		if !mem.Write(ptr, input) {
			return 0, 0, fmt.Errorf("write input at offset %d out of bounds", ptr)
		}
		return ptr, uint32(len(input)), nil
	}

	// No allocator exported: write past the module's own static data,
	// at the top of its current memory, and grow if needed.
	size := mem.Size()
	needed := size + uint32(len(input))
	if needed > size {
		if _, ok := mem.Grow((needed - size + wasmPageSize - 1) / wasmPageSize); !ok {
			return 0, 0, fmt.Errorf("grow memory for input of length %d", len(input))
		}
	}
	if !mem.Write(size, input) {
		return 0, 0, fmt.Errorf("write input at offset %d out of bounds", size)
	}
	return size, uint32(len(input)), nil
}

// unpackPointer splits a packed (ptr<<32 | len) return value, the
// convention used when a module's execute export returns a single
// i64 instead of two i32 results.
func unpackPointer(packed uint64) (uint32, uint32) {
	return uint32(packed >> 32), uint32(packed & 0xFFFFFFFF)
}
