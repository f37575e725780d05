package main

import (
	"fmt"

	"github.com/oriys/actorforge/internal/domain"
	"github.com/oriys/actorforge/internal/engine"
	"github.com/oriys/actorforge/internal/runtime"
)

// counterBehavior backs the "counter" demo actor type used by the
// testable-properties scenario "counter survives restart": it applies
// {op:increment, value:N} to a running count and persists the result.
type counterBehavior struct{}

func (counterBehavior) Run(ictx *engine.InvocationContext) error {
	input := ictx.Input()
	op, _ := input["op"].(string)
	if op != "" && op != "increment" {
		return fmt.Errorf("counter: unsupported op %q", op)
	}
	value := numberInput(input["value"])

	return ictx.UpdateState(func(state map[string]interface{}) map[string]interface{} {
		count := numberInput(state["count"])
		state["count"] = count + value
		return state
	})
}

// echoBehavior backs the "echo" demo actor type used by the
// testable-properties scenario "echo activity round-trip": it calls
// the "echo" activity and records its result as state.
type echoBehavior struct{}

func (echoBehavior) Run(ictx *engine.InvocationContext) error {
	input := ictx.Input()
	result, err := ictx.CallActivity("echo", input, "")
	if err != nil {
		return err
	}
	return ictx.UpdateState(func(state map[string]interface{}) map[string]interface{} {
		state["last_result"] = result
		return state
	})
}

func numberInput(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// builtinBehaviors returns the demo actor types this binary ships
// with. A real deployment registers its own actor types the same way
// -- by implementing engine.Behavior and adding an entry here (or, for
// out-of-tree actor code, by vendoring this map's construction).
func builtinBehaviors() map[string]engine.Behavior {
	return map[string]engine.Behavior{
		"counter": counterBehavior{},
		"echo":    echoBehavior{},
	}
}

func behaviorFactory(types map[string]engine.Behavior) runtime.BehaviorFactory {
	return func(actorType string) (engine.Behavior, error) {
		b, ok := types[actorType]
		if !ok {
			return nil, fmt.Errorf("actorctl: %s: %w", actorType, domain.ErrUnknownActorType)
		}
		return b, nil
	}
}
