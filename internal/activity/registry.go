// Package activity implements the Activity Registry and the Activity
// Executor: together they resolve a named, versioned WASM activity
// to its compiled module and run it inside a sandboxed, resource-capped
// wazero runtime.
package activity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oriys/actorforge/internal/domain"
)

// Registry is the Activity Registry contract (spec §4.2): save,
// resolve (version omitted means latest by semver-like descending
// order), list and delete activity definitions.
type Registry interface {
	Save(ctx context.Context, def domain.ActivityDefinition) error
	Resolve(ctx context.Context, name, version string) (*domain.ActivityDefinition, error)
	List(ctx context.Context, name string) ([]domain.ActivityDefinition, error)
	Delete(ctx context.Context, name, version string) error
	Exists(ctx context.Context, name, version string) (bool, error)
}

// InMemoryRegistry is the dev/test Activity Registry.
type InMemoryRegistry struct {
	mu   sync.RWMutex
	defs map[string][]domain.ActivityDefinition // name -> versions
}

// NewInMemoryRegistry creates an empty in-memory activity registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{defs: make(map[string][]domain.ActivityDefinition)}
}

func (r *InMemoryRegistry) Save(ctx context.Context, def domain.ActivityDefinition) error {
	if def.Name == "" || def.Version == "" {
		return fmt.Errorf("activity name and version are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.defs[def.Name]
	for i, existing := range versions {
		if existing.Version == def.Version {
			versions[i] = def
			r.defs[def.Name] = versions
			return nil
		}
	}
	r.defs[def.Name] = append(versions, def)
	return nil
}

// Resolve returns the definition for (name, version). An empty
// version resolves to the highest version by descending semver-like
// comparison.
func (r *InMemoryRegistry) Resolve(ctx context.Context, name, version string) (*domain.ActivityDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.defs[name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("resolve activity %s: %w", name, domain.ErrActivityNotFound)
	}

	if version != "" {
		for _, def := range versions {
			if def.Version == version {
				cp := def
				return &cp, nil
			}
		}
		return nil, fmt.Errorf("resolve activity %s@%s: %w", name, version, domain.ErrActivityNotFound)
	}

	sorted := append([]domain.ActivityDefinition(nil), versions...)
	sort.Slice(sorted, func(i, j int) bool { return compareVersions(sorted[i].Version, sorted[j].Version) > 0 })
	cp := sorted[0]
	return &cp, nil
}

func (r *InMemoryRegistry) List(ctx context.Context, name string) ([]domain.ActivityDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.defs[name]
	out := make([]domain.ActivityDefinition, len(versions))
	copy(out, versions)
	sort.Slice(out, func(i, j int) bool { return compareVersions(out[i].Version, out[j].Version) > 0 })
	return out, nil
}

func (r *InMemoryRegistry) Delete(ctx context.Context, name, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.defs[name]
	for i, def := range versions {
		if def.Version == version {
			r.defs[name] = append(versions[:i], versions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *InMemoryRegistry) Exists(ctx context.Context, name, version string) (bool, error) {
	_, err := r.Resolve(ctx, name, version)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// compareVersions compares dotted numeric versions ("1.2.3") without
// pulling in a full semver dependency; non-numeric segments compare
// lexically as a fallback.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv string
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av == bv {
			continue
		}
		an, aerr := parseSegment(av)
		bn, berr := parseSegment(bv)
		if aerr == nil && berr == nil {
			if an != bn {
				return an - bn
			}
			continue
		}
		if av < bv {
			return -1
		}
		return 1
	}
	return 0
}

func parseSegment(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty version segment")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-numeric version segment %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
