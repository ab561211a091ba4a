package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Definition pairs an agent with its orchestration parameters.
type Definition struct {
	Agent      Agent
	Timeout    time.Duration
	RetryLimit int
}

// Registry holds the ordered platform stage catalog, per-tenant disable
// flags, and named recipes. The catalog order is the canonical full-pipeline
// sequence; submitted sequences must be ordered subsets of it.
type Registry struct {
	mu       sync.RWMutex
	order    []Kind
	defs     map[Kind]Definition
	disabled map[uuid.UUID]map[Kind]bool
	recipes  map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:     make(map[Kind]Definition),
		disabled: make(map[uuid.UUID]map[Kind]bool),
		recipes:  make(map[string][]string),
	}
}

// Register appends a stage definition to the catalog. Registration order is
// the canonical sequence order. Unset Timeout and RetryLimit fall back to
// the variant defaults.
func (r *Registry) Register(def Definition) error {
	if def.Agent == nil {
		return fmt.Errorf("nil agent")
	}
	kind := def.Agent.Kind()
	if def.Timeout <= 0 {
		def.Timeout = DefaultTimeout(kind)
	}
	if def.RetryLimit <= 0 {
		def.RetryLimit = 3
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[kind]; exists {
		return fmt.Errorf("stage %s already registered", kind)
	}
	r.defs[kind] = def
	r.order = append(r.order, kind)
	return nil
}

// Definition returns the catalog entry for a stage.
func (r *Registry) Definition(kind Kind) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[kind]
	return def, ok
}

// Kinds returns the catalog in canonical order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Kind(nil), r.order...)
}

// SetTenantDisabled toggles a stage off (or back on) for one tenant.
func (r *Registry) SetTenantDisabled(tenantID uuid.UUID, kind Kind, disabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.disabled[tenantID]
	if !ok {
		m = make(map[Kind]bool)
		r.disabled[tenantID] = m
	}
	if disabled {
		m[kind] = true
	} else {
		delete(m, kind)
	}
}

// Enabled reports whether a stage is available to a tenant.
func (r *Registry) Enabled(tenantID uuid.UUID, kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, known := r.defs[kind]; !known {
		return false
	}
	return !r.disabled[tenantID][kind]
}

// RegisterRecipe names a reusable stage sequence, e.g. "full" or "draft".
func (r *Registry) RegisterRecipe(name string, stages []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipes[name] = append([]string(nil), stages...)
}

// ResolveRecipe returns the sequence a recipe name stands for.
func (r *Registry) ResolveRecipe(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seq, ok := r.recipes[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), seq...), true
}

// ValidateSequence checks that seq is a non-empty ordered subset of the
// catalog with no stage unknown, duplicated, or disabled for the tenant.
func (r *Registry) ValidateSequence(tenantID uuid.UUID, seq []string) error {
	if len(seq) == 0 {
		return fmt.Errorf("stage sequence is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pos := make(map[Kind]int, len(r.order))
	for i, k := range r.order {
		pos[k] = i
	}

	prev := -1
	seen := make(map[Kind]bool, len(seq))
	for _, s := range seq {
		kind, err := ParseKind(s)
		if err != nil {
			return err
		}
		if _, known := r.defs[kind]; !known {
			return fmt.Errorf("stage %s is not registered", kind)
		}
		if seen[kind] {
			return fmt.Errorf("stage %s appears more than once", kind)
		}
		seen[kind] = true
		if r.disabled[tenantID][kind] {
			return fmt.Errorf("stage %s is disabled for this tenant", kind)
		}
		p := pos[kind]
		if p < prev {
			return fmt.Errorf("stage %s is out of order", kind)
		}
		prev = p
	}
	return nil
}

// DefaultRecipes registers the built-in recipes against the full catalog.
func (r *Registry) DefaultRecipes() {
	r.RegisterRecipe("full", []string{
		string(KindCompetitorDiscovery),
		string(KindTopicAnalysis),
		string(KindGeneration),
		string(KindComplianceCheck),
		string(KindPublish),
	})
	r.RegisterRecipe("draft", []string{
		string(KindTopicAnalysis),
		string(KindGeneration),
	})
}
