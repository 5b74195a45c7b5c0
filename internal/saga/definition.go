package saga

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/edvin/provisioning/internal/model"
)

// StepResult is what a handler returns on success. Output is recorded on
// the step record, ContextUpdates are merged additively into the workflow
// context, and CompensationData is handed back to the paired compensator
// if the workflow later unwinds. Empty compensation data means there is
// nothing to undo.
type StepResult struct {
	Output           map[string]any
	ContextUpdates   map[string]any
	CompensationData map[string]any
}

// Handler performs a single forward action against one external system.
// Handlers must tolerate at-least-once invocation from a clean context:
// if an upstream resource may already exist from a prior attempt they must
// detect and reuse it, or fail distinguishably, rather than double-allocate.
type Handler interface {
	Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*StepResult, error)
}

// Compensator undoes a completed step given its recorded compensation
// data. Absent or partial data must be treated as "nothing to do".
type Compensator interface {
	Compensate(ctx context.Context, data map[string]any) error
}

// StepSpec is one entry of a workflow definition. A critical step's
// failure halts the workflow and triggers compensation; a best-effort
// step's failure degrades into a context warning.
type StepSpec struct {
	Name        string
	Critical    bool
	Handler     Handler
	Compensator Compensator
}

// Definition is the ordered, named step list for one workflow type.
type Definition struct {
	Type  string
	Steps []StepSpec

	// ValidateInput rejects malformed input before any workflow state is
	// created. Optional.
	ValidateInput func(input model.InputData) error

	// Prepare runs after validation and before the instance is persisted.
	// It may create or resolve the resource-bearing service record and
	// returns its id (or "" if the workflow is not service-bound).
	// Optional.
	Prepare func(ctx context.Context, tenantID string, input model.InputData) (serviceID string, err error)
}

func (d *Definition) step(name string) (StepSpec, bool) {
	for _, s := range d.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepSpec{}, false
}

// Registry resolves workflow definitions by type. It is populated once at
// process start; registering after that is a programming error.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a definition. It panics on duplicate or malformed
// definitions so mistakes surface at startup, not mid-workflow.
func (r *Registry) Register(def *Definition) {
	if def.Type == "" {
		panic("saga: definition without a type")
	}
	if len(def.Steps) == 0 {
		panic(fmt.Sprintf("saga: definition %s has no steps", def.Type))
	}
	seen := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		if s.Name == "" || s.Handler == nil {
			panic(fmt.Sprintf("saga: definition %s has a step without name or handler", def.Type))
		}
		if seen[s.Name] {
			panic(fmt.Sprintf("saga: definition %s has duplicate step %s", def.Type, s.Name))
		}
		seen[s.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.defs[def.Type]; dup {
		panic(fmt.Sprintf("saga: duplicate definition %s", def.Type))
	}
	r.defs[def.Type] = def
}

// Resolve returns the definition for a workflow type.
func (r *Registry) Resolve(workflowType string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[workflowType]
	if !ok {
		return nil, fmt.Errorf("workflow type %q: %w", workflowType, ErrNotFound)
	}
	return def, nil
}

// Types returns the registered workflow types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
