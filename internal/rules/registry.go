package rules

import (
	"errors"
	"fmt"
	"iter"
	"sync"
)

var (
	// ErrDuplicateRule matches any DuplicateRuleError.
	ErrDuplicateRule = errors.New("duplicate rule")

	// ErrUnknownRule matches any UnknownRuleError.
	ErrUnknownRule = errors.New("unknown rule")

	// ErrInvalidRule is returned when registering a rule with no ID or checker.
	ErrInvalidRule = errors.New("invalid rule")
)

// DuplicateRuleError reports a second registration of the same ID.
type DuplicateRuleError struct {
	ID string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("rule %q already registered", e.ID)
}

func (e *DuplicateRuleError) Is(target error) bool { return target == ErrDuplicateRule }

// UnknownRuleError reports a lookup of an unregistered ID.
type UnknownRuleError struct {
	ID string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("rule %q not registered", e.ID)
}

func (e *UnknownRuleError) Is(target error) bool { return target == ErrUnknownRule }

// Registry holds the rules known to one invocation. IDs are unique and
// iteration follows registration order.
//
// Registration and toggles are expected to finish before analysis starts;
// concurrent reads during analysis are safe.
type Registry struct {
	mu    sync.RWMutex
	rules []*Rule
	index map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a rule. It fails with a *DuplicateRuleError if the ID is
// already present.
func (r *Registry) Register(rule *Rule) error {
	if rule == nil || rule.ID() == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if rule.Checker == nil {
		return fmt.Errorf("%w: rule %q has no checker", ErrInvalidRule, rule.ID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[rule.ID()]; ok {
		return &DuplicateRuleError{ID: rule.ID()}
	}
	r.rules = append(r.rules, rule)
	r.index[rule.ID()] = len(r.rules) - 1
	return nil
}

// Get returns the rule registered under id.
func (r *Registry) Get(id string) (*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return nil, &UnknownRuleError{ID: id}
	}
	return r.rules[i], nil
}

// SetActivation toggles the rule registered under id.
func (r *Registry) SetActivation(id string, on bool) error {
	rule, err := r.Get(id)
	if err != nil {
		return err
	}
	rule.SetActivated(on)
	return nil
}

// Activated yields the currently activated rules in registration order. The
// sequence is evaluated lazily on every iteration, so toggles made between
// two iterations are always visible.
func (r *Registry) Activated() iter.Seq[*Rule] {
	return func(yield func(*Rule) bool) {
		for _, rule := range r.snapshot() {
			if !rule.Activated() {
				continue
			}
			if !yield(rule) {
				return
			}
		}
	}
}

// All returns every registered rule in registration order.
func (r *Registry) All() []*Rule {
	return r.snapshot()
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

func (r *Registry) snapshot() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Rule, len(r.rules))
	copy(out, r.rules)
	return out
}
