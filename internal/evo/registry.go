package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrPolicyExists   = errors.New("policy already registered")
	ErrPolicyNotFound = errors.New("policy not found")
)

// PolicyFactory builds a policy with its default parameters.
type PolicyFactory func() Policy

var builtinPolicies = map[string]PolicyFactory{
	ScoreThresholdName:    func() Policy { return ScoreThresholdPolicy{} },
	ResourceThresholdName: func() Policy { return NewResourceThresholdPolicy() },
}

var policyRegistry = struct {
	mu sync.RWMutex
	m  map[string]PolicyFactory
}{
	m: copyBuiltinPolicies(),
}

func copyBuiltinPolicies() map[string]PolicyFactory {
	m := make(map[string]PolicyFactory, len(builtinPolicies))
	for name, factory := range builtinPolicies {
		m[name] = factory
	}
	return m
}

// DefaultPolicy is the score-threshold policy.
func DefaultPolicy() Policy {
	return ScoreThresholdPolicy{}
}

func RegisterPolicy(name string, factory PolicyFactory) error {
	if name == "" {
		return errors.New("policy name is required")
	}
	if factory == nil {
		return errors.New("policy factory is required")
	}

	policyRegistry.mu.Lock()
	defer policyRegistry.mu.Unlock()

	if _, exists := policyRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrPolicyExists, name)
	}
	policyRegistry.m[name] = factory
	return nil
}

// PolicyByName resolves a registered policy. The empty name is the default.
func PolicyByName(name string) (Policy, error) {
	if name == "" {
		return DefaultPolicy(), nil
	}
	policyRegistry.mu.RLock()
	factory, ok := policyRegistry.m[name]
	policyRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	return factory(), nil
}

func ListPolicies() []string {
	policyRegistry.mu.RLock()
	defer policyRegistry.mu.RUnlock()

	names := make([]string, 0, len(policyRegistry.m))
	for name := range policyRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetPolicyRegistryForTests() {
	policyRegistry.mu.Lock()
	defer policyRegistry.mu.Unlock()
	policyRegistry.m = copyBuiltinPolicies()
}
