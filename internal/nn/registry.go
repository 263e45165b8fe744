package nn

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrInitPolicyExists   = errors.New("init policy already registered")
	ErrInitPolicyNotFound = errors.New("init policy not found")
)

var policyRegistry = struct {
	mu sync.RWMutex
	m  map[string]InitPolicy
}{
	m: make(map[string]InitPolicy),
}

func init() {
	initializeBuiltInPolicies()
}

func initializeBuiltInPolicies() {
	MustRegisterInitPolicy(XORPolicy())
	MustRegisterInitPolicy(UniformPolicy())
}

func RegisterInitPolicy(policy InitPolicy) error {
	if policy.Name == "" {
		return errors.New("init policy name is required")
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	policyRegistry.mu.Lock()
	defer policyRegistry.mu.Unlock()

	if _, exists := policyRegistry.m[policy.Name]; exists {
		return fmt.Errorf("%w: %s", ErrInitPolicyExists, policy.Name)
	}
	policyRegistry.m[policy.Name] = clonePolicy(policy)
	return nil
}

func MustRegisterInitPolicy(policy InitPolicy) {
	if err := RegisterInitPolicy(policy); err != nil {
		panic(err)
	}
}

func GetInitPolicy(name string) (InitPolicy, error) {
	policyRegistry.mu.RLock()
	policy, ok := policyRegistry.m[name]
	policyRegistry.mu.RUnlock()
	if !ok {
		return InitPolicy{}, fmt.Errorf("%w: %s", ErrInitPolicyNotFound, name)
	}
	return clonePolicy(policy), nil
}

func ListInitPolicies() []string {
	policyRegistry.mu.RLock()
	defer policyRegistry.mu.RUnlock()

	names := make([]string, 0, len(policyRegistry.m))
	for name := range policyRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clonePolicy(policy InitPolicy) InitPolicy {
	policy.Overrides = append([]ConnectionRange(nil), policy.Overrides...)
	return policy
}

func resetPolicyRegistryForTests() {
	policyRegistry.mu.Lock()
	policyRegistry.m = make(map[string]InitPolicy)
	policyRegistry.mu.Unlock()
	initializeBuiltInPolicies()
}
