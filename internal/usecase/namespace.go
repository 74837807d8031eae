package usecase

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// NamespacePolicy restricts which namespaces may be queried. Patterns use
// doublestar glob syntax ("authors/*", "tv/**"). The empty pattern matches
// only the default namespace. A policy without patterns allows everything.
type NamespacePolicy struct {
	patterns []string
}

func NewNamespacePolicy(patterns []string) (*NamespacePolicy, error) {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid namespace pattern %q", p)
		}
	}
	return &NamespacePolicy{patterns: append([]string(nil), patterns...)}, nil
}

// Allows reports whether namespace may be queried.
func (p *NamespacePolicy) Allows(namespace string) bool {
	if p == nil || len(p.patterns) == 0 {
		return true
	}
	for _, pattern := range p.patterns {
		if pattern == "" {
			if namespace == "" {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(pattern, namespace); ok {
			return true
		}
	}
	return false
}
