// Package tree holds the parent-chain walk shared by the self-referencing
// entities (test suites and requirements). Reparent operations must call
// EnsureAcyclic before writing: the check covers the full transitive chain,
// not just the immediate parent.
package tree

import (
	"errors"
	"fmt"
)

// ErrCycle is returned when a reparent would make an entity its own
// ancestor.
var ErrCycle = errors.New("parent chain would form a cycle")

// maxDepth bounds the parent walk so a corrupted chain cannot loop forever.
const maxDepth = 1000

// ParentFunc resolves the parent id of an entity, nil meaning root.
type ParentFunc func(id uint) (*uint, error)

// EnsureAcyclic walks the parent chain starting at newParentID and fails if
// it reaches entityID. Self-parenting is the degenerate case and is caught
// first.
func EnsureAcyclic(entityID, newParentID uint, parentOf ParentFunc) error {
	if entityID == newParentID {
		return ErrCycle
	}

	current := newParentID
	for depth := 0; depth < maxDepth; depth++ {
		parent, err := parentOf(current)
		if err != nil {
			return err
		}
		if parent == nil {
			return nil
		}
		if *parent == entityID {
			return ErrCycle
		}
		current = *parent
	}

	return fmt.Errorf("parent chain deeper than %d levels", maxDepth)
}
