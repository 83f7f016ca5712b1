package tree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapParents builds a ParentFunc from a static child→parent map.
func mapParents(parents map[uint]uint) ParentFunc {
	return func(id uint) (*uint, error) {
		if p, ok := parents[id]; ok {
			return &p, nil
		}
		return nil, nil
	}
}

func TestEnsureAcyclic(t *testing.T) {
	// 1 ← 2 ← 3 ← 4
	parents := map[uint]uint{2: 1, 3: 2, 4: 3}

	tests := []struct {
		name      string
		entityID  uint
		parentID  uint
		wantCycle bool
	}{
		{"reparent leaf under root", 4, 1, false},
		{"reparent root under unrelated node", 1, 5, false},
		{"self parent", 3, 3, true},
		{"direct cycle", 1, 2, true},
		{"transitive cycle", 1, 4, true},
		{"sibling move", 3, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnsureAcyclic(tt.entityID, tt.parentID, mapParents(parents))
			if tt.wantCycle {
				assert.ErrorIs(t, err, ErrCycle)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureAcyclicPropagatesLookupError(t *testing.T) {
	lookupErr := errors.New("db down")
	err := EnsureAcyclic(1, 2, func(id uint) (*uint, error) {
		return nil, lookupErr
	})
	require.ErrorIs(t, err, lookupErr)
}

func TestEnsureAcyclicBoundsCorruptedChain(t *testing.T) {
	// Every node points at the next one forever. The walk must terminate
	// with an error instead of spinning.
	err := EnsureAcyclic(0, 1, func(id uint) (*uint, error) {
		next := id + 1
		return &next, nil
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCycle)
}
