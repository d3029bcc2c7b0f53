package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAncestorsWalksToRoots(t *testing.T) {
	root := uuid.New()
	mid := uuid.New()
	child := uuid.New()

	edges := map[uuid.UUID][]*LineageEdge{
		child: {{ParentIDs: []uuid.UUID{mid}, ChildID: child, MutationType: MutationParameterJitter}},
		mid:   {{ParentIDs: []uuid.UUID{root}, ChildID: mid, MutationType: MutationIndicatorSwap}},
	}
	lookup := func(id uuid.UUID) []*LineageEdge { return edges[id] }

	got := Ancestors(child, lookup)
	assert.Equal(t, []uuid.UUID{mid, root}, got)
}

func TestAncestorsCrossoverParents(t *testing.T) {
	parentA := uuid.New()
	parentB := uuid.New()
	child := uuid.New()

	lookup := func(id uuid.UUID) []*LineageEdge {
		if id == child {
			return []*LineageEdge{{ParentIDs: []uuid.UUID{parentA, parentB}, ChildID: child, MutationType: MutationCrossover}}
		}
		return nil
	}

	got := Ancestors(child, lookup)
	assert.ElementsMatch(t, []uuid.UUID{parentA, parentB}, got)
}

func TestAncestorsTerminatesOnCycle(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	edges := map[uuid.UUID][]*LineageEdge{
		a: {{ParentIDs: []uuid.UUID{b}, ChildID: a}},
		b: {{ParentIDs: []uuid.UUID{a}, ChildID: b}},
	}
	lookup := func(id uuid.UUID) []*LineageEdge { return edges[id] }

	got := Ancestors(a, lookup)
	assert.Equal(t, []uuid.UUID{b}, got, "a cyclic lineage must not revisit nodes")
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusDuplicate.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusDiscarded.IsTerminal())
	assert.False(t, StatusPendingReview.IsTerminal())
	assert.False(t, StatusExperiment.IsTerminal())
	assert.False(t, StatusCandidate.IsTerminal())
	assert.False(t, StatusProposable.IsTerminal())
}
