package models

import (
	"time"

	"github.com/google/uuid"
)

// MutationType identifies how a child strategy was derived from its parents
type MutationType string

// Mutation types
const (
	MutationParameterJitter MutationType = "parameter_jitter"
	MutationIndicatorSwap   MutationType = "indicator_swap"
	MutationTimeframeChange MutationType = "timeframe_change"
	MutationAssetTransplant MutationType = "asset_transplant"
	MutationExitTune        MutationType = "exit_tune"
	MutationCrossover       MutationType = "crossover"
)

// LineageEdge records the derivation of one child strategy. ParentIDs is an
// ordered set: one entry under pure mutation, two under crossover. Edges are
// immutable once created.
type LineageEdge struct {
	ID              uuid.UUID          `db:"id" json:"id"`
	ParentIDs       []uuid.UUID        `db:"parent_ids" json:"parent_ids"`
	ChildID         uuid.UUID          `db:"child_id" json:"child_id"`
	MutationType    MutationType       `db:"mutation_type" json:"mutation_type"`
	MutationParams  map[string]float64 `db:"mutation_params" json:"mutation_params,omitempty"`
	SimilarityScore *float64           `db:"similarity_score" json:"similarity_score,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
}

// Ancestors walks lineage edges from child to roots iteratively, using a
// visited set so cyclic or very deep lineages cannot recurse unboundedly.
// The lookup function returns the edges whose child is the given id.
func Ancestors(start uuid.UUID, lookup func(child uuid.UUID) []*LineageEdge) []uuid.UUID {
	visited := map[uuid.UUID]bool{start: true}
	queue := []uuid.UUID{start}
	var ancestors []uuid.UUID

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, edge := range lookup(current) {
			for _, parent := range edge.ParentIDs {
				if visited[parent] {
					continue
				}
				visited[parent] = true
				ancestors = append(ancestors, parent)
				queue = append(queue, parent)
			}
		}
	}
	return ancestors
}
