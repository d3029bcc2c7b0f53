package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/evo-trader/internal/database"
	"github.com/yourusername/evo-trader/internal/models"
)

// PostgresLineageRepository implements LineageRepository for PostgreSQL
type PostgresLineageRepository struct {
	db *database.DB
}

// NewPostgresLineageRepository creates a new lineage repository
func NewPostgresLineageRepository(db *database.DB) LineageRepository {
	return &PostgresLineageRepository{db: db}
}

// Create inserts a lineage edge. Edges are immutable; there is no update.
func (r *PostgresLineageRepository) Create(ctx context.Context, edge *models.LineageEdge) error {
	parents := make([]string, len(edge.ParentIDs))
	for i, p := range edge.ParentIDs {
		parents[i] = p.String()
	}
	params, err := json.Marshal(edge.MutationParams)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation params: %w", err)
	}

	query := `
		INSERT INTO lineage_edges (id, parent_ids, child_id, mutation_type, mutation_params, similarity_score)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.GetPool().Exec(ctx, query,
		edge.ID, parents, edge.ChildID, edge.MutationType, params, edge.SimilarityScore)
	if err != nil {
		return fmt.Errorf("failed to create lineage edge: %w", err)
	}
	return nil
}

// GetByChild retrieves the edges that produced the given child
func (r *PostgresLineageRepository) GetByChild(ctx context.Context, childID uuid.UUID) ([]*models.LineageEdge, error) {
	return r.query(ctx, `child_id = $1`, childID)
}

// GetByParent retrieves the edges where the given strategy is a parent
func (r *PostgresLineageRepository) GetByParent(ctx context.Context, parentID uuid.UUID) ([]*models.LineageEdge, error) {
	return r.query(ctx, `$1 = ANY(parent_ids)`, parentID.String())
}

func (r *PostgresLineageRepository) query(ctx context.Context, where string, arg interface{}) ([]*models.LineageEdge, error) {
	query := fmt.Sprintf(`
		SELECT id, parent_ids, child_id, mutation_type, mutation_params, similarity_score, created_at
		FROM lineage_edges WHERE %s ORDER BY created_at ASC
	`, where)

	rows, err := r.db.GetPool().Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query lineage edges: %w", err)
	}
	defer rows.Close()

	return scanLineageEdges(rows)
}

func scanLineageEdges(rows pgx.Rows) ([]*models.LineageEdge, error) {
	var edges []*models.LineageEdge
	for rows.Next() {
		edge := &models.LineageEdge{}
		var parents []string
		var params []byte

		err := rows.Scan(&edge.ID, &parents, &edge.ChildID, &edge.MutationType,
			&params, &edge.SimilarityScore, &edge.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lineage edge: %w", err)
		}

		edge.ParentIDs = make([]uuid.UUID, 0, len(parents))
		for _, p := range parents {
			id, err := uuid.Parse(p)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", models.ErrInvalidID, p)
			}
			edge.ParentIDs = append(edge.ParentIDs, id)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &edge.MutationParams); err != nil {
				return nil, fmt.Errorf("failed to unmarshal mutation params: %w", err)
			}
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}
