package evolution

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/models"
)

// crossover breeds the parent with a tournament-selected mate. Numeric
// parameters and exit percentages are averaged; categorical fields are
// picked at random from one side. Tournament selection rather than pure
// elitism keeps weaker genes circulating in the population.
func (m *Mutator) crossover(parent *models.Strategy, population []*models.Strategy) Child {
	mate := m.tournamentSelect(population, parent.ID)
	if mate == nil {
		return m.parameterJitter(parent)
	}

	ruleset := parent.Ruleset.Clone()
	other := mate.Ruleset

	if m.rng.Intn(2) == 0 {
		ruleset.Timeframe = other.Timeframe
	}
	if m.rng.Intn(2) == 0 && len(other.Entry) > 0 {
		ruleset.Entry = append([]models.Condition(nil), other.Entry...)
	}
	if m.rng.Intn(2) == 0 && len(other.Symbols) > 0 {
		ruleset.Symbols = append([]string(nil), other.Symbols...)
	}
	ruleset.Exit.StopLossPct = meanNonZero(ruleset.Exit.StopLossPct, other.Exit.StopLossPct)
	ruleset.Exit.TakeProfitPct = meanNonZero(ruleset.Exit.TakeProfitPct, other.Exit.TakeProfitPct)
	ruleset.Exit.TrailingStopPct = meanNonZero(ruleset.Exit.TrailingStopPct, other.Exit.TrailingStopPct)

	params := parent.CloneParameters()
	for k, v := range mate.Parameters {
		if existing, ok := params[k]; ok {
			params[k] = (existing + v) / 2
		} else {
			params[k] = v
		}
	}

	child := &models.Strategy{
		ID:         uuid.New(),
		UserID:     parent.UserID,
		Name:       childName(parent.Name, models.MutationCrossover),
		Ruleset:    ruleset,
		Parameters: params,
		Status:     models.StatusExperiment,
	}
	edge := &models.LineageEdge{
		ID:           uuid.New(),
		ParentIDs:    []uuid.UUID{parent.ID, mate.ID},
		ChildID:      child.ID,
		MutationType: models.MutationCrossover,
		CreatedAt:    time.Now().UTC(),
	}

	m.logger.WithFields(logrus.Fields{
		"parent_id": parent.ID,
		"mate_id":   mate.ID,
		"child_id":  child.ID,
	}).Debug("Crossover child created")

	return Child{Strategy: child, Edge: edge}
}

// tournamentSelect draws a random subset and returns its highest-scoring
// member, excluding the primary parent.
func (m *Mutator) tournamentSelect(population []*models.Strategy, exclude uuid.UUID) *models.Strategy {
	pool := make([]*models.Strategy, 0, len(population))
	for _, s := range population {
		if s.ID != exclude {
			pool = append(pool, s)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	size := tournamentSize
	if size > len(pool) {
		size = len(pool)
	}

	var winner *models.Strategy
	for i := 0; i < size; i++ {
		contender := pool[m.rng.Intn(len(pool))]
		if winner == nil || scoreOf(contender) > scoreOf(winner) {
			winner = contender
		}
	}
	return winner
}

func scoreOf(s *models.Strategy) float64 {
	if s.Score == nil {
		return 0
	}
	return *s.Score
}

func meanNonZero(a, b float64) float64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return (a + b) / 2
	}
}
