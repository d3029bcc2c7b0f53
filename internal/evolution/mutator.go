package evolution

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/models"
)

// Child is a newly derived strategy plus the lineage edge explaining it
type Child struct {
	Strategy *models.Strategy
	Edge     *models.LineageEdge
}

// Adaptive jitter bounds. A zero-score parent mutates at the max strength,
// a perfect-score parent at the base strength.
const (
	baseJitterStrength = 0.05
	maxJitterStrength  = 0.20
	tournamentSize     = 3
	maxChildren        = 3
)

var timeframeLadder = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w"}

// transplantPool groups liquid symbols by asset class for cross-asset moves
var transplantPool = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "TSLA",
	"BTC-USD", "ETH-USD", "SOL-USD",
	"EURUSD", "GBPUSD", "USDJPY",
}

// indicatorSwaps maps each swappable indicator to its substitute and the
// conventional default period of each, used to re-scale periods on swap.
var indicatorSwaps = map[string]struct {
	to                   string
	fromPeriod, toPeriod int
}{
	models.IndicatorSMA:  {models.IndicatorEMA, 20, 20},
	models.IndicatorEMA:  {models.IndicatorSMA, 20, 20},
	models.IndicatorRSI:  {models.IndicatorMACD, 14, 12},
	models.IndicatorMACD: {models.IndicatorRSI, 12, 14},
}

// Mutator derives child strategies from parents. Safe for concurrent use;
// the shared rng is guarded since workers spawn children in parallel.
type Mutator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *logrus.Logger
}

// NewMutator creates a mutator. Seed 0 seeds from the clock.
func NewMutator(seed int64, logger *logrus.Logger) *Mutator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Mutator{rng: rand.New(rand.NewSource(seed)), logger: logger}
}

// Spawn produces 1 to 3 children from the parent. The population is used
// for tournament selection when crossover is chosen; with fewer than two
// other strategies available, crossover falls back to parameter jitter.
func (m *Mutator) Spawn(parent *models.Strategy, population []*models.Strategy) []Child {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 1 + m.rng.Intn(maxChildren)
	children := make([]Child, 0, count)
	for i := 0; i < count; i++ {
		children = append(children, m.spawnOne(parent, population))
	}

	m.logger.WithFields(logrus.Fields{
		"parent_id": parent.ID,
		"children":  len(children),
	}).Info("Spawned mutated children")

	return children
}

func (m *Mutator) spawnOne(parent *models.Strategy, population []*models.Strategy) Child {
	mutation := m.pickMutation(parent, population)

	switch mutation {
	case models.MutationCrossover:
		return m.crossover(parent, population)
	case models.MutationIndicatorSwap:
		return m.indicatorSwap(parent)
	case models.MutationTimeframeChange:
		return m.timeframeChange(parent)
	case models.MutationAssetTransplant:
		return m.assetTransplant(parent)
	case models.MutationExitTune:
		return m.exitTune(parent)
	default:
		return m.parameterJitter(parent)
	}
}

func (m *Mutator) pickMutation(parent *models.Strategy, population []*models.Strategy) models.MutationType {
	candidates := []models.MutationType{
		models.MutationParameterJitter,
		models.MutationParameterJitter,
		models.MutationExitTune,
		models.MutationTimeframeChange,
		models.MutationAssetTransplant,
	}
	if hasSwappableIndicator(parent.Ruleset) {
		candidates = append(candidates, models.MutationIndicatorSwap)
	}
	if len(population) >= 2 {
		candidates = append(candidates, models.MutationCrossover, models.MutationCrossover)
	}
	return candidates[m.rng.Intn(len(candidates))]
}

// jitterStrength is inversely proportional to the parent score, so elite
// strategies get fine-tuned while poor ones take large jumps.
func (m *Mutator) jitterStrength(parent *models.Strategy) float64 {
	score := 0.0
	if parent.Score != nil {
		score = *parent.Score
	}
	return baseJitterStrength + (maxJitterStrength-baseJitterStrength)*(1-score)
}

// jitter perturbs v by up to ±strength, never flipping its sign
func (m *Mutator) jitter(v, strength float64) float64 {
	return v * (1 + (m.rng.Float64()*2-1)*strength)
}

func (m *Mutator) parameterJitter(parent *models.Strategy) Child {
	strength := m.jitterStrength(parent)
	ruleset := parent.Ruleset.Clone()
	params := parent.CloneParameters()

	for k, v := range params {
		params[k] = m.jitter(v, strength)
	}
	for i := range ruleset.Entry {
		ruleset.Entry[i].Value = m.jitter(ruleset.Entry[i].Value, strength)
	}

	return m.newChild(parent, ruleset, params, models.MutationParameterJitter,
		map[string]float64{"strength": strength})
}

func (m *Mutator) indicatorSwap(parent *models.Strategy) Child {
	ruleset := parent.Ruleset.Clone()

	swappable := make([]int, 0, len(ruleset.Entry))
	for i, c := range ruleset.Entry {
		if _, ok := indicatorSwaps[c.Indicator]; ok {
			swappable = append(swappable, i)
		}
	}
	if len(swappable) == 0 {
		return m.parameterJitter(parent)
	}

	idx := swappable[m.rng.Intn(len(swappable))]
	cond := &ruleset.Entry[idx]
	swap := indicatorSwaps[cond.Indicator]
	cond.Indicator = swap.to
	if cond.Period > 0 && swap.fromPeriod != swap.toPeriod {
		cond.Period = rescalePeriod(cond.Period, swap.fromPeriod, swap.toPeriod)
	}

	return m.newChild(parent, ruleset, parent.CloneParameters(), models.MutationIndicatorSwap,
		map[string]float64{"condition_index": float64(idx)})
}

func (m *Mutator) timeframeChange(parent *models.Strategy) Child {
	ruleset := parent.Ruleset.Clone()

	pos := 0
	for i, tf := range timeframeLadder {
		if tf == ruleset.Timeframe {
			pos = i
			break
		}
	}
	if pos == 0 || (pos < len(timeframeLadder)-1 && m.rng.Intn(2) == 0) {
		pos++
	} else {
		pos--
	}
	ruleset.Timeframe = timeframeLadder[pos]

	return m.newChild(parent, ruleset, parent.CloneParameters(), models.MutationTimeframeChange,
		map[string]float64{"ladder_position": float64(pos)})
}

func (m *Mutator) assetTransplant(parent *models.Strategy) Child {
	ruleset := parent.Ruleset.Clone()

	current := make(map[string]bool, len(ruleset.Symbols))
	for _, s := range ruleset.Symbols {
		current[s] = true
	}
	candidates := make([]string, 0, len(transplantPool))
	for _, s := range transplantPool {
		if !current[s] {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return m.parameterJitter(parent)
	}

	replacement := candidates[m.rng.Intn(len(candidates))]
	ruleset.Symbols[m.rng.Intn(len(ruleset.Symbols))] = replacement

	return m.newChild(parent, ruleset, parent.CloneParameters(), models.MutationAssetTransplant, nil)
}

func (m *Mutator) exitTune(parent *models.Strategy) Child {
	strength := m.jitterStrength(parent) + 0.10
	ruleset := parent.Ruleset.Clone()

	ruleset.Exit.StopLossPct = clampRange(m.jitter(ruleset.Exit.StopLossPct, strength), 0, 0.20)
	ruleset.Exit.TakeProfitPct = clampRange(m.jitter(ruleset.Exit.TakeProfitPct, strength), 0, 0.50)
	ruleset.Exit.TrailingStopPct = clampRange(m.jitter(ruleset.Exit.TrailingStopPct, strength), 0, 0.15)
	for i := range ruleset.Exit.ExitConditions {
		cond := &ruleset.Exit.ExitConditions[i]
		if cond.Indicator == models.IndicatorVolume {
			cond.Value = m.jitter(cond.Value, strength)
		}
	}

	return m.newChild(parent, ruleset, parent.CloneParameters(), models.MutationExitTune,
		map[string]float64{"strength": strength})
}

func (m *Mutator) newChild(parent *models.Strategy, ruleset models.Ruleset, params map[string]float64, mutation models.MutationType, mutationParams map[string]float64) Child {
	child := &models.Strategy{
		ID:         uuid.New(),
		UserID:     parent.UserID,
		Name:       childName(parent.Name, mutation),
		Ruleset:    ruleset,
		Parameters: params,
		Status:     models.StatusExperiment,
	}
	edge := &models.LineageEdge{
		ID:             uuid.New(),
		ParentIDs:      []uuid.UUID{parent.ID},
		ChildID:        child.ID,
		MutationType:   mutation,
		MutationParams: mutationParams,
		CreatedAt:      time.Now().UTC(),
	}
	return Child{Strategy: child, Edge: edge}
}

func childName(parentName string, mutation models.MutationType) string {
	return fmt.Sprintf("%s [%s]", parentName, mutation)
}

func hasSwappableIndicator(ruleset models.Ruleset) bool {
	for _, c := range ruleset.Entry {
		if _, ok := indicatorSwaps[c.Indicator]; ok {
			return true
		}
	}
	return false
}

func rescalePeriod(period, fromDefault, toDefault int) int {
	scaled := period * toDefault / fromDefault
	if scaled < 2 {
		scaled = 2
	}
	return scaled
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
