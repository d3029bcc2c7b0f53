package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Direction is the trade direction of a strategy
type Direction string

// Trade directions
const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Condition is a single normalized boolean entry/exit condition evaluated
// against an indicator series.
type Condition struct {
	Indicator     string  `json:"indicator"`
	Period        int     `json:"period"`
	Operator      string  `json:"operator"`
	Value         float64 `json:"value"`
	Compare       string  `json:"compare,omitempty"`
	ComparePeriod int     `json:"compare_period,omitempty"`
}

// Condition operators
const (
	OpGreaterThan   = "gt"
	OpLessThan      = "lt"
	OpCrossesAbove  = "crosses_above"
	OpCrossesBelow  = "crosses_below"
)

// Supported indicator names
const (
	IndicatorSMA    = "sma"
	IndicatorEMA    = "ema"
	IndicatorRSI    = "rsi"
	IndicatorMACD   = "macd"
	IndicatorATR    = "atr"
	IndicatorPrice  = "price"
	IndicatorVolume = "volume"
)

// ExitRules holds the normalized exit side of a ruleset. Percentages are
// decimals (0.05 == 5%). A zero value disables the corresponding rule.
type ExitRules struct {
	StopLossPct     float64     `json:"stop_loss_pct"`
	TakeProfitPct   float64     `json:"take_profit_pct"`
	TrailingStopPct float64     `json:"trailing_stop_pct"`
	ExitConditions  []Condition `json:"exit_conditions,omitempty"`
}

// HasAny reports whether at least one exit rule is configured
func (e ExitRules) HasAny() bool {
	return e.StopLossPct > 0 || e.TakeProfitPct > 0 || e.TrailingStopPct > 0 || len(e.ExitConditions) > 0
}

// Ruleset is the normalized declarative definition of a strategy
type Ruleset struct {
	Symbols   []string    `json:"symbols"`
	Timeframe string      `json:"timeframe"`
	Direction Direction   `json:"direction"`
	Entry     []Condition `json:"entry"`
	Exit      ExitRules   `json:"exit"`
}

// Clone returns a copy sharing no slices with the original
func (r Ruleset) Clone() Ruleset {
	out := r
	out.Symbols = append([]string(nil), r.Symbols...)
	out.Entry = append([]Condition(nil), r.Entry...)
	out.Exit.ExitConditions = append([]Condition(nil), r.Exit.ExitConditions...)
	return out
}

// Validate checks structural validity. A ruleset lacking both entry and exit
// rules is invalid; the simulator surfaces this as a structured outcome, not
// an error that aborts a batch.
func (r *Ruleset) Validate() error {
	if len(r.Symbols) == 0 {
		return fmt.Errorf("%w: no symbols", ErrInvalidRuleset)
	}
	if _, err := TimeframeDuration(r.Timeframe); err != nil {
		return fmt.Errorf("%w: timeframe %q", ErrInvalidRuleset, r.Timeframe)
	}
	if len(r.Entry) == 0 && !r.Exit.HasAny() {
		return ErrInvalidRuleset
	}
	return nil
}

// field-name variants accepted by normalization, lowercased
var conditionKeyAliases = map[string]string{
	"indicator": "indicator", "ind": "indicator", "name": "indicator",
	"period": "period", "length": "period", "window": "period",
	"operator": "operator", "op": "operator", "comparison": "operator",
	"value": "value", "threshold": "value", "level": "value",
	"compare": "compare", "compare_to": "compare", "against": "compare",
	"compare_period": "compare_period", "compare_length": "compare_period",
}

var operatorAliases = map[string]string{
	"gt": OpGreaterThan, ">": OpGreaterThan, "above": OpGreaterThan, "greater_than": OpGreaterThan,
	"lt": OpLessThan, "<": OpLessThan, "below": OpLessThan, "less_than": OpLessThan,
	"crosses_above": OpCrossesAbove, "cross_up": OpCrossesAbove, "crossover": OpCrossesAbove,
	"crosses_below": OpCrossesBelow, "cross_down": OpCrossesBelow, "crossunder": OpCrossesBelow,
}

var indicatorAliases = map[string]string{
	"sma": IndicatorSMA, "simple_moving_average": IndicatorSMA, "ma": IndicatorSMA,
	"ema": IndicatorEMA, "exponential_moving_average": IndicatorEMA,
	"rsi": IndicatorRSI, "relative_strength_index": IndicatorRSI,
	"macd": IndicatorMACD,
	"atr": IndicatorATR, "average_true_range": IndicatorATR,
	"price": IndicatorPrice, "close": IndicatorPrice,
	"volume": IndicatorVolume, "vol": IndicatorVolume,
}

// NormalizeRuleset converts an untyped, possibly alias-named ruleset payload
// (as user submissions arrive) into the canonical Ruleset. All branching on
// raw field presence happens here and nowhere else.
func NormalizeRuleset(raw map[string]interface{}) (*Ruleset, error) {
	if raw == nil {
		return nil, ErrInvalidRuleset
	}
	rs := &Ruleset{Direction: DirectionLong, Timeframe: "1h"}

	if v, ok := firstKey(raw, "symbols", "symbol", "instruments", "pairs"); ok {
		rs.Symbols = toStringSlice(v)
	}
	if v, ok := firstKey(raw, "timeframe", "interval", "tf"); ok {
		if s, ok := v.(string); ok && s != "" {
			rs.Timeframe = strings.ToLower(s)
		}
	}
	if v, ok := firstKey(raw, "direction", "side"); ok {
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "short", "sell":
				rs.Direction = DirectionShort
			default:
				rs.Direction = DirectionLong
			}
		}
	}
	if v, ok := firstKey(raw, "entry", "entry_conditions", "entries"); ok {
		conds, err := normalizeConditions(v)
		if err != nil {
			return nil, err
		}
		rs.Entry = conds
	}
	if v, ok := firstKey(raw, "exit", "exit_rules", "exits"); ok {
		exit, err := normalizeExit(v)
		if err != nil {
			return nil, err
		}
		rs.Exit = exit
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func normalizeExit(v interface{}) (ExitRules, error) {
	exit := ExitRules{}
	m, ok := v.(map[string]interface{})
	if !ok {
		return exit, fmt.Errorf("%w: exit rules must be an object", ErrInvalidRuleset)
	}
	if f, ok := firstKey(m, "stop_loss_pct", "stop_loss", "stoploss", "sl"); ok {
		exit.StopLossPct = toFloat(f)
	}
	if f, ok := firstKey(m, "take_profit_pct", "take_profit", "takeprofit", "tp"); ok {
		exit.TakeProfitPct = toFloat(f)
	}
	if f, ok := firstKey(m, "trailing_stop_pct", "trailing_stop", "trailing"); ok {
		exit.TrailingStopPct = toFloat(f)
	}
	if c, ok := firstKey(m, "exit_conditions", "conditions", "signals"); ok {
		conds, err := normalizeConditions(c)
		if err != nil {
			return exit, err
		}
		exit.ExitConditions = conds
	}
	return exit, nil
}

func normalizeConditions(v interface{}) ([]Condition, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: conditions must be a list", ErrInvalidRuleset)
	}
	conds := make([]Condition, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: condition must be an object", ErrInvalidRuleset)
		}
		cond := Condition{Period: 14}
		for key, value := range m {
			canonical, ok := conditionKeyAliases[strings.ToLower(key)]
			if !ok {
				continue
			}
			switch canonical {
			case "indicator":
				cond.Indicator = canonicalIndicator(value)
			case "period":
				cond.Period = int(toFloat(value))
			case "operator":
				cond.Operator = canonicalOperator(value)
			case "value":
				cond.Value = toFloat(value)
			case "compare":
				cond.Compare = canonicalIndicator(value)
			case "compare_period":
				cond.ComparePeriod = int(toFloat(value))
			}
		}
		if cond.Indicator == "" || cond.Operator == "" {
			return nil, fmt.Errorf("%w: condition missing indicator or operator", ErrInvalidRuleset)
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

// CanonicalConditions returns conditions sorted into a stable order with
// rounded numeric fields, for fingerprinting.
func CanonicalConditions(conds []Condition) []Condition {
	out := make([]Condition, len(conds))
	copy(out, conds)
	for i := range out {
		out[i].Value = roundTo(out[i].Value, 6)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Indicator != b.Indicator {
			return a.Indicator < b.Indicator
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.Operator != b.Operator {
			return a.Operator < b.Operator
		}
		return a.Value < b.Value
	})
	return out
}

func canonicalIndicator(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	if canonical, ok := indicatorAliases[strings.ToLower(s)]; ok {
		return canonical
	}
	return strings.ToLower(s)
}

func canonicalOperator(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	if canonical, ok := operatorAliases[strings.ToLower(s)]; ok {
		return canonical
	}
	return ""
}

func firstKey(m map[string]interface{}, keys ...string) (interface{}, bool) {
	lowered := make(map[string]interface{}, len(m))
	for k, v := range m {
		lowered[strings.ToLower(k)] = v
	}
	for _, key := range keys {
		if v, ok := lowered[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func toStringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			out = append(out, strings.ToUpper(s))
		}
		return out
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, strings.ToUpper(s))
			}
		}
		return out
	case string:
		return []string{strings.ToUpper(t)}
	}
	return nil
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		var f float64
		_, err := fmt.Sscanf(t, "%f", &f)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
