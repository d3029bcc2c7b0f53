package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/yourusername/evo-trader/internal/models"
)

// fingerprintPayload is the canonical shape hashed for duplicate detection.
// Field order is fixed by the struct; symbols and conditions are sorted so
// submission order never changes the hash.
type fingerprintPayload struct {
	Symbols   []string           `json:"symbols"`
	Timeframe string             `json:"timeframe"`
	Direction models.Direction   `json:"direction"`
	Entry     []models.Condition `json:"entry"`
	Exit      models.ExitRules   `json:"exit"`
}

// Fingerprint computes a stable hash of a normalized ruleset. Two rulesets
// that normalize to the same structure always produce the same fingerprint,
// regardless of the field-name conventions they were submitted with.
func Fingerprint(ruleset models.Ruleset) string {
	symbols := make([]string, len(ruleset.Symbols))
	for i, s := range ruleset.Symbols {
		symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	sort.Strings(symbols)

	exit := ruleset.Exit
	exit.ExitConditions = models.CanonicalConditions(exit.ExitConditions)

	payload := fingerprintPayload{
		Symbols:   symbols,
		Timeframe: ruleset.Timeframe,
		Direction: ruleset.Direction,
		Entry:     models.CanonicalConditions(ruleset.Entry),
		Exit:      exit,
	}

	// Marshal cannot fail on this fixed shape
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
