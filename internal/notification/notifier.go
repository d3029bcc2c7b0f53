// Package notification delivers user-visible messages for strategy
// lifecycle transitions.
package notification

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/models"
)

// Notifier receives every user-visible status transition
type Notifier interface {
	NotifyTransition(strategy *models.Strategy, from, to models.StrategyStatus, reason string)
}

// templates are keyed by the destination status of a transition
var templates = map[models.StrategyStatus]string{
	models.StatusExperiment: "Strategy %q was accepted and is now being evaluated.",
	models.StatusDuplicate:  "Strategy %q matches an existing strategy and was marked as a duplicate.",
	models.StatusRejected:   "Strategy %q was rejected: %s.",
	models.StatusCandidate:  "Strategy %q was promoted to candidate.",
	models.StatusProposable: "Strategy %q passed validation and is now proposable to users.",
	models.StatusDiscarded:  "Strategy %q was discarded: %s.",
}

// LogNotifier writes notifications to the structured log. Production
// deployments swap in a push-delivery implementation behind the same
// interface.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogNotifier{logger: logger}
}

// NotifyTransition renders the template for the transition and emits it.
// Transitions without a template (demotions between internal states) are
// logged at debug level only.
func (n *LogNotifier) NotifyTransition(strategy *models.Strategy, from, to models.StrategyStatus, reason string) {
	template, ok := templates[to]
	if !ok || from == to {
		n.logger.WithFields(logrus.Fields{
			"strategy_id": strategy.ID,
			"from":        from,
			"to":          to,
		}).Debug("Status transition without user notification")
		return
	}

	message := renderTemplate(template, strategy.Name, reason)
	n.logger.WithFields(logrus.Fields{
		"strategy_id": strategy.ID,
		"user_id":     strategy.UserID,
		"from":        from,
		"to":          to,
		"message":     message,
	}).Info("User notification")
}

func renderTemplate(template, name, reason string) string {
	if countVerbs(template) == 2 {
		return fmt.Sprintf(template, name, reason)
	}
	return fmt.Sprintf(template, name)
}

func countVerbs(template string) int {
	count := 0
	for i := 0; i < len(template)-1; i++ {
		if template[i] == '%' && template[i+1] != '%' {
			count++
		}
	}
	return count
}
