package safety

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sentrygrid/twinctl/internal/logger"
	"github.com/sentrygrid/twinctl/internal/model"
)

// Engine evaluates a SafetyContext through the ordered rule chain.
// Construction sorts once; Evaluate never re-sorts.
type Engine struct {
	rules             []Rule
	evaluationTimeout time.Duration
	log               logger.ComponentLogger
}

// NewEngine builds an Engine from an unordered rule set, sorting into
// (category desc, priority desc, id asc) order once at construction —
// "the rule registry ... built once at startup".
func NewEngine(rules []Rule, evaluationTimeout time.Duration, log logger.ComponentLogger) *Engine {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	sorted := append([]Rule(nil), rules...)
	sort.Sort(byPrecedence(sorted))
	return &Engine{rules: sorted, evaluationTimeout: evaluationTimeout, log: log.WithComponent("safety")}
}

// Outcome is the final verdict of a full chain evaluation: the terminal
// ValidationResult plus the chain of rule ids that modified the value
// along the way, surfaced for diagnostics.
type Outcome struct {
	Result       model.ValidationResult
	FinalValue   model.DeviceValue
	ModifiedBy   []string
}

// Evaluate runs ctx through every applicable rule in precedence order.
// On the first Refused, evaluation stops and that result is returned. On
// Modified, the proposed value is replaced and evaluation continues. If
// no rule refuses, the result is Accepted carrying the final, possibly
// modified, value.
func (e *Engine) Evaluate(parent context.Context, ctx model.SafetyContext) Outcome {
	current := ctx
	var modifiedBy []string

	for _, rule := range e.rules {
		if !rule.AppliesTo(current) {
			continue
		}

		result, err := e.evaluateWithTimeout(parent, rule, current)
		if err != nil {
			if rule.Category().IsSafetyTier() {
				// Fail-closed: a broken safety rule blocks the change.
				e.log.Error("safety rule failed, fail-closed", map[string]interface{}{
					"rule": rule.ID(), "category": rule.Category(), "error": err.Error(),
				})
				return Outcome{
					Result:     model.Refused(rule.ID(), "rule_error", err.Error()),
					FinalValue: current.ProposedValue,
					ModifiedBy: modifiedBy,
				}
			}
			// Fail-open outside the safety tiers: log and skip.
			e.log.Warn("non-safety rule failed, skipping", map[string]interface{}{
				"rule": rule.ID(), "category": rule.Category(), "error": err.Error(),
			})
			continue
		}

		switch result.Outcome {
		case model.OutcomeRefused:
			return Outcome{Result: result, FinalValue: current.ProposedValue, ModifiedBy: modifiedBy}
		case model.OutcomeModified:
			current.ProposedValue = result.Modified
			modifiedBy = append(modifiedBy, rule.ID())
		case model.OutcomeAccepted:
			// continue
		}
	}

	return Outcome{
		Result:     model.Accepted(terminalRuleID(modifiedBy)),
		FinalValue: current.ProposedValue,
		ModifiedBy: modifiedBy,
	}
}

func terminalRuleID(modifiedBy []string) string {
	if len(modifiedBy) == 0 {
		return ""
	}
	return modifiedBy[len(modifiedBy)-1]
}

// evaluateWithTimeout runs one rule's Evaluate with a per-rule deadline,
// bounding a pathological rule implementation the same way the health
// gate's ExecuteWithTimeout bounds a slow call.
func (e *Engine) evaluateWithTimeout(parent context.Context, rule Rule, ctx model.SafetyContext) (result model.ValidationResult, err error) {
	if e.evaluationTimeout <= 0 {
		return e.safeEvaluate(rule, ctx)
	}

	done := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("rule %s panicked: %v", rule.ID(), r)
			}
			close(done)
		}()
		result, err = rule.Evaluate(ctx), nil
	}()

	timer := time.NewTimer(e.evaluationTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return result, err
	case <-timer.C:
		return model.ValidationResult{}, fmt.Errorf("rule %s timed out after %s", rule.ID(), e.evaluationTimeout)
	case <-parent.Done():
		return model.ValidationResult{}, parent.Err()
	}
}

func (e *Engine) safeEvaluate(rule Rule, ctx model.SafetyContext) (result model.ValidationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", rule.ID(), r)
		}
	}()
	return rule.Evaluate(ctx), nil
}
