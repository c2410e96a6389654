// Package safety implements the Safety Rule Engine: an ordered chain of
// rules evaluated against a SafetyContext, producing a sealed
// ValidationResult, with fail-closed semantics for the two non-overridable
// safety tiers and fail-open semantics for everything else.
package safety

import (
	"regexp"

	"github.com/sentrygrid/twinctl/internal/model"
)

// Rule is one entry in the ordered evaluation chain.
type Rule interface {
	ID() string
	Name() string
	Category() model.RuleCategory
	// Priority orders rules within the same category, higher evaluates
	// first.
	Priority() int
	AppliesTo(ctx model.SafetyContext) bool
	Evaluate(ctx model.SafetyContext) model.ValidationResult
}

// CorrectionSuggester is the optional suggestCorrection(ctx) extension;
// most rules don't implement it.
type CorrectionSuggester interface {
	SuggestCorrection(ctx model.SafetyContext) (model.DeviceValue, bool)
}

// RelatedPatternProvider is implemented by rules that look up other
// devices in ctx.RelatedDeviceStates during Evaluate. LoadRegistry
// collects these patterns so the caller can feed them to whatever
// resolves RelatedDeviceStates for a recalculation — without this, a
// rule's related-device lookups always see an empty map.
type RelatedPatternProvider interface {
	RelatedComponentPattern() *regexp.Regexp
}

// byPrecedence sorts rules by (category desc, priority desc, id asc),
// the required evaluation order.
type byPrecedence []Rule

func (s byPrecedence) Len() int      { return len(s) }
func (s byPrecedence) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byPrecedence) Less(i, j int) bool {
	ci, cj := s[i].Category().Rank(), s[j].Category().Rank()
	if ci != cj {
		return ci > cj
	}
	if s[i].Priority() != s[j].Priority() {
		return s[i].Priority() > s[j].Priority()
	}
	return s[i].ID() < s[j].ID()
}
