package safety

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// registryDocument is the YAML shape of the rule-registry configuration
// document: the rule chain is built once at startup from both hardcoded
// rules and this configuration document. Only interlock-shaped rules are
// configurable; the one hardcoded rule, the HARDCODED_SAFETY fan-domain
// guard, is always present regardless of whether this document loads. The
// SYSTEM_SAFETY interlocks come only from this document, so no
// SYSTEM_SAFETY rule is evaluated when it is absent or fails to load.
type registryDocument struct {
	Interlocks []interlockSpec `yaml:"interlocks"`
}

type interlockSpec struct {
	ID          string `yaml:"id"`
	Priority    int    `yaml:"priority"`
	PumpPattern string `yaml:"pumpComponentPattern"`
	FirePattern string `yaml:"fireComponentPattern"`
}

// LoadRegistry builds the full rule set: the always-on hardcoded
// HARDCODED_SAFETY rule plus whatever interlocks path's YAML document
// declares. A missing or malformed path degrades gracefully to the
// hardcoded rule alone, so the HARDCODED_SAFETY tier is still evaluated
// when the configuration document fails to load.
//
// The second return value is every RelatedComponentPattern exposed by a
// loaded rule, in load order; the caller must resolve these into
// SafetyContext.RelatedDeviceStates (see calculate.RelatedPattern) or
// rules like FirePumpInterlockRule will never see the devices they
// cross-reference.
func LoadRegistry(path string) ([]Rule, []*regexp.Regexp, error) {
	rules := []Rule{
		NewHardcodedValueRangeRule("hc-fan-domain", 100),
	}

	if path == "" {
		return rules, relatedPatterns(rules), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, relatedPatterns(rules), fmt.Errorf("safety: reading rule registry %s: %w (hardcoded rules still active)", path, err)
	}

	var doc registryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return rules, relatedPatterns(rules), fmt.Errorf("safety: parsing rule registry %s: %w (hardcoded rules still active)", path, err)
	}

	for _, spec := range doc.Interlocks {
		rule, rerr := NewFirePumpInterlockRule(spec.ID, spec.Priority, spec.PumpPattern, spec.FirePattern)
		if rerr != nil {
			return rules, relatedPatterns(rules), fmt.Errorf("safety: compiling interlock %s: %w", spec.ID, rerr)
		}
		rules = append(rules, rule)
	}

	return rules, relatedPatterns(rules), nil
}

func relatedPatterns(rules []Rule) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, r := range rules {
		if p, ok := r.(RelatedPatternProvider); ok {
			out = append(out, p.RelatedComponentPattern())
		}
	}
	return out
}
