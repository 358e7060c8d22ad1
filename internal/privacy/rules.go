package privacy

import (
	"fmt"
	"regexp"

	"github.com/koelab/koe-sentinel/internal/settings"
	"go.uber.org/zap"
)

// ApplyRules applies user-defined replace rules to text, in declaration
// order. Rules are compiled fresh on every call: the list may change between
// calls and correctness matters more than compile cost here.
//
// A rule that fails to compile is skipped; the remaining rules still run.
// Replacement strings may reference capture groups with Go's $1/${name}
// syntax.
func ApplyRules(rules []settings.ReplaceRule, text string, log *zap.Logger) string {
	out := text
	for i, rule := range rules {
		re, err := compileRule(rule)
		if err != nil {
			if log != nil {
				log.Debug("Skipping custom rule that failed to compile",
					zap.Int("rule_index", i),
					zap.Error(err),
				)
			}
			continue
		}
		out = re.ReplaceAllString(out, rule.Replace)
	}
	return out
}

// compileRule compiles a rule's pattern, prefixing flags as an inline
// modifier group when present.
func compileRule(rule settings.ReplaceRule) (*regexp.Regexp, error) {
	pattern := rule.Pattern
	if rule.Flags != "" {
		pattern = fmt.Sprintf("(?%s)%s", rule.Flags, rule.Pattern)
	}
	return regexp.Compile(pattern)
}
