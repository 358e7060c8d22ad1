package privacy

import (
	"regexp"
	"sync"
)

// Category identifies a built-in PII detector.
type Category string

const (
	CategoryEmail    Category = "email"
	CategoryPhone    Category = "phone"
	CategoryDigitRun Category = "digit_run"
)

// Placeholder tokens substituted for masked spans. Full-width, matching the
// product's Japanese-first UI. Deliberately free of ASCII digits and "@" so
// masking already-masked text is a no-op.
const (
	PlaceholderEmail    = "＜メール＞"
	PlaceholderPhone    = "＜電話番号＞"
	PlaceholderDigitRun = "＜数列＞"
)

// Phone matching is deliberately permissive: an optional country code,
// an optional (possibly parenthesized) area code, then 2-3 groups of 2-4
// digits separated by hyphen or whitespace. Over-masking a date or an order
// number costs less than leaking a phone number.
const (
	emailPattern    = `(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`
	phonePattern    = `(?:\+?\d{1,4}[-\s]?)?(?:\(?\d{2,4}\)?[-\s]?)?(?:\d{2,4}[-\s]?){2,3}`
	digitRunPattern = `\d{6,}`
)

var (
	patternsOnce sync.Once
	patterns     map[Category]*regexp.Regexp
)

// compiled returns the process-wide detector table, building it on first use.
// The table is immutable afterwards, so detectors are safe for concurrent use.
func compiled() map[Category]*regexp.Regexp {
	patternsOnce.Do(func() {
		patterns = map[Category]*regexp.Regexp{
			CategoryEmail:    regexp.MustCompile(emailPattern),
			CategoryPhone:    regexp.MustCompile(phonePattern),
			CategoryDigitRun: regexp.MustCompile(digitRunPattern),
		}
	})
	return patterns
}

// DetectAny reports whether text contains at least one match for the category.
func DetectAny(category Category, text string) bool {
	re, ok := compiled()[category]
	if !ok {
		return false
	}
	return re.MatchString(text)
}

// CountMatches returns the number of non-overlapping matches for the category.
func CountMatches(category Category, text string) int {
	re, ok := compiled()[category]
	if !ok {
		return 0
	}
	return len(re.FindAllStringIndex(text, -1))
}

// ReplaceAll substitutes every non-overlapping match for the category with
// the placeholder and returns the result.
func ReplaceAll(category Category, text, placeholder string) string {
	re, ok := compiled()[category]
	if !ok {
		return text
	}
	return re.ReplaceAllLiteralString(text, placeholder)
}
