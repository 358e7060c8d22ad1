package privacy

import "github.com/koelab/koe-sentinel/internal/settings"

// Verdict is the DLP gate's decision for one masking call.
type Verdict int

const (
	// VerdictProceed continues into masking with no annotation.
	VerdictProceed Verdict = iota
	// VerdictWarn continues into masking; the result is tagged so the
	// caller can surface a non-blocking notice.
	VerdictWarn
	// VerdictBlocked stops the call before any masking occurs.
	VerdictBlocked
)

// DLP actions configurable via settings.
const (
	ActionMask  = "mask"
	ActionWarn  = "warn"
	ActionBlock = "block"
)

// Evaluate decides whether masking may proceed for the given text. When DLP
// scanning is disabled no detection work is done at all. Custom replace rules
// are transformations, not detectors, and take no part in this check.
func Evaluate(s settings.Settings, text string) Verdict {
	if !s.EnableDLPScan {
		return VerdictProceed
	}

	hasSensitive := DetectAny(CategoryEmail, text) ||
		DetectAny(CategoryPhone, text) ||
		DetectAny(CategoryDigitRun, text)
	if !hasSensitive {
		return VerdictProceed
	}

	switch s.DLPAction {
	case ActionBlock:
		return VerdictBlocked
	case ActionWarn:
		return VerdictWarn
	default:
		return VerdictProceed
	}
}
