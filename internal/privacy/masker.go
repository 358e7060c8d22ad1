package privacy

import (
	"errors"

	"github.com/koelab/koe-sentinel/internal/logger"
	"github.com/koelab/koe-sentinel/internal/settings"
	"go.uber.org/zap"
)

// ErrDLPBlocked is returned when the DLP gate rejects a masking call. The
// message is deliberately fixed: it must never carry a fragment of the input.
var ErrDLPBlocked = errors.New("DLP block")

// Masker runs text through the DLP gate, the built-in PII masks and the
// user's custom replace rules. A Masker holds no per-call state; one instance
// is safe for concurrent use.
type Masker struct {
	logger *logger.Logger
}

// NewMasker creates a masker. The logger may be nil in tests.
func NewMasker(log *logger.Logger) *Masker {
	return &Masker{logger: log}
}

// Mask produces the masked form of text under the given settings snapshot,
// or ErrDLPBlocked when the gate rejects it. Stage order is fixed: DLP gate,
// email mask, phone mask, digit-run mask, custom rules. Custom rules run
// regardless of the category toggles since they represent explicit user
// intent. Address and name masking are accepted settings but have no effect
// until locale resources exist.
func (m *Masker) Mask(s settings.Settings, text string) (Result, error) {
	result := Result{}

	switch Evaluate(s, text) {
	case VerdictBlocked:
		m.log().Info("Masking call blocked by DLP policy")
		return Result{}, ErrDLPBlocked
	case VerdictWarn:
		result.Warned = true
	}

	out := text
	if s.MaskEmail {
		out = m.maskCategory(out, CategoryEmail, PlaceholderEmail, &result)
	}
	if s.MaskPhone {
		out = m.maskCategory(out, CategoryPhone, PlaceholderPhone, &result)
	}
	if s.MaskNumbers {
		out = m.maskCategory(out, CategoryDigitRun, PlaceholderDigitRun, &result)
	}

	var ruleLog *zap.Logger
	if m.logger != nil {
		ruleLog = m.logger.Logger
	}
	out = ApplyRules(s.CustomReplaceRules, out, ruleLog)

	result.Text = out
	return result, nil
}

// maskCategory replaces all matches for one category and records a finding.
func (m *Masker) maskCategory(text string, category Category, placeholder string, result *Result) string {
	count := CountMatches(category, text)
	if count == 0 {
		return text
	}

	result.Findings = append(result.Findings, Finding{
		Category: category,
		Count:    count,
	})

	m.log().Debug("PII masked",
		zap.String("category", string(category)),
		zap.Int("count", count),
	)

	return ReplaceAll(category, text, placeholder)
}

func (m *Masker) log() *logger.Logger {
	if m.logger != nil {
		return m.logger
	}
	return logger.Nop()
}
