package privacy

import (
	"testing"

	"go.uber.org/zap"

	"github.com/koelab/koe-sentinel/internal/settings"
)

func TestApplyRules(t *testing.T) {
	log := zap.NewNop()

	t.Run("SingleRule", func(t *testing.T) {
		rules := []settings.ReplaceRule{
			{Pattern: `プロジェクトX`, Replace: "＜案件＞"},
		}
		got := ApplyRules(rules, "プロジェクトXの進捗です", log)
		if got != "＜案件＞の進捗です" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("DeclarationOrder", func(t *testing.T) {
		rules := []settings.ReplaceRule{
			{Pattern: "aaa", Replace: "bbb"},
			{Pattern: "bbb", Replace: "ccc"},
		}
		// The second rule sees the first rule's output.
		if got := ApplyRules(rules, "aaa", log); got != "ccc" {
			t.Errorf("got %q, want %q", got, "ccc")
		}
	})

	t.Run("CaseInsensitiveFlag", func(t *testing.T) {
		rules := []settings.ReplaceRule{
			{Pattern: "secret", Replace: "***", Flags: "i"},
		}
		if got := ApplyRules(rules, "My SECRET plan", log); got != "My *** plan" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("CaptureGroupBackreference", func(t *testing.T) {
		rules := []settings.ReplaceRule{
			{Pattern: `(\d+)円`, Replace: "$1 JPY"},
		}
		if got := ApplyRules(rules, "500円です", log); got != "500 JPYです" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("InvalidRuleSkipped", func(t *testing.T) {
		rules := []settings.ReplaceRule{
			{Pattern: "([", Replace: "never"},
			{Pattern: "ok", Replace: "fine"},
		}
		// The broken rule must not abort the rest of the list.
		if got := ApplyRules(rules, "ok then", log); got != "fine then" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("InvalidFlagsSkipped", func(t *testing.T) {
		rules := []settings.ReplaceRule{
			{Pattern: "x", Replace: "y", Flags: "zz"},
		}
		if got := ApplyRules(rules, "x", log); got != "x" {
			t.Errorf("got %q, want input unchanged", got)
		}
	})

	t.Run("NilLogger", func(t *testing.T) {
		rules := []settings.ReplaceRule{
			{Pattern: "([", Replace: "never"},
		}
		if got := ApplyRules(rules, "text", nil); got != "text" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("EmptyRuleList", func(t *testing.T) {
		if got := ApplyRules(nil, "text", log); got != "text" {
			t.Errorf("got %q", got)
		}
	})
}
