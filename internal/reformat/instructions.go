package reformat

import (
	"fmt"
	"strings"

	"github.com/koelab/koe-sentinel/internal/settings"
)

// BuildInstructions assembles the system instructions for the reformatting
// model from the user's settings. The product targets Japanese dictation, so
// the instructions are written in Japanese; the model is told to answer in
// the input's language either way.
func BuildInstructions(s settings.Settings) string {
	lines := []string{"あなたは入力テキストを自然な文に整形します。"}

	if s.NaturalizeExpressions {
		lines = append(lines, "不自然な口語のつなぎを自然に置換します。")
	}
	if s.AutoPunctuation {
		lines = append(lines, "句読点を適切に挿入します。")
	}
	if s.UnifyForeignWords {
		lines = append(lines, "外来語の表記を統一します（全角/半角の揺れも統一）。")
	}
	if s.PreserveOriginalProperNouns {
		lines = append(lines, "固有名詞は原文のまま保持します。")
	}
	if s.NoSummaryOrEmbellishment {
		lines = append(lines, "要約や脚色はしません。事実の追加・削除も行いません。")
	}
	lines = append(lines, "出力は入力と同じ言語で返してください。")

	for _, rule := range s.CustomReplaceRules {
		lines = append(lines, fmt.Sprintf("次の置換規則を適用: /%s/ -> %s", rule.Pattern, rule.Replace))
	}

	return strings.Join(lines, "\n")
}
