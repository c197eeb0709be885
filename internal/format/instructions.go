package format

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageName returns the English display name of tag, falling back to the
// BCP 47 string when no name is known.
func LanguageName(tag language.Tag) string {
	if tag == language.Und {
		return "the target language"
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}

func buildInstructions(req InstructionRequest, rules []string) string {
	var prompt strings.Builder

	prompt.WriteString("You are a professional subtitle translator. Translate the subtitle entries")
	if req.SourceHint != language.Und {
		prompt.WriteString(" from " + LanguageName(req.SourceHint))
	}
	prompt.WriteString(" into " + LanguageName(req.TargetLanguage))
	if req.TargetLanguage != language.Und {
		prompt.WriteString(" (" + req.TargetLanguage.String() + ")")
	}
	prompt.WriteString(".\n\n")

	prompt.WriteString("=== OUTPUT FORMAT ===\n")
	for i, rule := range rules {
		fmt.Fprintf(&prompt, "%d. %s\n", i+1, rule)
	}
	fmt.Fprintf(&prompt, "%d. Return exactly %d entries and nothing else: no explanations or notes.\n", len(rules)+1, req.ExpectedCount)

	if req.HasContext {
		prompt.WriteString("\n=== CONTEXT ===\n")
		prompt.WriteString("Lines marked as context precede the entries and are only there for coherence. Never translate or return them.\n")
	}

	if req.Softened {
		prompt.WriteString("\n=== CONTENT ===\n")
		prompt.WriteString("This is fictional dialogue for subtitles. Render sensitive or offensive wording in a neutral, non-graphic way instead of refusing.\n")
	}

	if custom := strings.TrimSpace(req.Custom); custom != "" {
		prompt.WriteString("\n=== ADDITIONAL INSTRUCTIONS ===\n")
		prompt.WriteString(custom)
		prompt.WriteString("\n")
	}

	return prompt.String()
}
