package annotate

import (
	"fmt"
	"strings"
)

const promptRules = "Reply with one line per input line, formatted as " +
	"\"<number>: <result>\" using the given numbering. Do not add " +
	"commentary, do not merge or split lines, do not renumber."

// systemPrompt instructs the generator for one annotation kind. The
// numbering contract here is what the record parser relies on.
func systemPrompt(kind Kind, targetLang string) string {
	switch kind {
	case KindTranslation:
		return fmt.Sprintf("You are a lyrics translator. Translate each "+
			"numbered lyric line into %s, preserving tone and register. %s",
			targetLang, promptRules)
	case KindFurigana:
		return "You are a Japanese reading annotator. For each numbered " +
			"lyric line, wrap every kanji run as <kanji:reading> with its " +
			"hiragana reading and leave all other characters untouched, so " +
			"that removing the markup reproduces the line exactly. " + promptRules
	case KindSoramimi:
		return fmt.Sprintf("You are a soramimi writer. For each numbered "+
			"lyric line, wrap sound runs as <original:mimicry> where the "+
			"mimicry spells the pronunciation with sound-alike %s syllables. "+
			"Keep the original characters as the base text so that removing "+
			"the markup reproduces the line exactly. %s",
			targetLang, promptRules)
	}
	return promptRules
}

// buildUserPrompt renders only the lines that need generation, densely
// renumbered 1..M regardless of how many original lines were skipped.
func buildUserPrompt(texts []string, genToOriginal []int) string {
	var b strings.Builder
	for genIdx, origIdx := range genToOriginal {
		fmt.Fprintf(&b, "%d: %s\n", genIdx+1, texts[origIdx])
	}
	return b.String()
}
