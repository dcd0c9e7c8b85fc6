package annotate

import (
	"strings"
	"unicode"
)

// Segment is the atomic unit of a reading-annotation result: a run of
// base text, optionally with an attached phonetic reading. A line's
// segments concatenate back to the original line text.
type Segment struct {
	Text    string `json:"text"`
	Reading string `json:"reading,omitempty"`
}

// ParseRubyMarkup decodes inline <base:reading> markup into segments.
// Plain runs outside brackets become reading-less segments; <base> spans
// without a colon keep the base with no reading. A dangling "<" with no
// closing bracket is treated as plain text through the end of the record.
// Never fails; the worst input degrades to a single plain segment.
func ParseRubyMarkup(content string) []Segment {
	var segments []Segment
	plain := func(text string) {
		if text == "" {
			return
		}
		// Merge into a preceding plain run so broken markup does not
		// fragment the line.
		if n := len(segments); n > 0 && segments[n-1].Reading == "" {
			segments[n-1].Text += text
			return
		}
		segments = append(segments, Segment{Text: text})
	}

	rest := content
	for {
		open := strings.IndexByte(rest, '<')
		if open < 0 {
			plain(rest)
			break
		}
		plain(rest[:open])

		end := strings.IndexByte(rest[open:], '>')
		if end < 0 {
			// Unterminated bracket: everything from "<" on is plain text.
			plain(rest[open:])
			break
		}
		inner := rest[open+1 : open+end]
		rest = rest[open+end+1:]

		base, reading, hasColon := strings.Cut(inner, ":")
		switch {
		case base == "":
			// "<:reading>" or "<>" carries no base text; nothing to cover.
		case hasColon && reading != "":
			segments = append(segments, Segment{Text: base, Reading: reading})
		default:
			plain(base)
		}
	}

	return segments
}

// ConcatSegments rebuilds the covered text from a segment sequence. Used
// to check the lossless span covering invariant.
func ConcatSegments(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// CleanupSoramimi strips residual source-script characters that the
// generator leaked into readings of a phonetic-mimicry result, and drops
// markup spans that are source-script-only with no usable reading left.
// targetLang decides which scripts count as foreign.
func CleanupSoramimi(segments []Segment, targetLang string) []Segment {
	lang := primaryLang(targetLang)
	cleaned := make([]Segment, 0, len(segments))

	for _, seg := range segments {
		hadReading := seg.Reading != ""
		seg.Reading = stripForeignScript(seg.Reading, lang)

		if hadReading && seg.Reading == "" && isForeignScriptOnly(seg.Text, lang) {
			continue
		}
		cleaned = append(cleaned, seg)
	}
	return cleaned
}

func primaryLang(tag string) string {
	tag = strings.ToLower(tag)
	if i := strings.IndexByte(tag, '-'); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// runeUsable reports whether r belongs to a script the target language
// can express a phonetic reading in. ASCII is always usable.
func runeUsable(r rune, lang string) bool {
	if r <= 0x7f {
		return true
	}
	switch lang {
	case "zh":
		return unicode.Is(unicode.Han, r)
	case "ja":
		return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
	case "ko":
		return unicode.Is(unicode.Hangul, r)
	default:
		return !unicode.Is(unicode.Han, r) &&
			!unicode.Is(unicode.Hiragana, r) &&
			!unicode.Is(unicode.Katakana, r) &&
			!unicode.Is(unicode.Hangul, r)
	}
}

func stripForeignScript(s, lang string) string {
	var b strings.Builder
	for _, r := range s {
		if runeUsable(r, lang) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isForeignScriptOnly(s, lang string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if runeUsable(r, lang) {
			return false
		}
	}
	return true
}
