package lyrics

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Plain timestamp tag: [mm:ss.xx] or [mm:ss.xxx], colon variant accepted
	timeTagRegex = regexp.MustCompile(`^\[(\d{1,3}):(\d{2})[.:](\d{2,3})\]`)

	// Word-timed line header: [startMs,durationMs]
	richLineRegex = regexp.MustCompile(`^\[(\d+),(\d+)\]`)

	// Word tag inside a rich line: <offsetMs,durationMs,0>word
	richWordRegex = regexp.MustCompile(`<(\d+),(\d+),\d+>([^<]*)`)

	// Embedded translation metadata block in the rich format
	languageTagRegex = regexp.MustCompile(`\[language:([A-Za-z0-9+/=]+)\]`)

	// Credit lines restate metadata with a fullwidth colon ("作词： ...")
	creditColonRegex = regexp.MustCompile(`.+：.+`)
)

// CreditScanLines is how many lines from the head of the lyric are checked
// against the credit heuristics. Credits only ever appear as a preamble.
const CreditScanLines = 30

// ParseTimedLines converts decoded plain text (and, when available, the
// richer word-timed text) into the canonical line sequence. Lines with
// missing or unparseable timestamps are dropped silently; input order is
// preserved as-is, even when upstream is unsorted, so downstream indices
// stay 1:1 with upstream lines.
func ParseTimedLines(plain, rich, title, artist string) []TimedLine {
	var lines []TimedLine
	wordsByStart := parseRichWordTimings(rich)

	for _, raw := range strings.Split(plain, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		m := timeTagRegex.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		startMs := tagToMillis(m)

		text := raw[len(m[0]):]
		// Karaoke sources occasionally stack several tags on one physical
		// line; the first one wins, the rest are stripped.
		for {
			next := timeTagRegex.FindStringSubmatch(text)
			if next == nil {
				break
			}
			text = text[len(next[0]):]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if len(lines) < CreditScanLines && isCreditLine(text, title, artist) {
			continue
		}

		lines = append(lines, TimedLine{
			StartTimeMs: startMs,
			Text:        text,
			WordTimings: wordsByStart[startMs],
		})
	}

	return lines
}

// isCreditLine flags boilerplate that restates title/artist metadata.
// Containment, not exact match: upstream decorates these lines freely.
func isCreditLine(text, title, artist string) bool {
	if creditColonRegex.MatchString(text) {
		return true
	}
	if title != "" && artist != "" &&
		strings.Contains(text, title) && strings.Contains(text, artist) {
		return true
	}
	return false
}

func tagToMillis(m []string) int64 {
	minutes, _ := strconv.ParseInt(m[1], 10, 64)
	seconds, _ := strconv.ParseInt(m[2], 10, 64)
	frac, _ := strconv.ParseInt(m[3], 10, 64)
	if len(m[3]) == 2 {
		frac *= 10 // hundredths to milliseconds
	}
	return minutes*60*1000 + seconds*1000 + frac
}

// FormatTimeTag renders a start time back into the [mm:ss.xx] tag form
// used when reassembling a translation into an LRC-shaped string.
func FormatTimeTag(startMs int64) string {
	if startMs < 0 {
		startMs = 0
	}
	minutes := startMs / 60000
	seconds := (startMs % 60000) / 1000
	hundredths := (startMs % 1000) / 10
	var b strings.Builder
	b.WriteByte('[')
	writePadded(&b, minutes)
	b.WriteByte(':')
	writePadded(&b, seconds)
	b.WriteByte('.')
	writePadded(&b, hundredths)
	b.WriteByte(']')
	return b.String()
}

// StripTimeTag removes the leading timestamp tag from one LRC-shaped
// line, returning the line unchanged when no tag is present.
func StripTimeTag(line string) string {
	if m := timeTagRegex.FindString(line); m != "" {
		return line[len(m):]
	}
	return line
}

func writePadded(b *strings.Builder, v int64) {
	if v < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(v, 10))
}

// parseRichWordTimings extracts per-word timings from decoded word-timed
// text, keyed by line start time so they can be attached to the matching
// plain line. Word offsets are relative to the line start.
func parseRichWordTimings(rich string) map[int64][]WordTiming {
	if rich == "" {
		return nil
	}

	byStart := make(map[int64][]WordTiming)
	for _, raw := range strings.Split(rich, "\n") {
		raw = strings.TrimSpace(raw)
		header := richLineRegex.FindStringSubmatch(raw)
		if header == nil {
			continue
		}
		lineStart, _ := strconv.ParseInt(header[1], 10, 64)

		var words []WordTiming
		for _, wm := range richWordRegex.FindAllStringSubmatch(raw[len(header[0]):], -1) {
			offset, _ := strconv.ParseInt(wm[1], 10, 64)
			if wm[3] == "" {
				continue
			}
			words = append(words, WordTiming{
				Text:        wm[3],
				StartTimeMs: lineStart + offset,
			})
		}
		if len(words) > 0 {
			byStart[lineStart] = words
		}
	}
	return byStart
}

// embeddedTranslation mirrors the JSON carried by the [language:...] tag.
type embeddedTranslation struct {
	Content []struct {
		Type         int        `json:"type"`
		LyricContent [][]string `json:"lyricContent"`
	} `json:"content"`
}

// ExtractEmbeddedTranslation returns the per-line translation the rich
// container sometimes carries in its [language:...] metadata block
// (type 1 content). Returns nil when absent or corrupt; the block is an
// optional extra, never an error.
func ExtractEmbeddedTranslation(rich string) []string {
	m := languageTagRegex.FindStringSubmatch(rich)
	if m == nil {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(m[1])
	if err != nil {
		return nil
	}

	var payload embeddedTranslation
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}

	for _, c := range payload.Content {
		if c.Type != 1 {
			continue
		}
		lines := make([]string, 0, len(c.LyricContent))
		for _, parts := range c.LyricContent {
			lines = append(lines, strings.TrimSpace(strings.Join(parts, "")))
		}
		if len(lines) > 0 {
			return lines
		}
	}
	return nil
}
