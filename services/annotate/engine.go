package annotate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-annotator-go/logcolors"
	"lyrics-annotator-go/services/lyrics"
)

// Kind selects which annotation a streaming run produces.
type Kind string

const (
	KindTranslation Kind = "translation"
	KindFurigana    Kind = "furigana"
	KindSoramimi    Kind = "soramimi"
)

// SkipReasonChineseLyrics is reported when same-script phonetic mimicry
// would be redundant and generation is skipped outright.
const SkipReasonChineseLyrics = "chinese_lyrics"

var (
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrGenerationAborted = errors.New("generation aborted")
)

// recordRegex matches one generator output record: a 1-based generation
// index, a separator (colon, period, or whitespace), and the content.
// Anything else is stray commentary and is discarded.
var recordRegex = regexp.MustCompile(`^\s*(\d+)\s*[:.\s]\s*(.*)$`)

// LineEvent is emitted once per completed line, in stream order (which is
// not necessarily ascending original-line order).
type LineEvent struct {
	LineIndex int       `json:"lineIndex"`
	Segments  []Segment `json:"segments"`
	Progress  int       `json:"progress"`
}

// Result is the terminal outcome of one streaming invocation. Lines
// always has exactly one entry per input line, even after a failed or
// aborted stream; Success signals degradation, never missing data.
type Result struct {
	Lines      [][]Segment `json:"lines"`
	Success    bool        `json:"success"`
	Skipped    bool        `json:"skipped,omitempty"`
	SkipReason string      `json:"skipReason,omitempty"`
}

// Request describes one streaming annotation invocation.
type Request struct {
	Lines      []lyrics.TimedLine
	Kind       Kind
	TargetLang string // translation and soramimi only
	Timeout    time.Duration
}

// Engine drives line-by-line annotation through an incremental stream.
type Engine struct {
	generator Generator
}

func NewEngine(g Generator) *Engine {
	return &Engine{generator: g}
}

// streamState is the ephemeral parse state of one invocation. Never
// persisted; discarded on completion or failure.
type streamState struct {
	buf            []byte
	results        [][]Segment
	completed      []bool
	completedCount int
	genToOriginal  []int
}

// Run executes one streaming invocation. onLine is called once per
// completed line with monotonic non-decreasing progress. The returned
// error is non-nil only for an invalid request; stream failures degrade
// to a best-effort, fully-covered result with Success=false.
func (e *Engine) Run(ctx context.Context, req Request, onLine func(LineEvent)) (*Result, error) {
	switch req.Kind {
	case KindTranslation, KindFurigana, KindSoramimi:
	default:
		return nil, fmt.Errorf("unknown annotation kind %q", req.Kind)
	}
	if (req.Kind == KindTranslation || req.Kind == KindSoramimi) && req.TargetLang == "" {
		return nil, fmt.Errorf("%s requires a target language", req.Kind)
	}

	total := len(req.Lines)
	st := &streamState{
		results:   make([][]Segment, total),
		completed: make([]bool, total),
	}
	if total == 0 {
		return &Result{Lines: st.results, Success: true}, nil
	}

	texts := make([]string, total)
	for i, line := range req.Lines {
		texts[i] = line.Text
	}

	// Same-script soramimi is pointless; resolve the whole run without
	// touching the generator.
	if req.Kind == KindSoramimi && primaryLang(req.TargetLang) == "zh" && LyricsAreMostlyChinese(texts) {
		for i := range texts {
			st.results[i] = []Segment{{Text: texts[i]}}
		}
		log.Infof("%s Skipping soramimi for %d Chinese lines (target %s)",
			logcolors.LogAnnotate, total, req.TargetLang)
		return &Result{Lines: st.results, Success: true, Skipped: true, SkipReason: SkipReasonChineseLyrics}, nil
	}

	// Pre-filter: lines resolvable without the generator are emitted
	// synchronously before the stream starts, as single-segment
	// passthroughs. The remainder is renumbered densely 1..M.
	for i, text := range texts {
		if needsGeneration(req.Kind, text) {
			st.genToOriginal = append(st.genToOriginal, i)
			continue
		}
		st.results[i] = []Segment{{Text: text}}
		st.completed[i] = true
		st.completedCount++
		emit(onLine, LineEvent{LineIndex: i, Segments: st.results[i], Progress: st.progress(total)})
	}

	if len(st.genToOriginal) == 0 {
		return &Result{Lines: st.results, Success: true}, nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	userPrompt := buildUserPrompt(texts, st.genToOriginal)
	ch, err := e.generator.StreamCompletion(runCtx, systemPrompt(req.Kind, req.TargetLang), userPrompt)
	if err != nil {
		log.Errorf("%s Failed to start generation stream: %v", logcolors.LogAnnotate, err)
		st.backfill(texts)
		return &Result{Lines: st.results, Success: false}, nil
	}

	success := true

stream:
	for {
		select {
		case <-runCtx.Done():
			// Already-decoded lines are kept; the rest is back-filled.
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				log.Warnf("%s %v after %v (%d/%d lines decoded)",
					logcolors.LogAnnotate, ErrGenerationTimeout, req.Timeout, st.completedCount, total)
			} else {
				log.Warnf("%s %v (%d/%d lines decoded)",
					logcolors.LogAnnotate, ErrGenerationAborted, st.completedCount, total)
			}
			success = false
			break stream

		case chunk, ok := <-ch:
			if !ok {
				break stream
			}
			if chunk.FinishReason == "error" {
				log.Errorf("%s Generation stream failed: %s", logcolors.LogAnnotate, chunk.Text)
				success = false
				break stream
			}
			st.consume(chunk.Text, req, total, onLine)
		}
	}

	// A trailing partial record has no newline; flush it once the stream
	// is over.
	if rest := bytes.TrimSpace(st.buf); len(rest) > 0 {
		st.handleRecord(string(rest), req, total, onLine)
		st.buf = nil
	}

	st.backfill(texts)
	return &Result{Lines: st.results, Success: success}, nil
}

// consume appends a chunk to the buffer, then extracts every complete
// record. The buffer is resliced past each newline, never re-scanned.
func (st *streamState) consume(chunk string, req Request, total int, onLine func(LineEvent)) {
	st.buf = append(st.buf, chunk...)
	for {
		i := bytes.IndexByte(st.buf, '\n')
		if i < 0 {
			return
		}
		record := strings.TrimSpace(string(st.buf[:i]))
		st.buf = st.buf[i+1:]
		if record != "" {
			st.handleRecord(record, req, total, onLine)
		}
	}
}

// handleRecord parses "<index><sep><content>", translates the generation
// index back to the original line index, and decodes the content. Records
// that do not match, or that point outside [1, M], are discarded: the
// generator is allowed to ramble without aborting the stream.
func (st *streamState) handleRecord(record string, req Request, total int, onLine func(LineEvent)) {
	m := recordRegex.FindStringSubmatch(record)
	if m == nil {
		return
	}
	genIndex, err := strconv.Atoi(m[1])
	if err != nil || genIndex < 1 || genIndex > len(st.genToOriginal) {
		return
	}
	content := strings.TrimSpace(m[2])
	if content == "" {
		return
	}

	segments := decodeContent(req.Kind, req.TargetLang, content)
	if len(segments) == 0 {
		return
	}

	originalIndex := st.genToOriginal[genIndex-1]
	st.results[originalIndex] = segments
	if !st.completed[originalIndex] {
		// Counted once per distinct index; re-delivery overwrites and
		// re-emits without touching the count.
		st.completed[originalIndex] = true
		st.completedCount++
	}
	emit(onLine, LineEvent{LineIndex: originalIndex, Segments: segments, Progress: st.progress(total)})
}

func decodeContent(kind Kind, targetLang, content string) []Segment {
	switch kind {
	case KindTranslation:
		return []Segment{{Text: content}}
	case KindFurigana:
		return ParseRubyMarkup(content)
	case KindSoramimi:
		return CleanupSoramimi(ParseRubyMarkup(content), targetLang)
	}
	return nil
}

// backfill covers every index the stream never matched with a passthrough
// of its own source text, so the terminal result always has exactly one
// entry per original line.
func (st *streamState) backfill(texts []string) {
	for i := range st.results {
		if len(st.results[i]) == 0 {
			st.results[i] = []Segment{{Text: texts[i]}}
		}
	}
}

func (st *streamState) progress(total int) int {
	return int(math.Round(float64(st.completedCount) / float64(total) * 100))
}

func needsGeneration(kind Kind, text string) bool {
	switch kind {
	case KindFurigana:
		return HasKanji(text)
	case KindSoramimi:
		return !IsASCIIOnly(text)
	default:
		return strings.TrimSpace(text) != ""
	}
}

func emit(onLine func(LineEvent), ev LineEvent) {
	if onLine != nil {
		onLine(ev)
	}
}
