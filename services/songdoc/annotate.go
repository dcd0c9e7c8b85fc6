package songdoc

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-annotator-go/logcolors"
	"lyrics-annotator-go/services/annotate"
	"lyrics-annotator-go/services/catalog"
	"lyrics-annotator-go/services/lyrics"
	"lyrics-annotator-go/stats"
	"lyrics-annotator-go/store"
)

// AnnotateRequest describes one annotation invocation against a song's
// stored lyrics.
type AnnotateRequest struct {
	SongID     string
	Kind       annotate.Kind
	TargetLang string
	Force      bool
}

// AnnotateResult is the terminal outcome delivered to the caller.
type AnnotateResult struct {
	Lines      [][]annotate.Segment `json:"lines"`
	Success    bool                 `json:"success"`
	Skipped    bool                 `json:"skipped,omitempty"`
	SkipReason string               `json:"skipReason,omitempty"`
	FromCache  bool                 `json:"fromCache"`
}

// inflightGeneration tracks one in-progress generation so concurrent
// callers for the same (song, kind, language) share a single upstream
// invocation instead of racing.
type inflightGeneration struct {
	wg     sync.WaitGroup
	result *AnnotateResult
	err    error
}

type inflightMap struct {
	m sync.Map
}

// Annotate produces one annotation set for the song's stored lyrics.
// Cached sets are returned directly; otherwise the streaming engine is
// invoked and onLine receives each line-completion event. Concurrent
// calls for the same song/kind/language join the first invocation and
// receive only its terminal result.
func (s *Service) Annotate(ctx context.Context, req AnnotateRequest, onLine func(annotate.LineEvent)) (*AnnotateResult, error) {
	if req.SongID == "" {
		return nil, &ValidationError{Field: "id", Msg: "song id is required"}
	}
	langKey := req.TargetLang
	switch req.Kind {
	case annotate.KindFurigana:
		langKey = "" // single cache slot, no target language
	case annotate.KindTranslation, annotate.KindSoramimi:
		if req.TargetLang == "" {
			return nil, &ValidationError{Field: "lang", Msg: fmt.Sprintf("%s requires a target language", req.Kind)}
		}
	default:
		return nil, &ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown annotation kind %q", req.Kind)}
	}

	doc, err := s.store.Get(req.SongID, store.ProjAll)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Lyrics == nil {
		return nil, &ValidationError{Field: "id", Msg: "no lyrics stored for song"}
	}
	src := doc.Lyrics.SourceRef
	lines := lyrics.ParseTimedLines(doc.Lyrics.PlainText, doc.Lyrics.RichText, src.Title, src.Artist)

	if !req.Force && !s.cfg.DisableAnnotationCache {
		if cached := cachedAnnotation(doc, req.Kind, langKey, len(lines)); cached != nil {
			log.Infof("%s Cache hit: %s %s for %s", logcolors.LogSongDoc, req.Kind, logcolors.Lang(langKey), req.SongID)
			return cached, nil
		}
	}

	// Traditional Chinese translations are derived mechanically from the
	// container's embedded translation when one is present: cheaper and
	// more accurate than generation, so it is always tried first.
	if req.Kind == annotate.KindTranslation && isTraditionalChinese(req.TargetLang) {
		if result := s.deriveTraditionalChinese(doc, lines, onLine); result != nil {
			stats.Get().RecordDerivedTraditional()
			s.persistAnnotation(req.SongID, req.Kind, langKey, doc, lines, result.Lines)
			return result, nil
		}
	}

	key := req.SongID + "|" + string(req.Kind) + "|" + langKey
	fresh := &inflightGeneration{}
	fresh.wg.Add(1)
	actual, loaded := s.inflight.m.LoadOrStore(key, fresh)
	gen := actual.(*inflightGeneration)
	if loaded {
		log.Infof("%s Waiting for in-flight generation: %s", logcolors.LogSongDoc, key)
		gen.wg.Wait()
		if gen.err != nil {
			return nil, gen.err
		}
		return gen.result, nil
	}
	defer func() {
		gen.wg.Done()
		time.AfterFunc(1*time.Second, func() {
			s.inflight.m.Delete(key)
		})
	}()

	engRes, err := s.engine.Run(ctx, annotate.Request{
		Lines:      lines,
		Kind:       req.Kind,
		TargetLang: req.TargetLang,
		Timeout:    s.cfg.GenerationTimeout,
	}, onLine)
	if err != nil {
		gen.err = err
		return nil, err
	}

	result := &AnnotateResult{
		Lines:      engRes.Lines,
		Success:    engRes.Success,
		Skipped:    engRes.Skipped,
		SkipReason: engRes.SkipReason,
	}
	gen.result = result

	// Fire-and-forget: the caller already has the result, a persistence
	// failure is logged and swallowed. Skipped and degraded runs are not
	// cached so a later request can retry.
	if engRes.Success && !engRes.Skipped {
		go s.persistAnnotation(req.SongID, req.Kind, langKey, doc, lines, engRes.Lines)
	}

	return result, nil
}

// ClearAnnotations removes stored annotation sets. An empty kind clears
// all three; translation/soramimi with a language clear just that key.
func (s *Service) ClearAnnotations(songID string, kind annotate.Kind, lang string) error {
	if songID == "" {
		return &ValidationError{Field: "id", Msg: "song id is required"}
	}

	switch kind {
	case "":
		return s.store.Set(songID, &store.SongDocument{}, store.PreserveFlags{
			Translations: store.Clear,
			Furigana:     store.Clear,
			Soramimi:     store.Clear,
		})
	case annotate.KindFurigana:
		return s.store.Set(songID, &store.SongDocument{}, store.PreserveFlags{Furigana: store.Clear})
	case annotate.KindTranslation:
		if lang == "" {
			return s.store.Set(songID, &store.SongDocument{}, store.PreserveFlags{Translations: store.Clear})
		}
		doc, err := s.store.Get(songID, store.ProjTranslations)
		if err != nil || doc == nil || doc.Translations == nil {
			return err
		}
		delete(doc.Translations, lang)
		return s.store.Set(songID, &store.SongDocument{Translations: doc.Translations}, store.PreserveFlags{Translations: store.Replace})
	case annotate.KindSoramimi:
		if lang == "" {
			return s.store.Set(songID, &store.SongDocument{}, store.PreserveFlags{Soramimi: store.Clear})
		}
		doc, err := s.store.Get(songID, store.ProjSoramimi)
		if err != nil || doc == nil || doc.Soramimi == nil {
			return err
		}
		delete(doc.Soramimi, lang)
		return s.store.Set(songID, &store.SongDocument{Soramimi: doc.Soramimi}, store.PreserveFlags{Soramimi: store.Replace})
	default:
		return &ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown annotation kind %q", kind)}
	}
}

// cachedAnnotation materializes a stored annotation set, or nil on miss.
// Each kind caches independently: translation per language, soramimi per
// language, furigana in a single slot. A set whose length differs from
// the current parsed line count is stale and never served; the caller
// regenerates instead.
func cachedAnnotation(doc *store.SongDocument, kind annotate.Kind, langKey string, lineCount int) *AnnotateResult {
	switch kind {
	case annotate.KindTranslation:
		lrc, ok := doc.Translations[langKey]
		if !ok || lrc == "" {
			return nil
		}
		texts := strings.Split(lrc, "\n")
		if len(texts) != lineCount {
			log.Warnf("%s Stale translation %s: %d cached lines vs %d parsed, regenerating",
				logcolors.LogSongDoc, logcolors.Lang(langKey), len(texts), lineCount)
			return nil
		}
		lines := make([][]annotate.Segment, len(texts))
		for i, t := range texts {
			lines[i] = []annotate.Segment{{Text: lyrics.StripTimeTag(t)}}
		}
		return &AnnotateResult{Lines: lines, Success: true, FromCache: true}
	case annotate.KindFurigana:
		if len(doc.Furigana) == 0 {
			return nil
		}
		if len(doc.Furigana) != lineCount {
			log.Warnf("%s Stale furigana: %d cached lines vs %d parsed, regenerating",
				logcolors.LogSongDoc, len(doc.Furigana), lineCount)
			return nil
		}
		return &AnnotateResult{Lines: doc.Furigana, Success: true, FromCache: true}
	case annotate.KindSoramimi:
		cached, ok := doc.Soramimi[langKey]
		if !ok || len(cached) == 0 {
			return nil
		}
		if len(cached) != lineCount {
			log.Warnf("%s Stale soramimi %s: %d cached lines vs %d parsed, regenerating",
				logcolors.LogSongDoc, logcolors.Lang(langKey), len(cached), lineCount)
			return nil
		}
		return &AnnotateResult{Lines: cached, Success: true, FromCache: true}
	}
	return nil
}

// deriveTraditionalChinese converts the container's embedded Simplified
// Chinese translation line-by-line. Returns nil when the container has
// no embedded translation or it does not align with the parsed lines.
func (s *Service) deriveTraditionalChinese(doc *store.SongDocument, lines []lyrics.TimedLine, onLine func(annotate.LineEvent)) *AnnotateResult {
	if doc.Lyrics.RichText == "" || len(lines) == 0 {
		return nil
	}
	embedded := lyrics.ExtractEmbeddedTranslation(doc.Lyrics.RichText)
	if len(embedded) != len(lines) {
		return nil
	}

	log.Infof("%s Deriving %s translation from embedded source (%d lines)",
		logcolors.LogSongDoc, logcolors.Lang("zh-TW"), len(lines))

	out := make([][]annotate.Segment, len(embedded))
	for i, text := range embedded {
		out[i] = []annotate.Segment{{Text: catalog.ToTraditional(text)}}
		if onLine != nil {
			progress := int(math.Round(float64(i+1) / float64(len(embedded)) * 100))
			onLine(annotate.LineEvent{LineIndex: i, Segments: out[i], Progress: progress})
		}
	}
	return &AnnotateResult{Lines: out, Success: true}
}

// persistAnnotation merges one finished annotation set into the stored
// document. Translations are reassembled into one LRC-shaped string,
// each line prefixed with its source line's time tag. Failures are
// logged, never surfaced.
func (s *Service) persistAnnotation(songID string, kind annotate.Kind, langKey string, doc *store.SongDocument, timed []lyrics.TimedLine, lines [][]annotate.Segment) {
	partial := &store.SongDocument{}
	flags := store.PreserveFlags{}

	switch kind {
	case annotate.KindTranslation:
		texts := make([]string, len(lines))
		for i, segs := range lines {
			tag := ""
			if i < len(timed) {
				tag = lyrics.FormatTimeTag(timed[i].StartTimeMs)
			}
			texts[i] = tag + annotate.ConcatSegments(segs)
		}
		merged := make(map[string]string, len(doc.Translations)+1)
		for k, v := range doc.Translations {
			merged[k] = v
		}
		merged[langKey] = strings.Join(texts, "\n")
		partial.Translations = merged
		flags.Translations = store.Replace
	case annotate.KindFurigana:
		partial.Furigana = lines
		flags.Furigana = store.Replace
	case annotate.KindSoramimi:
		merged := make(map[string][][]annotate.Segment, len(doc.Soramimi)+1)
		for k, v := range doc.Soramimi {
			merged[k] = v
		}
		merged[langKey] = lines
		partial.Soramimi = merged
		flags.Soramimi = store.Replace
	}

	if err := s.store.Set(songID, partial, flags); err != nil {
		log.Errorf("%s Failed to persist %s for %s: %v", logcolors.LogSongDoc, kind, songID, err)
		return
	}
	log.Infof("%s Persisted %s %s for %s (%d lines)",
		logcolors.LogSongDoc, kind, logcolors.Lang(langKey), songID, len(lines))
}

func isTraditionalChinese(lang string) bool {
	switch strings.ToLower(lang) {
	case "zh-tw", "zh-hant", "zh-hk":
		return true
	}
	return false
}
