package songdoc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lyrics-annotator-go/services/annotate"
	"lyrics-annotator-go/services/lyrics"
	"lyrics-annotator-go/store"
)

func storedSong(plain, rich string) *store.SongDocument {
	return &store.SongDocument{
		SongID: "song1",
		Lyrics: &lyrics.Document{
			PlainText: plain,
			RichText:  rich,
			SourceRef: lyrics.Source{CatalogHash: "hash-a"},
		},
	}
}

// waitFor polls until cond holds or the deadline passes. Persistence is
// fire-and-forget, so tests observe it instead of being told.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met within deadline")
}

func TestAnnotate_GenerationAndPersistence(t *testing.T) {
	st := newFakeStore()
	st.docs["song1"] = storedSong("[00:01.00]星\n[00:02.00]hello", "")
	gen := &scriptedGenerator{chunks: []string{"1: <星:ほし>\n"}}
	svc := newService(st, &fakeCatalog{}, gen)

	var events []annotate.LineEvent
	res, err := svc.Annotate(context.Background(), AnnotateRequest{
		SongID: "song1",
		Kind:   annotate.KindFurigana,
	}, func(ev annotate.LineEvent) { events = append(events, ev) })
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !res.Success || res.FromCache {
		t.Errorf("Expected fresh successful result, got %+v", res)
	}
	if len(res.Lines) != 2 {
		t.Fatalf("Expected 2 result lines, got %d", len(res.Lines))
	}
	if res.Lines[0][0].Reading != "ほし" {
		t.Errorf("Kanji line not decoded: %+v", res.Lines[0])
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 line events, got %d", len(events))
	}

	waitFor(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.docs["song1"].Furigana != nil
	})
}

func TestAnnotate_CacheHitPerKind(t *testing.T) {
	st := newFakeStore()
	doc := storedSong("[00:01.00]星", "")
	doc.Translations = map[string]string{"de": "[00:01.00]Stern"}
	doc.Furigana = [][]annotate.Segment{{{Text: "星", Reading: "ほし"}}}
	doc.Soramimi = map[string][][]annotate.Segment{"zh-TW": {{{Text: "星", Reading: "星"}}}}
	st.docs["song1"] = doc

	gen := &scriptedGenerator{}
	svc := newService(st, &fakeCatalog{}, gen)

	tests := []struct {
		name string
		req  AnnotateRequest
		hit  bool
	}{
		{"translation cached lang", AnnotateRequest{SongID: "song1", Kind: annotate.KindTranslation, TargetLang: "de"}, true},
		{"translation other lang", AnnotateRequest{SongID: "song1", Kind: annotate.KindTranslation, TargetLang: "fr"}, false},
		{"furigana", AnnotateRequest{SongID: "song1", Kind: annotate.KindFurigana}, true},
		{"soramimi cached lang", AnnotateRequest{SongID: "song1", Kind: annotate.KindSoramimi, TargetLang: "zh-TW"}, true},
		{"soramimi other lang", AnnotateRequest{SongID: "song1", Kind: annotate.KindSoramimi, TargetLang: "en"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Annotate(context.Background(), tt.req, nil)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if res.FromCache != tt.hit {
				t.Errorf("FromCache = %v, want %v", res.FromCache, tt.hit)
			}
			if tt.hit && tt.req.Kind == annotate.KindTranslation {
				// The stored LRC string is served without its time tags
				if got := res.Lines[0][0].Text; got != "Stern" {
					t.Errorf("Cached translation line = %q, want %q", got, "Stern")
				}
			}
		})
	}
}

func TestAnnotate_StaleCachedSetRegenerates(t *testing.T) {
	// Two cached entries against lyrics that now parse to three lines:
	// the stored sets no longer correspond line-for-line and must be
	// regenerated, not served.
	seed := func() *fakeStore {
		st := newFakeStore()
		doc := storedSong("[00:01.00]星\n[00:02.00]月\n[00:03.00]空", "")
		doc.Translations = map[string]string{"de": "[00:01.00]Stern\n[00:02.00]Mond"}
		doc.Furigana = [][]annotate.Segment{{{Text: "星", Reading: "ほし"}}, {{Text: "月", Reading: "つき"}}}
		doc.Soramimi = map[string][][]annotate.Segment{"en": {{{Text: "星"}}, {{Text: "月"}}}}
		st.docs["song1"] = doc
		return st
	}

	cases := []struct {
		name   string
		req    AnnotateRequest
		chunks []string
	}{
		{"furigana", AnnotateRequest{SongID: "song1", Kind: annotate.KindFurigana},
			[]string{"1: <星:ほし>\n2: <月:つき>\n3: <空:そら>\n"}},
		{"translation", AnnotateRequest{SongID: "song1", Kind: annotate.KindTranslation, TargetLang: "de"},
			[]string{"1: Stern\n2: Mond\n3: Himmel\n"}},
		{"soramimi", AnnotateRequest{SongID: "song1", Kind: annotate.KindSoramimi, TargetLang: "en"},
			[]string{"1: <星:hoshi>\n2: <月:tsuki>\n3: <空:sora>\n"}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{chunks: tt.chunks}
			svc := newService(seed(), &fakeCatalog{}, gen)

			res, err := svc.Annotate(context.Background(), tt.req, nil)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if res.FromCache {
				t.Error("Stale set must not be served from cache")
			}
			if atomic.LoadInt32(&gen.calls) != 1 {
				t.Errorf("Expected regeneration, generator calls = %d", gen.calls)
			}
			if len(res.Lines) != 3 {
				t.Errorf("Expected 3 result lines, got %d", len(res.Lines))
			}
		})
	}
}

func TestAnnotate_CachingDisabledRegenerates(t *testing.T) {
	st := newFakeStore()
	doc := storedSong("[00:01.00]星", "")
	doc.Furigana = [][]annotate.Segment{{{Text: "星", Reading: "ほし"}}}
	st.docs["song1"] = doc

	gen := &scriptedGenerator{chunks: []string{"1: <星:ほし>\n"}}
	svc := New(st, &fakeCatalog{}, annotate.NewEngine(gen), Config{DisableAnnotationCache: true})

	res, err := svc.Annotate(context.Background(), AnnotateRequest{
		SongID: "song1",
		Kind:   annotate.KindFurigana,
	}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.FromCache {
		t.Error("Disabled cache must not serve stored sets")
	}
	if atomic.LoadInt32(&gen.calls) != 1 {
		t.Errorf("Expected regeneration, generator calls = %d", gen.calls)
	}
}

func TestAnnotate_TranslationPersistedAsLRC(t *testing.T) {
	st := newFakeStore()
	st.docs["song1"] = storedSong("[00:01.00]星\n[01:02.50]月", "")
	gen := &scriptedGenerator{chunks: []string{"1: Stern\n2: Mond\n"}}
	svc := newService(st, &fakeCatalog{}, gen)

	res, err := svc.Annotate(context.Background(), AnnotateRequest{
		SongID:     "song1",
		Kind:       annotate.KindTranslation,
		TargetLang: "de",
	}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("Expected successful generation: %+v", res)
	}

	// Each stored line is prefixed with its source line's time tag
	want := "[00:01.00]Stern\n[01:02.50]Mond"
	waitFor(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.docs["song1"].Translations["de"] == want
	})
}

func TestAnnotate_ForceBypassesCache(t *testing.T) {
	st := newFakeStore()
	doc := storedSong("[00:01.00]星", "")
	doc.Furigana = [][]annotate.Segment{{{Text: "stale"}}}
	st.docs["song1"] = doc

	gen := &scriptedGenerator{chunks: []string{"1: <星:ほし>\n"}}
	svc := newService(st, &fakeCatalog{}, gen)

	res, err := svc.Annotate(context.Background(), AnnotateRequest{
		SongID: "song1",
		Kind:   annotate.KindFurigana,
		Force:  true,
	}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.FromCache {
		t.Error("Force must bypass the cache")
	}
	if atomic.LoadInt32(&gen.calls) != 1 {
		t.Errorf("Expected 1 generator call, got %d", gen.calls)
	}
}

func TestAnnotate_TraditionalChineseDerivation(t *testing.T) {
	rich := embedTranslation(t, [][]string{{"爱的星"}, {"梦的月"}}) + "\n[1000,1000]<0,500,0>星\n[2000,1000]<0,500,0>月"
	st := newFakeStore()
	st.docs["song1"] = storedSong("[00:01.00]星\n[00:02.00]月", rich)

	gen := &scriptedGenerator{}
	svc := newService(st, &fakeCatalog{}, gen)

	var events []annotate.LineEvent
	res, err := svc.Annotate(context.Background(), AnnotateRequest{
		SongID:     "song1",
		Kind:       annotate.KindTranslation,
		TargetLang: "zh-TW",
	}, func(ev annotate.LineEvent) { events = append(events, ev) })
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if atomic.LoadInt32(&gen.calls) != 0 {
		t.Error("Mechanical derivation must not invoke the generator")
	}
	if got := res.Lines[0][0].Text; got != "愛的星" {
		t.Errorf("Expected converted line, got %q", got)
	}
	if got := res.Lines[1][0].Text; got != "夢的月" {
		t.Errorf("Expected converted line, got %q", got)
	}
	if len(events) != 2 || events[1].Progress != 100 {
		t.Errorf("Expected 2 events ending at 100%%, got %+v", events)
	}

	waitFor(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.docs["song1"].Translations["zh-TW"] == "[00:01.00]愛的星\n[00:02.00]夢的月"
	})
}

func TestAnnotate_DerivationFallsBackOnMisalignment(t *testing.T) {
	// One embedded line for two lyric lines: lengths differ, so the
	// shortcut is skipped and generation runs.
	rich := embedTranslation(t, [][]string{{"只有一行"}})
	st := newFakeStore()
	st.docs["song1"] = storedSong("[00:01.00]星\n[00:02.00]月", rich)

	gen := &scriptedGenerator{chunks: []string{"1: 星星\n2: 月亮\n"}}
	svc := newService(st, &fakeCatalog{}, gen)

	res, err := svc.Annotate(context.Background(), AnnotateRequest{
		SongID:     "song1",
		Kind:       annotate.KindTranslation,
		TargetLang: "zh-TW",
	}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if atomic.LoadInt32(&gen.calls) != 1 {
		t.Errorf("Expected generation fallback, calls = %d", gen.calls)
	}
	if !res.Success {
		t.Error("Expected successful generation")
	}
}

func TestAnnotate_InFlightDedup(t *testing.T) {
	st := newFakeStore()
	st.docs["song1"] = storedSong("[00:01.00]星", "")

	gate := make(chan struct{})
	gen := &scriptedGenerator{chunks: []string{"1: <星:ほし>\n"}, gate: gate}
	svc := newService(st, &fakeCatalog{}, gen)

	req := AnnotateRequest{SongID: "song1", Kind: annotate.KindFurigana}

	var wg sync.WaitGroup
	results := make([]*AnnotateResult, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = svc.Annotate(context.Background(), req, nil)
	}()
	// Give the first call time to register as in-flight.
	time.Sleep(50 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = svc.Annotate(context.Background(), req, nil)
	}()
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("Call %d failed: %v", i, errs[i])
		}
		if !results[i].Success {
			t.Errorf("Call %d not successful: %+v", i, results[i])
		}
	}
	if calls := atomic.LoadInt32(&gen.calls); calls != 1 {
		t.Errorf("Expected 1 shared generator call, got %d", calls)
	}
	if results[0] != results[1] {
		t.Error("Concurrent callers should share one result")
	}
}

func TestAnnotate_Validation(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, &fakeCatalog{}, &scriptedGenerator{})

	var ve *ValidationError
	cases := []AnnotateRequest{
		{},
		{SongID: "song1", Kind: "bogus"},
		{SongID: "song1", Kind: annotate.KindTranslation},
		{SongID: "song1", Kind: annotate.KindSoramimi},
		{SongID: "missing", Kind: annotate.KindFurigana},
	}
	for i, req := range cases {
		if _, err := svc.Annotate(context.Background(), req, nil); !errors.As(err, &ve) {
			t.Errorf("Case %d: expected ValidationError, got %v", i, err)
		}
	}
}

func TestClearAnnotations(t *testing.T) {
	st := newFakeStore()
	seed := func() {
		doc := storedSong("[00:01.00]星", "")
		doc.Translations = map[string]string{"de": "[00:01.00]Stern", "fr": "[00:01.00]étoile"}
		doc.Furigana = [][]annotate.Segment{{{Text: "星", Reading: "ほし"}}}
		doc.Soramimi = map[string][][]annotate.Segment{"en": {{{Text: "星"}}}}
		st.docs["song1"] = doc
	}
	svc := newService(st, &fakeCatalog{}, &scriptedGenerator{})

	seed()
	if err := svc.ClearAnnotations("song1", annotate.KindTranslation, "de"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := st.docs["song1"].Translations["de"]; ok {
		t.Error("Expected de translation cleared")
	}
	if _, ok := st.docs["song1"].Translations["fr"]; !ok {
		t.Error("Other language must survive")
	}

	seed()
	if err := svc.ClearAnnotations("song1", annotate.KindFurigana, ""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if st.docs["song1"].Furigana != nil {
		t.Error("Expected furigana cleared")
	}

	seed()
	if err := svc.ClearAnnotations("song1", "", ""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	doc := st.docs["song1"]
	if doc.Translations != nil || doc.Furigana != nil || doc.Soramimi != nil {
		t.Error("Expected all annotation sets cleared")
	}
	if doc.Lyrics == nil {
		t.Error("Lyrics must survive annotation clearing")
	}
}
