package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"lyrics-annotator-go/logcolors"
	"lyrics-annotator-go/services/annotate"
	"lyrics-annotator-go/services/catalog"
	"lyrics-annotator-go/services/songdoc"
	"lyrics-annotator-go/stats"
	"lyrics-annotator-go/store"
	"lyrics-annotator-go/utils"
)

// writeServiceError maps service errors onto HTTP status codes.
func writeServiceError(resp *APIResponse, err error) {
	var vErr *songdoc.ValidationError
	var upErr *catalog.UpstreamError

	switch {
	case errors.As(err, &vErr):
		resp.Error(http.StatusUnprocessableEntity, map[string]interface{}{
			"error": vErr.Error(),
			"field": vErr.Field,
		})
	case errors.Is(err, songdoc.ErrNoMatch), errors.Is(err, songdoc.ErrNoLyrics):
		resp.Error(http.StatusNotFound, map[string]interface{}{
			"error": err.Error(),
		})
	case errors.As(err, &upErr):
		resp.Error(http.StatusBadGateway, map[string]interface{}{
			"error": upErr.Error(),
		})
	default:
		resp.Error(http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func getLyrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := songdoc.FetchRequest{
		SongID:    q.Get("id"),
		Title:     q.Get("s") + q.Get("song") + q.Get("songName"),
		Artist:    q.Get("a") + q.Get("artist") + q.Get("artistName"),
		Album:     q.Get("al") + q.Get("album") + q.Get("albumName"),
		Hash:      q.Get("hash"),
		AccessKey: q.Get("key"),
		AlbumID:   q.Get("albumId"),
		Force:     q.Get("force") == "1" || q.Get("force") == "true",
	}

	resp := Respond(w, r)
	if req.SongID == "" {
		resp.Error(http.StatusUnprocessableEntity, map[string]interface{}{
			"error": "Song id not provided",
		})
		return
	}
	if req.Hash != "" {
		resp.SetMatchSource("explicit")
	} else {
		resp.SetMatchSource("search")
	}

	// Cached-only tier: serve only what the store already has.
	if cacheOnlyMode, _ := r.Context().Value(cacheOnlyModeKey).(bool); cacheOnlyMode {
		stored, err := docStore.Get(req.SongID, store.ProjLyrics)
		if err != nil || stored == nil || stored.Lyrics == nil {
			stats.Get().RecordDocCacheMiss()
			log.Warnf("%s Cache-only mode but no stored document for: %s", logcolors.LogLyrics, req.SongID)
			w.Header().Set("Retry-After", "60")
			resp.SetCacheStatus("MISS").Error(http.StatusTooManyRequests, map[string]interface{}{
				"error":   "Rate limit exceeded. This request requires cached data, but none is available for this song.",
				"message": "Please try again later or reduce your request rate.",
			})
			return
		}
		req.Force = false
	}

	result, err := service.FetchLyrics(r.Context(), req)
	if err != nil {
		log.Errorf("%s Error fetching lyrics for %s: %v", logcolors.LogLyrics, req.SongID, err)
		stats.Get().RecordDocCacheMiss()
		writeServiceError(resp.SetCacheStatus("MISS"), err)
		return
	}

	if result.FromCache {
		stats.Get().RecordDocCacheHit()
		log.Infof("%s Serving stored document for %s", logcolors.LogLyrics, req.SongID)
		resp.SetCacheStatus("HIT").JSON(result)
		return
	}

	stats.Get().RecordDocCacheMiss()
	log.Infof("%s Fetched %q / %q for %s (score: %.2f)", logcolors.LogLyrics,
		utils.TruncateString(result.Document.SourceRef.Title, 40),
		utils.TruncateString(result.Document.SourceRef.Artist, 40),
		req.SongID, result.MatchScore)
	resp.SetCacheStatus("MISS").JSON(result)
}

func searchSources(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("s") + r.URL.Query().Get("song")
	artist := r.URL.Query().Get("a") + r.URL.Query().Get("artist")

	resp := Respond(w, r)
	scored, err := service.SearchSources(r.Context(), title, artist)
	if err != nil {
		log.Errorf("%s Search failed for %q / %q: %v", logcolors.LogSearch, title, artist, err)
		writeServiceError(resp, err)
		return
	}

	resp.JSON(map[string]interface{}{
		"count":      len(scored),
		"candidates": scored,
	})
}

// sseWriter serializes server-sent events onto a flushable response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter, r *http.Request) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	if rateLimitType, ok := r.Context().Value(rateLimitTypeKey).(string); ok && rateLimitType != "" {
		h.Set("X-RateLimit-Type", rateLimitType)
	}
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("%s Failed to marshal %s event: %v", logcolors.LogAnnotate, event, err)
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	s.flusher.Flush()
}

func annotateStream(w http.ResponseWriter, r *http.Request) {
	kind := annotate.Kind(mux.Vars(r)["kind"])
	q := r.URL.Query()
	req := songdoc.AnnotateRequest{
		SongID:     q.Get("id"),
		Kind:       kind,
		TargetLang: q.Get("lang"),
		Force:      q.Get("force") == "1" || q.Get("force") == "true",
	}
	endpoint := "/annotate/" + string(kind)

	// Cached-only tier never triggers generation
	if cacheOnlyMode, _ := r.Context().Value(cacheOnlyModeKey).(bool); cacheOnlyMode {
		req.Force = false
		if !hasStoredAnnotation(req) {
			w.Header().Set("Retry-After", "60")
			Respond(w, r).SetCacheStatus("MISS").Error(http.StatusTooManyRequests, map[string]interface{}{
				"error": "Rate limit exceeded. This request requires cached data, but none is available for this song.",
			})
			return
		}
	}

	sse, ok := newSSEWriter(w, r)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	result, err := service.Annotate(r.Context(), req, func(ev annotate.LineEvent) {
		stats.Get().RecordLineEmitted()
		sse.send("line", ev)
	})
	if err != nil {
		// Headers are already committed to the event stream, so errors
		// are delivered as a terminal event rather than a status code.
		var vErr *songdoc.ValidationError
		payload := map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		}
		if errors.As(err, &vErr) {
			payload["field"] = vErr.Field
		}
		log.Errorf("%s %s failed for %s: %v", logcolors.LogAnnotate, endpoint, req.SongID, err)
		stats.Get().RecordGeneration(string(kind), "failed")
		sse.send("done", payload)
		return
	}

	switch {
	case result.FromCache:
		stats.Get().RecordAnnotationCacheHit()
	case result.Skipped:
		stats.Get().RecordAnnotationCacheMiss()
		stats.Get().RecordGeneration(string(kind), "skipped")
	default:
		stats.Get().RecordAnnotationCacheMiss()
		stats.Get().RecordGeneration(string(kind), "started")
		if result.Success {
			stats.Get().RecordGeneration(string(kind), "succeeded")
		} else {
			stats.Get().RecordGeneration(string(kind), "failed")
		}
	}

	done := map[string]interface{}{
		"lines":     result.Lines,
		"success":   result.Success,
		"fromCache": result.FromCache,
	}
	if result.Skipped {
		done["skipped"] = true
		done["skipReason"] = result.SkipReason
	}
	sse.send("done", done)
}

// hasStoredAnnotation reports whether a request can be satisfied from
// the store without generation. Used by the cached-only rate limit tier.
func hasStoredAnnotation(req songdoc.AnnotateRequest) bool {
	doc, err := docStore.Get(req.SongID, store.ProjAll)
	if err != nil || doc == nil || doc.Lyrics == nil {
		return false
	}
	switch req.Kind {
	case annotate.KindTranslation:
		return len(doc.Translations[req.TargetLang]) > 0
	case annotate.KindFurigana:
		return len(doc.Furigana) > 0
	case annotate.KindSoramimi:
		return len(doc.Soramimi[req.TargetLang]) > 0
	}
	return false
}

func deleteAnnotations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	songID := q.Get("id")
	kind := annotate.Kind(q.Get("kind"))
	lang := q.Get("lang")

	resp := Respond(w, r)
	if songID == "" {
		resp.Error(http.StatusUnprocessableEntity, map[string]interface{}{
			"error": "Song id not provided",
		})
		return
	}

	if err := service.ClearAnnotations(songID, kind, lang); err != nil {
		log.Errorf("%s Failed to clear annotations for %s: %v", logcolors.LogAnnotate, songID, err)
		writeServiceError(resp, err)
		return
	}

	log.Infof("%s Cleared annotations for %s (kind: %q, lang: %q)", logcolors.LogAnnotate, songID, kind, lang)
	resp.JSON(map[string]interface{}{
		"message": "Annotations cleared",
		"id":      songID,
	})
}

func getStoreDump(w http.ResponseWriter, r *http.Request) {
	numDocs, sizeInKB := docStore.Stats()
	s := stats.Get()

	Respond(w, r).JSON(StoreDumpResponse{
		NumberOfDocs: numDocs,
		SizeInKB:     sizeInKB,
		SizeInMB:     float64(sizeInKB) / 1024,
		Performance: StorePerformance{
			DocHits:           s.DocCacheHits.Load(),
			DocMisses:         s.DocCacheMisses.Load(),
			DocHitRate:        s.DocCacheHitRate(),
			AnnotationHits:    s.AnnotationCacheHits.Load(),
			AnnotationMisses:  s.AnnotationCacheMisses.Load(),
			AnnotationHitRate: s.AnnotationCacheHitRate(),
		},
	})
}

func backupStore(w http.ResponseWriter, r *http.Request) {
	backupPath, err := docStore.Backup()
	if err != nil {
		log.Errorf("%s Failed to create backup: %v", logcolors.LogStoreBackup, err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]interface{}{
			"error": fmt.Sprintf("Failed to create backup: %v", err),
		})
		return
	}

	log.Infof("%s Backup created successfully at: %s", logcolors.LogStoreBackup, backupPath)
	Respond(w, r).JSON(map[string]interface{}{
		"message":     "Backup created successfully",
		"backup_path": backupPath,
	})
}

func listBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := docStore.ListBackups()
	if err != nil {
		log.Errorf("%s Failed to list backups: %v", logcolors.LogStoreBackups, err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]interface{}{
			"error": fmt.Sprintf("Failed to list backups: %v", err),
		})
		return
	}

	Respond(w, r).JSON(map[string]interface{}{
		"count":   len(backups),
		"backups": backups,
	})
}

func restoreStore(w http.ResponseWriter, r *http.Request) {
	backupFileName := r.URL.Query().Get("backup")
	if backupFileName == "" {
		Respond(w, r).Error(http.StatusBadRequest, map[string]interface{}{
			"error": "Missing 'backup' query parameter. Use /store/backups to list available backups.",
		})
		return
	}

	if err := docStore.RestoreFromBackup(backupFileName); err != nil {
		log.Errorf("%s Failed to restore from backup %s: %v", logcolors.LogStoreRestore, backupFileName, err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]interface{}{
			"error": fmt.Sprintf("Failed to restore from backup: %v", err),
		})
		return
	}

	numDocs, sizeKB := docStore.Stats()
	log.Infof("%s Store restored from backup: %s", logcolors.LogStoreRestore, backupFileName)
	Respond(w, r).JSON(map[string]interface{}{
		"message":       "Store restored successfully",
		"restored_from": backupFileName,
		"docs_restored": numDocs,
		"size_kb":       sizeKB,
	})
}

func clearStore(w http.ResponseWriter, r *http.Request) {
	backupPath, err := docStore.BackupAndClear()
	if err != nil {
		log.Errorf("%s Failed to backup and clear store: %v", logcolors.LogStoreClear, err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]interface{}{
			"error": fmt.Sprintf("Failed to backup and clear store: %v", err),
		})
		return
	}

	log.Infof("%s Store cleared successfully, backup at: %s", logcolors.LogStoreClear, backupPath)
	Respond(w, r).JSON(map[string]interface{}{
		"message":     "Store cleared successfully",
		"backup_path": backupPath,
	})
}

func deleteDocument(w http.ResponseWriter, r *http.Request) {
	songID := mux.Vars(r)["id"]

	if err := docStore.Delete(songID); err != nil {
		log.Errorf("%s Failed to delete document %s: %v", logcolors.LogStore, songID, err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]interface{}{
			"error": fmt.Sprintf("Failed to delete document: %v", err),
		})
		return
	}

	log.Infof("%s Deleted document %s", logcolors.LogStore, songID)
	Respond(w, r).JSON(map[string]interface{}{
		"message": "Document deleted",
		"id":      songID,
	})
}

func getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	state, failures, retryIn := catalogClient.BreakerStats()

	Respond(w, r).JSON(map[string]interface{}{
		"state":            state.String(),
		"failures":         failures,
		"time_until_retry": retryIn.String(),
		"config": map[string]interface{}{
			"threshold":    conf.Configuration.CircuitBreakerThreshold,
			"cooldown_sec": conf.Configuration.CircuitBreakerCooldownSecs,
		},
	})
}

func resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	catalogClient.ResetBreaker()

	Respond(w, r).JSON(map[string]interface{}{
		"message": "Circuit breaker reset to CLOSED state",
	})
}

func getHealthStatus(w http.ResponseWriter, r *http.Request) {
	state, _, retryIn := catalogClient.BreakerStats()
	numDocs, _ := docStore.Stats()

	health := map[string]interface{}{
		"status":          "ok",
		"documents":       numDocs,
		"circuit_breaker": state.String(),
	}

	if state.String() == "OPEN" {
		health["status"] = "degraded"
		health["circuit_breaker_retry_in"] = retryIn.String()
	}

	Respond(w, r).JSON(health)
}

func getStats(w http.ResponseWriter, r *http.Request) {
	s := stats.Get()
	snapshot := s.Snapshot()

	numDocs, sizeInKB := docStore.Stats()
	snapshot["store"] = map[string]interface{}{
		"docs":    numDocs,
		"size_kb": sizeInKB,
		"size_mb": float64(sizeInKB) / 1024,
	}

	state, failures, retryIn := catalogClient.BreakerStats()
	snapshot["circuit_breaker"] = map[string]interface{}{
		"state":              state.String(),
		"failures":           failures,
		"cooldown_remaining": retryIn.String(),
	}

	Respond(w, r).JSON(snapshot)
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(map[string]interface{}{
		"endpoints": map[string]string{
			"GET /getLyrics":              "Resolve and decode lyrics. Params: id (required), s, a, al, hash, key, force",
			"GET /searchSources":          "Score catalog candidates. Params: s (required), a",
			"GET /annotate/translation":   "SSE translation stream. Params: id, lang (required), force",
			"GET /annotate/furigana":      "SSE furigana stream. Params: id, force",
			"GET /annotate/soramimi":      "SSE soramimi stream. Params: id, lang (required), force",
			"DELETE /annotations":         "Clear stored annotations. Params: id (required), kind, lang",
			"GET /store":                  "Store summary (admin)",
			"POST /store/backup":          "Create a backup (admin)",
			"GET /store/backups":          "List backups (admin)",
			"POST /store/restore":         "Restore from a backup. Params: backup (admin)",
			"POST /store/clear":           "Backup then clear the store (admin)",
			"DELETE /store/doc/{id}":      "Delete one stored document (admin)",
			"GET /circuit-breaker":        "Breaker status (admin)",
			"POST /circuit-breaker/reset": "Force breaker closed (admin)",
			"GET /health":                 "Health summary",
			"GET /stats":                  "Counters snapshot (admin)",
		},
	})
}
