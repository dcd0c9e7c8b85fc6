package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds all server statistics with atomic counters
type Stats struct {
	// Server info
	StartTime time.Time

	// Request counters
	TotalRequests    atomic.Int64
	LyricsRequests   atomic.Int64
	SearchRequests   atomic.Int64
	AnnotateRequests atomic.Int64
	StoreRequests    atomic.Int64
	StatsRequests    atomic.Int64
	HealthRequests   atomic.Int64
	OtherRequests    atomic.Int64

	// Document cache performance
	DocCacheHits   atomic.Int64
	DocCacheMisses atomic.Int64

	// Annotation cache performance
	AnnotationCacheHits   atomic.Int64
	AnnotationCacheMisses atomic.Int64

	// Annotation generation outcomes
	GenerationsStarted   atomic.Int64
	GenerationsSucceeded atomic.Int64
	GenerationsFailed    atomic.Int64
	GenerationsSkipped   atomic.Int64
	LinesEmitted         atomic.Int64 // SSE line events streamed to clients
	DerivedTraditional   atomic.Int64 // zh-TW served from embedded translation conversion

	// Rate limiting
	RateLimitNormal   atomic.Int64 // Requests served under normal rate limit
	RateLimitCached   atomic.Int64 // Requests served under cached-only tier
	RateLimitExceeded atomic.Int64 // Requests rejected (429)

	// Response status codes
	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Response time tracking (in microseconds for precision)
	totalResponseTime atomic.Int64
	responseCount     atomic.Int64
	minResponseTime   atomic.Int64
	maxResponseTime   atomic.Int64

	// Endpoint response times (microseconds)
	lyricsResponseTime  atomic.Int64
	lyricsResponseCount atomic.Int64

	// Per-kind generation counts ("translation", "furigana", "soramimi")
	kindUsage sync.Map // map[string]*atomic.Int64
}

// Global stats instance
var global = &Stats{
	StartTime: time.Now(),
}

func init() {
	// Initialize min to a high value
	global.minResponseTime.Store(int64(^uint64(0) >> 1)) // Max int64
}

// Get returns the global stats instance
func Get() *Stats {
	return global
}

// RecordRequest records a request to a specific endpoint
func (s *Stats) RecordRequest(endpoint string) {
	s.TotalRequests.Add(1)
	switch {
	case endpoint == "/getLyrics":
		s.LyricsRequests.Add(1)
	case endpoint == "/searchSources":
		s.SearchRequests.Add(1)
	case strings.HasPrefix(endpoint, "/annotate"):
		s.AnnotateRequests.Add(1)
	case strings.HasPrefix(endpoint, "/store") || endpoint == "/annotations":
		s.StoreRequests.Add(1)
	case endpoint == "/stats":
		s.StatsRequests.Add(1)
	case endpoint == "/health":
		s.HealthRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

// RecordDocCacheHit records a document cache hit
func (s *Stats) RecordDocCacheHit() {
	s.DocCacheHits.Add(1)
}

// RecordDocCacheMiss records a document cache miss
func (s *Stats) RecordDocCacheMiss() {
	s.DocCacheMisses.Add(1)
}

// RecordAnnotationCacheHit records an annotation cache hit
func (s *Stats) RecordAnnotationCacheHit() {
	s.AnnotationCacheHits.Add(1)
}

// RecordAnnotationCacheMiss records an annotation cache miss
func (s *Stats) RecordAnnotationCacheMiss() {
	s.AnnotationCacheMisses.Add(1)
}

// RecordGeneration records the outcome of an annotation generation run
func (s *Stats) RecordGeneration(kind string, outcome string) {
	switch outcome {
	case "started":
		s.GenerationsStarted.Add(1)
		s.kindCounter(kind).Add(1)
	case "succeeded":
		s.GenerationsSucceeded.Add(1)
	case "failed":
		s.GenerationsFailed.Add(1)
	case "skipped":
		s.GenerationsSkipped.Add(1)
	}
}

// RecordLineEmitted records one SSE line event delivered to a client
func (s *Stats) RecordLineEmitted() {
	s.LinesEmitted.Add(1)
}

// RecordDerivedTraditional records a zh-TW annotation served by script conversion
func (s *Stats) RecordDerivedTraditional() {
	s.DerivedTraditional.Add(1)
}

// RecordRateLimit records rate limit tier usage
func (s *Stats) RecordRateLimit(tier string) {
	switch tier {
	case "normal":
		s.RateLimitNormal.Add(1)
	case "cached":
		s.RateLimitCached.Add(1)
	case "exceeded":
		s.RateLimitExceeded.Add(1)
	}
}

// RecordStatusCode records a response status code
func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordResponseTime records a response time
func (s *Stats) RecordResponseTime(duration time.Duration, endpoint string) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	// Update min/max atomically
	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}

	// Track lyrics-specific response times
	if endpoint == "/getLyrics" {
		s.lyricsResponseTime.Add(us)
		s.lyricsResponseCount.Add(1)
	}
}

func (s *Stats) kindCounter(kind string) *atomic.Int64 {
	if counter, ok := s.kindUsage.Load(kind); ok {
		return counter.(*atomic.Int64)
	}
	counter, _ := s.kindUsage.LoadOrStore(kind, &atomic.Int64{})
	return counter.(*atomic.Int64)
}

// KindUsageSnapshot returns a copy of the per-kind generation counts
func (s *Stats) KindUsageSnapshot() map[string]int64 {
	snapshot := make(map[string]int64)
	s.kindUsage.Range(func(key, value interface{}) bool {
		snapshot[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return snapshot
}

// Uptime returns the server uptime
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// DocCacheHitRate returns the document cache hit rate as a percentage
func (s *Stats) DocCacheHitRate() float64 {
	hits := s.DocCacheHits.Load()
	misses := s.DocCacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// AnnotationCacheHitRate returns the annotation cache hit rate as a percentage
func (s *Stats) AnnotationCacheHitRate() float64 {
	hits := s.AnnotationCacheHits.Load()
	misses := s.AnnotationCacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// AvgResponseTime returns the average response time
func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

// MinResponseTime returns the minimum response time
func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == int64(^uint64(0)>>1) {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

// MaxResponseTime returns the maximum response time
func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

// AvgLyricsResponseTime returns the average response time for lyrics requests
func (s *Stats) AvgLyricsResponseTime() time.Duration {
	count := s.lyricsResponseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.lyricsResponseTime.Load()/count) * time.Microsecond
}

// Snapshot returns a point-in-time snapshot of all stats
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":    s.TotalRequests.Load(),
			"lyrics":   s.LyricsRequests.Load(),
			"search":   s.SearchRequests.Load(),
			"annotate": s.AnnotateRequests.Load(),
			"store":    s.StoreRequests.Load(),
			"stats":    s.StatsRequests.Load(),
			"health":   s.HealthRequests.Load(),
			"other":    s.OtherRequests.Load(),
		},
		"doc_cache": map[string]interface{}{
			"hits":     s.DocCacheHits.Load(),
			"misses":   s.DocCacheMisses.Load(),
			"hit_rate": s.DocCacheHitRate(),
		},
		"annotation_cache": map[string]interface{}{
			"hits":     s.AnnotationCacheHits.Load(),
			"misses":   s.AnnotationCacheMisses.Load(),
			"hit_rate": s.AnnotationCacheHitRate(),
		},
		"generations": map[string]interface{}{
			"started":             s.GenerationsStarted.Load(),
			"succeeded":           s.GenerationsSucceeded.Load(),
			"failed":              s.GenerationsFailed.Load(),
			"skipped":             s.GenerationsSkipped.Load(),
			"lines_emitted":       s.LinesEmitted.Load(),
			"derived_traditional": s.DerivedTraditional.Load(),
			"by_kind":             s.KindUsageSnapshot(),
		},
		"rate_limiting": map[string]interface{}{
			"normal_tier": s.RateLimitNormal.Load(),
			"cached_tier": s.RateLimitCached.Load(),
			"exceeded":    s.RateLimitExceeded.Load(),
		},
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"response_times": map[string]interface{}{
			"avg":        s.AvgResponseTime().String(),
			"min":        s.MinResponseTime().String(),
			"max":        s.MaxResponseTime().String(),
			"avg_lyrics": s.AvgLyricsResponseTime().String(),
		},
	}
}
