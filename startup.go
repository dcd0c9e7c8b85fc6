package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-annotator-go/config"
	"lyrics-annotator-go/logcolors"
	"lyrics-annotator-go/middleware"
	"lyrics-annotator-go/services/annotate"
	"lyrics-annotator-go/services/catalog"
	"lyrics-annotator-go/services/songdoc"
	"lyrics-annotator-go/stats"
	"lyrics-annotator-go/store"
)

var conf = config.Get()

var (
	docStore      *store.Store
	catalogClient *catalog.Client
	service       *songdoc.Service
	statsStore    *stats.Store
)

// initServices wires the document store, catalog client, generator, and
// annotation engine into the orchestrating service.
func initServices() error {
	var err error
	docStore, err = store.New(
		conf.Configuration.StoreDBPath,
		conf.Configuration.StoreBackupPath,
		conf.Configuration.CompressionCutoffBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}

	catalogClient = catalog.NewClient(catalog.Config{
		SearchURL:        conf.Configuration.CatalogSearchURL,
		DownloadURL:      conf.Configuration.CatalogDownloadURL,
		CoverURL:         conf.Configuration.CatalogCoverURL,
		Timeout:          time.Duration(conf.Configuration.CatalogTimeoutSecs) * time.Second,
		BreakerThreshold: conf.Configuration.CircuitBreakerThreshold,
		BreakerCooldown:  time.Duration(conf.Configuration.CircuitBreakerCooldownSecs) * time.Second,
	})

	generator, err := annotate.NewOpenAIGenerator(
		conf.Configuration.OpenAIAPIKey,
		conf.Configuration.OpenAIModel,
		conf.Configuration.OpenAIBaseURL,
	)
	if err != nil {
		return fmt.Errorf("failed to build generator: %w", err)
	}
	engine := annotate.NewEngine(generator)

	service = songdoc.New(docStore, catalogClient, engine, songdoc.Config{
		MinMatchScore:          conf.Configuration.MinSimilarityScore,
		GenerationTimeout:      time.Duration(conf.Configuration.GenerationTimeoutSecs) * time.Second,
		DisableAnnotationCache: !conf.FeatureFlags.AnnotationCaching,
	})

	statsStore, err = stats.NewStore(conf.Configuration.StatsDBPath)
	if err != nil {
		// Stats persistence is best-effort; run without it
		log.Warnf("%s Stats store unavailable, counters reset on restart: %v", logcolors.LogStats, err)
		statsStore = nil
	} else {
		if err := statsStore.Load(); err != nil {
			log.Warnf("%s Failed to load persisted stats: %v", logcolors.LogStats, err)
		}
		statsStore.StartAutoSave(5 * time.Minute)
	}

	log.Infof("%s Services initialized (store: %s, model: %s)",
		logcolors.LogServer, conf.Configuration.StoreDBPath, conf.Configuration.OpenAIModel)
	return nil
}

// shutdownServices flushes stats and closes the stores.
func shutdownServices() {
	if statsStore != nil {
		if err := statsStore.Close(); err != nil {
			log.Warnf("%s Failed to close stats store: %v", logcolors.LogStats, err)
		}
	}
	if docStore != nil {
		if err := docStore.Close(); err != nil {
			log.Warnf("%s Failed to close document store: %v", logcolors.LogStore, err)
		}
	}
}

func limitMiddleware(next http.Handler, limiter *middleware.IPRateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiters := limiter.GetLimiter(r.RemoteAddr)

		// Try normal tier first
		if limiters.Normal.Allow() {
			stats.Get().RecordRateLimit("normal")
			remainingNormal := limiters.GetNormalTokens()
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.GetNormalLimit()))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remainingNormal))
			w.Header().Set("X-RateLimit-Type", "normal")
			ctx := context.WithValue(r.Context(), rateLimitTypeKey, "normal")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		// Normal tier exceeded, try cached tier
		if limiters.Cached.Allow() {
			// Cached tier allows, but only for cached responses
			stats.Get().RecordRateLimit("cached")
			remainingCached := limiters.GetCachedTokens()
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.GetCachedLimit()))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remainingCached))
			w.Header().Set("X-RateLimit-Type", "cached")
			log.Debugf("%s IP %s exceeded normal tier, using cached tier", logcolors.LogRateLimit, r.RemoteAddr)
			ctx := context.WithValue(r.Context(), cacheOnlyModeKey, true)
			ctx = context.WithValue(ctx, rateLimitTypeKey, "cached")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		// Both tiers exceeded
		stats.Get().RecordRateLimit("exceeded")
		log.Warnf("%s IP %s exceeded both rate limit tiers", logcolors.LogRateLimit, r.RemoteAddr)
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.GetCachedLimit()))
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Type", "exceeded")
		w.Header().Set("Retry-After", "1")
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
	})
}
