package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"lyrics-annotator-go/logcolors"
	"lyrics-annotator-go/middleware"
	"lyrics-annotator-go/stats"
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel) // Set to InfoLevel (change to DebugLevel for detailed logs)
}

// statsMiddleware records per-request counters and response times.
func statsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := middleware.NewResponseRecorder(w)

		stats.Get().RecordRequest(r.URL.Path)
		next.ServeHTTP(rec, r)

		stats.Get().RecordStatusCode(rec.StatusCode)
		stats.Get().RecordResponseTime(time.Since(start), r.URL.Path)
	})
}

func main() {
	if err := initServices(); err != nil {
		log.Fatalf("%s Failed to initialize services: %v", logcolors.LogServer, err)
	}

	router := mux.NewRouter()
	setupRoutes(router)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowCredentials: false,
	})

	limiter := middleware.NewIPRateLimiter(
		rate.Limit(conf.Configuration.RateLimitPerSecond),
		conf.Configuration.RateLimitBurstLimit,
		rate.Limit(conf.Configuration.CachedRateLimitPerSecond),
		conf.Configuration.CachedRateLimitBurstLimit,
	)

	// Evict limiter state for clients idle longer than an hour
	go func() {
		for range time.Tick(10 * time.Minute) {
			if removed := limiter.Prune(time.Hour); removed > 0 {
				log.Debugf("%s Pruned %d idle rate limiter entries", logcolors.LogRateLimit, removed)
			}
		}
	}()

	// middleware chain: rate limit -> cors -> logging -> stats -> routes
	handler := limitMiddleware(c.Handler(middleware.LoggingMiddleware(statsMiddleware(router))), limiter)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}

	go func() {
		log.Infof("%s Listening on port %s", logcolors.LogServer, port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("%s Server error: %v", logcolors.LogServer, err)
		}
	}()

	// Block until interrupted, then drain connections and flush state
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Infof("%s Shutting down", logcolors.LogServer)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("%s Graceful shutdown failed: %v", logcolors.LogServer, err)
	}
	shutdownServices()
}
