package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"lyrics-annotator-go/middleware"
)

// setupRoutes configures all HTTP routes for the API
func setupRoutes(router *mux.Router) {
	// Lyrics resolution endpoints
	router.HandleFunc("/getLyrics", getLyrics).Methods("GET")
	router.HandleFunc("/searchSources", searchSources).Methods("GET")

	// Annotation endpoints - SSE streams of per-line events
	router.HandleFunc("/annotate/{kind:translation|furigana|soramimi}", annotateStream).Methods("GET")
	router.HandleFunc("/annotations", deleteAnnotations).Methods("DELETE")

	// Store management endpoints (admin token required)
	admin := router.PathPrefix("/store").Subrouter()
	admin.Use(middleware.AdminTokenMiddleware(conf.Configuration.AdminAccessToken))
	admin.HandleFunc("", getStoreDump).Methods("GET")
	admin.HandleFunc("/backup", backupStore).Methods("POST")
	admin.HandleFunc("/backups", listBackups).Methods("GET")
	admin.HandleFunc("/restore", restoreStore).Methods("POST")
	admin.HandleFunc("/clear", clearStore).Methods("POST")
	admin.HandleFunc("/doc/{id}", deleteDocument).Methods("DELETE")

	// Circuit breaker endpoints (admin token required)
	breaker := router.PathPrefix("/circuit-breaker").Subrouter()
	breaker.Use(middleware.AdminTokenMiddleware(conf.Configuration.AdminAccessToken))
	breaker.HandleFunc("", getCircuitBreakerStatus).Methods("GET")
	breaker.HandleFunc("/reset", resetCircuitBreaker).Methods("POST")

	// Health and stats endpoints
	router.HandleFunc("/health", getHealthStatus).Methods("GET")
	router.Handle("/stats",
		middleware.AdminTokenMiddleware(conf.Configuration.AdminAccessToken)(http.HandlerFunc(getStats)),
	).Methods("GET")

	// Help endpoint
	router.HandleFunc("/", helpHandler).Methods("GET")
}
