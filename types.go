package main

type contextKey string

const (
	cacheOnlyModeKey contextKey = "cacheOnlyMode"
	rateLimitTypeKey contextKey = "rateLimitType"
)

// StorePerformance contains document store hit/miss statistics
type StorePerformance struct {
	DocHits           int64   `json:"doc_hits"`
	DocMisses         int64   `json:"doc_misses"`
	DocHitRate        float64 `json:"doc_hit_rate_percent"`
	AnnotationHits    int64   `json:"annotation_hits"`
	AnnotationMisses  int64   `json:"annotation_misses"`
	AnnotationHitRate float64 `json:"annotation_hit_rate_percent"`
}

// StoreDumpResponse is the response format for the /store endpoint
type StoreDumpResponse struct {
	NumberOfDocs int              `json:"number_of_docs"`
	SizeInKB     int              `json:"size_kb"`
	SizeInMB     float64          `json:"size_mb"`
	Performance  StorePerformance `json:"performance"`
}
