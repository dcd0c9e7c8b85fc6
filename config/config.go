package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		RateLimitPerSecond        int    `envconfig:"RATE_LIMIT_PER_SECOND" default:"2"`
		RateLimitBurstLimit       int    `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"5"`
		CachedRateLimitPerSecond  int    `envconfig:"CACHED_RATE_LIMIT_PER_SECOND" default:"10"`
		CachedRateLimitBurstLimit int    `envconfig:"CACHED_RATE_LIMIT_BURST_LIMIT" default:"20"`
		AdminAccessToken          string `envconfig:"ADMIN_ACCESS_TOKEN" default:""`

		// Generator configuration
		OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
		OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""`

		// Catalog endpoints; empty values fall back to the client defaults
		CatalogSearchURL   string `envconfig:"CATALOG_SEARCH_URL" default:""`
		CatalogDownloadURL string `envconfig:"CATALOG_DOWNLOAD_URL" default:""`
		CatalogCoverURL    string `envconfig:"CATALOG_COVER_URL" default:""`
		CatalogTimeoutSecs int    `envconfig:"CATALOG_TIMEOUT_SECS" default:"10"`

		MinSimilarityScore         float64 `envconfig:"MIN_SIMILARITY_SCORE" default:"0.6"`
		GenerationTimeoutSecs      int     `envconfig:"GENERATION_TIMEOUT_SECS" default:"120"`
		CompressionCutoffBytes     int     `envconfig:"COMPRESSION_CUTOFF_BYTES" default:"500"`
		CircuitBreakerThreshold    int     `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`       // Consecutive failures before circuit opens
		CircuitBreakerCooldownSecs int     `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"300"` // Seconds to wait before retrying (default: 5 minutes)

		StoreDBPath     string `envconfig:"STORE_DB_PATH" default:"data/songdocs.db"`
		StoreBackupPath string `envconfig:"STORE_BACKUP_PATH" default:"data/backups"`
		StatsDBPath     string `envconfig:"STATS_DB_PATH" default:"data/stats.db"`
	}

	FeatureFlags struct {
		AnnotationCaching bool `envconfig:"FF_ANNOTATION_CACHING" default:"true"`
	}
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}
