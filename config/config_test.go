package config

import (
	"os"
	"testing"
)

func TestConfigDefaultValues(t *testing.T) {
	// Clear any existing env vars that might interfere
	envVars := []string{
		"RATE_LIMIT_PER_SECOND",
		"RATE_LIMIT_BURST_LIMIT",
		"CACHED_RATE_LIMIT_PER_SECOND",
		"CACHED_RATE_LIMIT_BURST_LIMIT",
		"MIN_SIMILARITY_SCORE",
		"GENERATION_TIMEOUT_SECS",
		"COMPRESSION_CUTOFF_BYTES",
		"OPENAI_MODEL",
		"STORE_DB_PATH",
		"FF_ANNOTATION_CACHING",
	}

	// Store original values
	originalValues := make(map[string]string)
	for _, key := range envVars {
		originalValues[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	defer func() {
		// Restore original values
		for key, value := range originalValues {
			if value != "" {
				os.Setenv(key, value)
			}
		}
	}()

	cfg, err := load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{
			name:     "RateLimitPerSecond default",
			got:      cfg.Configuration.RateLimitPerSecond,
			expected: 2,
		},
		{
			name:     "RateLimitBurstLimit default",
			got:      cfg.Configuration.RateLimitBurstLimit,
			expected: 5,
		},
		{
			name:     "CachedRateLimitPerSecond default",
			got:      cfg.Configuration.CachedRateLimitPerSecond,
			expected: 10,
		},
		{
			name:     "CachedRateLimitBurstLimit default",
			got:      cfg.Configuration.CachedRateLimitBurstLimit,
			expected: 20,
		},
		{
			name:     "MinSimilarityScore default",
			got:      cfg.Configuration.MinSimilarityScore,
			expected: 0.6,
		},
		{
			name:     "GenerationTimeoutSecs default",
			got:      cfg.Configuration.GenerationTimeoutSecs,
			expected: 120,
		},
		{
			name:     "CompressionCutoffBytes default",
			got:      cfg.Configuration.CompressionCutoffBytes,
			expected: 500,
		},
		{
			name:     "OpenAIModel default",
			got:      cfg.Configuration.OpenAIModel,
			expected: "gpt-4o-mini",
		},
		{
			name:     "StoreDBPath default",
			got:      cfg.Configuration.StoreDBPath,
			expected: "data/songdocs.db",
		},
		{
			name:     "StatsDBPath default",
			got:      cfg.Configuration.StatsDBPath,
			expected: "data/stats.db",
		},
		{
			name:     "AnnotationCaching default",
			got:      cfg.FeatureFlags.AnnotationCaching,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, tt.got)
			}
		})
	}
}

func TestConfigEnvironmentOverrides(t *testing.T) {
	os.Setenv("RATE_LIMIT_PER_SECOND", "5")
	os.Setenv("MIN_SIMILARITY_SCORE", "0.8")
	os.Setenv("GENERATION_TIMEOUT_SECS", "30")
	os.Setenv("OPENAI_MODEL", "gpt-4o")
	os.Setenv("FF_ANNOTATION_CACHING", "false")

	defer func() {
		os.Unsetenv("RATE_LIMIT_PER_SECOND")
		os.Unsetenv("MIN_SIMILARITY_SCORE")
		os.Unsetenv("GENERATION_TIMEOUT_SECS")
		os.Unsetenv("OPENAI_MODEL")
		os.Unsetenv("FF_ANNOTATION_CACHING")
	}()

	cfg, err := load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Configuration.RateLimitPerSecond != 5 {
		t.Errorf("Expected RateLimitPerSecond 5, got %d", cfg.Configuration.RateLimitPerSecond)
	}
	if cfg.Configuration.MinSimilarityScore != 0.8 {
		t.Errorf("Expected MinSimilarityScore 0.8, got %f", cfg.Configuration.MinSimilarityScore)
	}
	if cfg.Configuration.GenerationTimeoutSecs != 30 {
		t.Errorf("Expected GenerationTimeoutSecs 30, got %d", cfg.Configuration.GenerationTimeoutSecs)
	}
	if cfg.Configuration.OpenAIModel != "gpt-4o" {
		t.Errorf("Expected OpenAIModel gpt-4o, got %s", cfg.Configuration.OpenAIModel)
	}
	if cfg.FeatureFlags.AnnotationCaching {
		t.Error("Expected AnnotationCaching to be disabled")
	}
}
