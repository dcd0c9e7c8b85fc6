package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIResponse_SetCacheStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		expected string
	}{
		{"HIT status", "HIT", "HIT"},
		{"MISS status", "MISS", "MISS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest("GET", "/test", nil)

			Respond(w, r).SetCacheStatus(tt.status).JSON(map[string]string{"test": "data"})

			if got := w.Header().Get("X-Cache-Status"); got != tt.expected {
				t.Errorf("X-Cache-Status = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIResponse_RateLimitTypeFromContext(t *testing.T) {
	tests := []struct {
		name     string
		rateType string
		expected string
	}{
		{"normal rate limit", "normal", "normal"},
		{"cached rate limit", "cached", "cached"},
		{"no rate limit type", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest("GET", "/test", nil)
			if tt.rateType != "" {
				r = r.WithContext(context.WithValue(r.Context(), rateLimitTypeKey, tt.rateType))
			}

			Respond(w, r).SetCacheStatus("HIT").JSON(map[string]string{"test": "data"})

			got := w.Header().Get("X-RateLimit-Type")
			if got != tt.expected {
				t.Errorf("X-RateLimit-Type = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIResponse_SetMatchSource(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/test", nil)

	Respond(w, r).SetMatchSource("explicit").SetCacheStatus("HIT").JSON(map[string]string{"test": "data"})

	if got := w.Header().Get("X-Match-Source"); got != "explicit" {
		t.Errorf("X-Match-Source = %q, want %q", got, "explicit")
	}
}

func TestAPIResponse_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/test", nil)

	Respond(w, r).JSON(map[string]string{"test": "data"})

	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json")
	}
}

func TestAPIResponse_Error(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/test", nil)

	Respond(w, r).SetCacheStatus("MISS").Error(http.StatusNotFound, map[string]string{"error": "not found"})

	if w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusNotFound)
	}

	if got := w.Header().Get("X-Cache-Status"); got != "MISS" {
		t.Errorf("X-Cache-Status = %q, want %q", got, "MISS")
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["error"] != "not found" {
		t.Errorf("error = %q, want %q", resp["error"], "not found")
	}
}

func TestAPIResponse_JSONBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/test", nil)

	data := map[string]interface{}{
		"plainText":  "[00:01.00]夜空の星",
		"matchScore": 0.95,
	}
	Respond(w, r).SetCacheStatus("MISS").JSON(data)

	var resp map[string]interface{}
	json.NewDecoder(w.Body).Decode(&resp)

	if resp["plainText"] != "[00:01.00]夜空の星" {
		t.Errorf("plainText = %v", resp["plainText"])
	}
	if resp["matchScore"] != 0.95 {
		t.Errorf("matchScore = %v, want %v", resp["matchScore"], 0.95)
	}
}

func TestAPIResponse_FluentAPI(t *testing.T) {
	// Methods can be chained in any order
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/test", nil)
	r = r.WithContext(context.WithValue(r.Context(), rateLimitTypeKey, "normal"))

	Respond(w, r).
		SetMatchSource("search").
		SetCacheStatus("HIT").
		JSON(map[string]string{"lyrics": "test"})

	if got := w.Header().Get("X-Match-Source"); got != "search" {
		t.Errorf("X-Match-Source = %q, want %q", got, "search")
	}
	if got := w.Header().Get("X-Cache-Status"); got != "HIT" {
		t.Errorf("X-Cache-Status = %q, want %q", got, "HIT")
	}
	if got := w.Header().Get("X-RateLimit-Type"); got != "normal" {
		t.Errorf("X-RateLimit-Type = %q, want %q", got, "normal")
	}
}

func TestAPIResponse_ErrorWithHeaders(t *testing.T) {
	// Error() also sets all context-based headers
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/test", nil)
	r = r.WithContext(context.WithValue(r.Context(), rateLimitTypeKey, "normal"))

	Respond(w, r).
		SetCacheStatus("MISS").
		Error(http.StatusInternalServerError, map[string]string{"error": "server error"})

	if got := w.Header().Get("X-RateLimit-Type"); got != "normal" {
		t.Errorf("X-RateLimit-Type = %q, want %q", got, "normal")
	}
	if got := w.Header().Get("X-Cache-Status"); got != "MISS" {
		t.Errorf("X-Cache-Status = %q, want %q", got, "MISS")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
