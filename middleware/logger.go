package middleware

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-annotator-go/logcolors"
)

// ResponseRecorder wraps http.ResponseWriter to capture the status code
// and body size for request logging.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	BodySize   int
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (r *ResponseRecorder) WriteHeader(statusCode int) {
	r.StatusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *ResponseRecorder) Write(data []byte) (int, error) {
	n, err := r.ResponseWriter.Write(data)
	r.BodySize += n
	return n, err
}

// Flush forwards to the underlying writer so streaming responses keep
// working through the recorder.
func (r *ResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// getStatusColor picks the log color for a status code class
func getStatusColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return logcolors.Green
	case statusCode >= 300 && statusCode < 400:
		return logcolors.Cyan
	case statusCode >= 400 && statusCode < 500:
		return "\033[33m" // yellow
	case statusCode >= 500:
		return logcolors.Red
	default:
		return logcolors.Reset
	}
}

// LoggingMiddleware logs each request with method, path, status, size
// and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewResponseRecorder(w)

		next.ServeHTTP(rec, r)

		log.Infof("%s %s %s %s%d%s %dB %v",
			logcolors.LogRequest,
			r.Method,
			r.URL.Path,
			getStatusColor(rec.StatusCode),
			rec.StatusCode,
			logcolors.Reset,
			rec.BodySize,
			time.Since(start).Round(time.Millisecond),
		)
	})
}
