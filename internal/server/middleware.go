// File: internal/server/middleware.go
package server

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// corsMiddleware enforces the origin allowlist. Requests without an Origin
// header (curl, server to server) pass through untouched.
func corsMiddleware(allowed []string, logger *zap.Logger) func(http.Handler) http.Handler {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := origins[origin]; !ok {
				logger.Info("Rejected cross-origin request", zap.String("origin", origin), zap.String("path", r.URL.Path))
				WriteJSONError(w, logger, http.StatusForbidden, "ORIGIN_NOT_ALLOWED", "Not allowed by CORS")
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var brotliWriterPool = sync.Pool{
	New: func() interface{} {
		return brotli.NewWriterLevel(nil, brotli.DefaultCompression)
	},
}

type brotliResponseWriter struct {
	http.ResponseWriter
	bw *brotli.Writer
}

func (b *brotliResponseWriter) WriteHeader(status int) {
	b.Header().Del("Content-Length")
	b.ResponseWriter.WriteHeader(status)
}

func (b *brotliResponseWriter) Write(p []byte) (int, error) {
	b.Header().Del("Content-Length")
	return b.bw.Write(p)
}

// compressMiddleware brotli-encodes responses for clients that accept it.
func compressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")
		if r.Method == http.MethodHead || !acceptsBrotli(r.Header.Get("Accept-Encoding")) {
			next.ServeHTTP(w, r)
			return
		}

		bw := brotliWriterPool.Get().(*brotli.Writer)
		bw.Reset(w)
		defer func() {
			_ = bw.Close()
			bw.Reset(io.Discard)
			brotliWriterPool.Put(bw)
		}()

		w.Header().Set("Content-Encoding", "br")
		next.ServeHTTP(&brotliResponseWriter{ResponseWriter: w, bw: bw}, r)
	})
}

// acceptsBrotli reports whether an Accept-Encoding header lists br with a
// non-zero quality.
func acceptsBrotli(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "br") {
			continue
		}
		q := strings.ReplaceAll(strings.TrimSpace(params), " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.Info("HTTP request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("remote", r.RemoteAddr),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// recoverer turns handler panics into a 500 response and an error log.
func recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Panic while serving request",
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Any("panic", rec),
						zap.Stack("stack"))
					WriteJSONError(w, logger, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
