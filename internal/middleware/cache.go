package middleware

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const cacheSize = 4096

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
	expiry      time.Time
}

// ResponseCache memoizes GET responses per user and URL for a fixed TTL.
// Entries are bounded by an LRU so a burst of distinct URLs cannot grow
// memory without limit.
type ResponseCache struct {
	entries *lru.Cache
	ttl     time.Duration

	done chan struct{}
	once sync.Once
}

func NewResponseCache(ttl time.Duration) *ResponseCache {
	entries, _ := lru.New(cacheSize)
	rc := &ResponseCache{
		entries: entries,
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go rc.sweep()
	return rc
}

// Invalidate drops every cached entry whose key contains pattern. An empty
// pattern clears the whole cache.
func (rc *ResponseCache) Invalidate(pattern string) {
	if pattern == "" {
		rc.entries.Purge()
		return
	}
	for _, key := range rc.entries.Keys() {
		if strings.Contains(key.(string), pattern) {
			rc.entries.Remove(key)
		}
	}
}

// Stop ends the background expiry sweep.
func (rc *ResponseCache) Stop() {
	rc.once.Do(func() { close(rc.done) })
}

func (rc *ResponseCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rc.done:
			return
		case <-ticker.C:
		}

		now := time.Now()
		for _, key := range rc.entries.Keys() {
			if v, ok := rc.entries.Peek(key); ok && now.After(v.(*cachedResponse).expiry) {
				rc.entries.Remove(key)
			}
		}
	}
}

// Middleware serves cached bodies for repeated GETs and records fresh
// 200 responses on the way out. Non-GET requests pass through untouched.
func (rc *ResponseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := cacheKey(r)
		if v, ok := rc.entries.Get(key); ok {
			entry := v.(*cachedResponse)
			if time.Now().Before(entry.expiry) {
				w.Header().Set("Content-Type", entry.contentType)
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(entry.status)
				w.Write(entry.body)
				return
			}
			rc.entries.Remove(key)
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusOK {
			rc.entries.Add(key, &cachedResponse{
				status:      rec.status,
				contentType: rec.Header().Get("Content-Type"),
				body:        rec.body.Bytes(),
				expiry:      time.Now().Add(rc.ttl),
			})
		}
	})
}

func cacheKey(r *http.Request) string {
	owner := r.Header.Get("X-User-ID")
	if owner == "" {
		owner = "public"
	}
	return owner + ":" + r.URL.RequestURI()
}

// responseRecorder tees the response body so it can be cached after the
// handler runs.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *responseRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *responseRecorder) Write(p []byte) (int, error) {
	rec.body.Write(p)
	return rec.ResponseWriter.Write(p)
}
