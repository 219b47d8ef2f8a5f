package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/middleware"
)

// RouterConfig holds the server settings the router applies.
type RouterConfig struct {
	RequestTimeout time.Duration
	AdminToken     string
	// AdminLimiter throttles the index routes. Nil disables throttling.
	AdminLimiter *middleware.Limiter
}

// NewRouter builds the blog HTTP handler.
//
// Route table:
//
//	GET    /api/v1/posts                 paginated, optionally tag-filtered ids
//	GET    /api/v1/posts/{id}            post, enabled comments, neighbours
//	GET    /api/v1/posts/oldest          oldest post id
//	GET    /api/v1/posts/latest          latest post id
//	GET    /api/v1/posts/random          random post id
//	GET    /api/v1/feed                  feed window
//	GET    /api/v1/recent                recent posts
//	GET    /api/v1/tags                  tag cloud
//	POST   /api/v1/index                 rebuild and publish
//	DELETE /api/v1/index                 delete the index
//	GET    /api/v1/cache/stats           page cache counters
//	GET    /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → AccessLog → Metrics → CORS → mux
//
// Read routes are bounded by RequestTimeout when it is positive. Index
// routes are admin only and rate limited per client. m may be nil, in which
// case the metrics middleware is left out.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	requestTimeout := cfg.RequestTimeout

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	read := func(hf http.HandlerFunc) http.Handler {
		if requestTimeout <= 0 {
			return hf
		}
		return middleware.Timeout(requestTimeout)(hf)
	}
	mux.Handle("GET /api/v1/posts", read(h.ListPosts))
	mux.Handle("GET /api/v1/posts/{id}", read(h.GetPost))
	mux.Handle("GET /api/v1/posts/oldest", read(h.Oldest))
	mux.Handle("GET /api/v1/posts/latest", read(h.Latest))
	mux.Handle("GET /api/v1/posts/random", read(h.Random))
	mux.Handle("GET /api/v1/feed", read(h.Feed))
	mux.Handle("GET /api/v1/recent", read(h.Recent))
	mux.Handle("GET /api/v1/tags", read(h.Tags))
	mux.Handle("GET /api/v1/cache/stats", read(h.CacheStats))

	// Index lifecycle routes run to completion; a rebuild may outlast the
	// read timeout.
	admin := func(hf http.HandlerFunc) http.Handler {
		return middleware.Chain(hf, middleware.AdminOnly(cfg.AdminToken), middleware.RateLimit(cfg.AdminLimiter))
	}
	mux.Handle("POST /api/v1/index", admin(h.Rebuild))
	mux.Handle("DELETE /api/v1/index", admin(h.DeleteIndex))

	mws := []func(http.Handler) http.Handler{middleware.RequestID, middleware.AccessLog}
	if m != nil {
		mws = append(mws, middleware.Metrics(m))
	}
	mws = append(mws, middleware.CORS(middleware.DefaultCORSConfig()))
	return middleware.Chain(mux, mws...)
}
