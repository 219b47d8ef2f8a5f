// Package api serves the query layer and the index lifecycle over JSON. It
// holds the live query engine and swaps it whenever a new index is
// published; requests in flight keep the engine they started with.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/schema"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/api/cache"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/query"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/rebuild"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/metrics"
)

// PostReader reads post and comment records.
type PostReader interface {
	ReadPost(id string) (*record.Post, error)
	ReadComments(id string) ([]record.Comment, error)
}

// IndexLoader loads the published index.
type IndexLoader interface {
	Load() (*index.Index, error)
}

// Rebuilder runs and deletes index builds.
type Rebuilder interface {
	Rebuild(ctx context.Context) rebuild.Result
	Delete(ctx context.Context) error
}

// Handler serves the JSON API.
type Handler struct {
	engine    atomic.Pointer[query.Engine]
	posts     PostReader
	loader    IndexLoader
	rebuilder Rebuilder
	cache     *cache.PageCache
	metrics   *metrics.Metrics
	blog      config.BlogConfig
	logger    *slog.Logger
}

// New creates a handler with no index loaded. pageCache and m may be nil.
func New(posts PostReader, loader IndexLoader, rebuilder Rebuilder, blog config.BlogConfig,
	pageCache *cache.PageCache, m *metrics.Metrics) *Handler {
	return &Handler{
		posts:     posts,
		loader:    loader,
		rebuilder: rebuilder,
		cache:     pageCache,
		metrics:   m,
		blog:      blog,
		logger:    slog.Default().With("component", "api"),
	}
}

// SetIndex makes idx the live index. A nil idx unloads it.
func (h *Handler) SetIndex(idx *index.Index) {
	if idx == nil {
		h.engine.Store(nil)
		return
	}
	h.engine.Store(query.New(idx))
	h.logger.Info("serving index", "generation", idx.Generation(), "posts", idx.Len())
}

// Reload reads the published index from disk and serves it. When no index
// is published the handler keeps answering 503 until one is.
func (h *Handler) Reload() error {
	idx, err := h.loader.Load()
	if err != nil {
		if errors.Is(err, apperrors.ErrIndexMissing) {
			h.SetIndex(nil)
		}
		return err
	}
	h.SetIndex(idx)
	return nil
}

// Generation returns the generation being served, or "".
func (h *Handler) Generation() string {
	if e := h.engine.Load(); e != nil {
		return e.Index().Generation()
	}
	return ""
}

type postResponse struct {
	Post     *record.Post     `json:"post"`
	Comments []record.Comment `json:"comments"`
	Prev     string           `json:"prev,omitempty"`
	Next     string           `json:"next,omitempty"`
}

// GetPost serves one indexed post with its enabled comments and neighbours.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, ok := h.live(w, r, "post")
	if !ok {
		return
	}
	prev, next, err := e.Adjacent(id)
	if err != nil {
		h.fail(w, r, "post", err)
		return
	}
	post, err := h.posts.ReadPost(id)
	if err != nil {
		h.fail(w, r, "post", err)
		return
	}
	comments, err := h.posts.ReadComments(id)
	if err != nil {
		h.fail(w, r, "post", err)
		return
	}
	h.ok("post")
	h.writeJSON(w, http.StatusOK, postResponse{
		Post:     post,
		Comments: record.EnabledComments(comments),
		Prev:     prev,
		Next:     next,
	})
}

type listParams struct {
	Page int    `schema:"page"`
	Tags string `schema:"tags"`
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

type pageResponse struct {
	query.Page
	Tags     []string `json:"tags,omitempty"`
	PrevPage int      `json:"prevPage,omitempty"`
	NextPage int      `json:"nextPage,omitempty"`
}

// ListPosts serves /api/v1/posts?page=N&tags=a+b. An out-of-range page is a
// 404 whose body still carries totalPages.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	params := listParams{Page: 1}
	if err := queryDecoder.Decode(&params, r.URL.Query()); err != nil {
		h.fail(w, r, "page", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}
	pageNum := params.Page
	tags := query.ParseTags(params.Tags)

	e, ok := h.live(w, r, "page")
	if !ok {
		return
	}
	compute := func() (query.Page, error) {
		return e.Paginate(pageNum, tags, h.blog.PostsPerPage)
	}
	var (
		page query.Page
		hit  bool
		err  error
	)
	if h.cache != nil {
		page, hit, err = h.cache.GetOrCompute(r.Context(), e.Index().Generation(), pageNum, tags, h.blog.PostsPerPage, compute)
	} else {
		page, err = compute()
	}
	if err != nil {
		h.fail(w, r, "page", err)
		return
	}
	logger.FromContext(r.Context()).Debug("page served", "page", pageNum, "tags", tags, "cache_hit", hit)

	resp := pageResponse{Page: page, Tags: tags}
	resp.PrevPage, resp.NextPage = query.AdjacentPages(page.Number, page.TotalPages)
	status := http.StatusOK
	if page.Status == query.StatusNotFound {
		status = http.StatusNotFound
		h.count("page", "not_found")
	} else {
		h.ok("page")
	}
	h.writeJSON(w, status, resp)
}

// Feed serves the ids for the RSS feed, newest first.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	if e, ok := h.live(w, r, "feed"); ok {
		h.ok("feed")
		h.writeJSON(w, http.StatusOK, map[string][]string{"posts": e.RSSWindow(h.blog.PostsPerFeed)})
	}
}

// Recent serves the recent-posts widget.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	if e, ok := h.live(w, r, "recent"); ok {
		h.ok("recent")
		h.writeJSON(w, http.StatusOK, map[string][]string{"posts": e.Recent(h.blog.RecentPosts)})
	}
}

// Oldest serves the first post id.
func (h *Handler) Oldest(w http.ResponseWriter, r *http.Request) {
	if e, ok := h.live(w, r, "oldest"); ok {
		h.ok("oldest")
		h.writeJSON(w, http.StatusOK, map[string]string{"id": e.Oldest()})
	}
}

// Latest serves the newest post id.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	if e, ok := h.live(w, r, "latest"); ok {
		h.ok("latest")
		h.writeJSON(w, http.StatusOK, map[string]string{"id": e.Latest()})
	}
}

// Random serves a random post id other than the latest.
func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	e, ok := h.live(w, r, "random")
	if !ok {
		return
	}
	id, err := e.RandomPost(nil)
	if err != nil {
		h.fail(w, r, "random", err)
		return
	}
	h.ok("random")
	h.writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// Tags serves the tag cloud.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	if e, ok := h.live(w, r, "tags"); ok {
		h.ok("tags")
		h.writeJSON(w, http.StatusOK, map[string][]index.TagCount{"tags": e.TagCloud()})
	}
}

// Rebuild answers 200 when the new index is live and 500 otherwise; the
// body is the rebuild result either way. A rebuild runs to completion even
// if the client goes away.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	res := h.rebuilder.Rebuild(context.WithoutCancel(r.Context()))
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	h.writeJSON(w, status, res)
}

// DeleteIndex removes every index slot and stops serving queries.
func (h *Handler) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.rebuilder.Delete(r.Context()); err != nil {
		h.fail(w, r, "delete", err)
		return
	}
	h.SetIndex(nil)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// CacheStats reports page cache counters.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) live(w http.ResponseWriter, r *http.Request, op string) (*query.Engine, bool) {
	e := h.engine.Load()
	if e == nil {
		h.fail(w, r, op, fmt.Errorf("%w: no index published", apperrors.ErrIndexMissing))
		return nil, false
	}
	return e, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperrors.HTTPStatusCode(err)
	h.count(op, strconv.Itoa(status))
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.FromContext(r.Context()).Error("request failed", "op", op, "error", err)
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) ok(op string) { h.count(op, "ok") }

func (h *Handler) count(op, status string) {
	if h.metrics != nil {
		h.metrics.QueriesTotal.WithLabelValues(op, status).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
