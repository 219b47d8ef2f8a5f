package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/api/cache"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/rebuild"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/record/recordtest"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/middleware"
)

type server struct {
	fs      afero.Fs
	cfg     config.BlogConfig
	store   *indexstore.Store
	records *record.Store
	handler *api.Handler
	metrics *metrics.Metrics
	http    http.Handler
}

func newServer(t *testing.T, pageCache *cache.PageCache) *server {
	t.Helper()
	s := &server{fs: afero.NewOsFs(), cfg: recordtest.BlogConfig(t.TempDir())}
	s.store = indexstore.NewStore(s.fs, s.cfg)
	s.records = record.NewStore(s.fs, s.cfg)
	s.metrics = metrics.New(prometheus.NewRegistry())
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	builder := index.NewBuilder(s.records, index.BuilderConfig{
		Clock:    index.ClockFunc(func() time.Time { return now }),
		Location: time.UTC,
	})
	svc := rebuild.NewService(builder, s.store, rebuild.OnPublished(func(idx *index.Index) {
		s.handler.SetIndex(idx)
	}))
	s.handler = api.New(s.records, s.store, svc, s.cfg, pageCache, s.metrics)
	s.http = api.NewRouter(s.handler, health.NewChecker(time.Second), s.metrics, api.RouterConfig{RequestTimeout: time.Second})
	return s
}

// seed writes p1..p7, one day apart. Odd posts are tagged go, p2 web.
func (s *server) seed(t *testing.T) {
	for i := 1; i <= 7; i++ {
		tags := []string{}
		if i%2 == 1 {
			tags = append(tags, "go")
		}
		if i == 2 {
			tags = append(tags, "web")
		}
		id := fmt.Sprintf("p%d", i)
		recordtest.WritePost(t, s.fs, s.cfg, record.Post{
			ID:    id,
			Date:  fmt.Sprintf("2024-01-0%d", i),
			Title: "Post " + id,
			Tags:  tags,
		})
	}
	recordtest.WriteComments(t, s.fs, s.cfg, "p4", []record.Comment{
		{Name: "ann", Text: "first"},
		{Name: "spam", Text: "buy now", Disabled: true},
		{Name: "bob", Text: "third"},
	})
}

func (s *server) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.http.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type pageBody struct {
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
	Posts      []string `json:"posts"`
	Tags       []string `json:"tags"`
	PrevPage   int      `json:"prevPage"`
	NextPage   int      `json:"nextPage"`
}

func published(t *testing.T, pageCache *cache.PageCache) *server {
	s := newServer(t, pageCache)
	s.seed(t)
	rec := s.do(t, http.MethodPost, "/api/v1/index")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return s
}

func TestQueriesBeforePublishAreUnavailable(t *testing.T) {
	s := newServer(t, nil)
	for _, target := range []string{"/api/v1/posts", "/api/v1/posts/p1", "/api/v1/feed", "/api/v1/tags", "/api/v1/posts/random"} {
		rec := s.do(t, http.MethodGet, target)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live").Code)
}

func TestRebuildEndpoint(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(t, http.MethodPost, "/api/v1/index")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	failed := decode[rebuild.Result](t, rec)
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "data directory missing")

	s.seed(t)
	rec = s.do(t, http.MethodPost, "/api/v1/index")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[rebuild.Result](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, 7, res.Posts)
	assert.Equal(t, res.Generation, s.handler.Generation())
}

func TestRebuildOutlivesClient(t *testing.T) {
	s := newServer(t, nil)
	s.seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	s.http.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/index", nil).WithContext(ctx))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[rebuild.Result](t, rec).Success)

	idx, err := s.store.Load()
	require.NoError(t, err)
	assert.Equal(t, idx.Generation(), s.handler.Generation())
}

func TestListPosts(t *testing.T) {
	s := published(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/posts")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[pageBody](t, rec)
	assert.Equal(t, []string{"p7", "p6", "p5", "p4", "p3"}, body.Posts)
	assert.Equal(t, 1, body.Page)
	assert.Equal(t, 2, body.TotalPages)
	assert.Zero(t, body.PrevPage)
	assert.Equal(t, 2, body.NextPage)

	body = decode[pageBody](t, s.do(t, http.MethodGet, "/api/v1/posts?page=2"))
	assert.Equal(t, []string{"p2", "p1"}, body.Posts)
	assert.Equal(t, 1, body.PrevPage)

	rec = s.do(t, http.MethodGet, "/api/v1/posts?page=3")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body = decode[pageBody](t, rec)
	assert.Equal(t, 2, body.TotalPages)
	assert.Empty(t, body.Posts)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/posts?page=two").Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.QueriesTotal.WithLabelValues("page", "not_found")))
}

func TestListPostsByTag(t *testing.T) {
	s := published(t, nil)

	body := decode[pageBody](t, s.do(t, http.MethodGet, "/api/v1/posts?tags=web+go"))
	assert.Equal(t, []string{"p7", "p5", "p3", "p2", "p1"}, body.Posts)
	assert.Equal(t, []string{"web", "go"}, body.Tags)

	rec := s.do(t, http.MethodGet, "/api/v1/posts?tags=rust")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, decode[pageBody](t, rec).TotalPages)
}

func TestGetPost(t *testing.T) {
	s := published(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/posts/p4")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Post     record.Post      `json:"post"`
		Comments []record.Comment `json:"comments"`
		Prev     string           `json:"prev"`
		Next     string           `json:"next"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Post p4", body.Post.Title)
	assert.Equal(t, "p3", body.Prev)
	assert.Equal(t, "p5", body.Next)
	require.Len(t, body.Comments, 2)
	assert.Equal(t, 1, body.Comments[0].LocalID)
	assert.Equal(t, 3, body.Comments[1].LocalID)
	assert.NotContains(t, rec.Body.String(), "buy now")

	rec = s.do(t, http.MethodGet, "/api/v1/posts/p1")
	assert.NotContains(t, rec.Body.String(), `"prev"`)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/posts/missing").Code)
}

func TestUnindexedPostIsNotServed(t *testing.T) {
	s := published(t, nil)
	recordtest.WritePost(t, s.fs, s.cfg, record.Post{ID: "late", Date: "2024-02-01"})
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/posts/late").Code)
}

func TestWidgets(t *testing.T) {
	s := published(t, nil)

	assert.Equal(t, "p1", decode[map[string]string](t, s.do(t, http.MethodGet, "/api/v1/posts/oldest"))["id"])
	assert.Equal(t, "p7", decode[map[string]string](t, s.do(t, http.MethodGet, "/api/v1/posts/latest"))["id"])
	for range 20 {
		id := decode[map[string]string](t, s.do(t, http.MethodGet, "/api/v1/posts/random"))["id"]
		assert.NotEqual(t, "p7", id)
		assert.True(t, strings.HasPrefix(id, "p"), id)
	}

	feed := decode[map[string][]string](t, s.do(t, http.MethodGet, "/api/v1/feed"))["posts"]
	assert.Len(t, feed, 7)
	assert.Equal(t, "p7", feed[0])
	recent := decode[map[string][]string](t, s.do(t, http.MethodGet, "/api/v1/recent"))["posts"]
	assert.Len(t, recent, 7)

	tags := decode[map[string][]index.TagCount](t, s.do(t, http.MethodGet, "/api/v1/tags"))["tags"]
	require.NotEmpty(t, tags)
	assert.Equal(t, index.TagCount{Tag: index.AllTags, Count: 5}, tags[0])
	assert.Equal(t, index.TagCount{Tag: "go", Count: 4}, tags[1])
}

func TestRandomNeedsTwoPosts(t *testing.T) {
	s := newServer(t, nil)
	recordtest.WritePost(t, s.fs, s.cfg, record.Post{ID: "solo", Date: "2024-01-01"})
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/index").Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodGet, "/api/v1/posts/random").Code)
}

func TestDeleteIndex(t *testing.T) {
	s := published(t, nil)

	rec := s.do(t, http.MethodDelete, "/api/v1/index")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/api/v1/posts").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/v1/index").Code)
}

func TestReload(t *testing.T) {
	s := published(t, nil)
	generation := s.handler.Generation()

	fresh := api.New(s.records, s.store, nil, s.cfg, nil, nil)
	require.NoError(t, fresh.Reload())
	assert.Equal(t, generation, fresh.Generation())

	require.NoError(t, s.store.Delete())
	assert.Error(t, fresh.Reload())
	assert.Empty(t, fresh.Generation())
}

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *memBackend) DeleteByPrefix(context.Context, string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.data))
	clear(b.data)
	return n, nil
}

func TestListPostsThroughCache(t *testing.T) {
	pageCache := cache.New(&memBackend{data: map[string][]byte{}}, time.Minute, nil)
	s := published(t, pageCache)

	first := s.do(t, http.MethodGet, "/api/v1/posts?page=2")
	second := s.do(t, http.MethodGet, "/api/v1/posts?page=2")
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	stats := decode[map[string]any](t, s.do(t, http.MethodGet, "/api/v1/cache/stats"))
	assert.EqualValues(t, 1, stats["hits"])
	assert.EqualValues(t, 1, stats["misses"])

	rec := s.do(t, http.MethodGet, "/api/v1/posts?page=9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/posts?page=9")
	assert.Equal(t, http.StatusNotFound, rec.Code, "cached misses keep their status")
}

func TestCacheStatsDisabled(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, "disabled", decode[map[string]string](t, s.do(t, http.MethodGet, "/api/v1/cache/stats"))["status"])
}

func TestIndexRoutesAreGuarded(t *testing.T) {
	s := newServer(t, nil)
	s.seed(t)
	guarded := api.NewRouter(s.handler, health.NewChecker(time.Second), nil, api.RouterConfig{
		AdminToken:   "s3cret",
		AdminLimiter: middleware.NewLimiter(1, time.Minute),
	})
	call := func(method, token string) int {
		req := httptest.NewRequest(method, "/api/v1/index", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, call(http.MethodPost, ""))
	assert.Empty(t, s.handler.Generation())
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "s3cret"))
	assert.NotEmpty(t, s.handler.Generation())
	assert.Equal(t, http.StatusTooManyRequests, call(http.MethodDelete, "s3cret"))
}
