// Package rebuild runs the operator-triggered pipeline: build a fresh index
// from the corpus, publish it, then tell the optional side channels about
// it. Rebuilds are serialized; a failure leaves the previous index live.
package rebuild

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/notify"
	apperrors "github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/tracing"
)

const sideChannelTimeout = 5 * time.Second

// Builder produces a fresh index.
type Builder interface {
	Build(ctx context.Context) (*index.Index, error)
}

// Store publishes and deletes index snapshots.
type Store interface {
	Publish(idx *index.Index) error
	Delete() error
}

// Notifier announces a published index.
type Notifier interface {
	IndexPublished(ctx context.Context, ev notify.IndexPublished) error
}

// Auditor records rebuild attempts.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Result is the outcome reported to the operator.
type Result struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Generation string `json:"generation,omitempty"`
	Posts      int    `json:"posts"`
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records rebuild outcomes and index gauges on m.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithNotifier announces every published index through n.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithAuditor records every rebuild attempt through a.
func WithAuditor(a Auditor) Option { return func(s *Service) { s.auditor = a } }

// OnPublished registers fn to receive every newly published index, after
// the swap succeeded.
func OnPublished(fn func(*index.Index)) Option {
	return func(s *Service) { s.onPublished = append(s.onPublished, fn) }
}

// Service owns the rebuild and delete operations.
type Service struct {
	mu          sync.Mutex
	builder     Builder
	store       Store
	metrics     *metrics.Metrics
	notifier    Notifier
	auditor     Auditor
	onPublished []func(*index.Index)
	logger      *slog.Logger
}

// NewService returns a Service publishing builder output into store.
func NewService(builder Builder, store Store, opts ...Option) *Service {
	s := &Service{
		builder: builder,
		store:   store,
		logger:  slog.Default().With("component", "rebuild"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rebuild builds and publishes a new index. The error text is meant for the
// operator; Success is false whenever the live index was not replaced.
func (s *Service) Rebuild(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	ctx, root := tracing.StartSpan(ctx, "rebuild", uuid.NewString())
	idx, err := s.buildAndPublish(ctx)
	root.End(err)
	elapsed := time.Since(start)

	res := Result{Success: err == nil}
	if idx != nil {
		res.Generation = idx.Generation()
		root.SetAttr("generation", res.Generation)
	}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Posts = idx.Len()
	}
	s.observe(err, elapsed, idx)

	if err == nil {
		for _, fn := range s.onPublished {
			fn(idx)
		}
		s.announce(ctx, idx)
		s.logger.Info("rebuild succeeded", "generation", res.Generation, "posts", res.Posts, "duration", elapsed)
	} else {
		s.logger.Error("rebuild failed", "error", err, "duration", elapsed)
	}
	s.record(ctx, res, elapsed)
	root.Log(s.logger)
	return res
}

// Delete removes every index slot. Deleting an absent index succeeds.
func (s *Service) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.store.Delete()
}

func (s *Service) buildAndPublish(ctx context.Context) (*index.Index, error) {
	buildCtx, buildSpan := tracing.StartChildSpan(ctx, "build")
	idx, err := s.builder.Build(buildCtx)
	buildSpan.End(err)
	if err != nil {
		return nil, err
	}
	buildSpan.SetAttr("posts", idx.Len())

	if err := ctx.Err(); err != nil {
		return idx, err
	}
	_, publishSpan := tracing.StartChildSpan(ctx, "publish")
	err = s.store.Publish(idx)
	publishSpan.End(err)
	return idx, err
}

func (s *Service) observe(err error, elapsed time.Duration, idx *index.Index) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
		s.metrics.IndexedPosts.Set(float64(idx.Len()))
		s.metrics.IndexedTags.Set(float64(len(idx.TagCounts()) - 1))
	case apperrors.IsBuildError(err), errors.Is(err, apperrors.ErrMalformedRecord), errors.Is(err, apperrors.ErrDirectoryMissing):
		status = "build_error"
	case apperrors.IsStoreError(err):
		status = "store_error"
	default:
		status = "error"
	}
	s.metrics.RebuildsTotal.WithLabelValues(status).Inc()
	s.metrics.RebuildDuration.Observe(elapsed.Seconds())
}

func (s *Service) announce(ctx context.Context, idx *index.Index) {
	if s.notifier == nil {
		return
	}
	_, span := tracing.StartChildSpan(ctx, "notify")
	ev := notify.IndexPublished{
		Generation:  idx.Generation(),
		Posts:       idx.Len(),
		Tags:        len(idx.TagCounts()) - 1,
		BuiltAt:     idx.BuiltAt(),
		PublishedAt: time.Now().UTC(),
	}
	err := resilience.Detached(ctx, sideChannelTimeout, "notify", func(ctx context.Context) error {
		return s.notifier.IndexPublished(ctx, ev)
	})
	span.End(err)
	if err != nil {
		s.logger.Warn("failed to announce published index", "generation", ev.Generation, "error", err)
	}
}

func (s *Service) record(ctx context.Context, res Result, elapsed time.Duration) {
	if s.auditor == nil {
		return
	}
	_, span := tracing.StartChildSpan(ctx, "audit")
	entry := audit.Entry{
		Generation: res.Generation,
		Success:    res.Success,
		Error:      res.Error,
		Posts:      res.Posts,
		Duration:   elapsed,
		At:         time.Now(),
	}
	err := resilience.Detached(ctx, sideChannelTimeout, "audit", func(ctx context.Context) error {
		return s.auditor.Record(ctx, entry)
	})
	span.End(err)
	if err != nil {
		s.logger.Warn("failed to record rebuild", "error", err)
	}
}
