package index

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/errors"
)

// RecordReader is the part of record.Store the builder needs.
type RecordReader interface {
	ListPostIDs() ([]string, error)
	ReadPost(id string) (*record.Post, error)
}

// BuilderConfig controls a Builder. Zero values mean the system clock, UTC
// and sequential reads.
type BuilderConfig struct {
	Clock       Clock
	Location    *time.Location
	Concurrency int
}

// Builder computes a fresh Index from every record in the corpus.
type Builder struct {
	records RecordReader
	cfg     BuilderConfig
	logger  *slog.Logger
}

// NewBuilder returns a Builder reading from records.
func NewBuilder(records RecordReader, cfg BuilderConfig) *Builder {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Builder{
		records: records,
		cfg:     cfg,
		logger:  slog.Default().With("component", "index-builder"),
	}
}

type candidate struct {
	id        string
	published time.Time
	tags      []string
}

// Build scans the corpus and returns the new Index. Disabled posts and posts
// dated after the clock's now are left out. Posts with equal timestamps keep
// their scan order.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	start := time.Now()
	ids, err := b.records.ListPostIDs()
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	posts := make([]*record.Post, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := b.records.ReadPost(id)
			if err != nil {
				return fmt.Errorf("reading post %q: %w", id, err)
			}
			posts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := b.cfg.Clock.Now()
	candidates := make([]candidate, 0, len(posts))
	skippedDisabled, skippedFuture := 0, 0
	for _, p := range posts {
		if p.Disabled {
			skippedDisabled++
			continue
		}
		published, err := ParseDate(p.Date, b.cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("post %q: %w", p.ID, err)
		}
		if published.After(now) {
			skippedFuture++
			continue
		}
		candidates = append(candidates, candidate{id: p.ID, published: published, tags: cleanTags(p.Tags)})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %d posts scanned", apperrors.ErrNoEligiblePosts, len(ids))
	}

	slices.SortStableFunc(candidates, func(a, c candidate) int {
		return a.published.Compare(c.published)
	})

	snap := Snapshot{
		Generation: uuid.NewString(),
		BuiltAt:    now,
		Posts:      make([]PostEntry, 0, len(candidates)),
		Tags:       make([]PostTags, 0, len(candidates)),
	}
	counts := make(map[string]int)
	for _, c := range candidates {
		snap.Posts = append(snap.Posts, PostEntry{ID: c.id, Published: c.published})
		snap.Tags = append(snap.Tags, PostTags{ID: c.id, Tags: c.tags})
		for _, tag := range c.tags {
			counts[tag]++
			counts[AllTags]++
		}
	}
	if _, ok := counts[AllTags]; !ok {
		counts[AllTags] = 0
	}
	snap.TagCounts = sortTagCounts(counts)
	snap.OldestPostID = snap.Posts[0].ID
	snap.LatestPostID = snap.Posts[len(snap.Posts)-1].ID

	idx, err := FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("assembling index: %w", err)
	}
	b.logger.Info("index built",
		"generation", snap.Generation,
		"scanned", len(ids),
		"indexed", len(snap.Posts),
		"skipped_disabled", skippedDisabled,
		"skipped_future", skippedFuture,
		"tags", len(snap.TagCounts)-1,
		"duration", time.Since(start),
	)
	return idx, nil
}

// cleanTags returns a trimmed copy of tags without blank entries. Blank tags
// could never be selected by a listing.
func cleanTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// sortTagCounts orders by count descending. On a tie AllTags comes first and
// the rest go by name.
func sortTagCounts(counts map[string]int) []TagCount {
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	slices.SortFunc(out, func(a, b TagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		if a.Tag == AllTags {
			return -1
		}
		if b.Tag == AllTags {
			return 1
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	return out
}
