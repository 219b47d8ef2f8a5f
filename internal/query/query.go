// Package query answers read requests against a loaded index: navigation
// between neighbouring posts, paginated and tag-filtered listings, the feed
// window and a few widget selections. It never re-sorts; the index order is
// authoritative.
package query

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/errors"
)

// Status tells whether a requested page exists.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Page is one listing page. PostIDs are newest first. TotalPages is set even
// when the requested page is out of range.
type Page struct {
	Status     Status   `json:"-"`
	Number     int      `json:"page"`
	TotalPages int      `json:"totalPages"`
	PostIDs    []string `json:"posts"`
}

// Engine runs queries over one immutable index.
type Engine struct {
	idx *index.Index
}

// New returns an engine over idx.
func New(idx *index.Index) *Engine {
	return &Engine{idx: idx}
}

// Index returns the index the engine reads.
func (e *Engine) Index() *index.Index { return e.idx }

// Has reports whether id is indexed.
func (e *Engine) Has(id string) bool {
	_, ok := e.idx.Position(id)
	return ok
}

// Adjacent returns the chronological neighbours of id. Either side is empty
// at a boundary.
func (e *Engine) Adjacent(id string) (prev, next string, err error) {
	pos, ok := e.idx.Position(id)
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not indexed", apperrors.ErrNotFound, id)
	}
	if pos > 0 {
		prev = e.idx.At(pos - 1).ID
	}
	if pos < e.idx.Len()-1 {
		next = e.idx.At(pos + 1).ID
	}
	return prev, next, nil
}

// Paginate lists page of the posts carrying any of tags, or of all posts
// when no tag is given. Page 1 holds the newest pageSize posts.
func (e *Engine) Paginate(page int, tags []string, pageSize int) (Page, error) {
	if pageSize < 1 {
		return Page{}, fmt.Errorf("%w: page size %d", apperrors.ErrInvalidInput, pageSize)
	}
	candidates := e.filter(tags)
	total := (len(candidates) + pageSize - 1) / pageSize
	if page < 1 || page > total {
		return Page{Status: StatusNotFound, Number: page, TotalPages: total, PostIDs: []string{}}, nil
	}

	maxIndex := len(candidates) - 1 - (page-1)*pageSize
	minIndex := max(maxIndex-pageSize+1, 0)
	ids := make([]string, 0, maxIndex-minIndex+1)
	for i := maxIndex; i >= minIndex; i-- {
		ids = append(ids, candidates[i])
	}
	return Page{Status: StatusOK, Number: page, TotalPages: total, PostIDs: ids}, nil
}

// AdjacentPages returns the neighbouring page numbers, 0 where none exists.
func AdjacentPages(page, totalPages int) (prev, next int) {
	if page > 1 && page <= totalPages {
		prev = page - 1
	}
	if page >= 1 && page < totalPages {
		next = page + 1
	}
	return prev, next
}

// RSSWindow returns the newest maxItems post IDs, newest first.
func (e *Engine) RSSWindow(maxItems int) []string {
	return e.newest(maxItems)
}

// Recent returns the newest n post IDs, newest first.
func (e *Engine) Recent(n int) []string {
	return e.newest(n)
}

// RandomPost picks uniformly among all posts but the latest one. A nil rng
// uses the global source.
func (e *Engine) RandomPost(rng *rand.Rand) (string, error) {
	n := e.idx.Len()
	if n < 2 {
		return "", fmt.Errorf("%w: %d posts indexed", apperrors.ErrEmptySelection, n)
	}
	var i int
	if rng != nil {
		i = rng.IntN(n - 1)
	} else {
		i = rand.IntN(n - 1)
	}
	return e.idx.At(i).ID, nil
}

// Oldest returns the first post id.
func (e *Engine) Oldest() string { return e.idx.OldestPostID() }
// Latest returns the newest post id.
func (e *Engine) Latest() string { return e.idx.LatestPostID() }

// TagCloud returns every tag with its count, AllTags included, most used
// first.
func (e *Engine) TagCloud() []index.TagCount {
	return e.idx.TagCounts()
}

// ParseTags splits a tag filter as it appears in a listing URL. Tags are
// separated by '+' or spaces.
func ParseTags(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool { return r == '+' || r == ' ' })
}

func (e *Engine) newest(n int) []string {
	n = min(max(n, 0), e.idx.Len())
	ids := make([]string, 0, n)
	for i := e.idx.Len() - 1; i >= e.idx.Len()-n; i-- {
		ids = append(ids, e.idx.At(i).ID)
	}
	return ids
}

func (e *Engine) filter(tags []string) []string {
	want := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			want[tag] = struct{}{}
		}
	}
	if len(want) == 0 {
		return e.idx.PostIDs()
	}
	var ids []string
	for i := range e.idx.Len() {
		id := e.idx.At(i).ID
		if e.idx.HasAnyTag(id, want) {
			ids = append(ids, id)
		}
	}
	return ids
}
