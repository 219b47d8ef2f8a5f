// Package index holds the derived, immutable post index and the builder that
// computes it from the corpus. The index orders posts chronologically and
// aggregates tag counts so listings never have to rescan the records.
package index

import (
	"fmt"
	"slices"
	"time"
)

// AllTags is the reserved TagCounts key that counts every tag occurrence
// across all posts.
const AllTags = "__all__"

// PostEntry is one post in chronological order.
type PostEntry struct {
	ID        string    `json:"id"`
	Published time.Time `json:"published"`
}

// TagCount is the number of times Tag occurs across all indexed posts.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// PostTags is the tag sequence of one post, as it was at build time.
type PostTags struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

// Snapshot is the plain, serializable form of an Index. Every collection is
// an ordered slice.
type Snapshot struct {
	Generation   string      `json:"generation"`
	BuiltAt      time.Time   `json:"built_at"`
	Posts        []PostEntry `json:"posts"`
	Tags         []PostTags  `json:"tags"`
	TagCounts    []TagCount  `json:"tag_counts"`
	OldestPostID string      `json:"oldest_post_id"`
	LatestPostID string      `json:"latest_post_id"`
}

// Index is an immutable view over a Snapshot. Posts are ascending by
// publication time and that order is the only ordering readers use.
type Index struct {
	snap      Snapshot
	tags      map[string][]string
	positions map[string]int
	tagCounts map[string]int
}

// FromSnapshot validates s and wraps it in an Index. The snapshot is copied,
// so later changes to s do not leak into the index.
func FromSnapshot(s Snapshot) (*Index, error) {
	s = cloneSnapshot(s)
	if len(s.Posts) == 0 {
		return nil, fmt.Errorf("snapshot has no posts")
	}
	positions := make(map[string]int, len(s.Posts))
	for i, p := range s.Posts {
		if p.ID == "" {
			return nil, fmt.Errorf("post %d has an empty id", i)
		}
		if _, dup := positions[p.ID]; dup {
			return nil, fmt.Errorf("post %q appears twice", p.ID)
		}
		if i > 0 && p.Published.Before(s.Posts[i-1].Published) {
			return nil, fmt.Errorf("post %q is out of chronological order", p.ID)
		}
		positions[p.ID] = i
	}
	if s.OldestPostID != s.Posts[0].ID {
		return nil, fmt.Errorf("oldest post %q does not match first post %q", s.OldestPostID, s.Posts[0].ID)
	}
	if s.LatestPostID != s.Posts[len(s.Posts)-1].ID {
		return nil, fmt.Errorf("latest post %q does not match last post %q", s.LatestPostID, s.Posts[len(s.Posts)-1].ID)
	}

	tags := make(map[string][]string, len(s.Tags))
	for _, pt := range s.Tags {
		if _, ok := positions[pt.ID]; !ok {
			return nil, fmt.Errorf("tags recorded for unknown post %q", pt.ID)
		}
		tags[pt.ID] = pt.Tags
	}

	tagCounts := make(map[string]int, len(s.TagCounts))
	for _, tc := range s.TagCounts {
		tagCounts[tc.Tag] = tc.Count
	}
	if _, ok := tagCounts[AllTags]; !ok {
		return nil, fmt.Errorf("tag counts lack the %s aggregate", AllTags)
	}

	return &Index{
		snap:      s,
		tags:      tags,
		positions: positions,
		tagCounts: tagCounts,
	}, nil
}

// Snapshot returns a deep copy of the index contents.
func (idx *Index) Snapshot() Snapshot {
	return cloneSnapshot(idx.snap)
}

// Generation returns the unique id assigned when the index was built.
func (idx *Index) Generation() string { return idx.snap.Generation }

// BuiltAt returns the build clock reading used as "now" for the build.
func (idx *Index) BuiltAt() time.Time { return idx.snap.BuiltAt }

// OldestPostID returns the first post in chronological order.
func (idx *Index) OldestPostID() string { return idx.snap.OldestPostID }

// LatestPostID returns the last post in chronological order.
func (idx *Index) LatestPostID() string { return idx.snap.LatestPostID }

// Len returns the number of indexed posts.
func (idx *Index) Len() int { return len(idx.snap.Posts) }

// At returns the i-th post in chronological order.
func (idx *Index) At(i int) PostEntry { return idx.snap.Posts[i] }

// Position returns the chronological position of id.
func (idx *Index) Position(id string) (int, bool) {
	pos, ok := idx.positions[id]
	return pos, ok
}

// Posts returns a copy of the chronological post sequence.
func (idx *Index) Posts() []PostEntry {
	return slices.Clone(idx.snap.Posts)
}

// PostIDs returns the post IDs in chronological order.
func (idx *Index) PostIDs() []string {
	ids := make([]string, len(idx.snap.Posts))
	for i, p := range idx.snap.Posts {
		ids[i] = p.ID
	}
	return ids
}

// TagsOf returns a copy of the tag sequence recorded for id.
func (idx *Index) TagsOf(id string) []string {
	return slices.Clone(idx.tags[id])
}

// HasAnyTag reports whether the post carries at least one of want.
func (idx *Index) HasAnyTag(id string, want map[string]struct{}) bool {
	for _, tag := range idx.tags[id] {
		if _, ok := want[tag]; ok {
			return true
		}
	}
	return false
}

// TagCounts returns the tag counts, highest count first.
func (idx *Index) TagCounts() []TagCount {
	return slices.Clone(idx.snap.TagCounts)
}

// TagCount returns the occurrence count of tag, 0 if unknown.
func (idx *Index) TagCount(tag string) int {
	return idx.tagCounts[tag]
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	out.Posts = slices.Clone(s.Posts)
	out.TagCounts = slices.Clone(s.TagCounts)
	out.Tags = make([]PostTags, len(s.Tags))
	for i, pt := range s.Tags {
		out.Tags[i] = PostTags{ID: pt.ID, Tags: slices.Clone(pt.Tags)}
	}
	return out
}
