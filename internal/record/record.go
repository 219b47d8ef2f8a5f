// Package record reads post and comment records from the corpus directory.
// Each post lives in its own YAML file keyed by post ID; a post's comments, if
// any, live in a sibling file. Records are read-only here and nothing is
// cached: every call goes back to the filesystem.
package record

import (
	"strings"
)

// Post is a single blog post as stored on disk.
type Post struct {
	ID        string   `yaml:"-" json:"id"`
	Date      string   `yaml:"date" json:"date"`
	Title     string   `yaml:"title" json:"title"`
	Tags      []string `yaml:"tags" json:"tags"`
	Text      string   `yaml:"text" json:"text"`
	Disabled  bool     `yaml:"disabled" json:"disabled"`
	Locked    bool     `yaml:"locked" json:"locked"`
	Moderated bool     `yaml:"moderated" json:"moderated"`
}

// Comment is one entry of a post's comment sequence. LocalID is the 1-based
// position in that sequence and stays stable when earlier comments are
// disabled.
type Comment struct {
	PostID    string `yaml:"-" json:"post_id"`
	LocalID   int    `yaml:"-" json:"local_id"`
	Date      string `yaml:"date" json:"date"`
	Name      string `yaml:"name" json:"name"`
	Email     string `yaml:"email" json:"-"`
	URL       string `yaml:"url" json:"url,omitempty"`
	Authority bool   `yaml:"authority" json:"authority"`
	Text      string `yaml:"text" json:"text"`
	Disabled  bool   `yaml:"disabled" json:"-"`
}

// EnabledComments drops disabled comments, keeping order and LocalIDs.
func EnabledComments(comments []Comment) []Comment {
	enabled := make([]Comment, 0, len(comments))
	for _, c := range comments {
		if !c.Disabled {
			enabled = append(enabled, c)
		}
	}
	return enabled
}

// ValidPostID reports whether id is a filesystem-safe token.
func ValidPostID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	if strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return false
	}
	return !strings.HasPrefix(id, ".")
}
