package record

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/errors"
)

// Store reads records from a corpus directory on an afero filesystem.
type Store struct {
	fs             afero.Fs
	dataDir        string
	postSuffix     string
	commentsSuffix string
	logger         *slog.Logger
}

// NewStore creates a Store over the data directory named in cfg.
func NewStore(fsys afero.Fs, cfg config.BlogConfig) *Store {
	return &Store{
		fs:             fsys,
		dataDir:        cfg.DataDir,
		postSuffix:     cfg.PostSuffix,
		commentsSuffix: cfg.CommentsSuffix,
		logger:         slog.Default().With("component", "record-store"),
	}
}

// ListPostIDs returns the ID of every post file in the data directory, in
// lexical file-name order.
func (s *Store) ListPostIDs() ([]string, error) {
	exists, err := afero.DirExists(s.fs, s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("checking data directory %s: %w", s.dataDir, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDirectoryMissing, s.dataDir)
	}
	entries, err := afero.ReadDir(s.fs, s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory %s: %w", s.dataDir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, s.postSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, s.postSuffix)
		if !ValidPostID(id) {
			s.logger.Warn("skipping post file with unusable name", "file", name)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReadPost loads the post record for id.
func (s *Store) ReadPost(id string) (*Post, error) {
	if !ValidPostID(id) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrNotFound, id)
	}
	data, err := afero.ReadFile(s.fs, s.postPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading post %q: %w", id, err)
	}
	var post Post
	if err := yaml.Unmarshal(data, &post); err != nil {
		return nil, fmt.Errorf("%w: post %q: %w", apperrors.ErrMalformedRecord, id, err)
	}
	post.ID = id
	return &post, nil
}

// ReadComments loads the comment sequence for id. A post without a comment
// file has no comments.
func (s *Store) ReadComments(id string) ([]Comment, error) {
	if !ValidPostID(id) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrNotFound, id)
	}
	data, err := afero.ReadFile(s.fs, s.commentsPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Comment{}, nil
		}
		return nil, fmt.Errorf("reading comments of %q: %w", id, err)
	}
	var comments []Comment
	if err := yaml.Unmarshal(data, &comments); err != nil {
		return nil, fmt.Errorf("%w: comments of %q: %w", apperrors.ErrMalformedRecord, id, err)
	}
	for i := range comments {
		comments[i].PostID = id
		comments[i].LocalID = i + 1
	}
	if comments == nil {
		comments = []Comment{}
	}
	return comments, nil
}

func (s *Store) postPath(id string) string {
	return filepath.Join(s.dataDir, id+s.postSuffix)
}

func (s *Store) commentsPath(id string) string {
	return filepath.Join(s.dataDir, id+s.commentsSuffix)
}
