// Package recordtest writes corpus fixtures for tests of packages that read
// through record.Store.
package recordtest

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/config"
)

// BlogConfig returns a config rooted at dir with the default suffixes.
func BlogConfig(dir string) config.BlogConfig {
	return config.BlogConfig{
		DataDir:         filepath.Join(dir, "data"),
		IndexDir:        filepath.Join(dir, "index"),
		PostSuffix:      ".post.yaml",
		CommentsSuffix:  ".comments.yaml",
		StagingSuffix:   "_NEW_",
		BackupSuffix:    "_OLD_",
		Timezone:        "UTC",
		PostsPerPage:    5,
		PostsPerFeed:    20,
		RecentPosts:     10,
		ReadConcurrency: 4,
	}
}

// WritePost stores p under cfg.DataDir as p.ID.
func WritePost(t testing.TB, fs afero.Fs, cfg config.BlogConfig, p record.Post) {
	t.Helper()
	data, err := yaml.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll(cfg.DataDir, 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(cfg.DataDir, p.ID+cfg.PostSuffix), data, 0o644))
}

// WriteComments stores comments as the comment file of postID.
func WriteComments(t testing.TB, fs afero.Fs, cfg config.BlogConfig, postID string, comments []record.Comment) {
	t.Helper()
	data, err := yaml.Marshal(comments)
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll(cfg.DataDir, 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(cfg.DataDir, postID+cfg.CommentsSuffix), data, 0o644))
}
