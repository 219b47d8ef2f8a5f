package record_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/record/recordtest"
	apperrors "github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/errors"
)

func TestListPostIDs(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := recordtest.BlogConfig("/blog")
	for _, id := range []string{"zebra", "apple", "mango"} {
		recordtest.WritePost(t, fs, cfg, record.Post{ID: id, Date: "2020-01-01"})
	}
	recordtest.WriteComments(t, fs, cfg, "apple", []record.Comment{{Name: "x"}})
	require.NoError(t, afero.WriteFile(fs, filepath.Join(cfg.DataDir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, fs.MkdirAll(filepath.Join(cfg.DataDir, "sub.post.yaml"), 0o755))

	ids, err := record.NewStore(fs, cfg).ListPostIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "mango", "zebra"}, ids)
}

func TestListPostIDsMissingDirectory(t *testing.T) {
	store := record.NewStore(afero.NewMemMapFs(), recordtest.BlogConfig("/nowhere"))
	_, err := store.ListPostIDs()
	assert.ErrorIs(t, err, apperrors.ErrDirectoryMissing)
	assert.True(t, apperrors.IsStoreError(err))
}

func TestReadPost(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := recordtest.BlogConfig("/blog")
	recordtest.WritePost(t, fs, cfg, record.Post{
		ID:        "hello-world",
		Date:      "2012-06-01 10:30",
		Title:     "Hello, World",
		Tags:      []string{"meta", "go", "meta"},
		Text:      "First post.",
		Locked:    true,
		Moderated: true,
	})
	store := record.NewStore(fs, cfg)

	post, err := store.ReadPost("hello-world")
	require.NoError(t, err)
	assert.Equal(t, "hello-world", post.ID)
	assert.Equal(t, "Hello, World", post.Title)
	assert.Equal(t, []string{"meta", "go", "meta"}, post.Tags, "duplicate tags are kept")
	assert.True(t, post.Locked)
	assert.True(t, post.Moderated)
	assert.False(t, post.Disabled)

	_, err = store.ReadPost("missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = store.ReadPost("../etc/passwd")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReadPostMalformed(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := recordtest.BlogConfig("/blog")
	require.NoError(t, fs.MkdirAll(cfg.DataDir, 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(cfg.DataDir, "bad.post.yaml"), []byte("tags: [unterminated"), 0o644))

	_, err := record.NewStore(fs, cfg).ReadPost("bad")
	assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)
}

func TestReadComments(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := recordtest.BlogConfig("/blog")
	recordtest.WritePost(t, fs, cfg, record.Post{ID: "p1", Date: "2020-01-01"})
	recordtest.WriteComments(t, fs, cfg, "p1", []record.Comment{
		{Name: "Ann", Text: "first"},
		{Name: "Spam", Text: "buy", Disabled: true},
		{Name: "Author", Text: "thanks", Authority: true},
	})
	store := record.NewStore(fs, cfg)

	comments, err := store.ReadComments("p1")
	require.NoError(t, err)
	require.Len(t, comments, 3)
	for i, c := range comments {
		assert.Equal(t, "p1", c.PostID)
		assert.Equal(t, i+1, c.LocalID)
	}

	enabled := record.EnabledComments(comments)
	require.Len(t, enabled, 2)
	assert.Equal(t, 1, enabled[0].LocalID)
	assert.Equal(t, 3, enabled[1].LocalID, "local ids survive filtering")
	assert.True(t, enabled[1].Authority)

	none, err := store.ReadComments("uncommented")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestValidPostID(t *testing.T) {
	for _, id := range []string{"hello", "2012-06-01-launch", "a_b.c"} {
		assert.True(t, record.ValidPostID(id), id)
	}
	for _, id := range []string{"", ".", "..", ".hidden", "a/b", `a\b`} {
		assert.False(t, record.ValidPostID(id), id)
	}
}
