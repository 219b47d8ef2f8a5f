package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Blog.PostsPerPage)
	assert.Equal(t, 20, cfg.Blog.PostsPerFeed)
	assert.Equal(t, "_NEW_", cfg.Blog.StagingSuffix)
	assert.Equal(t, "_OLD_", cfg.Blog.BackupSuffix)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.yaml")
	yamlDoc := `
blog:
  dataDir: /srv/blog/data
  indexDir: /srv/blog/index
  timezone: Asia/Kolkata
  postsPerPage: 10
redis:
  enabled: true
  cacheTTL: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("BLOG_POSTS_PER_FEED", "7")
	t.Setenv("BLOG_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/blog/data", cfg.Blog.DataDir)
	assert.Equal(t, 10, cfg.Blog.PostsPerPage)
	assert.Equal(t, 7, cfg.Blog.PostsPerFeed)
	assert.Equal(t, ".post.yaml", cfg.Blog.PostSuffix, "unset keys keep their defaults")
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)

	loc, err := cfg.Blog.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Blog.PostsPerPage = 0
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Blog.BackupSuffix = cfg.Blog.StagingSuffix
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Blog.PostSuffix = ".yaml"
	cfg.Blog.CommentsSuffix = ".comments.yaml"
	assert.ErrorContains(t, cfg.Validate(), "commentsSuffix")

	cfg = defaultConfig()
	cfg.Blog.CommentsSuffix = cfg.Blog.PostSuffix
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Blog.CommentsSuffix = ""
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Blog.PostSuffix = ".comments.yaml"
	cfg.Blog.CommentsSuffix = ".yaml"
	assert.NoError(t, cfg.Validate(), "only the comments-as-posts overlap is ambiguous")

	cfg = defaultConfig()
	cfg.Blog.Timezone = "Mars/Olympus_Mons"
	assert.Error(t, cfg.Validate())

	assert.NoError(t, defaultConfig().Validate())
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "blog", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=blog sslmode=disable", p.DSN())
}

func TestAdminSettings(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.AdminToken)
	assert.Equal(t, 6, cfg.Server.RebuildsPerMinute)
	assert.Equal(t, 256, cfg.Blog.PageCacheSize)

	t.Setenv("BLOG_ADMIN_TOKEN", "s3cret")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
}
