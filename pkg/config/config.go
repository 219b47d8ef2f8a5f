// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Blog, Redis, Kafka, Postgres, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Blog     BlogConfig     `yaml:"blog"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// AdminToken guards the index rebuild and delete routes. Empty leaves
	// them open.
	AdminToken        string `yaml:"adminToken"`
	RebuildsPerMinute int    `yaml:"rebuildsPerMinute"`
}

// BlogConfig describes where the corpus and the index live and how listings
// are sized.
type BlogConfig struct {
	DataDir         string `yaml:"dataDir"`
	IndexDir        string `yaml:"indexDir"`
	PostSuffix      string `yaml:"postSuffix"`
	CommentsSuffix  string `yaml:"commentsSuffix"`
	StagingSuffix   string `yaml:"stagingSuffix"`
	BackupSuffix    string `yaml:"backupSuffix"`
	Timezone        string `yaml:"timezone"`
	PostsPerPage    int    `yaml:"postsPerPage"`
	PostsPerFeed    int    `yaml:"postsPerFeed"`
	RecentPosts     int    `yaml:"recentPosts"`
	ReadConcurrency int    `yaml:"readConcurrency"`
	// PageCacheSize bounds the in-process page cache used when redis is
	// off. Zero disables it.
	PageCacheSize   int    `yaml:"pageCacheSize"`
}

// Location resolves the configured time zone. An empty zone means UTC.
func (b BlogConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", b.Timezone, err)
	}
	return loc, nil
}

// RedisConfig holds Redis connection and page-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexPublished string `yaml:"indexPublished"`
}

// PostgresConfig holds PostgreSQL connection parameters for the rebuild
// audit log.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the blog cannot run with.
func (c *Config) Validate() error {
	b := c.Blog
	switch {
	case b.DataDir == "":
		return fmt.Errorf("blog.dataDir is required")
	case b.IndexDir == "":
		return fmt.Errorf("blog.indexDir is required")
	case b.PostSuffix == "":
		return fmt.Errorf("blog.postSuffix is required")
	case b.CommentsSuffix == "":
		return fmt.Errorf("blog.commentsSuffix is required")
	case strings.HasSuffix(b.CommentsSuffix, b.PostSuffix):
		// Comment files would be listed as posts.
		return fmt.Errorf("blog.commentsSuffix %q must not end in blog.postSuffix %q", b.CommentsSuffix, b.PostSuffix)
	case b.StagingSuffix == "" || b.BackupSuffix == "" || b.StagingSuffix == b.BackupSuffix:
		return fmt.Errorf("blog.stagingSuffix and blog.backupSuffix must be set and distinct")
	case b.PostsPerPage < 1:
		return fmt.Errorf("blog.postsPerPage must be positive, got %d", b.PostsPerPage)
	case b.PostsPerFeed < 1:
		return fmt.Errorf("blog.postsPerFeed must be positive, got %d", b.PostsPerFeed)
	}
	if _, err := b.Location(); err != nil {
		return err
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			RebuildsPerMinute: 6,
		},
		Blog: BlogConfig{
			DataDir:         "data",
			IndexDir:        "index",
			PostSuffix:      ".post.yaml",
			CommentsSuffix:  ".comments.yaml",
			StagingSuffix:   "_NEW_",
			BackupSuffix:    "_OLD_",
			Timezone:        "UTC",
			PostsPerPage:    5,
			PostsPerFeed:    20,
			RecentPosts:     10,
			ReadConcurrency: 8,
			PageCacheSize:   256,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "blog-content-store",
			Topics: KafkaTopics{
				IndexPublished: "blog.index.published",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "blog",
			User:            "blog",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads BLOG_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BLOG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BLOG_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("BLOG_DATA_DIR"); v != "" {
		cfg.Blog.DataDir = v
	}
	if v := os.Getenv("BLOG_INDEX_DIR"); v != "" {
		cfg.Blog.IndexDir = v
	}
	if v := os.Getenv("BLOG_TIMEZONE"); v != "" {
		cfg.Blog.Timezone = v
	}
	if v := os.Getenv("BLOG_POSTS_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Blog.PostsPerPage = n
		}
	}
	if v := os.Getenv("BLOG_POSTS_PER_FEED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Blog.PostsPerFeed = n
		}
	}
	if v := os.Getenv("BLOG_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("BLOG_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BLOG_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BLOG_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("BLOG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BLOG_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("BLOG_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BLOG_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("BLOG_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("BLOG_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("BLOG_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BLOG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BLOG_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("BLOG_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
