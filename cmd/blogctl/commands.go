package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/query"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/rebuild"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/resilience"
)

// Commands write here; tests swap it.
var (
	stdout io.Writer = os.Stdout
	fsys   afero.Fs  = afero.NewOsFs()
)

type env struct {
	cfg     *config.Config
	records *record.Store
	store   *indexstore.Store
	builder *index.Builder
}

func setup() (*env, error) {
	cfg, err := config.Load(global.Config)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if global.LogLevel != "" {
		level = global.LogLevel
	}
	slog.SetDefault(logger.New(os.Stderr, level, "text"))

	loc, err := cfg.Blog.Location()
	if err != nil {
		return nil, err
	}
	records := record.NewStore(fsys, cfg.Blog)
	return &env{
		cfg:     cfg,
		records: records,
		store:   indexstore.NewStore(fsys, cfg.Blog),
		builder: index.NewBuilder(records, index.BuilderConfig{
			Location:    loc,
			Concurrency: cfg.Blog.ReadConcurrency,
		}),
	}, nil
}

func (e *env) engine() (*query.Engine, error) {
	idx, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	return query.New(idx), nil
}

func newTable(headers ...any) *tablewriter.Table {
	table := tablewriter.NewWriter(stdout)
	table.Header(headers...)
	return table
}

type cmdRebuild struct{}

func (cmd *cmdRebuild) Execute([]string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var opts []rebuild.Option
	if e.cfg.Kafka.Enabled {
		producer := kafka.NewProducer(e.cfg.Kafka, e.cfg.Kafka.Topics.IndexPublished)
		defer producer.Close()
		opts = append(opts, rebuild.WithNotifier(notify.NewKafkaNotifier(producer, resilience.RetryConfig{})))
	}
	if e.cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, e.cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, rebuild will not be audited", "error", err)
		} else {
			defer db.Close()
			store := audit.NewStore(db)
			if err := store.Migrate(ctx); err != nil {
				slog.Warn("audit migration failed, rebuild will not be audited", "error", err)
			} else {
				opts = append(opts, rebuild.WithAuditor(store))
			}
		}
	}

	res := rebuild.NewService(e.builder, e.store, opts...).Rebuild(ctx)
	if !res.Success {
		return fmt.Errorf("rebuild failed: %s", res.Error)
	}
	fmt.Fprintf(stdout, "published generation %s with %d posts\n", res.Generation, res.Posts)
	return nil
}

type cmdDelete struct{}

func (cmd *cmdDelete) Execute([]string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	if err := e.store.Delete(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "index deleted")
	return nil
}

type cmdInfo struct{}

func (cmd *cmdInfo) Execute([]string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	info, err := e.store.Info()
	if err != nil {
		return err
	}
	table := newTable("Path", "Size", "Posts", "Tags", "Built")
	table.Append([]string{
		info.Path,
		humanize.Bytes(uint64(info.Size)),
		strconv.Itoa(info.PostCount),
		strconv.Itoa(info.TagCount),
		humanize.Time(info.BuiltAt),
	})
	return table.Render()
}

type cmdPage struct {
	Page int    `long:"page" short:"p" default:"1" description:"Page number, 1 is newest"`
	Tags string `long:"tags" short:"t" description:"Tags joined by '+'"`
	Size int    `long:"size" description:"Page size (default: blog.postsPerPage)"`
}

func (cmd *cmdPage) Execute([]string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	eng, err := e.engine()
	if err != nil {
		return err
	}
	size := cmd.Size
	if size == 0 {
		size = e.cfg.Blog.PostsPerPage
	}
	page, err := eng.Paginate(cmd.Page, query.ParseTags(cmd.Tags), size)
	if err != nil {
		return err
	}
	if page.Status == query.StatusNotFound {
		return fmt.Errorf("page %d not found, %d pages available", cmd.Page, page.TotalPages)
	}

	idx := eng.Index()
	table := newTable("Post", "Published", "Tags")
	for _, id := range page.PostIDs {
		pos, _ := idx.Position(id)
		table.Append([]string{id, idx.At(pos).Published.Format(time.DateTime), strings.Join(idx.TagsOf(id), " ")})
	}
	if err := table.Render(); err != nil {
		return err
	}
	prev, next := query.AdjacentPages(page.Number, page.TotalPages)
	fmt.Fprintf(stdout, "page %d of %d (prev %d, next %d)\n", page.Number, page.TotalPages, prev, next)
	return nil
}

type postArg struct {
	ID string `positional-arg-name:"post-id" required:"yes"`
}

type cmdAdjacent struct {
	Args postArg `positional-args:"yes"`
}

func (cmd *cmdAdjacent) Execute([]string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	eng, err := e.engine()
	if err != nil {
		return err
	}
	prev, next, err := eng.Adjacent(cmd.Args.ID)
	if err != nil {
		return err
	}
	table := newTable("Previous", "Post", "Next")
	table.Append([]string{orDash(prev), cmd.Args.ID, orDash(next)})
	return table.Render()
}

type cmdFeed struct {
	Max int `long:"max" short:"n" description:"Window size (default: blog.postsPerFeed)"`
}

func (cmd *cmdFeed) Execute([]string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	eng, err := e.engine()
	if err != nil {
		return err
	}
	n := cmd.Max
	if n == 0 {
		n = e.cfg.Blog.PostsPerFeed
	}
	for _, id := range eng.RSSWindow(n) {
		fmt.Fprintln(stdout, id)
	}
	return nil
}

type cmdRandom struct{}

func (cmd *cmdRandom) Execute([]string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	eng, err := e.engine()
	if err != nil {
		return err
	}
	id, err := eng.RandomPost(nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, id)
	return nil
}

type cmdTags struct{}

func (cmd *cmdTags) Execute([]string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	eng, err := e.engine()
	if err != nil {
		return err
	}
	table := newTable("Tag", "Posts")
	for _, tc := range eng.TagCloud() {
		table.Append([]string{tc.Tag, strconv.Itoa(tc.Count)})
	}
	return table.Render()
}

type cmdShow struct {
	Args postArg `positional-args:"yes"`
}

func (cmd *cmdShow) Execute([]string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	eng, err := e.engine()
	if err != nil {
		return err
	}
	prev, next, err := eng.Adjacent(cmd.Args.ID)
	if err != nil {
		return err
	}
	post, err := e.records.ReadPost(cmd.Args.ID)
	if err != nil {
		return err
	}
	comments, err := e.records.ReadComments(cmd.Args.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s\n%s  [%s]\n\n%s\n\n", post.Title, post.Date, strings.Join(post.Tags, ", "), post.Text)
	fmt.Fprintf(stdout, "prev: %s  next: %s\n", orDash(prev), orDash(next))
	enabled := record.EnabledComments(comments)
	if len(enabled) == 0 {
		return nil
	}
	table := newTable("#", "Date", "Name", "Comment")
	for _, c := range enabled {
		table.Append([]string{strconv.Itoa(c.LocalID), c.Date, c.Name, c.Text})
	}
	return table.Render()
}

type cmdHistory struct {
	Limit int `long:"limit" short:"n" default:"20" description:"Number of attempts to show"`
}

func (cmd *cmdHistory) Execute([]string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	if !e.cfg.Postgres.Enabled {
		return fmt.Errorf("rebuild audit log is disabled (postgres.enabled is false)")
	}
	ctx := context.Background()
	db, err := postgres.New(ctx, e.cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	entries, err := audit.NewStore(db).Recent(ctx, cmd.Limit)
	if err != nil {
		return err
	}
	table := newTable("When", "Result", "Generation", "Posts", "Took", "Error")
	for _, en := range entries {
		result := "ok"
		if !en.Success {
			result = "failed"
		}
		table.Append([]string{
			humanize.Time(en.At),
			result,
			orDash(en.Generation),
			strconv.Itoa(en.Posts),
			en.Duration.String(),
			en.Error,
		})
	}
	return table.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
