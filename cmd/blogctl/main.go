package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

type globalOptions struct {
	Config   string `long:"config" short:"c" env:"BLOG_CONFIG" default:"configs/development.yaml" description:"Path to config file"`
	LogLevel string `long:"log-level" description:"Override the configured log level"`
}

var global globalOptions

func main() {
	parser := newParser()
	// flags.Default prints the error, command failures included.
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func newParser() *flags.Parser {
	parser := flags.NewParser(&global, flags.Default)
	parser.LongDescription = `blogctl builds, inspects and queries the blog index on disk.

Commands read the corpus and index directories named in the config file and
never talk to a running server; announcements and audit records go out
through kafka and postgres when those are enabled.`

	mustAddCommand(parser, "rebuild", "Build and publish a new index", `
Scan the corpus, build a fresh index and atomically replace the live one.
A failed rebuild leaves the previous index in place.`, &cmdRebuild{})
	mustAddCommand(parser, "delete", "Delete the index", `
Remove the live, staging and backup index slots. Deleting a missing index
succeeds.`, &cmdDelete{})
	mustAddCommand(parser, "info", "Describe the published index", "", &cmdInfo{})
	mustAddCommand(parser, "page", "List one page of posts", `
Print the post ids of a listing page, newest first. --tags takes tags
separated by '+' and matches posts carrying any of them.`, &cmdPage{})
	mustAddCommand(parser, "adjacent", "Show the neighbours of a post", "", &cmdAdjacent{})
	mustAddCommand(parser, "feed", "List the feed window", "", &cmdFeed{})
	mustAddCommand(parser, "random", "Pick a random post other than the latest", "", &cmdRandom{})
	mustAddCommand(parser, "tags", "Print the tag cloud", "", &cmdTags{})
	mustAddCommand(parser, "show", "Print a post with its enabled comments", "", &cmdShow{})
	mustAddCommand(parser, "history", "Print recent rebuild attempts from the audit log", "", &cmdHistory{})
	return parser
}

func mustAddCommand(parser *flags.Parser, name, short, long string, data any) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic(fmt.Sprintf("adding command %s: %v", name, err))
	}
}
