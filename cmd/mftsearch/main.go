// Command mftsearch is a thin demonstration binary over pkg/mftsearch. It
// is intentionally not an option-parsing CLI in the sense spec.md §1
// excludes ("Command-line parsing and option plumbing" is out of scope);
// it exists only to exercise Search end to end from a terminal, the way
// the teacher's cmd/lci keeps its option surface in urfave/cli rather than
// hand-rolled flag parsing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/cobaltfs/mftindex/internal/config"
	"github.com/cobaltfs/mftindex/internal/pattern"
	"github.com/cobaltfs/mftindex/internal/progress"
	"github.com/cobaltfs/mftindex/internal/traverse"
	"github.com/cobaltfs/mftindex/pkg/mftsearch"
)

func main() {
	app := &cli.App{
		Name:  "mftsearch",
		Usage: "search an NTFS volume's raw MFT for matching names/paths",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "volume", Aliases: []string{"v"}, Required: true, Usage: `volume root, e.g. "C:"`},
			&cli.StringFlag{Name: "glob", Usage: "glob pattern (e.g. **\\*.log); mutually exclusive with --regex/--verbatim"},
			&cli.StringFlag{Name: "regex", Usage: "regex pattern"},
			&cli.StringFlag{Name: "verbatim", Usage: "literal substring pattern"},
			&cli.BoolFlag{Name: "case-insensitive", Aliases: []string{"i"}},
			&cli.BoolFlag{Name: "attributes", Usage: "include alternate/attribute streams in results"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mftsearch:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	kind, raw, err := patternFromFlags(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sink := &progress.Logging{}
	req := mftsearch.Request{
		RootPath:    c.String("volume"),
		PatternKind: kind,
		Pattern:     raw,
		Options: pattern.Options{
			CaseInsensitive:      c.Bool("case-insensitive"),
			MinWildcardThreshold: config.Default().Pattern.MinWildcardThreshold,
		},
		Traverse: traverse.Options{IncludeAttributes: c.Bool("attributes")},
		Progress: sink,
	}

	results, err := mftsearch.Search(ctx, req)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Println(r.Path)
	}
	fmt.Fprintf(os.Stderr, "%d matches\n", len(results))
	return nil
}

func patternFromFlags(c *cli.Context) (pattern.Kind, string, error) {
	switch {
	case c.String("regex") != "":
		return pattern.Regex, c.String("regex"), nil
	case c.String("verbatim") != "":
		return pattern.Verbatim, c.String("verbatim"), nil
	case c.String("glob") != "":
		return pattern.Glob, c.String("glob"), nil
	default:
		return pattern.Anything, "", nil
	}
}
