package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/robertmeta/tpxa/config"
	"github.com/robertmeta/tpxa/feed"
	"github.com/robertmeta/tpxa/importer"
	"github.com/robertmeta/tpxa/jobs"
	"github.com/robertmeta/tpxa/logger"
	"github.com/robertmeta/tpxa/model"
	"github.com/robertmeta/tpxa/server"
	"github.com/robertmeta/tpxa/store"
	"github.com/robertmeta/tpxa/tpxa"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func instanceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "instance",
		Aliases: []string{"i"},
		Usage:   "Blog database file (default: config database.path or ./blog.db)",
	}
}

func main() {
	app := &cli.App{
		Name:    "tpxa",
		Usage:   "Export and import blogs as TextPress eXtended Atom",
		Version: tpxa.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				EnvVars: []string{config.EnvConfig},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Export a blog to a TPXA file",
				Flags: []cli.Flag{
					instanceFlag(),
					&cli.BoolFlag{
						Name:    "tags-to-categories",
						Aliases: []string{"t"},
						Usage:   "Export all tags as categories",
					},
					&cli.BoolFlag{
						Name:    "with-descriptions-to-categories",
						Aliases: []string{"d"},
						Usage:   "Export tags with a description as categories",
					},
					&cli.StringSliceFlag{
						Name:    "keep-as-tag",
						Aliases: []string{"k"},
						Usage:   "Keep this tag a tag (repeatable)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file, - for stdout (default: <blog title>_export.tpxa)",
					},
				},
				Action: exportBlog,
			},
			{
				Name:      "import",
				Usage:     "Import a TPXA file into a blog",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					instanceFlag(),
					&cli.StringFlag{
						Name:    "url",
						Aliases: []string{"u"},
						Usage:   "Download the export from this .tpxa URL",
					},
				},
				Action: importBlog,
			},
			{
				Name:      "inspect",
				Usage:     "Show what a plain Atom reader sees in a file or URL",
				ArgsUsage: "<file-or-url>",
				Action:    inspectFeed,
			},
			{
				Name:  "posts",
				Usage: "List posts",
				Flags: []cli.Flag{
					instanceFlag(),
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Value:   50,
						Usage:   "Maximum number of posts to return",
					},
					&cli.IntFlag{
						Name:    "offset",
						Aliases: []string{"o"},
						Usage:   "Offset for pagination",
					},
					&cli.StringFlag{
						Name:    "since",
						Aliases: []string{"s"},
						Usage:   "Show posts updated since duration (e.g., 7d, 2w, 3m, 1y)",
					},
					&cli.StringFlag{
						Name:    "tag",
						Aliases: []string{"t"},
						Usage:   "Filter by tag or category slug",
					},
				},
				Action: listPosts,
			},
			{
				Name:  "serve",
				Usage: "Serve exports and accept imports over HTTP",
				Flags: []cli.Flag{
					instanceFlag(),
					&cli.StringFlag{
						Name:    "listen",
						Aliases: []string{"l"},
						Usage:   "Listen address (default: 127.0.0.1:8080)",
					},
				},
				Action: serve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

type env struct {
	cfg *config.Config
	log *slog.Logger
}

func setup(c *cli.Context) (*env, error) {
	if path := c.String("config"); path != "" {
		os.Setenv(config.EnvConfig, path)
	}
	cfg, _, err := config.Load(config.Overrides{
		DB:        c.String("instance"),
		Listen:    c.String("listen"),
		LogLevel:  c.String("log-level"),
		LogFormat: c.String("log-format"),
	})
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitUsageError)
	}
	log := logger.New(logger.Config{
		Format: cfg.Log.Format,
		Level:  logger.ParseLevel(cfg.Log.Level),
	})
	slog.SetDefault(log)
	return &env{cfg: cfg, log: log}, nil
}

func getStore(e *env) (*store.Store, error) {
	dbPath := e.cfg.Database.Path

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// exportOptions merges command-line flags over the config file defaults.
// Either conversion flag replaces both config values.
func exportOptions(c *cli.Context, cfg config.ExportConfig, log *slog.Logger) tpxa.ExportOptions {
	opts := tpxa.ExportOptions{
		TagsToCategories:         cfg.TagsToCategories,
		DescriptionsToCategories: cfg.DescriptionsToCategories,
		KeepAsTags:               cfg.KeepAsTags,
		Participants:             tpxa.DefaultParticipants(),
		Logger:                   log,
	}
	if c.IsSet("tags-to-categories") || c.IsSet("with-descriptions-to-categories") {
		opts.TagsToCategories = c.Bool("tags-to-categories")
		opts.DescriptionsToCategories = c.Bool("with-descriptions-to-categories")
	}
	if keep := c.StringSlice("keep-as-tag"); len(keep) > 0 {
		opts.KeepAsTags = keep
	}
	return opts
}

func exportBlog(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	opts := exportOptions(c, e.cfg.Export, e.log)
	if err := opts.Validate(); err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	s, err := getStore(e)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	writer, err := tpxa.NewWriter(s, opts)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	outputPath := c.String("output")
	if outputPath == "" {
		title, err := s.ConfigValue(c.Context, model.ConfigBlogTitle)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to read blog title: %v", err), ExitDataError)
		}
		outputPath = tpxa.ExportFilename(title)
	}

	start := time.Now()
	var n int64
	if outputPath == "-" {
		n, err = writer.WriteTo(c.Context, os.Stdout)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to export blog: %v", err), ExitDataError)
		}
	} else {
		file, err := os.Create(outputPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
		}
		n, err = writeExport(c.Context, writer, file, outputPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to export blog: %v", err), ExitDataError)
		}
	}
	e.log.Info("export written", "file", outputPath, "bytes", n, "duration", time.Since(start))

	if outputPath == "-" {
		return nil
	}
	return outputJSON(map[string]any{
		"success":      true,
		"file":         outputPath,
		"bytes":        n,
		"dependencies": writer.Dependencies().Len(),
	})
}

type exporter interface {
	WriteTo(ctx context.Context, w io.Writer) (int64, error)
}

// writeExport writes the export to f and closes it. On failure the file at
// path is removed.
func writeExport(ctx context.Context, exp exporter, f io.WriteCloser, path string) (int64, error) {
	n, err := exp.WriteTo(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}

func importBlog(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	downloadURL := c.String("url")
	if (downloadURL == "") == (c.NArg() == 0) {
		return cli.Exit("Usage: tpxa import (<file> | --url <download-url>)", ExitUsageError)
	}

	imp := importer.New(nil, importer.Options{Logger: e.log})

	var r io.ReadCloser
	if downloadURL != "" {
		r, err = imp.Download(c.Context, downloadURL)
		if errors.Is(err, tpxa.ErrValidation) {
			return cli.Exit(err.Error(), ExitUsageError)
		}
	} else {
		r, err = os.Open(c.Args().Get(0))
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open export: %v", err), ExitDataError)
	}
	defer r.Close()

	blog, err := imp.Parse(r)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}

	s, err := getStore(e)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	result, err := s.Apply(c.Context, blog)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to import blog: %v", err), ExitDataError)
	}

	return outputJSON(map[string]any{
		"success": true,
		"title":   blog.Title,
		"result":  result,
	})
}

func inspectFeed(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: tpxa inspect <file-or-url>", ExitUsageError)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}

	target := c.Args().Get(0)
	inspector := feed.NewInspector()

	var summary *feed.Summary
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		summary, err = inspector.Fetch(c.Context, target)
	} else {
		file, openErr := os.Open(target)
		if openErr != nil {
			return cli.Exit(fmt.Sprintf("Failed to open file: %v", openErr), ExitDataError)
		}
		defer file.Close()
		summary, err = inspector.Parse(file)
	}
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	e.log.Debug("feed inspected", "entries", len(summary.Entries), "extensions", summary.ExtensionNames())

	return outputJSON(summary)
}

func listPosts(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	opts, err := store.BuildQueryOptions(
		c.Int("limit"),
		c.Int("offset"),
		c.String("tag"),
		c.String("since"),
		time.Now(),
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid query options: %v", err), ExitUsageError)
	}

	s, err := getStore(e)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	posts, err := s.ListPosts(c.Context, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get posts: %v", err), ExitDataError)
	}

	return outputJSON(map[string]any{
		"count":  len(posts),
		"limit":  opts.Limit,
		"offset": opts.Offset,
		"posts":  posts,
	})
}

func serve(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	s, err := getStore(e)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	maxUpload := e.cfg.Server.MaxUploadMB << 20
	queue := jobs.NewQueue(s, e.cfg.Server.QueueSize, e.log)
	imp := importer.New(queue, importer.Options{MaxSize: maxUpload, Logger: e.log})
	srv := server.New(s, imp, queue, server.Options{
		Export: tpxa.ExportOptions{
			TagsToCategories:         e.cfg.Export.TagsToCategories,
			DescriptionsToCategories: e.cfg.Export.DescriptionsToCategories,
			KeepAsTags:               e.cfg.Export.KeepAsTags,
			Participants:             tpxa.DefaultParticipants(),
		},
		MaxUploadBytes: maxUpload,
		Logger:         e.log,
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, e.cfg.Server.Listen) })

	if err := g.Wait(); err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	return nil
}
