package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	lv "github.com/reoring/leanvirtuals"
	"github.com/reoring/leanvirtuals/i18n"
	"github.com/reoring/leanvirtuals/internal/config"
	"github.com/reoring/leanvirtuals/internal/telemetry"
	"github.com/reoring/leanvirtuals/query"
	"github.com/reoring/leanvirtuals/schemafile"
	"github.com/reoring/leanvirtuals/source"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// errUsage means the flags were wrong; usage has already been printed.
var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}
	var err error
	switch args[0] {
	case "apply":
		err = applyCmd(ctx, args[1:], stdin, stdout, stderr)
	case "query":
		err = queryCmd(ctx, args[1:], stdin, stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	default:
		report(stderr, args[0], err)
		return 1
	}
}

// report prints err, listing schema issues one per line in the -lang language.
func report(w io.Writer, cmd string, err error) {
	iss, ok := lv.AsIssues(err)
	if !ok {
		fmt.Fprintf(w, "leanvirtuals %s: %v\n", cmd, err)
		return
	}
	fmt.Fprintf(w, "leanvirtuals %s: %d schema issue(s)\n", cmd, len(iss))
	for _, it := range iss {
		line := i18n.T(it.Code, map[string]string{"path": it.Path})
		if it.Message != "" {
			line += " (" + it.Message + ")"
		}
		fmt.Fprintln(w, "  "+line)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `leanvirtuals CLI

Usage:
  leanvirtuals apply -schema schema.yaml [-name S] [-in docs.json|-] [-jsonl] [-virtuals a,b.c | -none] [-explain] [-indent] [-lang en|ja]
  leanvirtuals query -schema schema.yaml -collection C [-config dir] [-filter '{"k":"v"}'] [-sort [-]field] [-limit N]
                     [-one] [-lean=false] [-virtuals a,b.c | -all] [-seed docs.jsonl] [-lang en|ja]

Notes:
  - apply attaches virtuals to JSON read from a file or stdin.
  - query runs a lean find against the store configured in config.yaml / LEANVIRTUALS_* env.`)
}

// selectionFlags registers -virtuals plus a boolean for the other extreme.
type selectionFlags struct {
	paths string
	flag  bool
}

func (s *selectionFlags) selection(flagSel, dflt lv.Selection) lv.Selection {
	switch {
	case s.paths != "":
		return lv.Only(splitCSV(s.paths)...)
	case s.flag:
		return flagSel
	default:
		return dflt
	}
}

func applyCmd(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		schemaPath, name, in string
		jsonl, explain       bool
		indent               bool
		logLevel             string
		sel                  selectionFlags
	)
	fs.StringVar(&schemaPath, "schema", "", "schema file (YAML or JSON)")
	fs.StringVar(&name, "name", "", "schema name (defaults to the file's root)")
	fs.StringVar(&in, "in", "-", "input file, - for stdin")
	fs.BoolVar(&jsonl, "jsonl", false, "read newline-delimited documents instead of one JSON value")
	fs.StringVar(&sel.paths, "virtuals", "", "comma-separated virtual paths (default: all)")
	fs.BoolVar(&sel.flag, "none", false, "attach nothing (pass input through)")
	fs.BoolVar(&explain, "explain", false, "report every virtual written on stderr")
	fs.BoolVar(&indent, "indent", false, "pretty-print output")
	fs.StringVar(&logLevel, "log-level", "warn", "debug|info|warn|error")
	lang := fs.String("lang", "en", "language of schema issue reports (en|ja)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	i18n.SetLanguage(*lang)
	if schemaPath == "" {
		fs.Usage()
		return errUsage
	}
	logger, err := newLogger(stderr, logLevel, "text")
	if err != nil {
		return err
	}
	schema, err := loadSchema(schemaPath, name)
	if err != nil {
		return err
	}
	selection := sel.selection(lv.None(), lv.All())

	r, closeIn, err := openInput(in, stdin)
	if err != nil {
		return err
	}
	defer closeIn()

	var opts []lv.AttachOption
	if explain {
		opts = append(opts, lv.WithTrace(func(a lv.Applied) {
			_ = source.Encode(stderr, map[string]any{"pointer": a.Pointer, "virtual": a.Virtual, "value": a.Value}, false)
		}))
	}
	apply := func(v any) error {
		out, err := lv.Attach(ctx, schema, v, selection, opts...)
		if err != nil {
			return err
		}
		return source.Encode(stdout, out, indent)
	}

	if !jsonl {
		v, err := source.Decode(r)
		if err != nil {
			return err
		}
		logger.Debug("apply", "schema", schemaPath, "selection", selection.String())
		return apply(v)
	}
	dr := source.NewDocumentReader(r)
	n := 0
	for {
		doc, err := dr.Next()
		if errors.Is(err, io.EOF) {
			logger.Debug("apply", "schema", schemaPath, "selection", selection.String(), "documents", n)
			return nil
		}
		if err != nil {
			return err
		}
		if err := apply(doc); err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
		n++
	}
}

func queryCmd(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath, schemaPath, name string
		collection, filterJSON       string
		sortSpec, seed               string
		limit                        int
		one, lean, indent            bool
		sel                          selectionFlags
	)
	fs.StringVar(&configPath, "config", "", "config file or directory holding config.yaml")
	fs.StringVar(&schemaPath, "schema", "", "schema file (YAML or JSON)")
	fs.StringVar(&name, "name", "", "schema name (defaults to the file's root)")
	fs.StringVar(&collection, "collection", "", "collection to query")
	fs.StringVar(&filterJSON, "filter", "{}", "equality filter as a JSON object")
	fs.StringVar(&sortSpec, "sort", "", "sort field, prefix with - for descending")
	fs.IntVar(&limit, "limit", 0, "maximum number of documents")
	fs.BoolVar(&one, "one", false, "findOne instead of find")
	fs.BoolVar(&lean, "lean", true, "run a lean query")
	fs.StringVar(&sel.paths, "virtuals", "", "comma-separated virtual paths")
	fs.BoolVar(&sel.flag, "all", false, "attach every virtual")
	fs.StringVar(&seed, "seed", "", "newline-delimited documents to insert first (- for stdin)")
	fs.BoolVar(&indent, "indent", false, "pretty-print output")
	lang := fs.String("lang", "en", "language of schema issue reports (en|ja)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	i18n.SetLanguage(*lang)
	if schemaPath == "" || collection == "" {
		fs.Usage()
		return errUsage
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	schema, err := loadSchema(schemaPath, name)
	if err != nil {
		return err
	}
	filter, err := source.DecodeDocument([]byte(filterJSON))
	if err != nil {
		return fmt.Errorf("-filter: %w", err)
	}
	coll, closeStore, err := openCollection(ctx, cfg, collection)
	if err != nil {
		return err
	}
	defer closeStore()

	model := query.NewModel(collection, schema, coll, query.WithLogger(logger.With("component", "query", "collection", collection))).
		Use(query.LeanVirtuals(lv.Options{EnabledByDefault: cfg.Lean.EnabledByDefault}))

	if seed != "" {
		if err := seedCollection(ctx, model, seed, stdin); err != nil {
			return err
		}
	}

	var opts []query.Option
	if lean {
		opts = append(opts, query.Lean(sel.selection(lv.All(), lv.Selection{})))
	}
	if sortSpec != "" {
		field, desc := strings.CutPrefix(sortSpec, "-")
		opts = append(opts, query.SortBy(field, desc))
	}
	if limit > 0 {
		opts = append(opts, query.Limit(limit))
	}

	if one {
		doc, err := model.FindOne(ctx, query.Filter(filter), opts...)
		if err != nil {
			return err
		}
		return source.Encode(stdout, doc, indent)
	}
	docs, err := model.Find(ctx, query.Filter(filter), opts...)
	if err != nil {
		return err
	}
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return source.Encode(stdout, out, indent)
}

func loadSchema(path, name string) (lv.Schema, error) {
	f, err := schemafile.Load(path)
	if err != nil {
		return nil, err
	}
	return f.Lookup(name)
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func seedCollection(ctx context.Context, m *query.Model, path string, stdin io.Reader) error {
	r, closeIn, err := openInput(path, stdin)
	if err != nil {
		return err
	}
	defer closeIn()
	var docs []map[string]any
	dr := source.NewDocumentReader(r)
	for {
		doc, err := dr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("-seed: %w", err)
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil
	}
	return m.Create(ctx, docs...)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	l, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: l}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(h), nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
