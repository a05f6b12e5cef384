// Command reflink turns scripture citations in text, documents, sites and
// archives into links to a reference site.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/internal/api"
	"github.com/FocuswithJustin/reflink/internal/config"
	"github.com/FocuswithJustin/reflink/internal/document"
	"github.com/FocuswithJustin/reflink/internal/logging"
)

const version = "0.4.0"

// CLI defines the command-line interface for reflink.
type CLI struct {
	// Global flags
	Config    string `help:"Config file; default is reflink.yaml in the working directory or a parent" short:"c" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)" name:"log-level"`
	LogFormat string `help:"Log format (text, json)" name:"log-format"`

	Link     LinkCmd     `cmd:"" help:"Link the citations in text given as arguments or on stdin"`
	Resolve  ResolveCmd  `cmd:"" help:"Print the link of each citation"`
	Render   RenderCmd   `cmd:"" help:"Rewrite document files (.gz and .xz are decompressed)"`
	Site     SiteCmd     `cmd:"" help:"Rewrite every document under a directory"`
	Archive  ArchiveCmd  `cmd:"" help:"Rewrite the documents of a tar archive, or pack a directory"`
	Index    IndexGroup  `cmd:"" help:"Query the citation index"`
	Books    BooksCmd    `cmd:"" help:"List canonical books and their abbreviations"`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API server"`
	Settings ConfigGroup `cmd:"" name:"config" help:"Show or create configuration"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// app carries what every command needs once flags and config are loaded.
type app struct {
	ctx      context.Context
	cfg      *config.Config
	loader   *config.Loader
	rewriter *citation.Rewriter
	stdout   io.Writer
	stdin    io.Reader
}

func (a *app) options(source string) document.Options {
	return document.Options{Exclude: a.cfg.Document.Exclude, Source: source}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

// run parses args, loads the layered configuration and runs the selected
// command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, stdin io.Reader, loader *config.Loader) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("reflink"),
		kong.Description("reflink - scripture citation linker"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := loader.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return err
	}
	logging.SetLogger(logging.NewLogger(stderr, level, format))

	rw, err := citation.New(citation.Config{Links: cfg.Links()})
	if err != nil {
		return err
	}
	api.Version = version

	return kctx.Run(&app{ctx: ctx, cfg: cfg, loader: loader, rewriter: rw, stdout: stdout, stdin: stdin})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(logging.GetLogger())
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Stdin, loader); err != nil {
		fmt.Fprintf(os.Stderr, "reflink: error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
