package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/reflink/core/books"
	"github.com/FocuswithJustin/reflink/core/cas"
	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/core/errors"
	"github.com/FocuswithJustin/reflink/internal/api"
	"github.com/FocuswithJustin/reflink/internal/archive"
	"github.com/FocuswithJustin/reflink/internal/document"
	"github.com/FocuswithJustin/reflink/internal/index"
	"github.com/FocuswithJustin/reflink/internal/logging"
	"github.com/FocuswithJustin/reflink/internal/site"
)

// LinkCmd rewrites one piece of text.
type LinkCmd struct {
	Text   []string `arg:"" optional:"" help:"Text to link; read from stdin when omitted"`
	Format string   `help:"Input format (text, html, xhtml, markdown)" short:"f" default:"text"`
	JSON   bool     `help:"Print the result and its citations as JSON"`
}

func (c *LinkCmd) Run(a *app) error {
	format, err := document.ParseFormat(c.Format)
	if err != nil {
		return err
	}

	source := "args"
	input := strings.Join(c.Text, " ")
	if len(c.Text) == 0 {
		source = "stdin"
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return errors.NewIO("read", source, err)
		}
		input = string(data)
	}

	out, st, err := document.RewriteString(format, input, a.rewriter, a.options(source))
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(a.stdout, map[string]any{
			"changed":   st.Changed > 0,
			"content":   out,
			"citations": st.Citations(),
		})
	}
	a.printf("%s", out)
	if len(c.Text) > 0 && !strings.HasSuffix(out, "\n") {
		a.printf("\n")
	}
	return nil
}

// ResolveCmd prints the destination of single citations.
type ResolveCmd struct {
	Citations []string `arg:"" name:"citation" help:"Citations such as \"John 3:16\" or \"1 Cor 13:4-7 NIV\""`
	JSON      bool     `help:"Print the resolved citations as JSON"`
}

func (c *ResolveCmd) Run(a *app) error {
	type resolved struct {
		Citation citation.Citation   `json:"citation"`
		Link     citation.LinkResult `json:"link"`
	}
	var (
		out  []resolved
		errs []error
	)
	for _, s := range c.Citations {
		cit, link, err := a.rewriter.Lookup(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, resolved{Citation: cit, Link: link})
	}

	if c.JSON {
		if err := writeJSON(a.stdout, out); err != nil {
			return err
		}
	} else {
		for _, r := range out {
			a.printf("%s\t%s\n", r.Link.Href, r.Link.DisplayText)
		}
	}
	return stderrors.Join(errs...)
}

// RenderCmd rewrites individual files.
type RenderCmd struct {
	Files  []string `arg:"" name:"file" help:"Files to rewrite" type:"existingfile"`
	Format string   `help:"Input format; detected from each file name when empty" short:"f"`
	Output string   `help:"Directory for the rewritten files; stdout when empty" short:"o" type:"path"`
}

func (c *RenderCmd) Run(a *app) error {
	for _, path := range c.Files {
		if err := c.render(a, path); err != nil {
			return err
		}
	}
	return nil
}

func (c *RenderCmd) render(a *app, path string) error {
	f, err := archive.OpenFile(path)
	if err != nil {
		return errors.NewIO("open", path, err)
	}
	defer f.Close()

	format, err := c.format(f.Name)
	if err != nil {
		return err
	}

	if c.Output == "" {
		_, err := document.Rewrite(format, f, a.stdout, a.rewriter, a.options(path))
		return err
	}

	input, err := io.ReadAll(f)
	if err != nil {
		return errors.NewIO("read", path, err)
	}
	var buf bytes.Buffer
	st, err := document.Rewrite(format, bytes.NewReader(input), &buf, a.rewriter, a.options(path))
	if err != nil {
		return err
	}
	if format == document.FormatText && st.Changed == 0 {
		buf.Reset()
		buf.WriteString(html.EscapeString(string(input)))
	}

	dst := filepath.Join(c.Output, site.OutputPath(filepath.Base(f.Name), format))
	if err := os.MkdirAll(c.Output, 0o755); err != nil {
		return errors.NewIO("mkdir", c.Output, err)
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return errors.NewIO("write", dst, err)
	}
	logging.DocumentRewritten(path, string(format), len(st.Links), "output", dst)
	a.printf("%s -> %s (%d citations)\n", path, dst, len(st.Links))
	return nil
}

func (c *RenderCmd) format(name string) (document.Format, error) {
	if c.Format != "" {
		return document.ParseFormat(c.Format)
	}
	format, ok := document.DetectFormat(name)
	if !ok {
		return "", errors.NewUnsupported("file type", name+" (use --format)")
	}
	return format, nil
}

// processor builds a site processor with an optional index and backup
// store. The returned cleanup closes the index.
func (a *app) processor(out, indexPath, backup string, workers int) (*site.Processor, func(), error) {
	p := &site.Processor{
		Rewriter: a.rewriter,
		Options:  a.options(""),
		OutDir:   out,
		Workers:  workers,
	}
	cleanup := func() {}

	if backup != "" {
		store, err := cas.NewStore(backup)
		if err != nil {
			return nil, nil, err
		}
		p.Backup = store
	}
	if indexPath == "" {
		indexPath = a.cfg.Index.Path
	}
	if indexPath != "" {
		if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
			return nil, nil, errors.NewIO("mkdir", filepath.Dir(indexPath), err)
		}
		ix, err := index.Open(indexPath)
		if err != nil {
			return nil, nil, err
		}
		p.Index = ix
		cleanup = func() { ix.Close() }
	}
	return p, cleanup, nil
}

// patterns returns globs, or one glob over the configured watch extensions
// when none were given.
func (a *app) patterns(globs []string) []string {
	if len(globs) > 0 || len(a.cfg.Watch.Extensions) == 0 {
		return globs
	}
	exts := make([]string, len(a.cfg.Watch.Extensions))
	for i, ext := range a.cfg.Watch.Extensions {
		exts[i] = "." + strings.TrimPrefix(ext, ".")
	}
	return []string{"**/*{" + strings.Join(exts, ",") + "}"}
}

func (a *app) printResult(r site.FileResult) {
	switch {
	case r.Err != nil:
		a.printf("failed  %s: %v\n", r.Path, r.Err)
	case r.Changed:
		a.printf("linked  %s -> %s (%d citations)\n", r.Path, r.Output, r.Citations)
	}
}

// SiteCmd rewrites a directory tree.
type SiteCmd struct {
	Root    string   `arg:"" help:"Site root directory" type:"existingdir"`
	Glob    []string `help:"Glob patterns relative to the root; default is every supported file" short:"g"`
	Out     string   `help:"Write rewritten files here instead of in place" short:"o" type:"path"`
	Index   string   `help:"Citation index database; default from config" type:"path"`
	Backup  string   `help:"Blob store keeping the originals of files rewritten in place" type:"path"`
	Workers int      `help:"Files processed concurrently; default is one per CPU"`
	Watch   bool     `help:"Keep running and rewrite files as they change" short:"w"`
	JSON    bool     `help:"Print the report as JSON"`
}

func (c *SiteCmd) Run(a *app) error {
	p, cleanup, err := a.processor(c.Out, c.Index, c.Backup, c.Workers)
	if err != nil {
		return err
	}
	defer cleanup()

	patterns := a.patterns(c.Glob)
	report, err := p.Run(a.ctx, c.Root, patterns)
	if err != nil {
		return err
	}

	if c.JSON {
		if err := writeJSON(a.stdout, report); err != nil {
			return err
		}
	} else {
		for _, f := range report.Files {
			a.printResult(f)
		}
		a.printf("%d files, %d changed, %d citations, %d failed\n",
			len(report.Files), report.Changed, report.Citations, report.Failed)
	}

	if !c.Watch {
		return report.Err()
	}
	return p.Watch(a.ctx, c.Root, patterns, a.cfg.Watch.Debounce, a.printResult)
}

// ArchiveCmd rewrites a tar archive, or packs a directory into one.
type ArchiveCmd struct {
	Src  string `arg:"" help:"Source tar archive (.tar, .tar.gz, .tgz, .tar.xz, .txz) or directory" type:"path"`
	Dst  string `arg:"" help:"Destination archive; its extension picks the compression" type:"path"`
	Base string `help:"Top-level directory inside the archive when packing a directory; default is the directory name"`
}

func (c *ArchiveCmd) Run(a *app) error {
	info, err := os.Stat(c.Src)
	if err != nil {
		return errors.NewIO("stat", c.Src, err)
	}

	var st archive.Stats
	if info.IsDir() {
		st, err = archive.RewriteDir(c.Src, c.Dst, c.Base, a.archiveTransform)
	} else {
		st, err = archive.RewriteArchive(c.Src, c.Dst, a.archiveTransform)
	}
	if err != nil {
		return err
	}
	a.printf("%s: %d entries, %d files, %d rewritten\n", c.Dst, st.Entries, st.Files, st.Rewritten)
	return nil
}

// archiveTransform rewrites HTML and XHTML entries. Entry names cannot
// change, so text and Markdown, which would become HTML, are copied.
func (a *app) archiveTransform(name string, content []byte) ([]byte, error) {
	format, ok := document.DetectFormat(name)
	if !ok || (format != document.FormatHTML && format != document.FormatXHTML) {
		return content, nil
	}
	var buf bytes.Buffer
	if _, err := document.Rewrite(format, bytes.NewReader(content), &buf, a.rewriter, a.options(name)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IndexGroup contains citation index queries.
type IndexGroup struct {
	Books IndexBooksCmd `cmd:"" help:"Most cited books"`
	Find  IndexFindCmd  `cmd:"" help:"Documents citing a book"`
}

func (a *app) openIndex(path string) (*index.Index, error) {
	if path == "" {
		path = a.cfg.Index.Path
	}
	if path == "" {
		return nil, errors.NewValidation("index", "no index configured; pass --db or set index.path")
	}
	return index.OpenReadOnly(path)
}

// IndexBooksCmd lists books by citation count.
type IndexBooksCmd struct {
	DB    string `help:"Index database; default from config" type:"path"`
	Limit int    `help:"Number of books to show; 0 shows all" default:"20"`
}

func (c *IndexBooksCmd) Run(a *app) error {
	ix, err := a.openIndex(c.DB)
	if err != nil {
		return err
	}
	defer ix.Close()

	counts, err := ix.BookCounts(a.ctx, c.Limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BOOK\tCITATIONS\tDOCUMENTS")
	for _, bc := range counts {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", books.DisplayName(bc.Book), bc.Citations, bc.Documents)
	}
	return tw.Flush()
}

// IndexFindCmd lists every indexed citation of one book.
type IndexFindCmd struct {
	Book string `arg:"" help:"Book name or abbreviation"`
	DB   string `help:"Index database; default from config" type:"path"`
}

func (c *IndexFindCmd) Run(a *app) error {
	id, ok := books.Default().Resolve(c.Book)
	if !ok {
		return errors.NewNotFound("book", c.Book)
	}
	ix, err := a.openIndex(c.DB)
	if err != nil {
		return err
	}
	defer ix.Close()

	occ, err := ix.Occurrences(a.ctx, id)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, o := range occ {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Path, o.Display, o.Href)
	}
	return tw.Flush()
}

// BooksCmd lists the alias table.
type BooksCmd struct {
	JSON bool `help:"Print the table as JSON"`
}

func (c *BooksCmd) Run(a *app) error {
	table := books.Default()
	ids := table.Books()

	if c.JSON {
		out := make(map[string][]string, len(ids))
		for _, id := range ids {
			aliases, err := table.Aliases(id)
			if err != nil {
				return err
			}
			out[id] = aliases
		}
		return writeJSON(a.stdout, out)
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, id := range ids {
		aliases, err := table.Aliases(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\n", books.DisplayName(id), strings.Join(aliases[1:], ", "))
	}
	return tw.Flush()
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Port  int    `help:"HTTP port; default from config" short:"p"`
	Index string `help:"Citation index database; enables the /index routes" type:"path"`
	Watch string `help:"Also rewrite this site directory as it changes and push each result to websocket clients" type:"existingdir"`
	Out   string `help:"Output directory for --watch; default rewrites in place" type:"path"`
}

func (c *ServeCmd) Run(a *app) error {
	p, cleanup, err := a.processor(c.Out, c.Index, "", 0)
	if err != nil {
		return err
	}
	defer cleanup()

	port := a.cfg.Server.Port
	if c.Port != 0 {
		port = c.Port
	}
	srv := api.NewServer(api.Config{
		Port:              port,
		AllowedOrigins:    a.cfg.Server.AllowedOrigins,
		Rewriter:          a.rewriter,
		Options:           a.options("api"),
		Index:             p.Index,
		RateLimitRequests: a.cfg.Server.RateLimit,
		RateLimitBurst:    a.cfg.Server.RateBurst,
	})

	if c.Watch != "" {
		go func() {
			if err := p.Watch(a.ctx, c.Watch, a.patterns(nil), a.cfg.Watch.Debounce, srv.Notify); err != nil {
				logging.Error("watch stopped", "root", c.Watch, "error", err)
			}
		}()
	}
	return srv.ListenAndServe(a.ctx)
}

// ConfigGroup contains configuration commands.
type ConfigGroup struct {
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration"`
	Init ConfigInitCmd `cmd:"" help:"Create the user config file if it does not exist"`
}

// ConfigShowCmd prints the merged configuration as YAML.
type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(a *app) error {
	data, err := yaml.Marshal(a.cfg)
	if err != nil {
		return err
	}
	_, err = a.stdout.Write(data)
	return err
}

// ConfigInitCmd writes the default user config.
type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run(a *app) error {
	path, err := a.loader.EnsureUserConfig()
	if err != nil {
		return err
	}
	a.printf("%s\n", path)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	a.printf("reflink version %s\n", version)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
