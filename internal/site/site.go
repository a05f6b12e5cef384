// Package site rewrites every document under a directory tree, either in
// place or into a separate output directory, and optionally records the
// linked citations in an index.
package site

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/html"

	"github.com/FocuswithJustin/reflink/core/cas"
	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/core/errors"
	"github.com/FocuswithJustin/reflink/internal/document"
	"github.com/FocuswithJustin/reflink/internal/index"
	"github.com/FocuswithJustin/reflink/internal/logging"
)

// DefaultPatterns select every file with a supported extension.
var DefaultPatterns = []string{"**/*.{html,htm,xhtml,xml,md,markdown,txt}"}

// Processor rewrites the documents of a site.
type Processor struct {
	// Rewriter defaults to citation.Default().
	Rewriter *citation.Rewriter
	Options  document.Options

	// OutDir receives the rewritten tree. Empty rewrites in place.
	OutDir string
	// Index, when set, records the links of every processed document.
	Index *index.Index
	// Backup, when set, keeps the original bytes of every file that is
	// overwritten in place.
	Backup *cas.Store
	// Workers bounds concurrent file processing. Zero means GOMAXPROCS.
	Workers int
}

// FileResult describes one processed file. Paths are slash-separated and
// relative to the site root.
type FileResult struct {
	Path      string          `json:"path"`
	Output    string          `json:"output"`
	Format    document.Format `json:"format"`
	Changed   bool            `json:"changed"`
	Written   bool            `json:"written"`
	Citations int             `json:"citations"`
	Indexed   bool            `json:"indexed"`
	Backup    string          `json:"backup,omitempty"`
	Warnings  int             `json:"warnings"`
	Err       error           `json:"-"`
}

// Report summarizes a Run.
type Report struct {
	RunID     string       `json:"run_id,omitempty"`
	Files     []FileResult `json:"files"`
	Changed   int          `json:"changed"`
	Citations int          `json:"citations"`
	Failed    int          `json:"failed"`
}

// Err joins the errors of every failed file.
func (r Report) Err() error {
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return stderrors.Join(errs...)
}

func (p *Processor) rewriter() *citation.Rewriter {
	if p.Rewriter != nil {
		return p.Rewriter
	}
	return citation.Default()
}

func (p *Processor) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Match returns the files under root selected by patterns, sorted and
// relative to root. Files inside OutDir are never selected.
func (p *Processor) Match(root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.NewValidation("pattern", fmt.Sprintf("invalid glob %q", pattern))
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob error: %w", err)
		}
		for _, m := range matches {
			if seen[m] || p.inOutDir(root, m) {
				continue
			}
			if _, ok := document.DetectFormat(m); !ok {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (p *Processor) inOutDir(root, rel string) bool {
	if p.OutDir == "" {
		return false
	}
	out, err := filepath.Abs(p.OutDir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return false
	}
	return abs == out || strings.HasPrefix(abs, out+string(filepath.Separator))
}

// Run rewrites every file under root matched by patterns (DefaultPatterns
// when empty). A file that fails is reported in its FileResult and does
// not stop the others.
func (p *Processor) Run(ctx context.Context, root string, patterns []string) (Report, error) {
	files, err := p.Match(root, patterns)
	if err != nil {
		return Report{}, err
	}

	var report Report
	var run index.Run
	if p.Index != nil {
		run, err = p.Index.BeginRun(ctx, root)
		if err != nil {
			return report, err
		}
		report.RunID = run.ID
	}

	report.Files = make([]FileResult, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(p.workers(), max(len(files), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				report.Files[i] = p.processFile(ctx, run, root, files[i])
			}
		}()
	}

feed:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for _, f := range report.Files {
		if f.Path == "" {
			continue
		}
		if f.Err != nil {
			report.Failed++
			continue
		}
		if f.Changed {
			report.Changed++
		}
		report.Citations += f.Citations
	}

	if p.Index != nil {
		logging.IndexRun(run.ID, root, len(files), "changed", report.Changed, "citations", report.Citations)
	}
	return report, ctx.Err()
}

// ProcessFile rewrites a single file. rel is slash-separated and relative
// to root.
func (p *Processor) ProcessFile(ctx context.Context, root, rel string) (FileResult, error) {
	var run index.Run
	if p.Index != nil {
		var err error
		if run, err = p.Index.BeginRun(ctx, path.Join(root, rel)); err != nil {
			return FileResult{}, err
		}
	}
	res := p.processFile(ctx, run, root, rel)
	return res, res.Err
}

// OutputPath returns where the rewritten form of rel is written, relative
// to the output root. Plain text and Markdown become HTML, so they get an
// .html extension; the other formats keep their name.
func OutputPath(rel string, f document.Format) string {
	switch f {
	case document.FormatText, document.FormatMarkdown:
		return strings.TrimSuffix(rel, path.Ext(rel)) + ".html"
	}
	return rel
}

func (p *Processor) processFile(ctx context.Context, run index.Run, root, rel string) (res FileResult) {
	res.Path = rel
	format, ok := document.DetectFormat(rel)
	if !ok {
		res.Err = errors.NewUnsupported("file", rel)
		return res
	}
	res.Format = format
	res.Output = OutputPath(rel, format)

	src := filepath.Join(root, filepath.FromSlash(rel))
	input, err := os.ReadFile(src)
	if err != nil {
		res.Err = errors.NewIO("read", src, err)
		return res
	}

	opts := p.Options
	opts.Source = rel
	var out bytes.Buffer
	st, err := document.Rewrite(format, bytes.NewReader(input), &out, p.rewriter(), opts)
	if err != nil {
		res.Err = err
		return res
	}
	res.Changed = st.Changed > 0
	res.Citations = len(st.Links)
	res.Warnings = len(st.Warnings)
	if format == document.FormatText && !res.Changed {
		// unchanged text is copied verbatim; as HTML it still needs escaping
		out.Reset()
		out.WriteString(html.EscapeString(string(input)))
	}

	dstRoot := root
	if p.OutDir != "" {
		dstRoot = p.OutDir
	}
	dst := filepath.Join(dstRoot, filepath.FromSlash(res.Output))
	inPlace := filepath.Clean(dst) == filepath.Clean(src)

	if !inPlace || res.Changed {
		if inPlace && p.Backup != nil {
			if res.Backup, err = p.Backup.Store(input); err != nil {
				res.Err = errors.NewIO("backup", src, err)
				return res
			}
		}
		if err := writeFile(dst, out.Bytes()); err != nil {
			res.Err = err
			return res
		}
		res.Written = true
	}

	if p.Index != nil {
		// earlier passes' anchors are skipped by the rewrite, so the index
		// reads every link from the output
		links, err := document.Linked(bytes.NewReader(out.Bytes()), p.rewriter())
		if err == nil {
			res.Indexed, err = p.Index.Record(ctx, run, rel, out.Bytes(), links)
		}
		if err != nil {
			res.Err = err
			return res
		}
	}

	if res.Changed {
		logging.DocumentRewritten(rel, string(format), res.Citations, "output", res.Output)
	}
	return res
}

// writeFile replaces path atomically, creating parent directories.
func writeFile(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIO("mkdir", dir, err)
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(dst); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, ".reflink-*")
	if err != nil {
		return errors.NewIO("write", dst, err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := stderrors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return errors.NewIO("write", dst, err)
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		os.Remove(tmp.Name())
		return errors.NewIO("chmod", dst, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return errors.NewIO("rename", dst, err)
	}
	return nil
}
