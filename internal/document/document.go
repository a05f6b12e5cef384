// Package document applies the citation rewriter to structured documents.
//
// A backend exposes the text leaves of a parsed tree together with their
// ancestor tags. Apply rewrites every leaf that does not sit inside an
// excluded element and asks the leaf to splice the result back in place.
package document

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/core/errors"
	"github.com/FocuswithJustin/reflink/internal/logging"
)

// DefaultExclude lists the elements whose text is never rewritten.
var DefaultExclude = []string{"a", "pre", "code", "script", "style"}

// Leaf is one text-bearing node of a document.
type Leaf interface {
	// Text returns the character data of the leaf.
	Text() string
	// Ancestors returns lowercase element names, nearest first.
	Ancestors() []string
	// Replace swaps the leaf for the given segments. A link segment whose
	// markup cannot be turned into nodes is inserted as its plain text and
	// reported through the returned error; the other segments still land.
	Replace(segs []citation.Segment) error
}

// Document enumerates its text leaves in document order.
type Document interface {
	Leaves() []Leaf
}

// Options controls which leaves Apply touches.
type Options struct {
	// Exclude adds element names to DefaultExclude.
	Exclude []string
	// Source names the document in log lines.
	Source string
}

func (o Options) excluded(extra ...string) map[string]bool {
	set := make(map[string]bool, len(DefaultExclude)+len(o.Exclude)+len(extra))
	for _, lists := range [][]string{DefaultExclude, o.Exclude, extra} {
		for _, tag := range lists {
			set[strings.ToLower(strings.TrimSpace(tag))] = true
		}
	}
	return set
}

// Stats summarizes one Apply run.
type Stats struct {
	Leaves  int // text leaves seen
	Skipped int // leaves under an excluded element
	Changed int // leaves replaced
	// Links holds every link segment that made it into the document.
	Links    []citation.Segment
	Warnings []error
}

// Citations returns the citations of all placed links.
func (s Stats) Citations() []citation.Citation {
	out := make([]citation.Citation, len(s.Links))
	for i, l := range s.Links {
		out[i] = l.Citation
	}
	return out
}

func (s *Stats) add(o Stats) {
	s.Leaves += o.Leaves
	s.Skipped += o.Skipped
	s.Changed += o.Changed
	s.Links = append(s.Links, o.Links...)
	s.Warnings = append(s.Warnings, o.Warnings...)
}

// Apply rewrites the eligible leaves of doc. Leaves are collected before
// any of them is replaced, so new nodes are never revisited.
func Apply(doc Document, rw *citation.Rewriter, opts Options) Stats {
	return apply(doc, rw, opts, opts.excluded())
}

func apply(doc Document, rw *citation.Rewriter, opts Options, excluded map[string]bool) Stats {
	var st Stats
	for _, leaf := range doc.Leaves() {
		st.Leaves++
		if isExcluded(leaf.Ancestors(), excluded) {
			st.Skipped++
			continue
		}
		applyLeaf(leaf, rw, opts.Source, &st)
	}
	return st
}

func isExcluded(ancestors []string, excluded map[string]bool) bool {
	for _, tag := range ancestors {
		if excluded[tag] {
			return true
		}
	}
	return false
}

func applyLeaf(leaf Leaf, rw *citation.Rewriter, source string, st *Stats) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: rewriting text leaf: %v", errors.ErrInternal, p)
			st.Warnings = append(st.Warnings, err)
			logging.Error("leaf_rewrite_failed", "source", source, "error", err.Error())
		}
	}()

	res := rw.Rewrite(leaf.Text())
	for _, w := range res.Warnings {
		logging.CitationWarning(source, w)
	}
	st.Warnings = append(st.Warnings, res.Warnings...)
	if !res.Changed {
		return
	}

	err := leaf.Replace(res.Segments)
	failed := failedMarkup(err)
	if err != nil {
		logging.CitationWarning(source, err)
		st.Warnings = append(st.Warnings, err)
	}
	st.Changed++
	for _, s := range res.Segments {
		if s.IsLink() && !failed[s.Markup()] {
			st.Links = append(st.Links, s)
		}
	}
}

// failedMarkup collects the markup of every MarkupError inside err.
func failedMarkup(err error) map[string]bool {
	if err == nil {
		return nil
	}
	failed := make(map[string]bool)
	var walk func(error)
	walk = func(e error) {
		switch x := e.(type) {
		case *errors.MarkupError:
			failed[x.Markup] = true
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return failed
}

// Format identifies a document backend.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatHTML     Format = "html"
	FormatXHTML    Format = "xhtml"
	FormatMarkdown Format = "markdown"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatText, FormatHTML, FormatXHTML, FormatMarkdown}
}

// ParseFormat maps a format name or common alias to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt", "plain", "":
		return FormatText, nil
	case "html", "htm":
		return FormatHTML, nil
	case "xhtml", "xml":
		return FormatXHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", errors.NewUnsupported("format", s)
}

// DetectFormat picks a format from a file extension. Unknown extensions
// report false.
func DetectFormat(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return FormatHTML, true
	case ".xhtml", ".xml":
		return FormatXHTML, true
	case ".md", ".markdown":
		return FormatMarkdown, true
	case ".txt":
		return FormatText, true
	}
	return "", false
}

// Rewrite reads a document in format f from r and writes the rewritten
// document to w. When nothing changes the input is copied verbatim.
func Rewrite(f Format, r io.Reader, w io.Writer, rw *citation.Rewriter, opts Options) (Stats, error) {
	switch f {
	case FormatText:
		return RewriteText(r, w, rw, opts)
	case FormatHTML:
		return RewriteHTML(r, w, rw, opts)
	case FormatXHTML:
		return RewriteXHTML(r, w, rw, opts)
	case FormatMarkdown:
		return RewriteMarkdown(r, w, rw, opts)
	}
	return Stats{}, errors.NewUnsupported("format", string(f))
}

// RewriteString is Rewrite over strings.
func RewriteString(f Format, content string, rw *citation.Rewriter, opts Options) (string, Stats, error) {
	var buf bytes.Buffer
	st, err := Rewrite(f, strings.NewReader(content), &buf, rw, opts)
	if err != nil {
		return "", st, err
	}
	return buf.String(), st, nil
}

// RewriteText treats the whole input as one fragment and writes HTML.
func RewriteText(r io.Reader, w io.Writer, rw *citation.Rewriter, opts Options) (Stats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Stats{}, errors.NewIO("read", opts.Source, err)
	}
	doc := &textDocument{text: string(data)}
	st := Apply(doc, rw, opts)
	if _, err := io.WriteString(w, doc.text); err != nil {
		return st, errors.NewIO("write", opts.Source, err)
	}
	return st, nil
}

// textDocument is a document with a single leaf and no ancestors.
type textDocument struct {
	text string
}

func (d *textDocument) Leaves() []Leaf { return []Leaf{textLeaf{d}} }

type textLeaf struct{ d *textDocument }

func (l textLeaf) Text() string        { return l.d.text }
func (l textLeaf) Ancestors() []string { return nil }

func (l textLeaf) Replace(segs []citation.Segment) error {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.Markup())
	}
	l.d.text = sb.String()
	return nil
}
