package citation

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/FocuswithJustin/reflink/core/books"
	"github.com/FocuswithJustin/reflink/core/errors"
)

// Segment is one piece of a rewritten fragment: plain text, or a citation
// turned into a link. Text always holds the original characters, so a
// backend that cannot splice a link can fall back to it.
type Segment struct {
	Text     string
	Link     *LinkResult
	Citation Citation
}

// IsLink reports whether the segment is a citation link.
func (s Segment) IsLink() bool {
	return s.Link != nil
}

// Markup renders the segment as HTML: an anchor for links, escaped text
// otherwise.
func (s Segment) Markup() string {
	if s.Link != nil {
		return s.Link.Anchor()
	}
	return html.EscapeString(s.Text)
}

// Result is the outcome of rewriting one fragment.
//
// When Changed is false, Markup is the input unchanged and Segments is nil.
// Otherwise Markup is HTML in which the plain text is escaped.
type Result struct {
	Changed   bool
	Markup    string
	Segments  []Segment
	Citations []Citation
	// Warnings lists matches that were left as text or resolved with a
	// fallback. They never stop the rewrite.
	Warnings []error
}

// Config configures a Rewriter. A nil Table means books.Default().
type Config struct {
	Table *books.Table
	Links LinkBuilder
}

// Rewriter finds citations in text fragments and replaces them with links.
type Rewriter struct {
	pattern  *Pattern
	resolver *Resolver
	links    LinkBuilder
}

// New compiles the citation pattern for cfg.Table.
func New(cfg Config) (*Rewriter, error) {
	table := cfg.Table
	if table == nil {
		table = books.Default()
	}
	pattern, err := NewPattern(table)
	if err != nil {
		return nil, fmt.Errorf("compile citation pattern: %w", err)
	}
	return &Rewriter{
		pattern:  pattern,
		resolver: NewResolver(table),
		links:    cfg.Links,
	}, nil
}

var defaultRewriter = sync.OnceValue(func() *Rewriter {
	rw, err := New(Config{Links: NewLinkBuilder()})
	if err != nil {
		panic("citation: " + err.Error())
	}
	return rw
})

// Default returns the shared rewriter for the built-in table and links.
func Default() *Rewriter {
	return defaultRewriter()
}

// Rewrite replaces every citation in text with a link. Matches that cannot
// be converted stay as they were and are reported in Warnings.
func (r *Rewriter) Rewrite(text string) Result {
	matches := r.pattern.FindAll(text)
	if len(matches) == 0 {
		return Result{Markup: text}
	}

	var res Result
	pos := 0
	for _, m := range matches {
		c, link, warn, err := r.convert(m)
		if warn != nil {
			res.Warnings = append(res.Warnings, warn)
		}
		if err != nil {
			res.Warnings = append(res.Warnings, err)
			continue
		}
		if m.Start > pos {
			res.Segments = append(res.Segments, Segment{Text: text[pos:m.Start]})
		}
		res.Segments = append(res.Segments, Segment{Text: m.Text, Link: &link, Citation: c})
		res.Citations = append(res.Citations, c)
		pos = m.End
	}

	if len(res.Citations) == 0 {
		return Result{Markup: text, Warnings: res.Warnings}
	}
	if pos < len(text) {
		res.Segments = append(res.Segments, Segment{Text: text[pos:]})
	}

	var sb strings.Builder
	for _, s := range res.Segments {
		sb.WriteString(s.Markup())
	}
	res.Markup = sb.String()
	res.Changed = true
	return res
}

// convert resolves one match and builds its link. A panic stays confined
// to the match and comes back as an error wrapping ErrInternal.
func (r *Rewriter) convert(m RawMatch) (c Citation, link LinkResult, warn, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: citation %q: %v", errors.ErrInternal, m.Text, p)
		}
	}()

	c, warn, err = r.resolver.Resolve(m)
	if err != nil {
		return Citation{}, LinkResult{}, warn, err
	}
	return c, r.links.Build(c), warn, nil
}

// Lookup resolves s, which must consist of exactly one citation.
func (r *Rewriter) Lookup(s string) (Citation, LinkResult, error) {
	m, ok := r.pattern.Match(strings.TrimSpace(s))
	if !ok {
		return Citation{}, LinkResult{}, errors.NewNotFound("citation", s)
	}
	c, link, _, err := r.convert(m)
	if err != nil {
		return Citation{}, LinkResult{}, err
	}
	return c, link, nil
}

// Pattern returns the compiled citation pattern.
func (r *Rewriter) Pattern() *Pattern {
	return r.pattern
}
