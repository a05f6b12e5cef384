package document

import (
	stderrors "errors"
	"io"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/core/errors"
)

// RewriteMarkdown renders Markdown to HTML with citations in ordinary text
// turned into links. Link text, image descriptions, code spans and code
// blocks are left alone. Raw HTML in the source is passed through.
func RewriteMarkdown(r io.Reader, w io.Writer, rw *citation.Rewriter, opts Options) (Stats, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return Stats{}, errors.NewIO("read", opts.Source, err)
	}

	t := &citationTransformer{rw: rw, opts: opts}
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(t, 1000)),
		),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	if err := md.Convert(source, w); err != nil {
		return t.stats, errors.NewParse("Markdown", opts.Source, err)
	}
	return t.stats, nil
}

// citationTransformer runs Apply over the parsed Markdown tree before it is
// rendered.
type citationTransformer struct {
	rw    *citation.Rewriter
	opts  Options
	stats Stats
}

func (t *citationTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	doc := &markdownDocument{root: node, source: reader.Source()}
	t.stats.add(apply(doc, t.rw, t.opts, t.opts.excluded("img")))
}

type markdownDocument struct {
	root   ast.Node
	source []byte
}

// Leaves returns one leaf per run of adjacent text nodes. The inline
// parser splits text at brackets it tries as links, so "John 3:16 [NIV]"
// arrives as several nodes that have to be scanned together.
func (d *markdownDocument) Leaves() []Leaf {
	var leaves []Leaf
	_ = ast.Walk(d.root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		t, ok := n.(*ast.Text)
		if !ok || t.IsRaw() {
			return ast.WalkContinue, nil
		}
		if prev, ok := t.PreviousSibling().(*ast.Text); ok && joined(prev, t) {
			return ast.WalkContinue, nil
		}
		leaf := &markdownLeaf{nodes: []*ast.Text{t}, source: d.source}
		for next, ok := t.NextSibling().(*ast.Text); ok && joined(leaf.last(), next); next, ok = next.NextSibling().(*ast.Text) {
			leaf.nodes = append(leaf.nodes, next)
		}
		leaves = append(leaves, leaf)
		return ast.WalkContinue, nil
	})
	return leaves
}

// joined reports whether b continues a in the source with no line break
// between them.
func joined(a, b *ast.Text) bool {
	return !a.IsRaw() && !b.IsRaw() && !a.SoftLineBreak() && !a.HardLineBreak() &&
		a.Segment.Stop == b.Segment.Start
}

type markdownLeaf struct {
	nodes  []*ast.Text
	source []byte
}

func (l *markdownLeaf) first() *ast.Text { return l.nodes[0] }
func (l *markdownLeaf) last() *ast.Text  { return l.nodes[len(l.nodes)-1] }

func (l *markdownLeaf) Text() string {
	return string(l.source[l.first().Segment.Start:l.last().Segment.Stop])
}

func (l *markdownLeaf) Ancestors() []string {
	var tags []string
	for p := l.first().Parent(); p != nil; p = p.Parent() {
		if tag := markdownTag(p); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Replace inserts plain segments as strings the renderer escapes and link
// segments as pre-rendered HTML. An empty text node at the end keeps the
// line break that followed the original text.
func (l *markdownLeaf) Replace(segs []citation.Segment) error {
	var (
		nodes []ast.Node
		errs  []error
	)
	for _, s := range segs {
		if s.IsLink() {
			markup := s.Markup()
			_, err := parseLink(markup, newBody())
			if err == nil {
				str := ast.NewString([]byte(markup))
				str.SetCode(true)
				nodes = append(nodes, str)
				continue
			}
			errs = append(errs, err)
		}
		nodes = append(nodes, ast.NewString([]byte(s.Text)))
	}

	last := l.last()
	stop := last.Segment.Stop
	tail := ast.NewTextSegment(text.NewSegment(stop, stop))
	tail.SetSoftLineBreak(last.SoftLineBreak())
	tail.SetHardLineBreak(last.HardLineBreak())
	nodes = append(nodes, tail)

	parent := l.first().Parent()
	for _, n := range nodes {
		parent.InsertBefore(parent, l.first(), n)
	}
	for _, n := range l.nodes {
		parent.RemoveChild(parent, n)
	}
	return stderrors.Join(errs...)
}

func markdownTag(n ast.Node) string {
	switch v := n.(type) {
	case *ast.Document, *ast.TextBlock:
		return ""
	case *ast.Link, *ast.AutoLink:
		return "a"
	case *ast.Image:
		return "img"
	case *ast.CodeSpan:
		return "code"
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		return "pre"
	case *ast.Emphasis:
		if v.Level >= 2 {
			return "strong"
		}
		return "em"
	case *ast.Heading:
		return "h" + strconv.Itoa(v.Level)
	case *ast.Paragraph:
		return "p"
	case *ast.Blockquote:
		return "blockquote"
	case *ast.List:
		if v.IsOrdered() {
			return "ol"
		}
		return "ul"
	case *ast.ListItem:
		return "li"
	}
	return strings.ToLower(n.Kind().String())
}
