package document

import (
	"bytes"
	stderrors "errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/core/errors"
)

// htmlNoAnchor lists elements whose text cannot become an anchor. The
// parser keeps the content of raw text elements as text, so an anchor
// would render as literal markup; inside select lists it drops the anchor
// and the next pass would link the same text again.
var htmlNoAnchor = []string{
	"title", "textarea", "xmp", "iframe", "noembed", "noframes", "noscript", "plaintext",
	"select", "option", "optgroup",
}

// parseFragment is replaced in tests to simulate markup the parser rejects.
var parseFragment = html.ParseFragment

// RewriteHTML rewrites an HTML document or body fragment. Input that starts
// with a doctype or an html element is treated as a full document;
// anything else is parsed as the content of a template element, which
// keeps table parts such as a bare <tr> in place, and is written back
// without any implied wrappers.
func RewriteHTML(r io.Reader, w io.Writer, rw *citation.Rewriter, opts Options) (Stats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Stats{}, errors.NewIO("read", opts.Source, err)
	}

	var root *html.Node
	full := isFullHTML(data)
	if full {
		root, err = html.Parse(bytes.NewReader(data))
	} else {
		var nodes []*html.Node
		root = &html.Node{Type: html.ElementNode, Data: "template", DataAtom: atom.Template}
		nodes, err = html.ParseFragment(bytes.NewReader(data), root)
		for _, n := range nodes {
			root.AppendChild(n)
		}
	}
	if err != nil {
		return Stats{}, errors.NewParse("HTML", opts.Source, err)
	}

	st := apply(&htmlDocument{root: root}, rw, opts, opts.excluded(htmlNoAnchor...))
	if st.Changed == 0 {
		if _, err := w.Write(data); err != nil {
			return st, errors.NewIO("write", opts.Source, err)
		}
		return st, nil
	}

	if full {
		err = html.Render(w, root)
	} else {
		for c := root.FirstChild; c != nil && err == nil; c = c.NextSibling {
			err = html.Render(w, c)
		}
	}
	if err != nil {
		return st, errors.NewIO("write", opts.Source, err)
	}
	return st, nil
}

func isFullHTML(data []byte) bool {
	head := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n")
	if len(head) > 16 {
		head = head[:16]
	}
	lower := strings.ToLower(string(head))
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}

func newBody() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

type htmlDocument struct {
	root *html.Node
}

func (d *htmlDocument) Leaves() []Leaf {
	var leaves []Leaf
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && n.Parent != nil {
			leaves = append(leaves, &htmlLeaf{node: n})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return leaves
}

type htmlLeaf struct {
	node *html.Node
}

func (l *htmlLeaf) Text() string {
	return l.node.Data
}

func (l *htmlLeaf) Ancestors() []string {
	var tags []string
	for p := l.node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			tags = append(tags, strings.ToLower(p.Data))
		}
	}
	return tags
}

// Replace builds every replacement node first and only then touches the
// tree, so a failure halfway leaves the leaf as it was.
func (l *htmlLeaf) Replace(segs []citation.Segment) error {
	context := l.node.Parent
	if context.Type != html.ElementNode {
		context = newBody()
	}

	var (
		nodes []*html.Node
		errs  []error
	)
	for _, s := range segs {
		if !s.IsLink() {
			nodes = append(nodes, &html.Node{Type: html.TextNode, Data: s.Text})
			continue
		}
		n, err := parseLink(s.Markup(), context)
		if err != nil {
			errs = append(errs, err)
			nodes = append(nodes, &html.Node{Type: html.TextNode, Data: s.Text})
			continue
		}
		nodes = append(nodes, n)
	}

	parent := l.node.Parent
	for _, n := range nodes {
		parent.InsertBefore(n, l.node)
	}
	parent.RemoveChild(l.node)
	return stderrors.Join(errs...)
}

// parseLink turns anchor markup into exactly one element node.
func parseLink(markup string, context *html.Node) (*html.Node, error) {
	nodes, err := parseFragment(strings.NewReader(markup), context)
	if err == nil && (len(nodes) != 1 || nodes[0].Type != html.ElementNode || nodes[0].DataAtom != atom.A) {
		err = stderrors.New("expected a single anchor element")
	}
	if err != nil {
		return nil, &errors.MarkupError{Backend: "html", Markup: markup, Err: err}
	}
	return nodes[0], nil
}
