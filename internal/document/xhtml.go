package document

import (
	"bytes"
	"encoding/xml"
	stderrors "errors"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/core/errors"
)

// textLeaves selects text nodes that carry more than whitespace.
var textLeaves = xpath.MustCompile(`//text()[normalize-space(.) != '']`)

func xhtmlParserOptions() xmlquery.ParserOptions {
	return xmlquery.ParserOptions{
		Decoder: &xmlquery.DecoderOptions{
			Strict: true,
			Entity: xml.HTMLEntity,
		},
	}
}

// RewriteXHTML rewrites an XHTML or other XML document. Element names are
// compared by local name, so namespaced markup is excluded the same way as
// plain XHTML. A document without an XML declaration gains one when it
// changes.
func RewriteXHTML(r io.Reader, w io.Writer, rw *citation.Rewriter, opts Options) (Stats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Stats{}, errors.NewIO("read", opts.Source, err)
	}

	root, err := xmlquery.ParseWithOptions(bytes.NewReader(data), xhtmlParserOptions())
	if err != nil {
		return Stats{}, errors.NewParse("XHTML", opts.Source, err)
	}

	st := Apply(&xhtmlDocument{root: root}, rw, opts)
	if st.Changed == 0 {
		_, err = w.Write(data)
	} else {
		err = root.WriteWithOptions(w, xmlquery.WithPreserveSpace())
	}
	if err != nil {
		return st, errors.NewIO("write", opts.Source, err)
	}
	return st, nil
}

type xhtmlDocument struct {
	root *xmlquery.Node
}

func (d *xhtmlDocument) Leaves() []Leaf {
	var leaves []Leaf
	for _, n := range xmlquery.QuerySelectorAll(d.root, textLeaves) {
		// CDATA sections keep their literal form.
		if n.Type == xmlquery.TextNode {
			leaves = append(leaves, &xhtmlLeaf{node: n})
		}
	}
	return leaves
}

type xhtmlLeaf struct {
	node *xmlquery.Node
}

func (l *xhtmlLeaf) Text() string {
	return l.node.Data
}

func (l *xhtmlLeaf) Ancestors() []string {
	var tags []string
	for p := l.node.Parent; p != nil; p = p.Parent {
		if p.Type == xmlquery.ElementNode {
			tags = append(tags, strings.ToLower(p.Data))
		}
	}
	return tags
}

func (l *xhtmlLeaf) Replace(segs []citation.Segment) error {
	var (
		nodes []*xmlquery.Node
		errs  []error
	)
	for _, s := range segs {
		if !s.IsLink() {
			nodes = append(nodes, &xmlquery.Node{Type: xmlquery.TextNode, Data: s.Text})
			continue
		}
		n, err := parseXMLLink(s.Markup())
		if err != nil {
			errs = append(errs, err)
			nodes = append(nodes, &xmlquery.Node{Type: xmlquery.TextNode, Data: s.Text})
			continue
		}
		nodes = append(nodes, n)
	}

	prev := l.node
	for _, n := range nodes {
		xmlquery.AddImmediateSibling(prev, n)
		prev = n
	}
	xmlquery.RemoveFromTree(l.node)
	return stderrors.Join(errs...)
}

// parseXMLLink parses anchor markup and detaches its element.
func parseXMLLink(markup string) (*xmlquery.Node, error) {
	doc, err := xmlquery.ParseWithOptions(strings.NewReader(markup), xhtmlParserOptions())
	if err != nil {
		return nil, &errors.MarkupError{Backend: "xhtml", Markup: markup, Err: err}
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode && n.Data == "a" {
			xmlquery.RemoveFromTree(n)
			return n, nil
		}
	}
	return nil, &errors.MarkupError{Backend: "xhtml", Markup: markup}
}
