package document

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/FocuswithJustin/reflink/core/citation"
)

// Linked returns a link segment for every citation anchor in a rewritten
// document, in document order. An anchor counts when its label resolves
// through rw to the same href it carries, so links made by earlier passes
// are found again and hand-written links elsewhere are not. HTML, XHTML
// and the HTML produced from text and Markdown are all read the same way.
func Linked(r io.Reader, rw *citation.Rewriter) ([]citation.Segment, error) {
	var (
		segs  []citation.Segment
		href  string
		label strings.Builder
		depth int
	)
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return segs, err
			}
			return segs, nil
		case html.StartTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.A {
				continue
			}
			if depth > 0 {
				depth++
				continue
			}
			if h, ok := anchorHref(tok); ok {
				href = h
				label.Reset()
				depth = 1
			}
		case html.EndTagToken:
			if depth == 0 {
				continue
			}
			name, _ := z.TagName()
			if string(name) != "a" {
				continue
			}
			if depth--; depth > 0 {
				continue
			}
			text := label.String()
			c, link, err := rw.Lookup(text)
			if err == nil && link.Href == href {
				segs = append(segs, citation.Segment{Text: text, Link: &link, Citation: c})
			}
		case html.TextToken:
			if depth > 0 {
				label.Write(z.Text())
			}
		}
	}
}

// anchorHref reports the href of an anchor shaped like LinkResult.Anchor.
func anchorHref(tok html.Token) (string, bool) {
	var href string
	var rel bool
	for _, a := range tok.Attr {
		switch strings.ToLower(a.Key) {
		case "href":
			href = a.Val
		case "rel":
			rel = a.Val == "noopener noreferrer"
		}
	}
	return href, rel && href != ""
}
