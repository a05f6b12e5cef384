package citation

import (
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/reflink/core/books"
	"github.com/FocuswithJustin/reflink/core/errors"
)

// verseGrammar is the verse expression after the colon: "16" or "4-7".
//
//nolint:govet // participle grammar tags are not standard struct tags
type verseGrammar struct {
	Start int  `@Int`
	End   *int `( "-" @Int )?`
}

var verseLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `-`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var verseParser = participle.MustBuild[verseGrammar](
	participle.Lexer(verseLexer),
	participle.Elide("Whitespace"),
)

// Resolver turns raw matches into citations.
type Resolver struct {
	table *books.Table
}

// NewResolver returns a resolver backed by table.
func NewResolver(table *books.Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve normalizes one match. A book token missing from the table is not
// fatal: the normalized token becomes the book id and warn carries an
// UnresolvedBookError. err is set when the match cannot be converted at
// all, in which case the caller leaves the text alone.
func (r *Resolver) Resolve(m RawMatch) (c Citation, warn error, err error) {
	book, ok := r.table.Resolve(m.BookToken)
	if !ok {
		book = books.Normalize(m.BookToken)
		warn = &errors.UnresolvedBookError{Token: m.BookToken, Fallback: book}
	}

	// A numeral inside the id wins over one typed separately, so that
	// "2 1Thess" never becomes "2 1 thessalonians".
	if m.NumericPrefix != "" && books.Numeral(book) == "" {
		book = m.NumericPrefix + " " + book
	}
	c.Book = book

	c.Chapter, err = strconv.Atoi(m.Chapter)
	if err != nil {
		return Citation{}, warn, &errors.CitationError{Text: m.Text, Field: "chapter", Message: "not a number", Err: err}
	}
	if c.Chapter < 1 {
		return Citation{}, warn, &errors.CitationError{Text: m.Text, Field: "chapter", Message: "must be at least 1"}
	}

	if m.VerseExpr != "" {
		v, perr := verseParser.ParseString("", m.VerseExpr)
		if perr != nil {
			return Citation{}, warn, &errors.CitationError{Text: m.Text, Field: "verse", Message: "malformed verse expression", Err: perr}
		}
		if v.Start < 1 {
			return Citation{}, warn, &errors.CitationError{Text: m.Text, Field: "verse", Message: "must be at least 1"}
		}
		c.Verse = v.Start
		if v.End != nil {
			if *v.End < 1 {
				return Citation{}, warn, &errors.CitationError{Text: m.Text, Field: "verse", Message: "range end must be at least 1"}
			}
			c.VerseEnd = *v.End
		}
	}

	if m.VersionToken != "" {
		c.Version, err = ParseVersion(m.VersionToken)
		if err != nil {
			return Citation{}, warn, &errors.CitationError{Text: m.Text, Field: "version", Message: err.Error(), Err: err}
		}
	}

	return c, warn, nil
}
