// Package books maps the many ways people write scripture book names onto
// one canonical book id.
//
// Ids are lowercase and space separated ("1 corinthians", "song of solomon").
// The table is immutable after construction and safe for concurrent use.
package books

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/FocuswithJustin/reflink/core/errors"
)

// Entry is one canonical book and the abbreviations that resolve to it.
// The id itself is always a valid spelling and need not be repeated.
type Entry struct {
	ID      string
	Aliases []string
	// Base marks a partial name ("samuel") that is completed by a numeral
	// token captured separately from the text.
	Base bool
}

// Table resolves spellings to canonical ids.
type Table struct {
	byAlias   map[string]string
	aliases   map[string][]string
	books     []string
	spellings []string
}

var defaultTable = sync.OnceValue(func() *Table {
	t, err := NewTable(canon)
	if err != nil {
		panic("books: invalid built-in table: " + err.Error())
	}
	return t
})

// Default returns the built-in table covering all 66 books.
func Default() *Table {
	return defaultTable()
}

// NewTable builds a table from entries. Spellings are compared after
// Normalize and must be unique across the whole table.
func NewTable(entries []Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, &errors.ValidationError{Message: "alias table has no entries"}
	}

	t := &Table{
		byAlias: make(map[string]string),
		aliases: make(map[string][]string),
	}

	for _, e := range entries {
		id := Normalize(e.ID)
		if id == "" {
			return nil, errors.NewValidation("id", "empty canonical id")
		}
		if _, dup := t.aliases[id]; dup {
			return nil, &errors.ValidationError{Field: "id", Value: id, Message: "duplicate canonical id " + id}
		}
		t.aliases[id] = nil
		if !e.Base {
			t.books = append(t.books, id)
		}

		for _, raw := range append([]string{e.ID}, e.Aliases...) {
			spelling := Normalize(raw)
			if spelling == "" {
				return nil, &errors.ValidationError{Field: "alias", Value: id, Message: "empty spelling for " + id}
			}
			if owner, dup := t.byAlias[spelling]; dup {
				return nil, &errors.ValidationError{
					Field:   "alias",
					Value:   spelling,
					Message: "spelling " + spelling + " used by both " + owner + " and " + id,
				}
			}
			t.byAlias[spelling] = id
			t.aliases[id] = append(t.aliases[id], spelling)
			t.spellings = append(t.spellings, spelling)
		}
	}

	sort.Slice(t.spellings, func(i, j int) bool {
		a, b := t.spellings[i], t.spellings[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})

	return t, nil
}

// Resolve returns the canonical id for a spelling, ignoring case and
// surrounding whitespace.
func (t *Table) Resolve(spelling string) (string, bool) {
	id, ok := t.byAlias[Normalize(spelling)]
	return id, ok
}

// Spellings returns every known spelling, longest first. Pattern builders
// rely on this order so that alternation picks the most specific spelling.
func (t *Table) Spellings() []string {
	out := make([]string, len(t.spellings))
	copy(out, t.spellings)
	return out
}

// Books returns the canonical ids of complete books in canonical order.
func (t *Table) Books() []string {
	out := make([]string, len(t.books))
	copy(out, t.books)
	return out
}

// Aliases returns the spellings that resolve to id, the id first.
func (t *Table) Aliases(id string) ([]string, error) {
	spellings, ok := t.aliases[Normalize(id)]
	if !ok {
		return nil, errors.NewNotFound("book", id)
	}
	out := make([]string, len(spellings))
	copy(out, spellings)
	return out, nil
}

// Normalize folds a spelling into table form: NFKC, lowercase, trimmed,
// trailing periods dropped, underscores read as spaces, inner whitespace
// collapsed to single spaces.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Lower(language.Und).String(s)
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".")
}

// Numeral returns the leading numeral token of an id ("1" for
// "1 corinthians"), or "" when the id has none.
func Numeral(id string) string {
	first, _, _ := strings.Cut(id, " ")
	if first == "" {
		return ""
	}
	for _, r := range first {
		if !unicode.IsDigit(r) {
			return ""
		}
	}
	return first
}

// DisplayName capitalizes each word of an id, leaving numeral tokens bare:
// "1 corinthians" becomes "1 Corinthians".
func DisplayName(id string) string {
	return cases.Title(language.English).String(id)
}

// PathName is the id as it appears in a URL path: lowercase, spaces
// replaced by underscores.
func PathName(id string) string {
	return strings.ReplaceAll(strings.ToLower(id), " ", "_")
}
