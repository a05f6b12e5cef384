package citation

import (
	"errors"
	"testing"

	"github.com/FocuswithJustin/reflink/core/books"
	rerrors "github.com/FocuswithJustin/reflink/core/errors"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		m    RawMatch
		want Citation
	}{
		{
			name: "single verse",
			m:    RawMatch{BookToken: "John", Chapter: "3", VerseExpr: "16"},
			want: Citation{Book: "john", Chapter: 3, Verse: 16},
		},
		{
			name: "range and version",
			m:    RawMatch{BookToken: "1 Cor", Chapter: "13", VerseExpr: "4-7", VersionToken: "niv"},
			want: Citation{Book: "1 corinthians", Chapter: 13, Verse: 4, VerseEnd: 7, Version: NIV},
		},
		{
			name: "prefix completes base name",
			m:    RawMatch{NumericPrefix: "2", BookToken: "Thess", Chapter: "3"},
			want: Citation{Book: "2 thessalonians", Chapter: 3},
		},
		{
			name: "prefix completes samuel",
			m:    RawMatch{NumericPrefix: "1", BookToken: "Sam", Chapter: "17", VerseExpr: "45"},
			want: Citation{Book: "1 samuel", Chapter: 17, Verse: 45},
		},
		{
			name: "numeral in id wins over prefix",
			m:    RawMatch{NumericPrefix: "2", BookToken: "1cor", Chapter: "3"},
			want: Citation{Book: "1 corinthians", Chapter: 3},
		},
		{
			name: "whitespace inside range",
			m:    RawMatch{BookToken: "Ps", Chapter: "119", VerseExpr: "1 - 8"},
			want: Citation{Book: "psalms", Chapter: 119, Verse: 1, VerseEnd: 8},
		},
	}

	r := NewResolver(books.Default())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warn, err := r.Resolve(tt.m)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if warn != nil {
				t.Errorf("Resolve() warning = %v, want none", warn)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveUnknownBookFallsBack(t *testing.T) {
	r := NewResolver(books.Default())

	got, warn, err := r.Resolve(RawMatch{NumericPrefix: "2", BookToken: "Hezekiah", Chapter: "4"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Book != "2 hezekiah" {
		t.Errorf("Book = %q, want %q", got.Book, "2 hezekiah")
	}
	var ube *rerrors.UnresolvedBookError
	if !errors.As(warn, &ube) {
		t.Fatalf("warning = %v, want UnresolvedBookError", warn)
	}
	if ube.Fallback != "hezekiah" {
		t.Errorf("Fallback = %q, want %q", ube.Fallback, "hezekiah")
	}
	if !errors.Is(warn, rerrors.ErrNotFound) {
		t.Error("warning does not wrap ErrNotFound")
	}
}

func TestResolveRejects(t *testing.T) {
	tests := []struct {
		name  string
		m     RawMatch
		field string
	}{
		{"chapter zero", RawMatch{BookToken: "John", Chapter: "0"}, "chapter"},
		{"chapter overflow", RawMatch{BookToken: "John", Chapter: "99999999999999999999"}, "chapter"},
		{"verse zero", RawMatch{BookToken: "John", Chapter: "3", VerseExpr: "0"}, "verse"},
		{"range end zero", RawMatch{BookToken: "John", Chapter: "3", VerseExpr: "4-0"}, "verse"},
		{"dangling dash", RawMatch{BookToken: "John", Chapter: "3", VerseExpr: "4-"}, "verse"},
		{"unknown version", RawMatch{BookToken: "John", Chapter: "3", VersionToken: "MSG"}, "version"},
	}

	r := NewResolver(books.Default())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Resolve(tt.m)
			var ce *rerrors.CitationError
			if !errors.As(err, &ce) {
				t.Fatalf("Resolve() error = %v, want CitationError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}
