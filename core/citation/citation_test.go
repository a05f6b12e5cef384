package citation

import (
	"errors"
	"testing"

	rerrors "github.com/FocuswithJustin/reflink/core/errors"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    Version
		wantErr bool
	}{
		{"NIV", NIV, false},
		{"niv", NIV, false},
		{" Nasb ", NASB, false},
		{"web", WEB, false},
		{"MSG", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, rerrors.ErrInvalidInput) {
				t.Errorf("ParseVersion(%q) error = %v, want ErrInvalidInput", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestVersionsIsACopy(t *testing.T) {
	v := Versions()
	if len(v) != 8 {
		t.Fatalf("Versions() returned %d codes, want 8", len(v))
	}
	v[0] = "XXX"
	if Versions()[0] != KJV {
		t.Error("Versions() exposes internal state")
	}
}

func TestCitationString(t *testing.T) {
	tests := []struct {
		c    Citation
		want string
		rng  bool
	}{
		{Citation{Book: "john", Chapter: 3, Verse: 16}, "john 3:16", false},
		{Citation{Book: "1 corinthians", Chapter: 13, Verse: 4, VerseEnd: 7, Version: NIV}, "1 corinthians 13:4-7 NIV", true},
		{Citation{Book: "psalms", Chapter: 23}, "psalms 23", false},
		{Citation{Book: "jude", Chapter: 1, Version: KJV}, "jude 1 KJV", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.c.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := tt.c.IsRange(); got != tt.rng {
				t.Errorf("IsRange() = %v, want %v", got, tt.rng)
			}
		})
	}
}
