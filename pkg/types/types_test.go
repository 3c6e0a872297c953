package types

import (
	"strings"
	"testing"
)

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    Language
		wantErr bool
	}{
		{"py", LanguagePython, false},
		{"r", LanguageR, false},
		{"python", "", true},
		{"R", "", true},
		{"go", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseLanguage(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLanguage(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if tt.wantErr && err != nil && !strings.Contains(err.Error(), "not supported") {
			t.Errorf("ParseLanguage(%q) error %q should name the unsupported language", tt.in, err)
		}
	}
}

func TestArgv(t *testing.T) {
	if got := strings.Join(LanguagePython.Argv(), " "); got != "python -c" {
		t.Errorf("py Argv = %q", got)
	}
	if got := strings.Join(LanguageR.Argv(), " "); got != "Rscript -e" {
		t.Errorf("r Argv = %q", got)
	}
}

func TestEmptyOutputHint(t *testing.T) {
	if got := LanguagePython.EmptyOutputHint(); !strings.Contains(got, "print the results in Python") {
		t.Errorf("py hint = %q", got)
	}
	if got := LanguageR.EmptyOutputHint(); !strings.Contains(got, "cat() to display results in R") {
		t.Errorf("r hint = %q", got)
	}
}
