package parse

import (
	"strings"
	"testing"
)

func TestParseFileVersionValid(t *testing.T) {
	v, err := ParseFileVersion("3f79c7095dc57fea@v2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Hash != "3f79c7095dc57fea" || v.Version != 2 {
		t.Fatalf("got %+v", v)
	}
}

func TestParseFileVersionLeadingZeros(t *testing.T) {
	v, err := ParseFileVersion("aabbccdd11223344@v02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Version != 2 {
		t.Fatalf("expected version 2, got %d", v.Version)
	}
}

func TestParseFileVersionErrors(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		wantKind FileVersionErrorKind
	}{
		{"empty", "", ErrEmptyFilename},
		{"no separator", "3f79c7095dc57fea", ErrMissingVersionSeparator},
		{"hash too short", "nothash@v1", ErrInvalidHashLength},
		{"bad hex char", "g" + strings.Repeat("0", 15) + "@v1", ErrInvalidHashCharacter},
		{"missing version number", "0000000000000000@v", ErrMissingVersionNumber},
		{"non numeric version", "0000000000000000@vX", ErrInvalidVersionNumber},
		{"version zero", "0000000000000000@v0", ErrVersionZero},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFileVersion(tc.filename)
			if err == nil {
				t.Fatalf("expected error, got none")
			}
			fe, ok := err.(*FileVersionError)
			if !ok {
				t.Fatalf("expected *FileVersionError, got %T", err)
			}
			if fe.Kind != tc.wantKind {
				t.Fatalf("expected kind %v, got %v (%v)", tc.wantKind, fe.Kind, fe)
			}
		})
	}
}

func TestShouldSkipVersion(t *testing.T) {
	if !ShouldSkipVersion(1) {
		t.Fatal("v1 should be skipped")
	}
	if ShouldSkipVersion(2) {
		t.Fatal("v2 should not be skipped")
	}
}

func TestCalculateDiff(t *testing.T) {
	cases := []struct {
		name               string
		old, new           string
		added, removed, mod int
	}{
		{"both empty", "", "", 0, 0, 0},
		{"pure addition", "", "hello\nworld", 2, 0, 0},
		{"pure removal", "hello\nworld", "", 0, 2, 0},
		{"single line change", "hello", "world", 1, 1, 1},
		{"scenario from spec", "a\nb\nb\nc", "a\nb\nd", 1, 2, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := CalculateDiff(tc.old, tc.new)
			if d.LinesAdded != tc.added || d.LinesRemoved != tc.removed || d.LinesModified != tc.mod {
				t.Fatalf("got %+v, want added=%d removed=%d modified=%d", d, tc.added, tc.removed, tc.mod)
			}
		})
	}
}
