package store

import (
	"context"
	"errors"
	"testing"
)

// siteDocs is the tree every Store variant is checked against.
var siteDocs = map[string]string{
	"index.html":      "home",
	"about.html":      "about",
	"docs/index.html": "docs home",
	"docs/guide.html": "guide",
}

type storeFactory func(t *testing.T, docs map[string]string) Store

// runStoreSuite checks the behavior every variant must share.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Helper()
	s := newStore(t, siteDocs)
	ctx := context.Background()

	found := []struct {
		name, path, want string
	}{
		{"read", "about.html", "about"},
		{"default file", "", "home"},
		{"root slash", "/", "home"},
		{"subdir file", "docs/guide.html", "guide"},
		{"default in subdir", "docs", "docs home"},
		{"default in subdir trailing slash", "docs/", "docs home"},
		{"leading slash", "/about.html", "about"},
		{"repeated leading slashes", "//docs/guide.html", "guide"},
	}
	for _, tt := range found {
		t.Run(tt.name, func(t *testing.T) {
			b, err := s.Read(ctx, tt.path)
			if err != nil {
				t.Fatalf("Read(%q): %v", tt.path, err)
			}
			if string(b) != tt.want {
				t.Fatalf("Read(%q) = %q, want %q", tt.path, b, tt.want)
			}
		})
	}

	missing := []struct {
		name, path string
	}{
		{"not found", "missing.html"},
		{"not found in subdir", "docs/missing.html"},
		{"missing subdir", "nope/"},
	}
	for _, tt := range missing {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Read(ctx, tt.path)
			assertNotFound(t, err, tt.path)
		})
	}
}

func assertNotFound(t *testing.T, err error, path string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Read(%q) succeeded, want not found", path)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(%q) error %v does not match ErrNotFound", path, err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Read(%q) error %T is not *NotFoundError", path, err)
	}
	if nf.Path != path {
		t.Fatalf("NotFoundError.Path = %q, want %q", nf.Path, path)
	}
}

func TestNotFoundError_MessageNamesOnlyPath(t *testing.T) {
	err := notFound("/a.html", errors.New("open /srv/private/a.html: no such file"))
	if got, want := err.Error(), `"/a.html": not found`; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("errors.Is(err, ErrNotFound) = false")
	}
}

func TestWithIndexFile_EmptyKeepsDefault(t *testing.T) {
	if got := buildOptions([]Option{WithIndexFile("")}).index; got != "index.html" {
		t.Fatalf("index = %q, want index.html", got)
	}
	if got := buildOptions([]Option{WithIndexFile("default.htm")}).index; got != "default.htm" {
		t.Fatalf("index = %q, want default.htm", got)
	}
}
