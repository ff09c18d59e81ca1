package prune

import (
	"path/filepath"
	"testing"

	jtd "github.com/hanpama/gqlprune/internal/jtd"
	language "github.com/hanpama/gqlprune/internal/language"
)

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

// forEachEncoding runs fn once per schema encoding of the demo schema.
func forEachEncoding(t *testing.T, fn func(t *testing.T, root *jtd.Root)) {
	t.Helper()
	for _, name := range []string{"demo.jtd.json", "demo.min.json"} {
		root, err := jtd.Load(filepath.Join("testdata", name))
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		t.Run(string(root.Encoding), func(t *testing.T) { fn(t, root) })
	}
}

// requireSameQuery compares documents by their printed form.
func requireSameQuery(t *testing.T, want string, got *language.QueryDocument) {
	t.Helper()
	w := language.Print(mustParseQuery(t, want))
	g := language.Print(got)
	if w != g {
		t.Fatalf("query mismatch\nwant:\n%s\ngot:\n%s", w, g)
	}
}

func operationByName(meta *Meta, name string) *Operation {
	for i := range meta.Operations {
		if meta.Operations[i].Name == name {
			return &meta.Operations[i]
		}
	}
	return nil
}
