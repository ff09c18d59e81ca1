package jtd

import (
	"testing"

	language "github.com/hanpama/gqlprune/internal/language"
)

func mustParseVarTypes(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}
