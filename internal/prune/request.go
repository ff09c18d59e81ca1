package prune

import (
	"fmt"

	jtd "github.com/hanpama/gqlprune/internal/jtd"
	language "github.com/hanpama/gqlprune/internal/language"
)

// Request is a pruned GraphQL request.
type Request struct {
	Query *language.QueryDocument
	// Variables is nil when the original request carried none.
	Variables map[string]any
	Meta      *Meta
}

// CleanRequest prunes doc and, when given, vars against root.
func CleanRequest(doc *language.QueryDocument, vars map[string]any, root *jtd.Root) *Request {
	pruned, meta := Document(doc, root)
	req := &Request{Query: pruned, Meta: meta}
	if vars != nil {
		req.Variables = Variables(meta, vars, root)
		meta.Removed.VariableValues = droppedKeys(vars, req.Variables)
	}
	return req
}

// CleanRequestJSON decodes schema, in either the verbose or the compact
// encoding, and prunes the request against it.
func CleanRequestJSON(doc *language.QueryDocument, vars map[string]any, schema []byte) (*Request, error) {
	root, err := jtd.Decode(schema)
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return CleanRequest(doc, vars, root), nil
}
