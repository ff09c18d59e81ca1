// Package prune removes from a GraphQL request everything a JTD schema does
// not declare, so that a query written against a larger schema can be sent to
// a service exposing a reduced one.
//
// # Document filtering
//
// Document walks each operation from its root type (taken from the schema
// metadata) and resolves every node against the schema with jtd.Root.Resolve:
//
//   - Fields that do not resolve are removed together with their subtree.
//     Names starting with "__" are introspection and always kept verbatim.
//   - A non-leaf field whose selection set becomes empty is removed, and the
//     emptiness cascades to its ancestors.
//   - Arguments not declared on the enclosing field are removed.
//   - Properties of input-object literals not declared at their path are
//     removed. List literals add no path segment.
//   - Named fragments are filtered once from their type condition; spreads of
//     removed fragments go with them, and fragments no surviving operation
//     spreads are dropped. Inline fragments with an unknown type condition are
//     removed.
//   - Operations whose selection set becomes empty are removed.
//
// Variable references are counted bottom-up from the nodes that survive,
// including directive arguments and spread fragments. A variable declaration
// nobody references any more is removed, and the survivors' declared types
// are mapped onto the schema to form the operation's Meta.
//
// # Value filtering
//
// Value prunes decoded JSON (map[string]any / []any) against a type: scalars
// pass untouched, enum literals must belong to their set, object properties
// must be declared, and arrays filter each element with the element type.
// Variables applies Value to the request's variable bag using the operation
// metadata produced by Document.
//
// Pruning is monotonic: nodes, properties and variables are only ever
// removed. Nothing is validated or coerced, and inputs are never modified.
package prune
