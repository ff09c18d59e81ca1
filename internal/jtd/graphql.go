package jtd

import language "github.com/hanpama/gqlprune/internal/language"

var builtinScalars = map[string]ScalarKind{
	"Int":     Int32,
	"Float":   Float64,
	"String":  String,
	"ID":      String,
	"Boolean": Boolean,
}

// VariableType maps the declared type of a GraphQL variable onto the schema.
// Named types the schema does not define degrade to the Unknown scalar; the
// second result reports whether that happened.
func (r *Root) VariableType(t *language.Type) (*Type, bool) {
	if t == nil {
		return &Type{Kind: KindScalar, Scalar: Unknown, Nullable: true}, false
	}
	if t.Elem != nil {
		el, known := r.VariableType(t.Elem)
		return &Type{Kind: KindArray, Elements: el, Nullable: !t.NonNull}, known
	}
	var out Type
	known := true
	if k, ok := builtinScalars[t.NamedType]; ok {
		out = Type{Kind: KindScalar, Scalar: k}
	} else if def, ok := r.Definitions[t.NamedType]; ok && def != nil {
		out = *def
	} else {
		out = Type{Kind: KindScalar, Scalar: Unknown}
		known = false
	}
	out.Nullable = !t.NonNull
	return &out, known
}
