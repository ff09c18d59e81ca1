package jtd

// Kind tags the shape of a Type.
type Kind int

const (
	KindScalar Kind = iota
	KindEnum
	KindObject
	KindArray
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindEnum:
		return "enum"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindRef:
		return "ref"
	}
	return "invalid"
}

// ScalarKind is a JTD primitive type name.
type ScalarKind string

const (
	Boolean   ScalarKind = "boolean"
	Float32   ScalarKind = "float32"
	Float64   ScalarKind = "float64"
	Int8      ScalarKind = "int8"
	Uint8     ScalarKind = "uint8"
	Int16     ScalarKind = "int16"
	Uint16    ScalarKind = "uint16"
	Int32     ScalarKind = "int32"
	Uint32    ScalarKind = "uint32"
	String    ScalarKind = "string"
	Timestamp ScalarKind = "timestamp"
	// Unknown accepts any JSON value. It is also the placeholder for GraphQL
	// types the schema does not define.
	Unknown ScalarKind = "unknown"
)

// Known reports whether k is one of the JTD primitive names.
func (k ScalarKind) Known() bool {
	switch k {
	case Boolean, Float32, Float64, Int8, Uint8, Int16, Uint16, Int32, Uint32, String, Timestamp, Unknown:
		return true
	}
	return false
}

// Type is the encoding-neutral type node shared by the verbose and compact
// schema encodings.
type Type struct {
	Kind     Kind
	Scalar   ScalarKind        // KindScalar; optional base type for KindEnum
	Enum     []string          // KindEnum
	Fields   map[string]*Field // KindObject
	Elements *Type             // KindArray
	Ref      string            // KindRef
	Nullable bool
	Metadata map[string]any
}

// Field is a property of an object type. Fields of root operation types may
// declare arguments.
type Field struct {
	Name      string
	Type      *Type
	Required  bool
	Arguments map[string]*Type
}

// IsLeaf reports whether no path exists beneath t.
func (t *Type) IsLeaf() bool {
	return t != nil && (t.Kind == KindScalar || t.Kind == KindEnum)
}

// Allows reports whether v is a member of an enum type. Non-enum types allow
// every value.
func (t *Type) Allows(v any) bool {
	if t.Kind != KindEnum {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, e := range t.Enum {
		if e == s {
			return true
		}
	}
	return false
}

// Encoding identifies the wire encoding a Root was decoded from.
type Encoding string

const (
	Verbose Encoding = "jtd"
	Compact Encoding = "jtd-min"
)

// Root is a decoded schema: named type definitions plus the names of the
// operation root types. A Root is read-only once decoded.
type Root struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Definitions      map[string]*Type
	Encoding         Encoding
}

// OperationType returns the root type name for a GraphQL operation keyword.
func (r *Root) OperationType(op string) string {
	switch op {
	case "mutation":
		return r.MutationType
	case "subscription":
		return r.SubscriptionType
	}
	return r.QueryType
}

// Deref follows references until a non-reference type is reached.
func (r *Root) Deref(t *Type) (*Type, bool) {
	for seen := 0; t != nil && t.Kind == KindRef; seen++ {
		if seen > len(r.Definitions) {
			return nil, false
		}
		t = r.Definitions[t.Ref]
	}
	return t, t != nil
}
