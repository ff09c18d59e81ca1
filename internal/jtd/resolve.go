package jtd

// Resolution is the schema location a Path resolves to.
type Resolution struct {
	// Field is the descriptor of the last field or argument segment. Its
	// Arguments are what argument segments appended to the path resolve against.
	Field *Field
	// Type is the type found at the path with a trailing reference resolved.
	// When the path runs into a scalar or enum, Type is that leaf.
	Type *Type
}

// Resolve walks path starting at start. A nil start is the implicit object
// whose fields are the root definitions, so such paths begin with a type name.
//
// Resolve never fails loudly: false means the path names something the schema
// does not declare.
func (r *Root) Resolve(path Path, start *Type) (Resolution, bool) {
	if len(path) == 0 {
		return Resolution{Type: start}, start != nil
	}
	cur := start
	var field *Field
	for i, seg := range path {
		var next *Field
		if seg.Argument {
			if field == nil {
				return Resolution{}, false
			}
			at, ok := field.Arguments[seg.Name]
			if !ok || at == nil {
				return Resolution{}, false
			}
			next = &Field{Name: seg.Name, Type: at}
		} else {
			f, ok := r.lookup(cur, seg.Name)
			if !ok {
				return Resolution{}, false
			}
			next = f
		}
		field = next

		t, ok := r.unwrap(field.Type)
		if !ok {
			return Resolution{}, false
		}
		if t.IsLeaf() {
			// Only an argument of this very field can follow a leaf.
			if i+1 < len(path) && path[i+1].Argument {
				cur = t
				continue
			}
			return Resolution{Field: field, Type: t}, true
		}
		cur = t
	}

	t, ok := r.Deref(field.Type)
	if !ok {
		return Resolution{}, false
	}
	return Resolution{Field: field, Type: t}, true
}

func (r *Root) lookup(cur *Type, name string) (*Field, bool) {
	if cur == nil {
		def, ok := r.Definitions[name]
		if !ok || def == nil {
			return nil, false
		}
		return &Field{Name: name, Type: def}, true
	}
	cur, ok := r.unwrap(cur)
	if !ok || cur.Kind != KindObject {
		return nil, false
	}
	f, ok := cur.Fields[name]
	return f, ok && f != nil && f.Type != nil
}

// unwrap strips references and array wrappers down to the type whose fields a
// following segment is looked up in.
func (r *Root) unwrap(t *Type) (*Type, bool) {
	for depth := 0; t != nil; depth++ {
		if depth > len(r.Definitions)+64 {
			return nil, false
		}
		switch t.Kind {
		case KindRef:
			t = r.Definitions[t.Ref]
		case KindArray:
			t = t.Elements
		default:
			return t, true
		}
	}
	return nil, false
}
