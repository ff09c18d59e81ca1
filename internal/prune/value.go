package prune

import jtd "github.com/hanpama/gqlprune/internal/jtd"

// Value returns v with every object property t does not declare removed.
// The second result is false when v itself is rejected, which only happens
// for enum literals outside the declared set; callers omit such values.
//
// Values are never coerced: a value whose shape does not match t is returned
// as is.
func Value(v any, t *jtd.Type, root *jtd.Root) (any, bool) {
	if t == nil {
		return v, true
	}
	rt := t
	if d, ok := root.Deref(t); ok {
		rt = d
	}
	if rt.Kind == jtd.KindScalar {
		return v, true
	}

	switch val := v.(type) {
	case []any:
		el := rt
		if rt.Kind == jtd.KindArray {
			el = rt.Elements
		}
		out := make([]any, 0, len(val))
		for _, e := range val {
			if fe, ok := Value(e, el, root); ok {
				out = append(out, fe)
			}
		}
		return out, true

	case map[string]any:
		if rt.Kind == jtd.KindEnum {
			return nil, false
		}
		out := make(map[string]any, len(val))
		for k, fv := range val {
			res, ok := root.Resolve(jtd.Path{}.Field(k), rt)
			if !ok {
				continue
			}
			if cv, ok := Value(fv, res.Type, root); ok {
				out[k] = cv
			}
		}
		return out, true
	}

	if rt.Kind == jtd.KindEnum {
		return v, rt.Allows(v)
	}
	return v, true
}
