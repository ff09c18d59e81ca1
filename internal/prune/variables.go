package prune

import jtd "github.com/hanpama/gqlprune/internal/jtd"

// Variables filters a request's variable bag against the variable types of
// the surviving operations. Only variables a surviving operation declares are
// kept, and keys missing from vars are never added.
func Variables(meta *Meta, vars map[string]any, root *jtd.Root) map[string]any {
	out := make(map[string]any, len(vars))
	if meta == nil {
		return out
	}
	// the first operation declaring a name decides its value, even when it
	// rejects it
	seen := make(map[string]bool)
	for _, op := range meta.Operations {
		for name, t := range op.VariableTypes {
			if seen[name] {
				continue
			}
			seen[name] = true
			raw, ok := vars[name]
			if !ok {
				continue
			}
			if v, ok := variable(raw, t, root); ok {
				out[name] = v
			}
		}
	}
	return out
}

func variable(raw any, t *jtd.Type, root *jtd.Root) (any, bool) {
	if t == nil || t.Kind != jtd.KindArray {
		return Value(raw, t, root)
	}
	list, ok := raw.([]any)
	if !ok {
		return Value(raw, t.Elements, root)
	}
	out := make([]any, 0, len(list))
	for _, e := range list {
		if v, ok := Value(e, t.Elements, root); ok {
			out = append(out, v)
		}
	}
	return out, true
}
