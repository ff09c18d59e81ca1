package prune

import (
	"strings"

	jtd "github.com/hanpama/gqlprune/internal/jtd"
	language "github.com/hanpama/gqlprune/internal/language"
)

// introspectionPrefix marks names reserved by GraphQL. Such fields and
// fragments are never pruned.
const introspectionPrefix = "__"

// Operation is the variable metadata of one surviving operation.
type Operation struct {
	Name          string
	VariableTypes map[string]*jtd.Type
}

// Meta is produced alongside a pruned document.
type Meta struct {
	Operations []Operation
	// UnknownTypes lists declared variable types the schema does not define.
	// Their variables are typed as the permissive unknown scalar.
	UnknownTypes []string
	Removed      Report
}

// Document prunes doc against root and returns the pruned copy. doc is not
// modified; unchanged subtrees are shared with the result.
func Document(doc *language.QueryDocument, root *jtd.Root) (*language.QueryDocument, *Meta) {
	f := &docFilter{
		root:      root,
		doc:       doc,
		fragments: map[string]*fragmentResult{},
		meta:      &Meta{},
	}
	if doc == nil {
		return nil, f.meta
	}

	out := *doc
	out.Operations = nil
	used := map[string]bool{}
	for _, op := range doc.Operations {
		if op == nil {
			continue
		}
		nop, u, ok := f.operation(op)
		if !ok {
			continue
		}
		out.Operations = append(out.Operations, nop)
		for name := range u.frags {
			used[name] = true
		}
	}

	out.Fragments = nil
	for _, def := range doc.Fragments {
		if def == nil {
			continue
		}
		fr := f.fragments[def.Name]
		if !used[def.Name] || fr == nil || fr.def == nil {
			f.meta.Removed.Fragments = append(f.meta.Removed.Fragments, def.Name)
			continue
		}
		out.Fragments = append(out.Fragments, fr.def)
	}
	return &out, f.meta
}

type docFilter struct {
	root      *jtd.Root
	doc       *language.QueryDocument
	fragments map[string]*fragmentResult
	meta      *Meta
}

type fragmentResult struct {
	def      *language.FragmentDefinition // nil when removed
	usage    usage
	visiting bool
}

func (f *docFilter) operation(op *language.OperationDefinition) (*language.OperationDefinition, usage, bool) {
	path := jtd.Path{}.Field(f.root.OperationType(string(op.Operation)))
	ss, u := f.selectionSet(op.SelectionSet, path)
	if len(ss) == 0 {
		f.meta.Removed.Operations = append(f.meta.Removed.Operations, operationLabel(op))
		return nil, usage{}, false
	}
	u.addDirectives(op.Directives)

	nop := *op
	nop.SelectionSet = ss
	nop.VariableDefinitions = nil
	meta := Operation{Name: op.Name, VariableTypes: map[string]*jtd.Type{}}
	for _, vd := range op.VariableDefinitions {
		if vd == nil {
			continue
		}
		if u.vars[vd.Variable] == 0 {
			f.meta.Removed.Variables = append(f.meta.Removed.Variables, variableLabel(op, vd.Variable))
			continue
		}
		nop.VariableDefinitions = append(nop.VariableDefinitions, vd)
		t, known := f.root.VariableType(vd.Type)
		if !known {
			f.meta.UnknownTypes = append(f.meta.UnknownTypes, vd.Type.Name())
		}
		meta.VariableTypes[vd.Variable] = t
	}
	f.meta.Operations = append(f.meta.Operations, meta)
	return &nop, u, true
}

func (f *docFilter) selectionSet(ss language.SelectionSet, path jtd.Path) (language.SelectionSet, usage) {
	u := newUsage()
	if len(ss) == 0 {
		return nil, u
	}
	out := make(language.SelectionSet, 0, len(ss))
	for _, sel := range ss {
		switch s := sel.(type) {
		case *language.Field:
			nf, fu, ok := f.field(s, path)
			if !ok {
				continue
			}
			out = append(out, nf)
			u.merge(fu)

		case *language.InlineFragment:
			fpath := path
			if strings.HasPrefix(s.TypeCondition, introspectionPrefix) {
				pss, pu, changed := f.passthrough(s.SelectionSet)
				if len(pss) == 0 {
					continue
				}
				if changed {
					ns := *s
					ns.SelectionSet = pss
					s = &ns
				}
				out = append(out, s)
				u.merge(pu)
				u.addDirectives(s.Directives)
				continue
			}
			if s.TypeCondition != "" {
				if _, ok := f.root.Definitions[s.TypeCondition]; !ok {
					f.meta.Removed.Fields = append(f.meta.Removed.Fields, path.String()+"... on "+s.TypeCondition)
					continue
				}
				fpath = jtd.Path{}.Field(s.TypeCondition)
			}
			fss, fu := f.selectionSet(s.SelectionSet, fpath)
			if len(fss) == 0 {
				continue
			}
			ns := *s
			ns.SelectionSet = fss
			out = append(out, &ns)
			u.merge(fu)
			u.addDirectives(s.Directives)

		case *language.FragmentSpread:
			fr := f.fragment(s.Name)
			if fr == nil {
				continue
			}
			out = append(out, s)
			u.merge(fr.usage)
			u.frags[s.Name] = true
			u.addDirectives(s.Directives)
		}
	}
	return out, u
}

func (f *docFilter) field(fd *language.Field, parent jtd.Path) (*language.Field, usage, bool) {
	if strings.HasPrefix(fd.Name, introspectionPrefix) {
		ss, u, changed := f.passthrough(fd.SelectionSet)
		if len(fd.SelectionSet) > 0 && len(ss) == 0 {
			f.meta.Removed.Fields = append(f.meta.Removed.Fields, parent.Field(fd.Name).String())
			return nil, usage{}, false
		}
		for _, a := range fd.Arguments {
			if a != nil {
				u.addValue(a.Value)
			}
		}
		u.addDirectives(fd.Directives)
		if !changed {
			return fd, u, true
		}
		nf := *fd
		nf.SelectionSet = ss
		return &nf, u, true
	}

	path := parent.Field(fd.Name)
	res, ok := f.root.Resolve(path, nil)
	if !ok {
		f.meta.Removed.Fields = append(f.meta.Removed.Fields, path.String())
		return nil, usage{}, false
	}

	nf := *fd
	u := newUsage()
	nf.Arguments = f.arguments(fd.Arguments, path, res.Field, u)
	if len(fd.SelectionSet) > 0 {
		ss, su := f.selectionSet(fd.SelectionSet, path)
		if len(ss) == 0 && !res.Type.IsLeaf() {
			f.meta.Removed.Fields = append(f.meta.Removed.Fields, path.String())
			return nil, usage{}, false
		}
		nf.SelectionSet = ss
		u.merge(su)
	}
	u.addDirectives(fd.Directives)
	return &nf, u, true
}

func (f *docFilter) arguments(args language.ArgumentList, path jtd.Path, field *jtd.Field, u usage) language.ArgumentList {
	if len(args) == 0 {
		return args
	}
	out := make(language.ArgumentList, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		apath := path.Arg(a.Name)
		if _, ok := field.Arguments[a.Name]; !ok {
			f.meta.Removed.Arguments = append(f.meta.Removed.Arguments, apath.String())
			continue
		}
		na := *a
		na.Value = f.value(a.Value, apath)
		u.addValue(na.Value)
		out = append(out, &na)
	}
	return out
}

// value drops the properties of input-object literals the schema does not
// declare at their path. Lists add no path segment.
func (f *docFilter) value(v *language.Value, path jtd.Path) *language.Value {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case language.ObjectValue:
		nv := *v
		nv.Children = make(language.ChildValueList, 0, len(v.Children))
		for _, c := range v.Children {
			if c == nil {
				continue
			}
			cpath := path.Field(c.Name)
			if !strings.HasPrefix(c.Name, introspectionPrefix) {
				if _, ok := f.root.Resolve(cpath, nil); !ok {
					f.meta.Removed.InputFields = append(f.meta.Removed.InputFields, cpath.String())
					continue
				}
			}
			nc := *c
			nc.Value = f.value(c.Value, cpath)
			nv.Children = append(nv.Children, &nc)
		}
		return &nv
	case language.ListValue:
		nv := *v
		nv.Children = make(language.ChildValueList, 0, len(v.Children))
		for _, c := range v.Children {
			if c == nil {
				continue
			}
			nc := *c
			nc.Value = f.value(c.Value, path)
			nv.Children = append(nv.Children, &nc)
		}
		return &nv
	}
	return v
}

// fragment filters a named fragment once, rooted at its type condition.
// It returns nil when the fragment does not survive.
func (f *docFilter) fragment(name string) *fragmentResult {
	if fr, ok := f.fragments[name]; ok {
		if fr.visiting || fr.def == nil {
			return nil
		}
		return fr
	}
	fr := &fragmentResult{visiting: true}
	f.fragments[name] = fr
	defer func() { fr.visiting = false }()

	def := f.doc.Fragments.ForName(name)
	if def == nil {
		return nil
	}
	if strings.HasPrefix(def.TypeCondition, introspectionPrefix) {
		ss, u, changed := f.passthrough(def.SelectionSet)
		if len(ss) == 0 {
			return nil
		}
		u.addDirectives(def.Directives)
		fr.def = def
		if changed {
			nd := *def
			nd.SelectionSet = ss
			fr.def = &nd
		}
		fr.usage = u
		return fr
	}
	if _, ok := f.root.Definitions[def.TypeCondition]; !ok {
		return nil
	}
	ss, u := f.selectionSet(def.SelectionSet, jtd.Path{}.Field(def.TypeCondition))
	if len(ss) == 0 {
		return nil
	}
	u.addDirectives(def.Directives)
	nd := *def
	nd.SelectionSet = ss
	fr.def = &nd
	fr.usage = u
	return fr
}

// passthrough keeps an introspection subtree as written, except for spreads
// of fragments that do not survive. Selections left empty by such a spread are
// dropped as well. changed reports whether ss had to be copied.
func (f *docFilter) passthrough(ss language.SelectionSet) (language.SelectionSet, usage, bool) {
	u := newUsage()
	if len(ss) == 0 {
		return ss, u, false
	}
	out := make(language.SelectionSet, 0, len(ss))
	changed := false
	for _, sel := range ss {
		switch s := sel.(type) {
		case *language.Field:
			sub, su, subChanged := f.passthrough(s.SelectionSet)
			if len(s.SelectionSet) > 0 && len(sub) == 0 {
				changed = true
				continue
			}
			if subChanged {
				nf := *s
				nf.SelectionSet = sub
				s = &nf
				changed = true
			}
			for _, a := range s.Arguments {
				if a != nil {
					u.addValue(a.Value)
				}
			}
			u.addDirectives(s.Directives)
			u.merge(su)
			out = append(out, s)
		case *language.InlineFragment:
			sub, su, subChanged := f.passthrough(s.SelectionSet)
			if len(sub) == 0 {
				changed = true
				continue
			}
			if subChanged {
				ns := *s
				ns.SelectionSet = sub
				s = &ns
				changed = true
			}
			u.addDirectives(s.Directives)
			u.merge(su)
			out = append(out, s)
		case *language.FragmentSpread:
			fr := f.fragment(s.Name)
			if fr == nil {
				changed = true
				continue
			}
			u.addDirectives(s.Directives)
			u.frags[s.Name] = true
			u.merge(fr.usage)
			out = append(out, s)
		default:
			out = append(out, sel)
		}
	}
	if !changed {
		return ss, u, false
	}
	return out, u, true
}

func operationLabel(op *language.OperationDefinition) string {
	if op.Name != "" {
		return op.Name
	}
	return string(op.Operation)
}

func variableLabel(op *language.OperationDefinition, name string) string {
	if op.Name != "" {
		return op.Name + ".$" + name
	}
	return "$" + name
}
