package prune

import (
	"sort"

	language "github.com/hanpama/gqlprune/internal/language"
)

// VariableRefs returns the names of the variables referenced anywhere in v,
// sorted and without duplicates. Literals contribute nothing.
func VariableRefs(v *language.Value) []string {
	seen := map[string]struct{}{}
	stack := []*language.Value{v}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil {
			continue
		}
		switch cur.Kind {
		case language.Variable:
			seen[cur.Raw] = struct{}{}
		case language.ObjectValue, language.ListValue:
			for _, c := range cur.Children {
				if c != nil {
					stack = append(stack, c.Value)
				}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// usage accumulates what a kept subtree depends on: variable reference
// counts and the fragments it spreads.
type usage struct {
	vars  map[string]int
	frags map[string]bool
}

func newUsage() usage {
	return usage{vars: map[string]int{}, frags: map[string]bool{}}
}

func (u usage) addValue(v *language.Value) {
	for _, name := range VariableRefs(v) {
		u.vars[name]++
	}
}

func (u usage) addDirectives(dirs language.DirectiveList) {
	for _, d := range dirs {
		if d == nil {
			continue
		}
		for _, a := range d.Arguments {
			if a != nil {
				u.addValue(a.Value)
			}
		}
	}
}

func (u usage) merge(o usage) {
	for name, n := range o.vars {
		u.vars[name] += n
	}
	for name := range o.frags {
		u.frags[name] = true
	}
}
