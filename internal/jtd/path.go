package jtd

import "strings"

// Segment is one step of a Path. Argument segments name an argument of the
// field resolved by the previous segment.
type Segment struct {
	Name     string
	Argument bool
}

func (s Segment) String() string {
	if s.Argument {
		return "[" + s.Name + "]"
	}
	return s.Name
}

// Path is an immutable sequence of segments. Field and Arg never modify the
// receiver's backing array, so a Path can be shared between sibling branches.
type Path []Segment

func (p Path) Field(name string) Path {
	return append(p[:len(p):len(p)], Segment{Name: name})
}

func (p Path) Arg(name string) Path {
	return append(p[:len(p):len(p)], Segment{Name: name, Argument: true})
}

// String renders the path as "Query.user[filter].name".
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 && !s.Argument {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// ParsePath is the inverse of Path.String.
func ParsePath(s string) Path {
	var p Path
	for _, part := range strings.Split(s, ".") {
		name, rest, _ := strings.Cut(part, "[")
		if name != "" {
			p = p.Field(name)
		}
		for rest != "" {
			arg, after, _ := strings.Cut(rest, "]")
			p = p.Arg(arg)
			_, rest, _ = strings.Cut(after, "[")
		}
	}
	return p
}
