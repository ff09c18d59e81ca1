package jtd

import "fmt"

// compactRoot is the JTD-min wire form. It carries the same model as the
// verbose encoding under short keys:
//
//	t    scalar kind         en   enum literals
//	p    properties          rq   required flag
//	el   array elements      ref  reference
//	args field arguments     nl   nullable
//	m    metadata
type compactRoot struct {
	Md  *rootMetadata           `json:"md,omitempty"`
	Def map[string]*compactType `json:"def"`
}

type compactType struct {
	T    string                  `json:"t,omitempty"`
	En   []string                `json:"en,omitempty"`
	P    map[string]*compactType `json:"p,omitempty"`
	El   *compactType            `json:"el,omitempty"`
	Ref  string                  `json:"ref,omitempty"`
	Rq   bool                    `json:"rq,omitempty"`
	Nl   bool                    `json:"nl,omitempty"`
	Args map[string]*compactType `json:"args,omitempty"`
	M    map[string]any          `json:"m,omitempty"`
}

func (c *compactRoot) toRoot() (*Root, error) {
	r := &Root{Definitions: make(map[string]*Type, len(c.Def)), Encoding: Compact}
	if c.Md != nil {
		r.QueryType = c.Md.Query
		r.MutationType = c.Md.Mutation
		r.SubscriptionType = c.Md.Subscription
	}
	for name, def := range c.Def {
		t, err := def.toType(c.Def)
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", name, err)
		}
		r.Definitions[name] = t
	}
	return r, nil
}

func (c *compactType) toType(defs map[string]*compactType) (*Type, error) {
	if c == nil {
		return nil, fmt.Errorf("empty type definition")
	}
	t := &Type{Nullable: c.Nl, Metadata: c.M}
	switch {
	case c.P != nil:
		t.Kind = KindObject
		t.Fields = make(map[string]*Field, len(c.P))
		for name, p := range c.P {
			pt, err := p.toType(defs)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			f := &Field{Name: name, Type: pt, Required: p.Rq}
			if p.Args != nil {
				f.Arguments = make(map[string]*Type, len(p.Args))
				for an, a := range p.Args {
					at, err := a.toType(defs)
					if err != nil {
						return nil, fmt.Errorf("property %q argument %q: %w", name, an, err)
					}
					f.Arguments[an] = at
				}
			}
			t.Fields[name] = f
		}
	case c.El != nil:
		el, err := c.El.toType(defs)
		if err != nil {
			return nil, fmt.Errorf("elements: %w", err)
		}
		t.Kind = KindArray
		t.Elements = el
	case c.Ref != "":
		t.Kind = KindRef
		t.Ref = c.Ref
	case c.En != nil:
		t.Kind = KindEnum
		t.Enum = c.En
		t.Scalar = ScalarKind(c.T)
	case c.T != "":
		// Older producers put a definition name in t.
		if _, isDef := defs[c.T]; isDef && !ScalarKind(c.T).Known() {
			t.Kind = KindRef
			t.Ref = c.T
			break
		}
		t.Kind = KindScalar
		t.Scalar = ScalarKind(c.T)
	default:
		t.Kind = KindScalar
		t.Scalar = Unknown
	}
	return t, nil
}

func compactFromRoot(r *Root) *compactRoot {
	out := &compactRoot{Def: make(map[string]*compactType, len(r.Definitions))}
	if r.QueryType != "" || r.MutationType != "" || r.SubscriptionType != "" {
		out.Md = &rootMetadata{Query: r.QueryType, Mutation: r.MutationType, Subscription: r.SubscriptionType}
	}
	for name, t := range r.Definitions {
		out.Def[name] = compactFromType(t)
	}
	return out
}

func compactFromType(t *Type) *compactType {
	if t == nil {
		return nil
	}
	c := &compactType{Nl: t.Nullable, M: t.Metadata}
	switch t.Kind {
	case KindScalar:
		if t.Scalar != Unknown {
			c.T = string(t.Scalar)
		}
	case KindEnum:
		c.T = string(t.Scalar)
		c.En = t.Enum
	case KindArray:
		c.El = compactFromType(t.Elements)
	case KindRef:
		c.Ref = t.Ref
	case KindObject:
		c.P = make(map[string]*compactType, len(t.Fields))
		for name, f := range t.Fields {
			p := compactFromType(f.Type)
			p.Rq = f.Required
			if len(f.Arguments) > 0 {
				p.Args = make(map[string]*compactType, len(f.Arguments))
				for an, at := range f.Arguments {
					p.Args[an] = compactFromType(at)
				}
			}
			c.P[name] = p
		}
	}
	return c
}
