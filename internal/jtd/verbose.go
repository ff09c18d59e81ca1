package jtd

import "fmt"

// verboseRoot is the JTD wire form:
//
//	{"metadata": {"query": "Query"}, "definitions": {"Query": {...}}}
type verboseRoot struct {
	Metadata    *rootMetadata           `json:"metadata,omitempty"`
	Definitions map[string]*verboseType `json:"definitions"`
}

type rootMetadata struct {
	Query        string `json:"query,omitempty"`
	Mutation     string `json:"mutation,omitempty"`
	Subscription string `json:"subscription,omitempty"`
}

type verboseType struct {
	Type               string                  `json:"type,omitempty"`
	Enum               []string                `json:"enum,omitempty"`
	Properties         map[string]*verboseType `json:"properties,omitempty"`
	OptionalProperties map[string]*verboseType `json:"optionalProperties,omitempty"`
	Elements           *verboseType            `json:"elements,omitempty"`
	Ref                string                  `json:"ref,omitempty"`
	Nullable           bool                    `json:"nullable,omitempty"`
	Arguments          map[string]*verboseType `json:"arguments,omitempty"`
	Metadata           map[string]any          `json:"metadata,omitempty"`
}

func (v *verboseRoot) toRoot() (*Root, error) {
	r := &Root{Definitions: make(map[string]*Type, len(v.Definitions)), Encoding: Verbose}
	if v.Metadata != nil {
		r.QueryType = v.Metadata.Query
		r.MutationType = v.Metadata.Mutation
		r.SubscriptionType = v.Metadata.Subscription
	}
	for name, def := range v.Definitions {
		t, err := def.toType()
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", name, err)
		}
		r.Definitions[name] = t
	}
	return r, nil
}

func (v *verboseType) toType() (*Type, error) {
	if v == nil {
		return nil, fmt.Errorf("empty type definition")
	}
	t := &Type{Nullable: v.Nullable, Metadata: v.Metadata}
	switch {
	case v.Properties != nil || v.OptionalProperties != nil:
		t.Kind = KindObject
		t.Fields = make(map[string]*Field, len(v.Properties)+len(v.OptionalProperties))
		// required properties win over optional ones of the same name
		for _, group := range []struct {
			props    map[string]*verboseType
			required bool
		}{{v.OptionalProperties, false}, {v.Properties, true}} {
			for name, p := range group.props {
				f, err := p.toField(name, group.required)
				if err != nil {
					return nil, err
				}
				t.Fields[name] = f
			}
		}
	case v.Elements != nil:
		el, err := v.Elements.toType()
		if err != nil {
			return nil, fmt.Errorf("elements: %w", err)
		}
		t.Kind = KindArray
		t.Elements = el
	case v.Ref != "":
		t.Kind = KindRef
		t.Ref = v.Ref
	case v.Enum != nil:
		t.Kind = KindEnum
		t.Enum = v.Enum
		t.Scalar = ScalarKind(v.Type)
	case v.Type != "":
		t.Kind = KindScalar
		t.Scalar = ScalarKind(v.Type)
	default:
		// JTD empty form: any value
		t.Kind = KindScalar
		t.Scalar = Unknown
	}
	return t, nil
}

func (v *verboseType) toField(name string, required bool) (*Field, error) {
	t, err := v.toType()
	if err != nil {
		return nil, fmt.Errorf("property %q: %w", name, err)
	}
	f := &Field{Name: name, Type: t, Required: required}
	if v.Arguments != nil {
		f.Arguments = make(map[string]*Type, len(v.Arguments))
		for an, a := range v.Arguments {
			at, err := a.toType()
			if err != nil {
				return nil, fmt.Errorf("property %q argument %q: %w", name, an, err)
			}
			f.Arguments[an] = at
		}
	}
	return f, nil
}

func verboseFromRoot(r *Root) *verboseRoot {
	out := &verboseRoot{Definitions: make(map[string]*verboseType, len(r.Definitions))}
	if r.QueryType != "" || r.MutationType != "" || r.SubscriptionType != "" {
		out.Metadata = &rootMetadata{Query: r.QueryType, Mutation: r.MutationType, Subscription: r.SubscriptionType}
	}
	for name, t := range r.Definitions {
		out.Definitions[name] = verboseFromType(t)
	}
	return out
}

func verboseFromType(t *Type) *verboseType {
	if t == nil {
		return nil
	}
	v := &verboseType{Nullable: t.Nullable, Metadata: t.Metadata}
	switch t.Kind {
	case KindScalar:
		if t.Scalar != Unknown {
			v.Type = string(t.Scalar)
		}
	case KindEnum:
		v.Type = string(t.Scalar)
		v.Enum = t.Enum
	case KindArray:
		v.Elements = verboseFromType(t.Elements)
	case KindRef:
		v.Ref = t.Ref
	case KindObject:
		v.Properties = map[string]*verboseType{}
		for name, f := range t.Fields {
			p := verboseFromType(f.Type)
			if len(f.Arguments) > 0 {
				p.Arguments = make(map[string]*verboseType, len(f.Arguments))
				for an, at := range f.Arguments {
					p.Arguments[an] = verboseFromType(at)
				}
			}
			if f.Required {
				v.Properties[name] = p
				continue
			}
			if v.OptionalProperties == nil {
				v.OptionalProperties = map[string]*verboseType{}
			}
			v.OptionalProperties[name] = p
		}
	}
	return v
}
