package prune

import "sort"

// Report lists what pruning removed. Entries are schema paths such as
// "Query.user[filter].name", fragment and operation names, or variable
// names prefixed with their operation.
type Report struct {
	Fields         []string `json:"fields,omitempty"`
	Arguments      []string `json:"arguments,omitempty"`
	InputFields    []string `json:"inputFields,omitempty"`
	Fragments      []string `json:"fragments,omitempty"`
	Operations     []string `json:"operations,omitempty"`
	Variables      []string `json:"variables,omitempty"`
	VariableValues []string `json:"variableValues,omitempty"`
}

// Count returns the total number of removed items.
func (r *Report) Count() int {
	return len(r.Fields) + len(r.Arguments) + len(r.InputFields) + len(r.Fragments) +
		len(r.Operations) + len(r.Variables) + len(r.VariableValues)
}

func (r *Report) Empty() bool { return r.Count() == 0 }

// droppedKeys lists the keys of in that are missing from out, sorted.
func droppedKeys(in, out map[string]any) []string {
	var keys []string
	for k := range in {
		if _, ok := out[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
