package graph

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Placement is a file together with the filter it is listed under.
type Placement struct {
	Filter string
	File   *File
}

// Flatten lists every file below f in tree order.
func Flatten(f *Filter) []Placement {
	var out []Placement
	var visit func(f *Filter)
	visit = func(f *Filter) {
		for _, c := range f.Children {
			switch n := c.(type) {
			case *Filter:
				visit(n)
			case *File:
				out = append(out, Placement{Filter: f.Path, File: n})
			}
		}
	}
	visit(f)
	return out
}

// Generic converts the subtree at f into plain maps and slices suitable for
// JSON encoding and JSONPath queries.
func Generic(f *Filter) map[string]any {
	children := make([]any, 0, len(f.Children))
	for _, c := range f.Children {
		switch n := c.(type) {
		case *Filter:
			children = append(children, Generic(n))
		case *File:
			children = append(children, map[string]any{
				"type":     "file",
				"name":     n.Name(),
				"rel":      n.Rel,
				"location": n.Location,
			})
		}
	}
	return map[string]any{
		"type":     "filter",
		"name":     f.Name(),
		"path":     f.Path,
		"children": children,
	}
}

// JSON renders the subtree at f with the given indent.
func JSON(f *Filter, indent int) string {
	return oj.JSON(Generic(f), &oj.Options{Indent: indent})
}

// Select evaluates a JSONPath expression against the generic form of f.
func Select(f *Filter, expr string) ([]any, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", expr, err)
	}
	return x.Get(Generic(f)), nil
}
