package expressions

import (
	"strconv"
	"strings"
)

// PathElement is one step of an attribute path: either a named member access
// or a list index.
type PathElement struct {
	Name    string
	Index   int
	IsIndex bool
}

// AttributePath addresses one attribute, possibly nested inside documents,
// maps or lists.
type AttributePath struct {
	Elements []PathElement
}

// Path parses a dotted path expression such as "foo.bar[3].baz" into an
// AttributePath.
func Path(expr string) AttributePath {
	var elements []PathElement
	for _, part := range strings.Split(expr, ".") {
		for {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				if part != "" {
					elements = append(elements, PathElement{Name: part})
				}
				break
			}
			if open > 0 {
				elements = append(elements, PathElement{Name: part[:open]})
			}
			closing := strings.IndexByte(part, ']')
			if closing < 0 {
				break
			}
			idx, err := strconv.Atoi(part[open+1 : closing])
			if err == nil {
				elements = append(elements, PathElement{Index: idx, IsIndex: true})
			}
			part = part[closing+1:]
		}
	}
	return AttributePath{Elements: elements}
}

// Field appends a named member access and returns the extended path.
func (p AttributePath) Field(name string) AttributePath {
	elements := append(append([]PathElement(nil), p.Elements...), PathElement{Name: name})
	return AttributePath{Elements: elements}
}

// At appends a list index and returns the extended path.
func (p AttributePath) At(index int) AttributePath {
	elements := append(append([]PathElement(nil), p.Elements...), PathElement{Index: index, IsIndex: true})
	return AttributePath{Elements: elements}
}

// String renders the path in source form, for diagnostics.
func (p AttributePath) String() string {
	var b strings.Builder
	for i, e := range p.Elements {
		if e.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(e.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(e.Name)
	}
	return b.String()
}
