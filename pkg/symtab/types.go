// Package symtab holds the C-- type model and the symbol table the code
// generator queries.
package symtab

import (
	"fmt"
	"strings"

	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/util"
)

type Kind int

const (
	Primitive Kind = iota
	Array
	Record
	Func
)

type Type struct {
	Kind   Kind
	Prim   token.Prim // Primitive
	Len    int        // Array: number of elements
	Elem   *Type      // Array
	Tag    string     // Record, empty for anonymous structures
	Fields []Field    // Record
	Ret    *Type      // Func
	Params []*Type    // Func
}

type Field struct {
	Name string
	Type *Type
}

// Pre-defined types
var (
	Int   = &Type{Kind: Primitive, Prim: token.PrimInt}
	Float = &Type{Kind: Primitive, Prim: token.PrimFloat}
)

func ArrayOf(n int, elem *Type) *Type { return &Type{Kind: Array, Len: n, Elem: elem} }

func (t *Type) IsPrimitive() bool { return t != nil && t.Kind == Primitive }
func (t *Type) IsArray() bool     { return t != nil && t.Kind == Array }

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case Primitive:
		return t.Prim.String()
	case Array:
		var dims strings.Builder
		base := t
		for ; base.Kind == Array; base = base.Elem {
			fmt.Fprintf(&dims, "[%d]", base.Len)
		}
		return base.String() + dims.String()
	case Record:
		if t.Tag == "" {
			return "struct <anonymous>"
		}
		return "struct " + t.Tag
	case Func:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.String()
		}
		return fmt.Sprintf("func(%s) %s", strings.Join(params, ", "), t.Ret)
	}
	return fmt.Sprintf("Type(%d)", int(t.Kind))
}

// Size returns the storage size of t in bytes for the given word size.
// Primitives take one word and arrays are laid out contiguously at any
// nesting depth. Structures and functions have no storage the code
// generator can handle and yield an *util.Unsupported error.
func (t *Type) Size(word int) (int, error) {
	switch t.Kind {
	case Primitive:
		return word, nil
	case Array:
		elem, err := t.ElemSize(word)
		if err != nil {
			return 0, err
		}
		return elem * t.Len, nil
	case Record:
		return 0, &util.Unsupported{What: "structure storage"}
	case Func:
		return 0, &util.Unsupported{What: "function values"}
	}
	return 0, fmt.Errorf("unknown type kind %d", int(t.Kind))
}

// ElemSize returns the stride between consecutive elements of the array type t.
func (t *Type) ElemSize(word int) (int, error) {
	if t.Kind != Array {
		return 0, fmt.Errorf("%s is not an array", t)
	}
	switch t.Elem.Kind {
	case Record:
		return 0, &util.Unsupported{What: "structure array elements"}
	case Func:
		return 0, &util.Unsupported{What: "function array elements"}
	}
	return t.Elem.Size(word)
}
