package symtab

import (
	"fmt"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/token"
)

// Collect builds a Table from the declarations in a Program tree. The tree
// is assumed to have passed semantic analysis; Collect only records what it
// finds and reports shapes it cannot read.
func Collect(root *ast.Node) (*Table, error) {
	c := &collector{t: NewTable()}
	if root == nil || root.Kind != ast.Program {
		return nil, fmt.Errorf("expected a Program node")
	}
	for _, ext := range ast.Items(root.Child(0)) {
		if err := c.extDef(ext); err != nil {
			return nil, err
		}
	}
	return c.t, nil
}

type collector struct {
	t  *Table
	fn string
}

func errorAt(n *ast.Node, format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(format, args...))
}

func (c *collector) extDef(ext *ast.Node) error {
	typ, err := c.specifier(ext.Child(0))
	if err != nil {
		return err
	}
	switch {
	case ext.Is(ast.Specifier, ast.ExtDecList, token.Semi):
		for _, vd := range ast.Items(ext.Child(1)) {
			name, t, err := varDec(vd, typ)
			if err != nil {
				return err
			}
			c.t.DefineGlobal(name, t)
		}
	case ext.Is(ast.Specifier, token.Semi):
	case ext.Is(ast.Specifier, ast.FunDec, ast.CompSt), ext.Is(ast.Specifier, ast.FunDec, token.Semi):
		fn, err := c.funDec(ext.Child(1), typ)
		if err != nil {
			return err
		}
		fn.Defined = ext.Child(2).Kind == ast.CompSt
		if prev, ok := c.t.Func(fn.Name); ok && prev.Defined && !fn.Defined {
			return nil
		}
		c.t.DefineFunc(fn)
		if fn.Defined {
			c.fn = fn.Name
			for _, p := range fn.Params {
				if err := c.local(ext, p.Name, p.Type); err != nil {
					return err
				}
			}
			return c.compSt(ext.Child(2))
		}
	default:
		return errorAt(ext, "malformed ExtDef")
	}
	return nil
}

func (c *collector) local(n *ast.Node, name string, typ *Type) error {
	if _, dup := c.t.local(c.fn, name); dup {
		return errorAt(n, "redefinition of '%s' in function '%s'", name, c.fn)
	}
	c.t.DefineLocal(c.fn, name, typ)
	return nil
}

func (c *collector) specifier(spec *ast.Node) (*Type, error) {
	if spec.Is(token.TypeName) {
		if spec.Child(0).Tok.Prim == token.PrimFloat {
			return Float, nil
		}
		return Int, nil
	}
	if !spec.Is(ast.StructSpecifier) {
		return nil, errorAt(spec, "malformed Specifier")
	}
	ss := spec.Child(0)
	switch {
	case ss.Is(token.Struct, ast.Tag):
		tag := ss.Child(1).Child(0).Tok.Text
		typ, ok := c.t.Struct(tag)
		if !ok {
			return nil, errorAt(ss, "undefined structure '%s'", tag)
		}
		return typ, nil
	case ss.Is(token.Struct, ast.OptTag, token.LBrace, ast.DefList, token.RBrace):
		typ := &Type{Kind: Record}
		if opt := ss.Child(1); opt != nil {
			typ.Tag = opt.Child(0).Tok.Text
		}
		for _, def := range ast.Items(ss.Child(3)) {
			ft, err := c.specifier(def.Child(0))
			if err != nil {
				return nil, err
			}
			for _, dec := range ast.Items(def.Child(1)) {
				name, t, err := varDec(dec.Child(0), ft)
				if err != nil {
					return nil, err
				}
				typ.Fields = append(typ.Fields, Field{Name: name, Type: t})
			}
		}
		if typ.Tag != "" {
			c.t.DefineStruct(typ.Tag, typ)
		}
		return typ, nil
	}
	return nil, errorAt(ss, "malformed StructSpecifier")
}

// varDec peels `VarDec [INT]` layers. The outermost brackets are the
// innermost dimension: `a[2][3]` is an array of 2 arrays of 3.
func varDec(vd *ast.Node, base *Type) (string, *Type, error) {
	switch {
	case vd.Is(token.Ident):
		return vd.Child(0).Tok.Text, base, nil
	case vd.Is(ast.VarDec, token.LBracket, token.IntLit, token.RBracket):
		n := int(vd.Child(2).Tok.Int)
		if n <= 0 {
			return "", nil, errorAt(vd, "array size must be positive, got %d", n)
		}
		return varDec(vd.Child(0), ArrayOf(n, base))
	}
	return "", nil, errorAt(vd, "malformed VarDec")
}

func (c *collector) funDec(fd *ast.Node, ret *Type) (*Function, error) {
	fn := &Function{Name: fd.Child(0).Tok.Text, Ret: ret, Line: fd.Line}
	switch {
	case fd.Is(token.Ident, token.LParen, token.RParen):
	case fd.Is(token.Ident, token.LParen, ast.VarList, token.RParen):
		for _, pd := range ast.Items(fd.Child(2)) {
			typ, err := c.specifier(pd.Child(0))
			if err != nil {
				return nil, err
			}
			name, t, err := varDec(pd.Child(1), typ)
			if err != nil {
				return nil, err
			}
			fn.Params = append(fn.Params, Param{Name: name, Type: t})
		}
	default:
		return nil, errorAt(fd, "malformed FunDec")
	}
	return fn, nil
}

func (c *collector) compSt(cs *ast.Node) error {
	for _, def := range ast.Items(cs.Child(1)) {
		typ, err := c.specifier(def.Child(0))
		if err != nil {
			return err
		}
		for _, dec := range ast.Items(def.Child(1)) {
			name, t, err := varDec(dec.Child(0), typ)
			if err != nil {
				return err
			}
			if err := c.local(dec, name, t); err != nil {
				return err
			}
		}
	}
	for _, stmt := range ast.Items(cs.Child(2)) {
		if err := c.stmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) stmt(s *ast.Node) error {
	for _, child := range s.Children {
		if child == nil {
			continue
		}
		switch child.Kind {
		case ast.CompSt:
			if err := c.compSt(child); err != nil {
				return err
			}
		case ast.Stmt:
			if err := c.stmt(child); err != nil {
				return err
			}
		}
	}
	return nil
}
