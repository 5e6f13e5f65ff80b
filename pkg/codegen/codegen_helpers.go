package codegen

import (
	"errors"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/symtab"
	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/util"
)

var arithOps = map[token.Type]ir.Op{
	token.Plus:  ir.OpAdd,
	token.Minus: ir.OpSub,
	token.Star:  ir.OpMul,
	token.Div:   ir.OpDiv,
}

// binary returns the operator token of an `Exp op Exp` production.
func binary(n *ast.Node) (token.Type, bool) {
	if len(n.Children) != 3 {
		return token.Invalid, false
	}
	l, op, r := n.Children[0], n.Children[1], n.Children[2]
	if l == nil || r == nil || l.Kind != ast.Exp || r.Kind != ast.Exp || op == nil || op.Kind != ast.Terminal {
		return token.Invalid, false
	}
	return op.Tok.Type, true
}

// codegenExp translates n, writing its value into place. The result is nil
// when the value went to place, or an operand standing for the value when
// no code was needed (a literal, a plain variable, a folded constant).
// A nil place evaluates n for its side effects only.
func (ctx *Context) codegenExp(n *ast.Node, place *ir.Var) ir.Operand {
	if op, ok := binary(n); ok {
		switch op {
		case token.Plus, token.Minus, token.Star, token.Div:
			l := ctx.valueOf(n.Child(0))
			r := ctx.valueOf(n.Child(2))
			return ctx.arith(arithOps[op], l, r, place)
		case token.AssignOp:
			return ctx.codegenAssign(n, place)
		case token.RelOp, token.And, token.Or:
			return ctx.codegenBoolValue(n, place)
		default:
			ctx.malformed(n)
		}
	}

	switch {
	case n.Is(token.IntLit):
		return ir.NewLit(n.Child(0).Tok.Int)
	case n.Is(token.FloatLit):
		ctx.unsupported(n, "floating point literals")
	case n.Is(token.Ident):
		ctx.varType(n.Child(0).Tok.Text, n)
		return ir.NewVar(n.Child(0).Tok.Text)
	case n.Is(token.LParen, ast.Exp, token.RParen):
		return ctx.codegenExp(n.Child(1), place)
	case n.Is(token.Minus, ast.Exp):
		v := ctx.valueOf(n.Child(1))
		return ctx.arith(ir.OpSub, ir.NewLit(0), v, place)
	case n.Is(token.Not, ast.Exp):
		return ctx.codegenBoolValue(n, place)
	case n.Is(ast.Exp, token.LBracket, ast.Exp, token.RBracket):
		return ctx.codegenIndex(n, place)
	case n.Is(ast.Exp, token.Dot, token.Ident):
		ctx.unsupported(n, "structure member access")
	case n.Is(token.Ident, token.LParen, token.RParen), n.Is(token.Ident, token.LParen, ast.Args, token.RParen):
		return ctx.codegenFuncCall(n, place)
	default:
		ctx.malformed(n)
	}
	return nil
}

// valueOf translates n into a fresh temporary unless it needs no code.
func (ctx *Context) valueOf(n *ast.Node) ir.Operand {
	for n.Is(token.LParen, ast.Exp, token.RParen) {
		n = n.Child(1)
	}
	switch {
	case n.Is(token.IntLit), n.Is(token.Ident):
		return ctx.codegenExp(n, nil)
	}
	t := ctx.names.Temp()
	if v := ctx.codegenExp(n, t); v != nil {
		return v
	}
	return t
}

// arith emits place := a op b. Two literals fold into a literal when the
// fold feature is on; division is never folded so that a zero divisor
// still reaches run time.
func (ctx *Context) arith(op ir.Op, a, b ir.Operand, place *ir.Var) ir.Operand {
	la, aLit := a.(*ir.Lit)
	lb, bLit := b.(*ir.Lit)
	if aLit && bLit && op != ir.OpDiv && ctx.cfg.IsFeatureEnabled(config.FeatFold) {
		return ir.NewLit(fold(op, la.Value, lb.Value))
	}
	if place == nil {
		return nil
	}
	ctx.prog.Emit(op, place, a, b)
	return nil
}

// fold evaluates op with 32-bit wrap-around.
func fold(op ir.Op, a, b int32) int32 {
	switch op {
	case ir.OpAdd:
		return a + b
	case ir.OpSub:
		return a - b
	case ir.OpMul:
		return a * b
	}
	util.Faultf("cannot fold %s", op)
	return 0
}

// codegenBoolValue materialises a condition as 0 or 1.
func (ctx *Context) codegenBoolValue(n *ast.Node, place *ir.Var) ir.Operand {
	if place == nil {
		place = ctx.names.Temp()
	}
	trueL, falseL := ctx.names.Label(), ctx.names.Label()
	ctx.prog.Emit(ir.OpAssign, place, ir.NewLit(0))
	ctx.codegenCond(n, trueL, falseL)
	ctx.prog.Emit(ir.OpLabel, trueL)
	ctx.prog.Emit(ir.OpAssign, place, ir.NewLit(1))
	ctx.prog.Emit(ir.OpLabel, falseL)
	return nil
}

// codegenCond emits jumps to lt when n is non-zero and to lf otherwise.
// && and || only evaluate their right operand when it decides the result.
func (ctx *Context) codegenCond(n *ast.Node, lt, lf *ir.Label) {
	op, isBinary := binary(n)
	switch {
	case isBinary && op == token.RelOp:
		l := ctx.valueOf(n.Child(0))
		r := ctx.valueOf(n.Child(2))
		ctx.prog.Emit(ir.CondGoto(n.Child(1).Tok.Rel), l, r, lt)
		ctx.prog.Emit(ir.OpGoto, lf)
	case isBinary && op == token.And:
		mid := ctx.names.Label()
		ctx.codegenCond(n.Child(0), mid, lf)
		ctx.prog.Emit(ir.OpLabel, mid)
		ctx.codegenCond(n.Child(2), lt, lf)
	case isBinary && op == token.Or:
		mid := ctx.names.Label()
		ctx.codegenCond(n.Child(0), lt, mid)
		ctx.prog.Emit(ir.OpLabel, mid)
		ctx.codegenCond(n.Child(2), lt, lf)
	case n.Is(token.Not, ast.Exp):
		ctx.codegenCond(n.Child(1), lf, lt)
	case n.Is(token.LParen, ast.Exp, token.RParen):
		ctx.codegenCond(n.Child(1), lt, lf)
	default:
		v := ctx.valueOf(n)
		ctx.prog.Emit(ir.OpNeGoto, v, ir.NewLit(0), lt)
		ctx.prog.Emit(ir.OpGoto, lf)
	}
}

func unparen(n *ast.Node) *ast.Node {
	for n.Is(token.LParen, ast.Exp, token.RParen) {
		n = n.Child(1)
	}
	return n
}

func (ctx *Context) codegenAssign(n *ast.Node, place *ir.Var) ir.Operand {
	lhs, rhs := unparen(n.Child(0)), n.Child(2)
	switch typ := ctx.typeOf(lhs); typ.Kind {
	case symtab.Record:
		ctx.unsupported(n, "structure assignment")
	case symtab.Array:
		return ctx.codegenArrayAssign(n, lhs, rhs, typ)
	}

	switch {
	case lhs.Is(token.Ident):
		// The rhs lands in its own temporary first; it may read v.
		v := ir.NewVar(lhs.Child(0).Tok.Text)
		ctx.prog.Emit(ir.OpAssign, v, ctx.valueOf(rhs))
		if place != nil {
			ctx.prog.Emit(ir.OpAssign, place, v)
		}
	case lhs.Is(ast.Exp, token.LBracket, ast.Exp, token.RBracket):
		addr := ctx.names.Temp()
		ctx.codegenArrayAddr(lhs, addr)
		val := ctx.valueOf(rhs)
		ctx.prog.Emit(ir.OpSave, addr, val)
		if place != nil {
			ctx.prog.Emit(ir.OpAssign, place, val)
		}
	case lhs.Is(ast.Exp, token.Dot, token.Ident):
		ctx.unsupported(n, "structure member access")
	default:
		ctx.malformed(n)
	}
	return nil
}

// codegenArrayAssign copies rhs into lhs word by word. The value of the
// whole expression is 0.
func (ctx *Context) codegenArrayAssign(n, lhs, rhs *ast.Node, dstType *symtab.Type) ir.Operand {
	srcType := ctx.typeOf(unparen(rhs))
	if !srcType.IsArray() {
		util.Faultf("line %d: assigning %s to %s", n.Line, srcType, dstType)
	}
	dst, src := ctx.names.Temp(), ctx.names.Temp()
	ctx.codegenArrayAddr(lhs, dst)
	ctx.codegenArrayAddr(rhs, src)
	ctx.copyArray(n, dst, ctx.sizeOf(dstType, n), src, ctx.sizeOf(srcType, n))
	return ir.NewLit(0)
}

// copyArray emits an unrolled copy of min(dstSize, srcSize) bytes, one
// word at a time. dst and src are advanced past the copied block.
func (ctx *Context) copyArray(n *ast.Node, dst *ir.Var, dstSize int, src *ir.Var, srcSize int) {
	words := min(dstSize, srcSize) / ir.WordSize
	if srcSize < dstSize {
		util.Warn(ctx.cfg, config.WarnArrayCopy, n.Line, "array assignment copies %d of %d bytes", srcSize, dstSize)
	}
	if words > ctx.cfg.MaxUnrolledWords {
		util.Warn(ctx.cfg, config.WarnLargeCopy, n.Line, "array assignment unrolls into %d word copies", words)
	}
	tmp := ctx.names.Temp()
	step := ir.NewLit(ir.WordSize)
	for i := 0; i < words; i++ {
		ctx.prog.Emit(ir.OpLoad, tmp, src)
		ctx.prog.Emit(ir.OpSave, dst, tmp)
		ctx.prog.Emit(ir.OpAdd, dst, dst, step)
		ctx.prog.Emit(ir.OpAdd, src, src, step)
	}
}

// codegenIndex reads an indexed element. A primitive element is loaded;
// a sub-array evaluates to its address.
func (ctx *Context) codegenIndex(n *ast.Node, place *ir.Var) ir.Operand {
	addr := ctx.names.Temp()
	elem := ctx.codegenArrayAddr(n, addr)
	if place == nil {
		return nil
	}
	if elem.IsPrimitive() {
		ctx.prog.Emit(ir.OpLoad, place, addr)
	} else {
		ctx.prog.Emit(ir.OpAssign, place, addr)
	}
	return nil
}

// codegenArrayAddr writes the address denoted by an array expression into
// place and returns the type found there. An array variable already holds
// the address of its block, so the base case is a plain copy.
func (ctx *Context) codegenArrayAddr(n *ast.Node, place *ir.Var) *symtab.Type {
	switch {
	case n.Is(token.Ident):
		name := n.Child(0).Tok.Text
		typ := ctx.varType(name, n)
		ctx.prog.Emit(ir.OpAssign, place, ir.NewVar(name))
		return typ
	case n.Is(token.LParen, ast.Exp, token.RParen):
		return ctx.codegenArrayAddr(n.Child(1), place)
	case n.Is(ast.Exp, token.LBracket, ast.Exp, token.RBracket):
		base := ctx.names.Temp()
		arr := ctx.codegenArrayAddr(n.Child(0), base)
		if !arr.IsArray() {
			util.Faultf("line %d: indexing %s", n.Line, arr)
		}
		stride := ctx.elemSize(arr, n)
		idx := ctx.valueOf(n.Child(2))
		offset := ctx.names.Temp()
		var off ir.Operand = offset
		if v := ctx.arith(ir.OpMul, idx, ir.NewLit(int32(stride)), offset); v != nil {
			off = v
		}
		ctx.arith(ir.OpAdd, base, off, place)
		return arr.Elem
	case n.Is(ast.Exp, token.Dot, token.Ident):
		ctx.unsupported(n, "structure member access")
	default:
		ctx.malformed(n)
	}
	return nil
}

func (ctx *Context) codegenFuncCall(n *ast.Node, place *ir.Var) ir.Operand {
	name := n.Child(0).Tok.Text
	var args []*ast.Node
	if n.Is(token.Ident, token.LParen, ast.Args, token.RParen) {
		args = ast.Items(n.Child(2))
	}

	switch name {
	case "read":
		if len(args) != 0 {
			util.Faultf("line %d: read takes no arguments", n.Line)
		}
		if place == nil {
			place = ctx.names.Temp()
		}
		ctx.prog.Emit(ir.OpRead, place)
		return nil
	case "write":
		if len(args) != 1 {
			util.Faultf("line %d: write takes one argument", n.Line)
		}
		ctx.prog.Emit(ir.OpWrite, ctx.valueOf(args[0]))
		return ir.NewLit(0)
	}

	fn, ok := ctx.syms.Func(name)
	if !ok {
		util.Faultf("line %d: call to unknown function '%s'", n.Line, name)
	}
	if !fn.Defined {
		ctx.unsupported(n, "calling '%s', which is declared without a body", name)
	}
	if len(args) != len(fn.Params) {
		util.Faultf("line %d: '%s' takes %d arguments, got %d", n.Line, name, len(fn.Params), len(args))
	}

	vals := make([]ir.Operand, len(args))
	for i, arg := range args {
		vals[i] = ctx.valueOf(arg)
	}
	// Every ARG goes to the same position, which leaves them last to first.
	mark := ctx.prog.Len()
	for _, v := range vals {
		ctx.prog.InsertAt(mark, ir.MustNew(ir.OpArg, v))
	}
	if place == nil {
		place = ctx.names.Temp()
	}
	ctx.prog.Emit(ir.OpCall, place, ir.NewLabel(name))
	return nil
}

// typeOf resolves the type of an expression without emitting code.
func (ctx *Context) typeOf(n *ast.Node) *symtab.Type {
	switch {
	case n.Is(token.Ident):
		return ctx.varType(n.Child(0).Tok.Text, n)
	case n.Is(token.LParen, ast.Exp, token.RParen):
		return ctx.typeOf(n.Child(1))
	case n.Is(ast.Exp, token.LBracket, ast.Exp, token.RBracket):
		arr := ctx.typeOf(n.Child(0))
		if !arr.IsArray() {
			util.Faultf("line %d: indexing %s", n.Line, arr)
		}
		return arr.Elem
	case n.Is(ast.Exp, token.Dot, token.Ident):
		ctx.unsupported(n, "structure member access")
	case n.Is(token.FloatLit):
		return symtab.Float
	case n.Is(ast.Exp, token.AssignOp, ast.Exp):
		return ctx.typeOf(unparen(n.Child(0)))
	case n.Is(token.Ident, token.LParen, token.RParen), n.Is(token.Ident, token.LParen, ast.Args, token.RParen):
		if fn, ok := ctx.syms.Func(n.Child(0).Tok.Text); ok {
			return fn.Ret
		}
	}
	return symtab.Int
}

func (ctx *Context) varType(name string, n *ast.Node) *symtab.Type {
	typ, ok := ctx.syms.Var(ctx.currentFunc, name)
	if !ok {
		util.Faultf("line %d: '%s' is not declared in %s", n.Line, name, ctx.currentFunc)
	}
	return typ
}

func (ctx *Context) sizeOf(typ *symtab.Type, n *ast.Node) int {
	size, err := typ.Size(ir.WordSize)
	ctx.check(err, n)
	return size
}

func (ctx *Context) elemSize(arr *symtab.Type, n *ast.Node) int {
	size, err := arr.ElemSize(ir.WordSize)
	ctx.check(err, n)
	return size
}

func (ctx *Context) check(err error, n *ast.Node) {
	if err == nil {
		return
	}
	var unsup *util.Unsupported
	if errors.As(err, &unsup) {
		ctx.unsupported(n, "%s", unsup.What)
	}
	util.Faultf("line %d: %v", n.Line, err)
}
