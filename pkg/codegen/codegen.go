package codegen

import (
	"fmt"
	"strings"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/symtab"
	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/util"
)

// Symbols is what the IR builder needs from semantic analysis.
type Symbols interface {
	Var(fn, name string) (*symtab.Type, bool)
	Func(name string) (*symtab.Function, bool)
}

// Namer hands out temporaries and labels. Counters never reset, so names
// are unique across the whole compilation unit. The dot keeps them apart
// from C-- identifiers.
type Namer struct {
	temps  int
	labels int
}

func (n *Namer) Temp() *ir.Var {
	n.temps++
	return ir.NewVar(fmt.Sprintf("t.%d", n.temps))
}

func (n *Namer) Label() *ir.Label {
	n.labels++
	return ir.NewLabel(fmt.Sprintf("L.%d", n.labels))
}

type Context struct {
	prog        *ir.List
	names       Namer
	syms        Symbols
	cfg         *config.Config
	currentFunc string
}

func NewContext(cfg *config.Config, syms Symbols) *Context {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Context{prog: &ir.List{}, syms: syms, cfg: cfg}
}

// GenerateIR lowers a Program tree to IR. Errors are *util.Unsupported for
// constructs the compiler does not implement and *util.Fault for trees or
// symbols that break the front end's guarantees.
func (ctx *Context) GenerateIR(root *ast.Node) (*ir.List, error) {
	if err := ctx.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.generate(root); err != nil {
		return nil, err
	}
	return ctx.prog, nil
}

func (ctx *Context) generate(root *ast.Node) (err error) {
	defer util.Recover(&err)
	if root == nil || root.Kind != ast.Program {
		util.Faultf("root is %v, want Program", root)
	}
	for _, ext := range ast.Items(root.Child(0)) {
		ctx.codegenExtDef(ext)
	}
	return nil
}

func (ctx *Context) unsupported(n *ast.Node, format string, args ...interface{}) {
	util.Abort(&util.Unsupported{Line: n.Line, What: fmt.Sprintf(format, args...)})
}

// malformed reports a production the front end should never hand over.
func (ctx *Context) malformed(n *ast.Node) {
	if n == nil {
		util.Faultf("missing node in %s", ctx.currentFunc)
	}
	shape := make([]string, len(n.Children))
	for i, c := range n.Children {
		switch {
		case c == nil:
			shape[i] = "<empty>"
		case c.Kind == ast.Terminal:
			shape[i] = c.Tok.Type.String()
		default:
			shape[i] = c.Kind.String()
		}
	}
	util.Faultf("line %d: unexpected %s -> %s", n.Line, n.Kind, strings.Join(shape, " "))
}

func (ctx *Context) codegenExtDef(ext *ast.Node) {
	switch {
	case ext.Is(ast.Specifier, ast.ExtDecList, token.Semi):
		ctx.unsupported(ext, "global variables")
	case ext.Is(ast.Specifier, token.Semi):
		// Type definition only, nothing to emit.
	case ext.Is(ast.Specifier, ast.FunDec, token.Semi):
		// Prototype. Calling it without a definition is reported at the call.
	case ext.Is(ast.Specifier, ast.FunDec, ast.CompSt):
		ctx.codegenFuncDecl(ext.Child(1), ext.Child(2))
	default:
		ctx.malformed(ext)
	}
}

func (ctx *Context) codegenFuncDecl(fun, body *ast.Node) {
	name := fun.Child(0).Tok.Text
	sig, ok := ctx.syms.Func(name)
	if !ok {
		util.Faultf("line %d: no signature for function '%s'", fun.Line, name)
	}
	ctx.currentFunc = name
	ctx.prog.Emit(ir.OpFunction, ir.NewLabel(name))
	for _, p := range sig.Params {
		if p.Type.Kind == symtab.Record {
			ctx.unsupported(fun, "structure parameters")
		}
		ctx.prog.Emit(ir.OpParam, ir.NewVar(p.Name))
	}

	ctx.codegenCompSt(body)

	if last := ctx.prog.At(ctx.prog.Len() - 1); last.Op != ir.OpRet && ctx.cfg.IsFeatureEnabled(config.FeatImplicitReturn) {
		util.Warn(ctx.cfg, config.WarnImplicitReturn, body.Line, "function '%s' can reach its end, returning 0", name)
		ctx.prog.Emit(ir.OpRet, ir.NewLit(0))
	}
}

func (ctx *Context) codegenCompSt(cs *ast.Node) {
	if !cs.Is(token.LBrace, ast.DefList, ast.StmtList, token.RBrace) {
		ctx.malformed(cs)
	}
	for _, def := range ast.Items(cs.Child(1)) {
		if !def.Is(ast.Specifier, ast.DecList, token.Semi) {
			ctx.malformed(def)
		}
		for _, dec := range ast.Items(def.Child(1)) {
			ctx.codegenDec(dec)
		}
	}
	for _, stmt := range ast.Items(cs.Child(2)) {
		ctx.codegenStmt(stmt)
	}
}

func varDecName(vd *ast.Node) string {
	for vd != nil && !vd.Is(token.Ident) {
		vd = vd.Child(0)
	}
	if vd == nil {
		util.Faultf("VarDec without identifier")
	}
	return vd.Child(0).Tok.Text
}

func (ctx *Context) codegenDec(dec *ast.Node) {
	name := varDecName(dec.Child(0))
	typ := ctx.varType(name, dec)
	hasInit := dec.Is(ast.VarDec, token.AssignOp, ast.Exp)
	if !hasInit && !dec.Is(ast.VarDec) {
		ctx.malformed(dec)
	}

	switch typ.Kind {
	case symtab.Record:
		ctx.unsupported(dec, "structure variables")
	case symtab.Array:
		if hasInit {
			ctx.unsupported(dec, "array initializers")
		}
		// The name is a word holding the address of an anonymous block.
		block := ctx.names.Temp()
		ctx.prog.Emit(ir.OpDec, block, ir.NewLit(int32(ctx.sizeOf(typ, dec))))
		ctx.prog.Emit(ir.OpAddr, ir.NewVar(name), block)
		return
	}

	if hasInit {
		val := ctx.valueOf(dec.Child(2))
		ctx.prog.Emit(ir.OpAssign, ir.NewVar(name), val)
	}
}

func (ctx *Context) codegenStmt(s *ast.Node) {
	switch {
	case s.Is(ast.Exp, token.Semi):
		ctx.codegenExp(s.Child(0), nil)
	case s.Is(ast.CompSt):
		ctx.codegenCompSt(s.Child(0))
	case s.Is(token.Return, ast.Exp, token.Semi):
		ctx.codegenReturn(s.Child(1))
	case s.Is(token.If, token.LParen, ast.Exp, token.RParen, ast.Stmt):
		ctx.codegenIf(s.Child(2), s.Child(4), nil)
	case s.Is(token.If, token.LParen, ast.Exp, token.RParen, ast.Stmt, token.Else, ast.Stmt):
		ctx.codegenIf(s.Child(2), s.Child(4), s.Child(6))
	case s.Is(token.While, token.LParen, ast.Exp, token.RParen, ast.Stmt):
		ctx.codegenWhile(s.Child(2), s.Child(4))
	default:
		ctx.malformed(s)
	}
}

func (ctx *Context) codegenReturn(exp *ast.Node) {
	ctx.prog.Emit(ir.OpRet, ctx.valueOf(exp))
}

func (ctx *Context) codegenIf(cond, thenBody, elseBody *ast.Node) {
	thenL, elseL := ctx.names.Label(), ctx.names.Label()
	ctx.codegenCond(cond, thenL, elseL)
	ctx.prog.Emit(ir.OpLabel, thenL)
	ctx.codegenStmt(thenBody)
	if elseBody == nil {
		ctx.prog.Emit(ir.OpLabel, elseL)
		return
	}
	endL := ctx.names.Label()
	ctx.prog.Emit(ir.OpGoto, endL)
	ctx.prog.Emit(ir.OpLabel, elseL)
	ctx.codegenStmt(elseBody)
	ctx.prog.Emit(ir.OpLabel, endL)
}

func (ctx *Context) codegenWhile(cond, body *ast.Node) {
	startL, bodyL, endL := ctx.names.Label(), ctx.names.Label(), ctx.names.Label()
	ctx.prog.Emit(ir.OpLabel, startL)
	ctx.codegenCond(cond, bodyL, endL)
	ctx.prog.Emit(ir.OpLabel, bodyL)
	ctx.codegenStmt(body)
	ctx.prog.Emit(ir.OpGoto, startL)
	ctx.prog.Emit(ir.OpLabel, endL)
}
