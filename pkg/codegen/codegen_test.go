package codegen

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/symtab"
	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/util"
)

func lower(t *testing.T, cfg *config.Config, defs ...*ast.Node) (*ir.List, error) {
	t.Helper()
	root := ast.NewProgram(defs...)
	syms, err := symtab.Collect(root)
	require.NoError(t, err)
	return NewContext(cfg, syms).GenerateIR(root)
}

func mustLower(t *testing.T, defs ...*ast.Node) []string {
	t.Helper()
	prog, err := lower(t, nil, defs...)
	require.NoError(t, err)
	return prog.Lines()
}

func mainFunc(defs []*ast.Node, stmts ...*ast.Node) *ast.Node {
	return ast.FuncDef(ast.IntSpec(), "main", nil, ast.Block(defs, stmts...))
}

// ints declares int locals; array dimensions are given as for ast.Var.
func ints(name string, dims ...int32) *ast.Node {
	return ast.Definition(ast.IntSpec(), ast.Declare(ast.Var(name, dims...)))
}

func id(name string) *ast.Node { return ast.Ident(name) }
func num(v int32) *ast.Node    { return ast.Int(v) }

func assign(l, r *ast.Node) *ast.Node { return ast.ExpStmt(ast.Assign(l, r)) }

func diffLines(t *testing.T, want, got []string) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("IR mismatch (-want +got):\n%s", diff)
	}
}

func captureWarnings(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	util.SetOutput(&buf)
	t.Cleanup(func() { util.SetOutput(&bytes.Buffer{}) })
	return &buf
}

func TestEndToEndFoldsIntoAssign(t *testing.T) {
	// int main() { int a; a = 3 + 4 * 2; return a; }
	got := mustLower(t, mainFunc([]*ast.Node{ints("a")},
		assign(id("a"), ast.Binary(num(3), token.Plus, ast.Binary(num(4), token.Star, num(2)))),
		ast.ReturnStmt(id("a")),
	))
	diffLines(t, []string{"FUNCTION main :", "a := #11", "RETURN a"}, got)
}

func TestFoldMatchesInt32Arithmetic(t *testing.T) {
	pairs := [][2]int32{{0, 0}, {3, 4}, {-7, 2}, {math.MaxInt32, 1}, {math.MinInt32, 1}, {46341, 46341}, {-1, math.MinInt32}}
	ops := []struct {
		tok  token.Type
		eval func(a, b int32) int32
	}{
		{token.Plus, func(a, b int32) int32 { return a + b }},
		{token.Minus, func(a, b int32) int32 { return a - b }},
		{token.Star, func(a, b int32) int32 { return a * b }},
	}
	for _, p := range pairs {
		for _, op := range ops {
			got := mustLower(t, mainFunc(nil, ast.ReturnStmt(ast.Binary(num(p[0]), op.tok, num(p[1])))))
			want := ir.MustNew(ir.OpRet, ir.NewLit(op.eval(p[0], p[1]))).String()
			diffLines(t, []string{"FUNCTION main :", want}, got)
		}
	}
}

func TestDivisionIsNeverFolded(t *testing.T) {
	got := mustLower(t, mainFunc(nil, ast.ReturnStmt(ast.Binary(num(6), token.Div, num(3)))))
	diffLines(t, []string{"FUNCTION main :", "t.1 := #6 / #3", "RETURN t.1"}, got)
}

func TestFoldCanBeDisabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatFold, false)
	prog, err := lower(t, cfg, mainFunc(nil, ast.ReturnStmt(ast.Neg(ast.Binary(num(1), token.Plus, num(2))))))
	require.NoError(t, err)
	diffLines(t, []string{
		"FUNCTION main :",
		"t.2 := #1 + #2",
		"t.1 := #0 - t.2",
		"RETURN t.1",
	}, prog.Lines())
}

func newTestContext() *Context {
	tab := symtab.NewTable()
	for _, name := range []string{"a", "b"} {
		tab.DefineLocal("main", name, symtab.Int)
	}
	tab.DefineLocal("main", "v", symtab.ArrayOf(3, symtab.Int))
	tab.DefineLocal("main", "rec", &symtab.Type{Kind: symtab.Record, Tag: "P"})
	tab.DefineFunc(&symtab.Function{Name: "f", Ret: symtab.Int, Defined: true})
	tab.DefineFunc(&symtab.Function{Name: "main", Ret: symtab.Int, Defined: true})
	ctx := NewContext(nil, tab)
	ctx.currentFunc = "main"
	return ctx
}

// run calls f and turns fault and unsupported panics into an error.
func run(f func()) (err error) {
	defer util.Recover(&err)
	f()
	return nil
}

func TestBareOperandsEmitNothing(t *testing.T) {
	ctx := newTestContext()
	place := ir.NewVar("t.99")

	assert.Equal(t, ir.NewLit(5), ctx.codegenExp(num(5), place))
	assert.Equal(t, ir.NewVar("a"), ctx.codegenExp(id("a"), place))
	assert.Equal(t, ir.NewVar("b"), ctx.codegenExp(ast.Paren(id("b")), place))
	assert.Equal(t, ir.NewLit(-6), ctx.codegenExp(ast.Neg(num(6)), place))
	assert.Zero(t, ctx.prog.Len())
}

func TestCompoundExpressionsWritePlace(t *testing.T) {
	exprs := map[string]*ast.Node{
		"add":      ast.Binary(id("a"), token.Plus, id("b")),
		"mul lit":  ast.Binary(id("a"), token.Star, num(2)),
		"div lits": ast.Binary(num(4), token.Div, num(2)),
		"negate":   ast.Neg(id("a")),
		"relation": ast.Relation(id("a"), token.LT, id("b")),
		"and":      ast.Binary(id("a"), token.And, id("b")),
		"not":      ast.LogicalNot(id("a")),
		"assign":   ast.Assign(id("a"), id("b")),
		"index":    ast.Index(id("v"), id("a")),
		"call":     ast.Call("f"),
		"read":     ast.Call("read"),
	}
	for name, e := range exprs {
		t.Run(name, func(t *testing.T) {
			ctx := newTestContext()
			place := ir.NewVar("t.99")
			require.Nil(t, ctx.codegenExp(e, place))

			written := false
			for _, inst := range ctx.prog.Instructions() {
				if dst := inst.Dst(); dst != nil && dst.Name == place.Name {
					written = true
				}
			}
			assert.True(t, written, "no instruction writes %s:\n%s", place, ctx.prog)
		})
	}
}

func TestNilPlaceKeepsSideEffectsOnly(t *testing.T) {
	ctx := newTestContext()
	assert.Nil(t, ctx.codegenExp(ast.Binary(id("a"), token.Plus, id("b")), nil))
	assert.Zero(t, ctx.prog.Len())

	ctx.codegenExp(ast.Call("f"), nil)
	diffLines(t, []string{"t.1 := CALL f"}, ctx.prog.Lines())
}

func TestShortCircuitGuardsRightOperand(t *testing.T) {
	// 0 && f()
	ctx := newTestContext()
	lt, lf := ctx.names.Label(), ctx.names.Label()
	ctx.codegenCond(ast.Binary(num(0), token.And, ast.Call("f")), lt, lf)

	diffLines(t, []string{
		"IF #0 != #0 GOTO L.3",
		"GOTO L.2",
		"LABEL L.3 :",
		"t.1 := CALL f",
		"IF t.1 != #0 GOTO L.1",
		"GOTO L.2",
	}, ctx.prog.Lines())

	// The call is only reachable through the left operand's true label:
	// it follows a label that is preceded by an unconditional jump and
	// targeted by nothing but a conditional branch.
	insts := ctx.prog.Instructions()
	call := -1
	for i, inst := range insts {
		if inst.Op == ir.OpCall {
			call = i
		}
	}
	require.Positive(t, call)
	entry := call - 1
	require.Equal(t, ir.OpLabel, insts[entry].Op)
	assert.Equal(t, ir.OpGoto, insts[entry-1].Op)
	for _, inst := range insts[:entry] {
		if inst.Op == ir.OpGoto {
			assert.NotEqual(t, insts[entry].Args[0].String(), inst.Args[0].String())
		}
	}
}

func TestOrAndNot(t *testing.T) {
	ctx := newTestContext()
	lt, lf := ctx.names.Label(), ctx.names.Label()
	ctx.codegenCond(ast.Binary(ast.Relation(id("a"), token.EQ, num(1)), token.Or, ast.LogicalNot(ast.Paren(id("b")))), lt, lf)
	diffLines(t, []string{
		"IF a == #1 GOTO L.1",
		"GOTO L.3",
		"LABEL L.3 :",
		"IF b != #0 GOTO L.2",
		"GOTO L.1",
	}, ctx.prog.Lines())
}

func TestBooleanValue(t *testing.T) {
	got := mustLower(t, mainFunc([]*ast.Node{ints("a"), ints("b")},
		assign(id("a"), ast.Relation(id("b"), token.LT, num(3))),
		ast.ReturnStmt(id("a")),
	))
	diffLines(t, []string{
		"FUNCTION main :",
		"t.1 := #0",
		"IF b < #3 GOTO L.1",
		"GOTO L.2",
		"LABEL L.1 :",
		"t.1 := #1",
		"LABEL L.2 :",
		"a := t.1",
		"RETURN a",
	}, got)
}

func TestIfStatements(t *testing.T) {
	got := mustLower(t, mainFunc([]*ast.Node{ints("a"), ints("b")},
		ast.IfStmt(ast.Relation(id("a"), token.LT, id("b")), assign(id("a"), num(1))),
		ast.IfElseStmt(id("a"), assign(id("a"), num(1)), assign(id("a"), num(2))),
		ast.ReturnStmt(id("a")),
	))
	diffLines(t, []string{
		"FUNCTION main :",
		"IF a < b GOTO L.1",
		"GOTO L.2",
		"LABEL L.1 :",
		"a := #1",
		"LABEL L.2 :",
		"IF a != #0 GOTO L.3",
		"GOTO L.4",
		"LABEL L.3 :",
		"a := #1",
		"GOTO L.5",
		"LABEL L.4 :",
		"a := #2",
		"LABEL L.5 :",
		"RETURN a",
	}, got)
}

func TestWhileLoop(t *testing.T) {
	got := mustLower(t, mainFunc([]*ast.Node{ints("a")},
		ast.WhileStmt(ast.Relation(id("a"), token.GT, num(0)),
			assign(id("a"), ast.Binary(id("a"), token.Minus, num(1)))),
		ast.ReturnStmt(id("a")),
	))
	diffLines(t, []string{
		"FUNCTION main :",
		"LABEL L.1 :",
		"IF a > #0 GOTO L.2",
		"GOTO L.3",
		"LABEL L.2 :",
		"t.1 := a - #1",
		"a := t.1",
		"GOTO L.1",
		"LABEL L.3 :",
		"RETURN a",
	}, got)
}

func TestChainedAssignment(t *testing.T) {
	got := mustLower(t, mainFunc([]*ast.Node{ints("a"), ints("b")},
		assign(id("a"), ast.Assign(id("b"), num(4))),
		ast.ReturnStmt(id("a")),
	))
	diffLines(t, []string{
		"FUNCTION main :",
		"b := #4",
		"t.1 := b",
		"a := t.1",
		"RETURN a",
	}, got)
}

func TestArrayElementWrite(t *testing.T) {
	got := mustLower(t, mainFunc([]*ast.Node{ints("v", 3, 4)},
		assign(ast.Index(ast.Index(id("v"), num(1)), num(2)), num(5)),
		ast.ReturnStmt(num(0)),
	))
	diffLines(t, []string{
		"FUNCTION main :",
		"DEC t.1 48",
		"v := &t.1",
		"t.4 := v",
		"t.3 := t.4 + #16",
		"t.2 := t.3 + #8",
		"*t.2 := #5",
		"RETURN #0",
	}, got)
}

func TestArrayElementRead(t *testing.T) {
	got := mustLower(t, mainFunc([]*ast.Node{ints("v", 3), ints("a"), ints("i")},
		assign(id("a"), ast.Index(ast.Paren(id("v")), id("i"))),
		ast.ReturnStmt(id("a")),
	))
	diffLines(t, []string{
		"FUNCTION main :",
		"DEC t.1 12",
		"v := &t.1",
		"t.4 := v",
		"t.5 := i * #4",
		"t.3 := t.4 + t.5",
		"t.2 := *t.3",
		"a := t.2",
		"RETURN a",
	}, got)
}

func TestSubArrayDecaysToAddress(t *testing.T) {
	ctx := newTestContext()
	ctx.syms.(*symtab.Table).DefineLocal("main", "m", symtab.ArrayOf(2, symtab.ArrayOf(3, symtab.Int)))
	place := ir.NewVar("t.99")
	ctx.codegenExp(ast.Index(id("m"), num(1)), place)
	lines := ctx.prog.Lines()
	assert.Equal(t, "t.99 := t.1", lines[len(lines)-1])
	assert.Contains(t, lines, "t.1 := t.2 + #12")
}

func TestArrayCopyBound(t *testing.T) {
	warnings := captureWarnings(t)
	prog, err := lower(t, nil, mainFunc([]*ast.Node{ints("d", 5), ints("s", 3)},
		assign(id("d"), id("s")),
		ast.ReturnStmt(num(0)),
	))
	require.NoError(t, err)

	counts := map[ir.Op]int{}
	for _, inst := range prog.Instructions() {
		counts[inst.Op]++
	}
	assert.Equal(t, 3, counts[ir.OpLoad])
	assert.Equal(t, 3, counts[ir.OpSave])
	assert.Equal(t, 6, counts[ir.OpAdd])
	assert.Contains(t, prog.Lines(), "t.5 := *t.4")
	assert.Contains(t, prog.Lines(), "*t.3 := t.5")
	assert.Contains(t, warnings.String(), "copies 12 of 20 bytes [-Warray-copy]")
}

func TestArrayCopyIntoSmallerArray(t *testing.T) {
	warnings := captureWarnings(t)
	cfg := config.NewConfig()
	cfg.MaxUnrolledWords = 2
	prog, err := lower(t, cfg, mainFunc([]*ast.Node{ints("d", 3), ints("s", 5)},
		assign(id("d"), id("s")),
		ast.ReturnStmt(num(0)),
	))
	require.NoError(t, err)

	loads := 0
	for _, inst := range prog.Instructions() {
		if inst.Op == ir.OpLoad {
			loads++
		}
	}
	assert.Equal(t, 3, loads)
	assert.NotContains(t, warnings.String(), "array-copy")
	assert.Contains(t, warnings.String(), "[-Wlarge-copy]")
}

func TestCallArgumentOrder(t *testing.T) {
	// int f(int x, int y) { return x - y; }
	// int main() { int a; a = f(1, a + 2); return a; }
	f := ast.FuncDef(ast.IntSpec(), "f",
		[]*ast.Node{ast.Param(ast.IntSpec(), ast.Var("x")), ast.Param(ast.IntSpec(), ast.Var("y"))},
		ast.Block(nil, ast.ReturnStmt(ast.Binary(id("x"), token.Minus, id("y")))))
	main := mainFunc([]*ast.Node{ints("a")},
		assign(id("a"), ast.Call("f", num(1), ast.Binary(id("a"), token.Plus, num(2)))),
		ast.ReturnStmt(id("a")),
	)
	diffLines(t, []string{
		"FUNCTION f :",
		"PARAM x",
		"PARAM y",
		"t.1 := x - y",
		"RETURN t.1",
		"FUNCTION main :",
		"t.3 := a + #2",
		"ARG t.3",
		"ARG #1",
		"t.2 := CALL f",
		"a := t.2",
		"RETURN a",
	}, mustLower(t, f, main))
}

func TestArrayArgumentPassesAddress(t *testing.T) {
	sum := ast.FuncDef(ast.IntSpec(), "first",
		[]*ast.Node{ast.Param(ast.IntSpec(), ast.Var("v", 4))},
		ast.Block(nil, ast.ReturnStmt(ast.Index(id("v"), num(0)))))
	main := mainFunc([]*ast.Node{ints("w", 4)}, ast.ReturnStmt(ast.Call("first", id("w"))))
	got := mustLower(t, sum, main)
	assert.Contains(t, got, "ARG w")
	assert.Contains(t, got, "t.3 := v")
}

func TestReadWrite(t *testing.T) {
	got := mustLower(t, mainFunc([]*ast.Node{ints("a")},
		assign(id("a"), ast.Call("read")),
		ast.ExpStmt(ast.Call("write", ast.Binary(id("a"), token.Plus, num(1)))),
		ast.ReturnStmt(num(0)),
	))
	diffLines(t, []string{
		"FUNCTION main :",
		"READ t.1",
		"a := t.1",
		"t.2 := a + #1",
		"WRITE t.2",
		"RETURN #0",
	}, got)

	ctx := newTestContext()
	assert.Equal(t, ir.NewLit(0), ctx.codegenExp(ast.Call("write", id("a")), ir.NewVar("t.99")))
}

func TestInitializedDeclaration(t *testing.T) {
	def := ast.Definition(ast.IntSpec(), ast.DeclareInit(ast.Var("a"), ast.Binary(num(2), token.Star, num(21))), ast.Declare(ast.Var("b")))
	got := mustLower(t, mainFunc([]*ast.Node{def}, ast.ReturnStmt(id("a"))))
	diffLines(t, []string{"FUNCTION main :", "a := #42", "RETURN a"}, got)
}

func TestImplicitReturn(t *testing.T) {
	warnings := captureWarnings(t)
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnImplicitReturn, true)
	prog, err := lower(t, cfg, mainFunc([]*ast.Node{ints("a")}, assign(id("a"), num(1))))
	require.NoError(t, err)
	diffLines(t, []string{"FUNCTION main :", "a := #1", "RETURN #0"}, prog.Lines())
	assert.Contains(t, warnings.String(), "[-Wimplicit-return]")

	cfg.SetFeature(config.FeatImplicitReturn, false)
	prog, err = lower(t, cfg, mainFunc([]*ast.Node{ints("a")}, assign(id("a"), num(1))))
	require.NoError(t, err)
	diffLines(t, []string{"FUNCTION main :", "a := #1"}, prog.Lines())
}

func TestNamesAreUniqueAcrossFunctions(t *testing.T) {
	body := func() *ast.Node {
		return ast.Block([]*ast.Node{ints("a")},
			ast.IfStmt(ast.Relation(id("a"), token.NE, num(0)), assign(id("a"), ast.Binary(id("a"), token.Div, num(2)))),
			ast.ReturnStmt(id("a")))
	}
	prog, err := lower(t, nil,
		ast.FuncDef(ast.IntSpec(), "f", nil, body()),
		ast.FuncDef(ast.IntSpec(), "main", nil, body()),
	)
	require.NoError(t, err)

	labels := map[string]int{}
	temps := map[string]bool{}
	for _, inst := range prog.Instructions() {
		if inst.Op == ir.OpLabel {
			labels[inst.Args[0].String()]++
		}
		if dst := inst.Dst(); dst != nil && dst.Name[0] == 't' {
			temps[dst.Name] = true
		}
	}
	assert.Len(t, labels, 4)
	for name, n := range labels {
		assert.Equal(t, 1, n, name)
	}
	assert.Equal(t, map[string]bool{"t.1": true, "t.2": true}, temps)
}

func TestUnsupportedConstructs(t *testing.T) {
	point := ast.TypeDef(ast.StructSpec("P", []*ast.Node{ast.Definition(ast.IntSpec(), ast.Declare(ast.Var("x")))}))
	tests := []struct {
		name string
		defs []*ast.Node
		what string
	}{
		{
			name: "global variable",
			defs: []*ast.Node{ast.GlobalDef(ast.IntSpec(), ast.Var("g")).At(7), mainFunc(nil, ast.ReturnStmt(num(0)))},
			what: "global variables",
		},
		{
			name: "float literal",
			defs: []*ast.Node{mainFunc(nil, ast.ReturnStmt(ast.Float(1.5).At(7)))},
			what: "floating point literals",
		},
		{
			name: "array initializer",
			defs: []*ast.Node{mainFunc([]*ast.Node{
				ast.Definition(ast.IntSpec(), ast.DeclareInit(ast.Var("a", 2), num(0)).At(7)),
			})},
			what: "array initializers",
		},
		{
			name: "structure local",
			defs: []*ast.Node{point, mainFunc([]*ast.Node{
				ast.Definition(ast.StructSpec("P", nil), ast.Declare(ast.Var("p")).At(7)),
			})},
			what: "structure variables",
		},
		{
			name: "member access",
			defs: []*ast.Node{mainFunc([]*ast.Node{ints("a")}, ast.ReturnStmt(ast.Member(id("a"), "x").At(7)))},
			what: "structure member access",
		},
		{
			name: "prototype only",
			defs: []*ast.Node{
				ast.FuncDef(ast.IntSpec(), "g", nil, nil),
				mainFunc(nil, ast.ReturnStmt(ast.Call("g").At(7))),
			},
			what: "calling 'g', which is declared without a body",
		},
		{
			name: "structure array",
			defs: []*ast.Node{point, mainFunc([]*ast.Node{
				ast.Definition(ast.StructSpec("P", nil), ast.Declare(ast.Var("ps", 2)).At(7)),
			})},
			what: "structure array elements",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := lower(t, nil, tt.defs...)
			assert.Nil(t, prog)
			var unsup *util.Unsupported
			require.True(t, errors.As(err, &unsup), "want *util.Unsupported, got %v", err)
			assert.Equal(t, tt.what, unsup.What)
			assert.Equal(t, 7, unsup.Line)
		})
	}
}

func TestStructAssignmentIsUnsupported(t *testing.T) {
	ctx := newTestContext()
	err := run(func() { ctx.codegenExp(ast.Assign(id("rec"), id("rec")), nil) })
	var unsup *util.Unsupported
	require.True(t, errors.As(err, &unsup))
	assert.Equal(t, "structure assignment", unsup.What)
}

func TestFaults(t *testing.T) {
	tests := map[string]*ast.Node{
		"undeclared variable": mainFunc(nil, ast.ReturnStmt(id("ghost"))),
		"malformed statement": mainFunc(nil, ast.New(ast.Stmt, ast.Term(token.Else))),
		"malformed expression": mainFunc(nil, ast.ReturnStmt(
			ast.New(ast.Exp, ast.Int(1), ast.Term(token.Comma), ast.Int(2)))),
		"unknown function": mainFunc(nil, ast.ReturnStmt(ast.Call("nowhere"))),
	}
	for name, def := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := lower(t, nil, def)
			var fault *util.Fault
			require.True(t, errors.As(err, &fault), "want *util.Fault, got %v", err)
		})
	}
}

func TestGenerateIRChecksConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.WordSize = 2
	_, err := lower(t, cfg, mainFunc(nil, ast.ReturnStmt(num(0))))
	assert.ErrorContains(t, err, "word size 2")
}
