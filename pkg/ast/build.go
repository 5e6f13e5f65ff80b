package ast

import "github.com/xplshn/cmmc/pkg/token"

// --- Node Constructors ---

func New(kind Kind, children ...*Node) *Node {
	n := &Node{Kind: kind, Children: children}
	for _, c := range children {
		if c != nil && c.Line != 0 && (n.Line == 0 || c.Line < n.Line) {
			n.Line = c.Line
		}
	}
	return n
}

func NewToken(tok token.Token) *Node { return &Node{Kind: Terminal, Tok: tok} }

// At sets the line of n and returns it.
func (n *Node) At(line int) *Node { n.Line = line; return n }

func Term(t token.Type) *Node { return NewToken(token.Token{Type: t}) }

func IntTok(v int32) *Node       { return NewToken(token.Token{Type: token.IntLit, Int: v}) }
func FloatTok(v float32) *Node   { return NewToken(token.Token{Type: token.FloatLit, Float: v}) }
func IDTok(name string) *Node    { return NewToken(token.Token{Type: token.Ident, Text: name}) }
func TypeTok(p token.Prim) *Node { return NewToken(token.Token{Type: token.TypeName, Prim: p}) }
func RelTok(r token.Rel) *Node   { return NewToken(token.Token{Type: token.RelOp, Rel: r}) }

// list builds a right-recursive list node from items, with an optional separator.
func list(kind Kind, sep token.Type, items []*Node) *Node {
	if len(items) == 0 {
		return nil
	}
	rest := list(kind, sep, items[1:])
	if rest == nil {
		if sep == token.Invalid {
			return New(kind, items[0], nil)
		}
		return New(kind, items[0])
	}
	if sep == token.Invalid {
		return New(kind, items[0], rest)
	}
	return New(kind, items[0], Term(sep), rest)
}

// Expressions

func Int(v int32) *Node       { return New(Exp, IntTok(v)) }
func Float(v float32) *Node   { return New(Exp, FloatTok(v)) }
func Ident(name string) *Node { return New(Exp, IDTok(name)) }
func Paren(e *Node) *Node     { return New(Exp, Term(token.LParen), e, Term(token.RParen)) }
func Neg(e *Node) *Node       { return New(Exp, Term(token.Minus), e) }
func LogicalNot(e *Node) *Node {
	return New(Exp, Term(token.Not), e)
}

// Binary builds Exp op Exp for PLUS, MINUS, STAR, DIV, AND, OR and ASSIGNOP.
func Binary(l *Node, op token.Type, r *Node) *Node { return New(Exp, l, Term(op), r) }

func Assign(l, r *Node) *Node { return Binary(l, token.AssignOp, r) }

func Relation(l *Node, rel token.Rel, r *Node) *Node { return New(Exp, l, RelTok(rel), r) }

func Index(a, i *Node) *Node {
	return New(Exp, a, Term(token.LBracket), i, Term(token.RBracket))
}
func Member(e *Node, field string) *Node { return New(Exp, e, Term(token.Dot), IDTok(field)) }

func Call(name string, args ...*Node) *Node {
	if len(args) == 0 {
		return New(Exp, IDTok(name), Term(token.LParen), Term(token.RParen))
	}
	return New(Exp, IDTok(name), Term(token.LParen), list(Args, token.Comma, args), Term(token.RParen))
}

// Statements

func ExpStmt(e *Node) *Node { return New(Stmt, e, Term(token.Semi)) }
func ReturnStmt(e *Node) *Node {
	return New(Stmt, Term(token.Return), e, Term(token.Semi))
}
func IfStmt(cond, then *Node) *Node {
	return New(Stmt, Term(token.If), Term(token.LParen), cond, Term(token.RParen), then)
}
func IfElseStmt(cond, then, els *Node) *Node {
	return New(Stmt, Term(token.If), Term(token.LParen), cond, Term(token.RParen), then, Term(token.Else), els)
}
func WhileStmt(cond, body *Node) *Node {
	return New(Stmt, Term(token.While), Term(token.LParen), cond, Term(token.RParen), body)
}
func BlockStmt(body *Node) *Node { return New(Stmt, body) }

// Block builds a CompSt from local definitions and statements.
func Block(defs []*Node, stmts ...*Node) *Node {
	return New(CompSt, Term(token.LBrace), list(DefList, token.Invalid, defs), list(StmtList, token.Invalid, stmts), Term(token.RBrace))
}

// Declarations

func IntSpec() *Node   { return New(Specifier, TypeTok(token.PrimInt)) }
func FloatSpec() *Node { return New(Specifier, TypeTok(token.PrimFloat)) }

// StructSpec builds `struct tag { defs }`, or `struct tag` when defs is nil.
func StructSpec(tag string, defs []*Node) *Node {
	if defs == nil {
		return New(Specifier, New(StructSpecifier, Term(token.Struct), New(Tag, IDTok(tag))))
	}
	return New(Specifier, New(StructSpecifier, Term(token.Struct), New(OptTag, IDTok(tag)),
		Term(token.LBrace), list(DefList, token.Invalid, defs), Term(token.RBrace)))
}

// Var builds a VarDec; dims are the array dimensions in source order.
func Var(name string, dims ...int32) *Node {
	n := New(VarDec, IDTok(name))
	for _, d := range dims {
		n = New(VarDec, n, Term(token.LBracket), IntTok(d), Term(token.RBracket))
	}
	return n
}

func Declare(v *Node) *Node           { return New(Dec, v) }
func DeclareInit(v, init *Node) *Node { return New(Dec, v, Term(token.AssignOp), init) }

// Definition builds a local definition `spec decs;`.
func Definition(spec *Node, decs ...*Node) *Node {
	return New(Def, spec, list(DecList, token.Comma, decs), Term(token.Semi))
}

func Param(spec, v *Node) *Node { return New(ParamDec, spec, v) }

// FuncDef builds an ExtDef for `spec name(params) body`. A nil body yields a prototype.
func FuncDef(spec *Node, name string, params []*Node, body *Node) *Node {
	var fun *Node
	if len(params) == 0 {
		fun = New(FunDec, IDTok(name), Term(token.LParen), Term(token.RParen))
	} else {
		fun = New(FunDec, IDTok(name), Term(token.LParen), list(VarList, token.Comma, params), Term(token.RParen))
	}
	if body == nil {
		return New(ExtDef, spec, fun, Term(token.Semi))
	}
	return New(ExtDef, spec, fun, body)
}

// GlobalDef builds an ExtDef declaring global variables.
func GlobalDef(spec *Node, vars ...*Node) *Node {
	return New(ExtDef, spec, list(ExtDecList, token.Comma, vars), Term(token.Semi))
}

// TypeDef builds an ExtDef holding only a specifier, such as a struct definition.
func TypeDef(spec *Node) *Node { return New(ExtDef, spec, Term(token.Semi)) }

func NewProgram(defs ...*Node) *Node {
	return New(Program, list(ExtDefList, token.Invalid, defs))
}
