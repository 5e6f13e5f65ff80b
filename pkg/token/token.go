package token

import "fmt"

type Type int

const (
	Invalid Type = iota
	IntLit
	FloatLit
	Ident
	TypeName
	Semi
	Comma
	AssignOp
	RelOp
	Plus
	Minus
	Star
	Div
	And
	Or
	Dot
	Not
	LParen
	RParen
	LBracket
	RBracket
	LBrace
	RBrace
	Struct
	Return
	If
	Else
	While
)

// Names are the grammar's terminal names, used in serialized trees and dumps.
var Names = map[Type]string{
	IntLit:   "INT",
	FloatLit: "FLOAT",
	Ident:    "ID",
	TypeName: "TYPE",
	Semi:     "SEMI",
	Comma:    "COMMA",
	AssignOp: "ASSIGNOP",
	RelOp:    "RELOP",
	Plus:     "PLUS",
	Minus:    "MINUS",
	Star:     "STAR",
	Div:      "DIV",
	And:      "AND",
	Or:       "OR",
	Dot:      "DOT",
	Not:      "NOT",
	LParen:   "LP",
	RParen:   "RP",
	LBracket: "LB",
	RBracket: "RB",
	LBrace:   "LC",
	RBrace:   "RC",
	Struct:   "STRUCT",
	Return:   "RETURN",
	If:       "IF",
	Else:     "ELSE",
	While:    "WHILE",
}

// Reverse mapping from terminal name to Type
var TypeMap = make(map[string]Type)

func init() {
	for typ, name := range Names {
		TypeMap[name] = typ
	}
}

func (t Type) String() string {
	if name, ok := Names[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

type Prim int

const (
	PrimInt Prim = iota
	PrimFloat
)

func (p Prim) String() string {
	if p == PrimFloat {
		return "float"
	}
	return "int"
}

type Rel int

const (
	LT Rel = iota
	LE
	GT
	GE
	EQ
	NE
)

var relStrings = [...]string{LT: "<", LE: "<=", GT: ">", GE: ">=", EQ: "==", NE: "!="}

func (r Rel) String() string {
	if r < 0 || int(r) >= len(relStrings) {
		return fmt.Sprintf("Rel(%d)", int(r))
	}
	return relStrings[r]
}

// ParseRel maps an operator spelling back to its Rel.
func ParseRel(s string) (Rel, bool) {
	for i, str := range relStrings {
		if str == s {
			return Rel(i), true
		}
	}
	return 0, false
}

// Token is a terminal of the parse tree. Only the payload field matching Type is meaningful.
type Token struct {
	Type  Type
	Int   int32
	Float float32
	Text  string // ID
	Prim  Prim   // TYPE
	Rel   Rel    // RELOP
}

func (t Token) String() string {
	switch t.Type {
	case IntLit:
		return fmt.Sprintf("INT: %d", t.Int)
	case FloatLit:
		return fmt.Sprintf("FLOAT: %g", t.Float)
	case Ident:
		return "ID: " + t.Text
	case TypeName:
		return "TYPE: " + t.Prim.String()
	case RelOp:
		return "RELOP: " + t.Rel.String()
	}
	return t.Type.String()
}
