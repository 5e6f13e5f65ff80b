// Package ast defines the parse tree handed over by the C-- front end
package ast

import (
	"fmt"

	"github.com/xplshn/cmmc/pkg/token"
)

// Kind is a grammar symbol: Terminal for leaves, a nonterminal otherwise
type Kind int

// Node kinds enum
const (
	Terminal Kind = iota
	Program
	ExtDefList
	ExtDef
	ExtDecList
	Specifier
	StructSpecifier
	OptTag
	Tag
	VarDec
	FunDec
	VarList
	ParamDec
	CompSt
	StmtList
	Stmt
	DefList
	Def
	DecList
	Dec
	Exp
	Args
)

var kindNames = [...]string{
	Terminal:        "TOKEN",
	Program:         "Program",
	ExtDefList:      "ExtDefList",
	ExtDef:          "ExtDef",
	ExtDecList:      "ExtDecList",
	Specifier:       "Specifier",
	StructSpecifier: "StructSpecifier",
	OptTag:          "OptTag",
	Tag:             "Tag",
	VarDec:          "VarDec",
	FunDec:          "FunDec",
	VarList:         "VarList",
	ParamDec:        "ParamDec",
	CompSt:          "CompSt",
	StmtList:        "StmtList",
	Stmt:            "Stmt",
	DefList:         "DefList",
	Def:             "Def",
	DecList:         "DecList",
	Dec:             "Dec",
	Exp:             "Exp",
	Args:            "Args",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// KindByName resolves a nonterminal name as written in serialized trees.
func KindByName(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// Node represents a node in the parse tree. A nil entry in Children
// stands for an empty production (for example an empty StmtList).
type Node struct {
	Kind     Kind
	Line     int
	Tok      token.Token // Set for Terminal nodes only
	Children []*Node
}

// Child returns the i-th child or nil when it does not exist.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// IsToken reports whether n is a terminal of the given type.
func (n *Node) IsToken(t token.Type) bool {
	return n != nil && n.Kind == Terminal && n.Tok.Type == t
}

// Is matches the children of n against a production body. Each symbol is
// either a Kind (nonterminal) or a token.Type (terminal). A nil child
// matches any nonterminal, since empty productions are stored as nil.
func (n *Node) Is(symbols ...any) bool {
	if n == nil || len(n.Children) != len(symbols) {
		return false
	}
	for i, sym := range symbols {
		c := n.Children[i]
		switch s := sym.(type) {
		case Kind:
			if c == nil {
				if s == Terminal { return false }
				continue
			}
			if c.Kind != s { return false }
		case token.Type:
			if !c.IsToken(s) { return false }
		default:
			panic(fmt.Sprintf("ast: invalid production symbol %T", sym))
		}
	}
	return true
}

// Items flattens a right-recursive list (ExtDefList, StmtList, DefList,
// DecList, VarList, ExtDecList, Args) into its elements.
func Items(list *Node) []*Node {
	var items []*Node
	for n := list; n != nil && len(n.Children) > 0; {
		items = append(items, n.Children[0])
		last := n.Children[len(n.Children)-1]
		if len(n.Children) == 1 || last == nil || last.Kind != n.Kind {
			break
		}
		n = last
	}
	return items
}

func (n *Node) String() string {
	if n == nil {
		return "<empty>"
	}
	if n.Kind == Terminal {
		return n.Tok.String()
	}
	return fmt.Sprintf("%s (%d)", n.Kind, n.Line)
}
