package ast

import (
	"fmt"
	"io"
	"strings"

	"github.com/xplshn/cmmc/pkg/token"
	"gopkg.in/yaml.v3"
)

// yamlNode is the serialized form of a Node. Nonterminals carry `kind` and
// `children`; terminals carry `token` plus the payload key for their type:
//
//	kind: Exp
//	line: 3
//	children:
//	  - {kind: Exp, children: [{token: ID, text: a}]}
//	  - {token: PLUS}
//	  - {kind: Exp, children: [{token: INT, int: 4}]}
//
// A null child is an empty production.
type yamlNode struct {
	Kind     string  `yaml:"kind"`
	Token    string  `yaml:"token"`
	Line     int     `yaml:"line"`
	Int      int32   `yaml:"int"`
	Float    float32 `yaml:"float"`
	Text     string  `yaml:"text"`
	Type     string  `yaml:"type"`
	Op       string  `yaml:"op"`
	Children []*Node `yaml:"children"`
}

func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var raw yamlNode
	if err := value.Decode(&raw); err != nil {
		return err
	}
	n.Line = raw.Line

	if raw.Token != "" {
		typ, ok := token.TypeMap[raw.Token]
		if !ok {
			return fmt.Errorf("line %d: unknown token %q", value.Line, raw.Token)
		}
		tok := token.Token{Type: typ, Int: raw.Int, Float: raw.Float, Text: raw.Text}
		switch typ {
		case token.Ident:
			if raw.Text == "" {
				return fmt.Errorf("line %d: ID without text", value.Line)
			}
		case token.TypeName:
			switch strings.ToLower(raw.Type) {
			case "int", "":
				tok.Prim = token.PrimInt
			case "float":
				tok.Prim = token.PrimFloat
			default:
				return fmt.Errorf("line %d: unknown primitive type %q", value.Line, raw.Type)
			}
		case token.RelOp:
			rel, ok := token.ParseRel(raw.Op)
			if !ok {
				return fmt.Errorf("line %d: unknown relational operator %q", value.Line, raw.Op)
			}
			tok.Rel = rel
		}
		n.Kind, n.Tok = Terminal, tok
		return nil
	}

	kind, ok := KindByName(raw.Kind)
	if !ok || kind == Terminal {
		return fmt.Errorf("line %d: unknown node kind %q", value.Line, raw.Kind)
	}
	n.Kind, n.Children = kind, raw.Children
	return nil
}

// Decode reads a serialized parse tree. JSON input is accepted as well,
// being a subset of YAML.
func Decode(r io.Reader) (*Node, error) {
	var root Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		return nil, err
	}
	if root.Kind != Program {
		return nil, fmt.Errorf("root node is %s, want Program", root.Kind)
	}
	return &root, nil
}
