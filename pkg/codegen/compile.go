package codegen

import (
	"bytes"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/symtab"
)

// Lower collects the declarations of root and translates it to IR.
func Lower(root *ast.Node, cfg *config.Config) (*ir.List, error) {
	syms, err := symtab.Collect(root)
	if err != nil {
		return nil, err
	}
	return NewContext(cfg, syms).GenerateIR(root)
}

// Compile runs the whole pipeline from tree to assembly with the default backend.
func Compile(root *ast.Node, cfg *config.Config) (*bytes.Buffer, error) {
	prog, err := Lower(root, cfg)
	if err != nil {
		return nil, err
	}
	return NewMIPSBackend().Generate(prog, cfg)
}
