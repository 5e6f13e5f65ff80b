package codegen

import (
	"bytes"

	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes an IR program and a configuration, and produces the
	// target assembly as a byte buffer. Malformed IR is reported as a
	// *util.Fault.
	Generate(prog *ir.List, cfg *config.Config) (*bytes.Buffer, error)
}
