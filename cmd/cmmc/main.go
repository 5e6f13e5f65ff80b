package main

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/tebeka/atexit"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/cli"
	"github.com/xplshn/cmmc/pkg/codegen"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/util"
)

func main() {
	app := cli.NewApp("cmmc")
	app.Synopsis = "[options] <input.yaml>"
	app.Description = "Translates a C-- syntax tree into three-address IR and MIPS32 assembly for SPIM."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/cmmc>"

	var (
		outFile    string
		configFile string
		dumpIR     bool
		dumpTree   bool
		verbose    bool
		listOpts   bool
		warnFlags  []string
		featFlags  []string
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "out.s", "Place the output into <file>, '-' for stdout.", "file")
	fs.String(&configFile, "config", "c", "", "Load settings from a YAML file before applying flags.", "file")
	fs.Bool(&dumpIR, "dump-ir", "d", false, "Print the intermediate representation instead of assembly.")
	fs.Bool(&dumpTree, "dump-tree", "", false, "Print the decoded syntax tree and exit.")
	fs.Bool(&verbose, "verbose", "v", false, "Trace each stage of the pipeline.")
	fs.Bool(&listOpts, "list-options", "", false, "List every feature and warning with its state.")
	fs.Prefix(&warnFlags, "W", "Enable or disable a warning; -Wall toggles all of them.", "warning")
	fs.Prefix(&featFlags, "F", "Enable or disable a feature.", "feature")

	trace := func(msg string, kvs ...interface{}) {
		if verbose {
			tlog.Printw(msg, kvs...)
		}
	}

	app.Action = func(args []string) error {
		cfg := config.NewConfig()
		if configFile != "" {
			if err := cfg.LoadFile(configFile); err != nil {
				util.Error(0, "%v", errors.Wrap(err, "load config"))
			}
			trace("loaded config", "path", configFile)
		}
		cfg.ProcessFlags(append(warnFlags, featFlags...))

		if listOpts {
			cfg.PrintOptions(os.Stdout)
			return nil
		}
		if len(args) > 1 {
			util.Error(0, "expected one input tree, got %d", len(args))
		}
		path := "-"
		if len(args) == 1 {
			path = args[0]
			util.SetSourceName(path)
		}

		root, err := readTree(path)
		if err != nil {
			util.Error(0, "%v", err)
		}
		trace("decoded tree", "path", path)

		if dumpTree {
			return ast.Dump(os.Stdout, root)
		}

		prog, err := codegen.Lower(root, cfg)
		if err != nil {
			util.Error(util.Line(err), "%v", err)
		}
		trace("generated ir", "instructions", prog.Len(), "functions", len(prog.Functions()))

		if dumpIR {
			_, err := prog.WriteTo(os.Stdout)
			return errors.Wrap(err, "dump ir")
		}

		asm, err := codegen.NewMIPSBackend().Generate(prog, cfg)
		if err != nil {
			util.Error(0, "code generation failed: %v", err)
		}
		trace("generated assembly", "bytes", asm.Len())

		if err := writeOutput(outFile, asm.Bytes(), trace); err != nil {
			util.Error(0, "%v", err)
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func readTree(path string) (*ast.Node, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open tree")
		}
		defer f.Close()
		r = f
	}
	root, err := ast.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode tree %v", path)
	}
	return root, nil
}

// writeOutput leaves an existing file alone when its content hash matches.
// A file that could not be written completely is removed, also when the
// process exits through util.Error.
func writeOutput(path string, data []byte, trace func(string, ...interface{})) (err error) {
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return errors.Wrap(err, "write stdout")
	}
	if old, rerr := os.ReadFile(path); rerr == nil && xxhash.Sum64(old) == xxhash.Sum64(data) {
		trace("output unchanged", "path", path, "hash", xxhash.Sum64(data))
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	complete := false
	atexit.Register(func() {
		if !complete {
			os.Remove(path)
		}
	})
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close output")
		}
		if err != nil {
			os.Remove(path)
			return
		}
		complete = true
		trace("wrote output", "path", path, "bytes", len(data))
	}()

	if _, err = f.Write(data); err != nil {
		return errors.Wrap(err, "write output")
	}
	return nil
}
