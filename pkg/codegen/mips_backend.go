package codegen

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/frame"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/util"
)

// Layouter computes the frame table of one function range.
type Layouter interface {
	Layout(fn []*ir.Instruction) *frame.Table
}

type frameLayouter struct{}

func (frameLayouter) Layout(fn []*ir.Instruction) *frame.Table { return frame.Build(fn) }

// Scratch registers. Operands go to $t0 and $t1, results come from $t2.
const (
	regA   = "$t0"
	regB   = "$t1"
	regRes = "$t2"
)

type mipsBackend struct {
	out     *bytes.Buffer
	cfg     *config.Config
	layout  Layouter
	frame   *frame.Table
	isEntry bool
	staged  int // ARG instructions seen since the last CALL
}

func NewMIPSBackend() Backend { return NewMIPSBackendWithLayouter(frameLayouter{}) }

// NewMIPSBackendWithLayouter is NewMIPSBackend with a custom frame layout.
func NewMIPSBackendWithLayouter(l Layouter) Backend { return &mipsBackend{layout: l} }

func (b *mipsBackend) Generate(prog *ir.List, cfg *config.Config) (buf *bytes.Buffer, err error) {
	defer util.Recover(&err)
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if verr := cfg.Validate(); verr != nil {
		return nil, verr
	}
	b.out = &bytes.Buffer{}
	b.cfg = cfg
	b.frame = nil
	b.staged = 0

	b.genHeader()
	for i, inst := range prog.Instructions() {
		if verr := inst.Validate(); verr != nil {
			panic(verr)
		}
		if inst.Op == ir.OpFunction {
			b.frame = b.layout.Layout(prog.FunctionAt(i))
			b.isEntry = inst.Args[0].String() == cfg.EntryFunc
		} else if b.frame == nil {
			util.Faultf("'%s' outside of any function", inst)
		}
		b.genInstr(inst)
	}
	if b.staged != 0 {
		util.Faultf("%d ARG instructions are not followed by a CALL", b.staged)
	}
	return b.out, nil
}

func (b *mipsBackend) emit(format string, args ...interface{}) {
	b.out.WriteString("  ")
	fmt.Fprintf(b.out, format, args...)
	b.out.WriteByte('\n')
}

func (b *mipsBackend) label(name string) { fmt.Fprintf(b.out, "%s:\n", name) }

func (b *mipsBackend) genHeader() {
	b.out.WriteString(".data\n")
	fmt.Fprintf(b.out, "_prompt: .asciiz %s\n", strconv.Quote(b.cfg.Prompt))
	b.out.WriteString("_ret: .asciiz \"\\n\"\n")
	fmt.Fprintf(b.out, ".globl %s\n", b.cfg.EntryFunc)
	b.out.WriteString(".text\n")

	b.out.WriteString("\n")
	b.label("read")
	b.emit("li $v0, 4")
	b.emit("la $a0, _prompt")
	b.emit("syscall")
	b.emit("li $v0, 5")
	b.emit("syscall")
	b.emit("jr $ra")

	b.out.WriteString("\n")
	b.label("write")
	b.emit("li $v0, 1")
	b.emit("syscall")
	b.emit("li $v0, 4")
	b.emit("la $a0, _ret")
	b.emit("syscall")
	b.emit("move $v0, $0")
	b.emit("jr $ra")
}

func fitsImm16(v int64) bool { return v >= -32768 && v <= 32767 }

// addImm emits dst = src + imm, spilling a wide immediate through $t1.
func (b *mipsBackend) addImm(dst, src string, imm int64) {
	if fitsImm16(imm) {
		b.emit("addi %s, %s, %d", dst, src, imm)
		return
	}
	b.emit("li %s, %d", regB, imm)
	b.emit("add %s, %s, %s", dst, src, regB)
}

// load materialises an rvalue in reg.
func (b *mipsBackend) load(reg string, o ir.Operand) {
	switch v := o.(type) {
	case *ir.Lit:
		b.emit("li %s, %d", reg, v.Value)
	case *ir.Var:
		b.emit("lw %s, %d($fp)", reg, b.frame.Offset(v.Name))
	default:
		util.Faultf("cannot load %v into a register", o)
	}
}

func (b *mipsBackend) store(reg string, o ir.Operand) {
	v, ok := o.(*ir.Var)
	if !ok {
		util.Faultf("cannot store into %v", o)
	}
	b.emit("sw %s, %d($fp)", reg, b.frame.Offset(v.Name))
}

var branches = map[ir.Op]string{
	ir.OpEqGoto: "beq", ir.OpNeGoto: "bne", ir.OpLtGoto: "blt",
	ir.OpGtGoto: "bgt", ir.OpLeGoto: "ble", ir.OpGeGoto: "bge",
}

func (b *mipsBackend) genInstr(inst *ir.Instruction) {
	a := inst.Args
	if b.cfg.IsFeatureEnabled(config.FeatIRComments) && inst.Op != ir.OpFunction && inst.Op != ir.OpLabel {
		b.emit("# %s", inst)
	}

	switch inst.Op {
	case ir.OpLabel:
		b.label(a[0].String())
	case ir.OpFunction:
		b.genPrologue(a[0].String())
	case ir.OpAssign:
		b.load(regA, a[1])
		b.store(regA, a[0])
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
		b.genArith(inst)
	case ir.OpAddr:
		src, ok := a[1].(*ir.Var)
		if !ok {
			util.Faultf("ADDR of %v", a[1])
		}
		b.addImm(regRes, "$fp", int64(b.frame.Offset(src.Name)))
		b.store(regRes, a[0])
	case ir.OpLoad:
		b.load(regA, a[1])
		b.emit("lw %s, 0(%s)", regRes, regA)
		b.store(regRes, a[0])
	case ir.OpSave:
		b.load(regA, a[0])
		b.load(regB, a[1])
		b.emit("sw %s, 0(%s)", regB, regA)
	case ir.OpGoto:
		b.emit("j %s", a[0])
	case ir.OpEqGoto, ir.OpNeGoto, ir.OpLtGoto, ir.OpGtGoto, ir.OpLeGoto, ir.OpGeGoto:
		b.load(regA, a[0])
		b.load(regB, a[1])
		b.emit("%s %s, %s, %s", branches[inst.Op], regA, regB, a[2])
	case ir.OpRet:
		b.genReturn(a[0])
	case ir.OpDec, ir.OpParam:
		// Only the frame layout needs these.
	case ir.OpArg:
		b.staged++
		b.load(regA, a[0])
		b.emit("sw %s, %d($sp)", regA, -ir.WordSize*b.staged)
	case ir.OpCall:
		b.genCall(a[1].String(), a[0])
	case ir.OpRead:
		b.genRuntimeCall("read")
		b.store("$v0", a[0])
	case ir.OpWrite:
		b.load("$a0", a[0])
		b.genRuntimeCall("write")
	default:
		util.Faultf("no emission rule for %s", inst.Op)
	}
}

func (b *mipsBackend) genPrologue(name string) {
	b.out.WriteString("\n")
	b.label(name)
	if b.isEntry {
		b.emit("move $fp, $sp")
	}
	b.addImm("$sp", "$fp", int64(b.frame.Extent()))
}

func (b *mipsBackend) genArith(inst *ir.Instruction) {
	dst, x, y := inst.Args[0], inst.Args[1], inst.Args[2]
	lx, xLit := x.(*ir.Lit)
	ly, yLit := y.(*ir.Lit)

	switch {
	case inst.Op == ir.OpAdd && yLit && fitsImm16(int64(ly.Value)):
		b.load(regA, x)
		b.emit("addi %s, %s, %d", regRes, regA, ly.Value)
	case inst.Op == ir.OpAdd && xLit && fitsImm16(int64(lx.Value)):
		b.load(regA, y)
		b.emit("addi %s, %s, %d", regRes, regA, lx.Value)
	case inst.Op == ir.OpSub && yLit && fitsImm16(-int64(ly.Value)):
		b.load(regA, x)
		b.emit("addi %s, %s, %d", regRes, regA, -int64(ly.Value))
	default:
		b.load(regA, x)
		b.load(regB, y)
		switch inst.Op {
		case ir.OpAdd:
			b.emit("add %s, %s, %s", regRes, regA, regB)
		case ir.OpSub:
			b.emit("sub %s, %s, %s", regRes, regA, regB)
		case ir.OpMul:
			b.emit("mul %s, %s, %s", regRes, regA, regB)
		case ir.OpDiv:
			b.emit("div %s, %s", regA, regB)
			b.emit("mflo %s", regRes)
		}
	}
	b.store(regRes, dst)
}

// genCall emits the caller side of a call. The staged arguments sit just
// below the stack pointer; the new frame starts right under them with the
// saved frame pointer, followed by the return address.
func (b *mipsBackend) genCall(fn string, dst ir.Operand) {
	n := b.staged
	b.staged = 0
	size := int64(ir.WordSize * (n + 1))

	b.addImm("$sp", "$sp", -size)
	b.emit("sw $fp, 0($sp)")
	b.emit("move $fp, $sp")
	b.emit("sw $ra, %d($fp)", -ir.WordSize)
	b.emit("addi $sp, $sp, %d", -ir.WordSize)
	b.emit("jal %s", fn)
	b.emit("lw $ra, %d($sp)", -ir.WordSize)
	b.addImm("$sp", "$sp", size)
	b.store("$v0", dst)
}

func (b *mipsBackend) genReturn(val ir.Operand) {
	if b.isEntry {
		// Nothing to resume: the entry function always reports success.
		b.load("$a0", val)
		b.emit("move $v0, $0")
		b.emit("jr $ra")
		return
	}
	b.emit("move $sp, $fp")
	b.load("$v0", val)
	b.emit("lw $fp, 0($fp)")
	b.emit("jr $ra")
}

func (b *mipsBackend) genRuntimeCall(stub string) {
	b.emit("addi $sp, $sp, %d", -ir.WordSize)
	b.emit("sw $ra, 0($sp)")
	b.emit("jal %s", stub)
	b.emit("lw $ra, 0($sp)")
	b.emit("addi $sp, $sp, %d", ir.WordSize)
}
